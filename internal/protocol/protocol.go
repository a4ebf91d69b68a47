package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/websocket"
)

// Command types
const (
	CommandStart             = "start"
	CommandStop              = "stop"
	CommandSetSourceLanguage = "set_source_language"
	CommandSetTargetLanguage = "set_target_language"
	CommandSubmitText        = "submit_text"
)

// Reply types written back for commands
const (
	ReplyAck   = "ack"
	ReplyError = "command_error"
)

// Payload limits
const (
	BytesPerSample      = 2       // PCM16LE, mono
	MaxAudioPayloadSize = 1 << 20 // 32 s of 16 kHz audio per message
	MaxCommandSize      = 16 << 10
	MaxTextLength       = 4096
)

// Command is a JSON control message sent by the client.
// Language is used by the set_*_language commands, Text by submit_text.
type Command struct {
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Reply acknowledges or rejects a command
type Reply struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ParsedMessage represents a fully parsed websocket message
type ParsedMessage struct {
	Command *Command // Only set for text messages
	Audio   []byte   // Only set for binary messages
}

// ParseMessage parses a websocket message by its frame type
func ParseMessage(messageType int, data []byte) (*ParsedMessage, error) {
	switch messageType {
	case websocket.TextMessage:
		cmd, err := ParseCommand(data)
		if err != nil {
			return nil, err
		}
		return &ParsedMessage{Command: cmd}, nil

	case websocket.BinaryMessage:
		if err := ValidateAudioPayload(data); err != nil {
			return nil, err
		}
		return &ParsedMessage{Audio: data}, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %d", messageType)
	}
}

// ParseCommand decodes and validates a JSON command
func ParseCommand(data []byte) (*Command, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("command is empty")
	}
	if len(data) > MaxCommandSize {
		return nil, fmt.Errorf("command too large: %d bytes (maximum %d)", len(data), MaxCommandSize)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	var cmd Command
	if err := decoder.Decode(&cmd); err != nil {
		return nil, fmt.Errorf("failed to decode command: %w", err)
	}

	if err := ValidateCommand(&cmd); err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}

	return &cmd, nil
}

// ValidateCommand validates the command fields
func ValidateCommand(cmd *Command) error {
	if !IsValidCommandType(cmd.Type) {
		return fmt.Errorf("unknown command type: %q", cmd.Type)
	}

	switch cmd.Type {
	case CommandSetSourceLanguage, CommandSetTargetLanguage:
		if strings.TrimSpace(cmd.Language) == "" {
			return fmt.Errorf("%s requires a language", cmd.Type)
		}
	case CommandSubmitText:
		if strings.TrimSpace(cmd.Text) == "" {
			return fmt.Errorf("%s requires text", cmd.Type)
		}
		if n := utf8.RuneCountInString(cmd.Text); n > MaxTextLength {
			return fmt.Errorf("text too long: %d characters (maximum %d)", n, MaxTextLength)
		}
	}

	return nil
}

// IsValidCommandType checks if the command type is known
func IsValidCommandType(commandType string) bool {
	switch commandType {
	case CommandStart, CommandStop, CommandSetSourceLanguage, CommandSetTargetLanguage, CommandSubmitText:
		return true
	default:
		return false
	}
}

// ValidateAudioPayload checks that data holds whole PCM16LE samples
func ValidateAudioPayload(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("audio payload is empty")
	}
	if len(data)%BytesPerSample != 0 {
		return fmt.Errorf("audio payload has odd length %d, expected whole 16-bit samples", len(data))
	}
	if len(data) > MaxAudioPayloadSize {
		return fmt.Errorf("audio payload too large: %d bytes (maximum %d)", len(data), MaxAudioPayloadSize)
	}
	return nil
}

// SampleCount returns the number of samples in a PCM16LE payload
func SampleCount(data []byte) int {
	return len(data) / BytesPerSample
}

// Ack builds a successful reply for a command
func Ack(commandType string) Reply {
	return Reply{Type: ReplyAck, Command: commandType}
}

// ErrorReply builds a failure reply; commandType may be empty when the
// message could not be parsed
func ErrorReply(commandType string, err error) Reply {
	return Reply{Type: ReplyError, Command: commandType, Error: err.Error()}
}

// String returns a human-readable representation of the command
func (c *Command) String() string {
	switch c.Type {
	case CommandSetSourceLanguage, CommandSetTargetLanguage:
		return fmt.Sprintf("Command{Type:%s, Language:%q}", c.Type, c.Language)
	case CommandSubmitText:
		return fmt.Sprintf("Command{Type:%s, TextLen:%d}", c.Type, utf8.RuneCountInString(c.Text))
	default:
		return fmt.Sprintf("Command{Type:%s}", c.Type)
	}
}
