package transcription

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/genyarko/live-caption-service/internal/audio"
	"github.com/genyarko/live-caption-service/internal/lang"
)

// OpenAIConfig configures the Whisper transcription backend
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // Empty for the public API
	Model      string
	SampleRate int
	Timeout    time.Duration
}

// OpenAIClient transcribes segments with the OpenAI audio API.
// Whisper takes ISO 639-1 language codes, so locales are reduced to their
// base language ("en-US" -> "en").
type OpenAIClient struct {
	client     *openai.Client
	model      string
	sampleRate int
	logger     *slog.Logger
}

// NewOpenAIClient creates an OpenAI transcription backend
func NewOpenAIClient(config OpenAIConfig, logger *slog.Logger) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key cannot be empty")
	}
	if config.Model == "" {
		config.Model = openai.Whisper1
	}
	if config.SampleRate <= 0 {
		config.SampleRate = audio.SampleRate
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      config.Model,
		sampleRate: config.SampleRate,
		logger:     logger.With(slog.String("component", "openai_transcriber")),
	}, nil
}

// Transcribe uploads the segment as a WAV file
func (c *OpenAIClient) Transcribe(ctx context.Context, pcm []byte, languageCode string) (string, error) {
	wav, err := audio.EncodeWAV(pcm, c.sampleRate)
	if err != nil {
		return "", &Error{Backend: "openai", Err: err}
	}

	language := ""
	if languageCode != "" {
		language = lang.TranslationCode(languageCode)
	}

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: "segment.wav",
		Reader:   bytes.NewReader(wav),
		Language: language,
	})
	if err != nil {
		return "", &Error{Backend: "openai", Err: err}
	}

	c.logger.Debug("Segment transcribed",
		slog.Int("pcm_bytes", len(pcm)),
		slog.String("language", language),
		slog.String("detected", resp.Language))

	return resp.Text, nil
}
