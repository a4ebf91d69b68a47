package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/genyarko/live-caption-service/internal/lang"
)

// Environment variables that override the configuration file
const (
	EnvTranscriptionAPIKey = "TRANSCRIPTION_API_KEY"
	EnvOpenAIAPIKey        = "OPENAI_API_KEY"
	EnvLogLevel            = "CAPTION_LOG_LEVEL"
)

// Transcription providers
const (
	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"
)

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http" json:"http"`
	Audio         AudioConfig         `yaml:"audio" json:"audio"`
	Segmenter     SegmenterConfig     `yaml:"segmenter" json:"segmenter"`
	Transcription TranscriptionConfig `yaml:"transcription" json:"transcription"`
	Translation   TranslationConfig   `yaml:"translation" json:"translation"`
	Cache         CacheConfig         `yaml:"cache" json:"cache"`
	Session       SessionConfig       `yaml:"session" json:"session"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port" json:"port"`
	Address string `yaml:"address" json:"address"`
}

// AudioConfig describes the PCM stream clients send
type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate" json:"sample_rate"`
	FrameDurationMs int `yaml:"frame_duration_ms" json:"frame_duration_ms"`
}

// SegmenterConfig contains silence detection and utterance segmentation parameters
type SegmenterConfig struct {
	SilenceThreshold   float64 `yaml:"silence_threshold" json:"silence_threshold"` // RMS, normalized samples
	SilenceFrames      int     `yaml:"silence_frames" json:"silence_frames"`
	MaxUtteranceMs     int     `yaml:"max_utterance_ms" json:"max_utterance_ms"`
	SkipSilentSegments bool    `yaml:"skip_silent_segments" json:"skip_silent_segments"`
}

// TranscriptionConfig contains transcription backend configuration
type TranscriptionConfig struct {
	Provider      string `yaml:"provider" json:"provider"` // http or openai
	Endpoint      string `yaml:"endpoint" json:"endpoint"`
	APIKey        string `yaml:"api_key" json:"api_key"`
	Model         string `yaml:"model" json:"model"`
	Format        string `yaml:"format" json:"format"`   // raw or wav
	Timeout       int    `yaml:"timeout" json:"timeout"` // seconds
	MaxConcurrent int    `yaml:"max_concurrent" json:"max_concurrent"`
}

// TranslationConfig contains the online and offline translation backends
type TranslationConfig struct {
	OnlineEnabled   bool                     `yaml:"online_enabled" json:"online_enabled"`
	Timeout         int                      `yaml:"timeout" json:"timeout"` // seconds
	ConnectivityURL string                   `yaml:"connectivity_url" json:"connectivity_url"`
	ConnectivityTTL int                      `yaml:"connectivity_ttl" json:"connectivity_ttl"` // seconds
	Online          OnlineTranslationConfig  `yaml:"online" json:"online"`
	Offline         OfflineTranslationConfig `yaml:"offline" json:"offline"`
}

// OnlineTranslationConfig configures the OpenAI chat completion translator
type OnlineTranslationConfig struct {
	APIKey  string `yaml:"api_key" json:"api_key"`
	Model   string `yaml:"model" json:"model"`
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// OfflineTranslationConfig configures a local LibreTranslate instance
type OfflineTranslationConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	APIKey   string `yaml:"api_key" json:"api_key"`
}

// CacheConfig contains translation cache configuration
type CacheConfig struct {
	Capacity int `yaml:"capacity" json:"capacity"`
	TTL      int `yaml:"ttl" json:"ttl"` // seconds
}

// SessionConfig contains defaults for new caption sessions
type SessionConfig struct {
	DefaultSource string `yaml:"default_source" json:"default_source"`
	DefaultTarget string `yaml:"default_target" json:"default_target"` // Empty or "none" disables translation
	IdleTimeout   int    `yaml:"idle_timeout" json:"idle_timeout"`     // seconds
	EventBuffer   int    `yaml:"event_buffer" json:"event_buffer"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// Default returns the configuration used for every field the file leaves out
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "0.0.0.0",
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			FrameDurationMs: 100,
		},
		Segmenter: SegmenterConfig{
			SilenceThreshold:   0.005,
			SilenceFrames:      4,
			MaxUtteranceMs:     2000,
			SkipSilentSegments: true,
		},
		Transcription: TranscriptionConfig{
			Provider:      ProviderHTTP,
			Format:        "wav",
			Timeout:       30,
			MaxConcurrent: 4,
		},
		Translation: TranslationConfig{
			OnlineEnabled:   true,
			Timeout:         10,
			ConnectivityTTL: 30,
			Online: OnlineTranslationConfig{
				Model: "gpt-4o-mini",
			},
		},
		Cache: CacheConfig{
			Capacity: 500,
			TTL:      3600,
		},
		Session: SessionConfig{
			DefaultSource: lang.Auto,
			IdleTimeout:   1800,
			EventBuffer:   64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadEnvFile loads variables from a .env file into the process environment.
// Variables already set are left alone and a missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	return config, nil
}

// Parse decodes YAML over the defaults, applies environment overrides and validates the result
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ApplyEnv overrides secrets and the log level from the environment
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvTranscriptionAPIKey); v != "" {
		c.Transcription.APIKey = v
	}
	if v := os.Getenv(EnvOpenAIAPIKey); v != "" {
		c.Translation.Online.APIKey = v
		if c.Transcription.Provider == ProviderOpenAI && c.Transcription.APIKey == "" {
			c.Transcription.APIKey = v
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Segmenter.Validate(); err != nil {
		return fmt.Errorf("segmenter config: %w", err)
	}

	if c.Segmenter.MaxUtteranceMs < c.Audio.FrameDurationMs {
		return fmt.Errorf("segmenter config: max_utterance_ms (%d) must be at least one frame (%d ms)",
			c.Segmenter.MaxUtteranceMs, c.Audio.FrameDurationMs)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Translation.Validate(); err != nil {
		return fmt.Errorf("translation config: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("http address cannot be empty")
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz, got %d", a.SampleRate)
	}

	if a.FrameDurationMs < 10 || a.FrameDurationMs > 1000 {
		return fmt.Errorf("frame_duration_ms must be between 10 and 1000, got %d", a.FrameDurationMs)
	}

	return nil
}

// Validate validates segmenter configuration
func (s *SegmenterConfig) Validate() error {
	if s.SilenceThreshold <= 0 || s.SilenceThreshold >= 1 {
		return fmt.Errorf("silence_threshold must be between 0 and 1 (exclusive), got %f", s.SilenceThreshold)
	}

	if s.SilenceFrames < 1 {
		return fmt.Errorf("silence_frames must be at least 1, got %d", s.SilenceFrames)
	}

	if s.MaxUtteranceMs <= 0 {
		return fmt.Errorf("max_utterance_ms must be positive, got %d", s.MaxUtteranceMs)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	switch t.Provider {
	case ProviderHTTP:
		if t.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for the http provider")
		}
	case ProviderOpenAI:
		if t.APIKey == "" {
			return fmt.Errorf("api_key cannot be empty for the openai provider (set %s or %s)",
				EnvTranscriptionAPIKey, EnvOpenAIAPIKey)
		}
	default:
		return fmt.Errorf("provider must be 'http' or 'openai', got '%s'", t.Provider)
	}

	validFormats := map[string]bool{"raw": true, "wav": true}
	if !validFormats[t.Format] {
		return fmt.Errorf("format must be 'raw' or 'wav', got '%s'", t.Format)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates translation configuration
func (t *TranslationConfig) Validate() error {
	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.ConnectivityTTL < 0 {
		return fmt.Errorf("connectivity_ttl cannot be negative, got %d", t.ConnectivityTTL)
	}

	if t.Online.Model == "" {
		return fmt.Errorf("online model cannot be empty")
	}

	return nil
}

// HasBackend reports whether any translation backend can be built
func (t *TranslationConfig) HasBackend() bool {
	return t.Offline.Endpoint != "" || t.Online.APIKey != ""
}

// Validate validates cache configuration
func (c *CacheConfig) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1, got %d", c.Capacity)
	}

	if c.TTL < 1 {
		return fmt.Errorf("ttl must be at least 1 second, got %d", c.TTL)
	}

	return nil
}

// Validate validates session defaults
func (s *SessionConfig) Validate() error {
	if _, err := lang.Normalize(s.DefaultSource); err != nil {
		return fmt.Errorf("default_source: %w", err)
	}

	target := strings.TrimSpace(s.DefaultTarget)
	if target != "" && !strings.EqualFold(target, "none") {
		if lang.IsAuto(target) {
			return fmt.Errorf("default_target cannot be '%s'", lang.Auto)
		}
		if _, err := lang.Normalize(target); err != nil {
			return fmt.Errorf("default_target: %w", err)
		}
	}

	if s.IdleTimeout < 1 {
		return fmt.Errorf("idle_timeout must be at least 1 second, got %d", s.IdleTimeout)
	}

	if s.EventBuffer < 1 {
		return fmt.Errorf("event_buffer must be at least 1, got %d", s.EventBuffer)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Anything besides stdout and stderr is a file path
	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// Redacted returns a copy safe to expose over the API, with secrets masked
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}

	c.Transcription.APIKey = mask(c.Transcription.APIKey)
	c.Translation.Online.APIKey = mask(c.Translation.Online.APIKey)
	c.Translation.Offline.APIKey = mask(c.Translation.Offline.APIKey)
	return c
}

// GetFrameDuration returns the frame duration as a time.Duration
func (a *AudioConfig) GetFrameDuration() time.Duration {
	return time.Duration(a.FrameDurationMs) * time.Millisecond
}

// GetMaxUtteranceDuration returns the utterance cap as a time.Duration
func (s *SegmenterConfig) GetMaxUtteranceDuration() time.Duration {
	return time.Duration(s.MaxUtteranceMs) * time.Millisecond
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the per-call translation timeout as a time.Duration
func (t *TranslationConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetConnectivityTTLDuration returns how long a connectivity probe result is reused
func (t *TranslationConfig) GetConnectivityTTLDuration() time.Duration {
	return time.Duration(t.ConnectivityTTL) * time.Second
}

// GetTTLDuration returns the cache entry lifetime as a time.Duration
func (c *CacheConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// GetIdleTimeoutDuration returns the session idle timeout as a time.Duration
func (s *SessionConfig) GetIdleTimeoutDuration() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}
