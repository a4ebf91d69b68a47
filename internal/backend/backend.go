// Package backend builds the transcription and translation backends, and
// the per-session pipeline settings, from the service configuration.
package backend

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/genyarko/live-caption-service/internal/audio"
	"github.com/genyarko/live-caption-service/internal/config"
	"github.com/genyarko/live-caption-service/internal/metrics"
	"github.com/genyarko/live-caption-service/internal/stream"
	"github.com/genyarko/live-caption-service/internal/transcription"
	"github.com/genyarko/live-caption-service/internal/translation"
)

// Set holds the backends shared by every session
type Set struct {
	Transcriber transcription.Transcriber
	Router      *translation.Router // Nil when no translation backend is configured

	httpClient *transcription.Client
}

// Build creates the configured backends
func Build(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Set, error) {
	set := &Set{}

	switch cfg.Transcription.Provider {
	case config.ProviderOpenAI:
		client, err := transcription.NewOpenAIClient(transcription.OpenAIConfig{
			APIKey:     cfg.Transcription.APIKey,
			BaseURL:    cfg.Transcription.Endpoint,
			Model:      cfg.Transcription.Model,
			SampleRate: cfg.Audio.SampleRate,
			Timeout:    cfg.Transcription.GetTimeoutDuration(),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai transcriber: %w", err)
		}
		set.Transcriber = client

	default:
		client, err := transcription.NewClient(transcription.Config{
			Endpoint:      cfg.Transcription.Endpoint,
			APIKey:        cfg.Transcription.APIKey,
			Model:         cfg.Transcription.Model,
			Format:        cfg.Transcription.Format,
			SampleRate:    cfg.Audio.SampleRate,
			Timeout:       cfg.Transcription.GetTimeoutDuration(),
			MaxConcurrent: cfg.Transcription.MaxConcurrent,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create transcription client: %w", err)
		}
		set.Transcriber = client
		set.httpClient = client
	}

	router, err := NewRouter(cfg, m, logger)
	if err != nil {
		set.Close()
		return nil, err
	}
	set.Router = router

	return set, nil
}

// NewRouter builds the cached online/offline translation router, or
// returns nil when neither backend is configured
func NewRouter(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*translation.Router, error) {
	tc := cfg.Translation
	if !tc.HasBackend() {
		return nil, nil
	}

	routerConfig := translation.RouterConfig{
		OnlineEnabled: tc.OnlineEnabled,
		Timeout:       tc.GetTimeoutDuration(),
	}

	if tc.Online.APIKey != "" {
		routerConfig.Online = translation.NewOpenAITranslator(translation.OpenAIConfig{
			APIKey:  tc.Online.APIKey,
			BaseURL: tc.Online.BaseURL,
			Model:   tc.Online.Model,
			Timeout: tc.GetTimeoutDuration(),
		})
	}

	if tc.Offline.Endpoint != "" {
		offline, err := translation.NewLibreTranslate(tc.Offline.Endpoint, tc.Offline.APIKey, tc.GetTimeoutDuration())
		if err != nil {
			return nil, fmt.Errorf("failed to create offline translator: %w", err)
		}
		routerConfig.Offline = offline
	}

	if tc.ConnectivityURL != "" {
		routerConfig.Connectivity = translation.NewProbe(tc.ConnectivityURL, translation.DefaultProbeTimeout, tc.GetConnectivityTTLDuration())
	}

	cache, err := translation.NewCache(cfg.Cache.Capacity, cfg.Cache.GetTTLDuration(), m)
	if err != nil {
		return nil, fmt.Errorf("failed to create translation cache: %w", err)
	}
	routerConfig.Cache = cache

	router, err := translation.NewRouter(routerConfig, m, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create translation router: %w", err)
	}
	return router, nil
}

// SessionConfig maps the configuration onto per-session settings
func SessionConfig(cfg *config.Config) stream.SessionConfig {
	return stream.SessionConfig{
		Segmenter: audio.SegmenterConfig{
			SampleRate:    cfg.Audio.SampleRate,
			SilenceFrames: cfg.Segmenter.SilenceFrames,
			MaxDuration:   cfg.Segmenter.GetMaxUtteranceDuration(),
		},
		SilenceThreshold:     cfg.Segmenter.SilenceThreshold,
		SkipSilentSegments:   cfg.Segmenter.SkipSilentSegments,
		SourceLanguage:       cfg.Session.DefaultSource,
		TargetLanguage:       cfg.Session.DefaultTarget,
		TranscriptionTimeout: cfg.Transcription.GetTimeoutDuration(),
		TranslationTimeout:   translationBudget(&cfg.Translation),
		EventBuffer:          cfg.Session.EventBuffer,
	}
}

// translationBudget covers everything one routed translation may do, so the
// session deadline never cuts off the offline fallback. It matches
// translation.Router.Budget for the router NewRouter builds.
func translationBudget(tc *config.TranslationConfig) time.Duration {
	budget := 2 * tc.GetTimeoutDuration()
	if tc.ConnectivityURL != "" {
		budget += translation.DefaultProbeTimeout
	}
	return budget
}

// Backends returns the collaborators handed to each session
func (s *Set) Backends() stream.Backends {
	backends := stream.Backends{Transcriber: s.Transcriber}
	if s.Router != nil {
		backends.Translator = s.Router
	}
	return backends
}

// Stats returns statistics snapshots per component
func (s *Set) Stats() map[string]func() any {
	stats := make(map[string]func() any)
	if s.httpClient != nil {
		stats["transcription"] = func() any { return s.httpClient.Stats() }
	}
	if s.Router != nil {
		stats["translation"] = func() any { return s.Router.Stats() }
	}
	return stats
}

// Close releases backend resources
func (s *Set) Close() {
	if s.httpClient != nil {
		s.httpClient.Close()
	}
}
