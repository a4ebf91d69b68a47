package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/genyarko/live-caption-service/internal/backend"
	"github.com/genyarko/live-caption-service/internal/config"
	"github.com/genyarko/live-caption-service/internal/metrics"
	"github.com/genyarko/live-caption-service/internal/server"
	"github.com/genyarko/live-caption-service/internal/stream"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "live-caption-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to an optional .env file with secrets")
	flag.Parse()

	if err := config.LoadEnvFile(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load environment: %v\n", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("frame_duration_ms", cfg.Audio.FrameDurationMs),
		slog.Float64("silence_threshold", cfg.Segmenter.SilenceThreshold),
		slog.Int("silence_frames", cfg.Segmenter.SilenceFrames),
		slog.Int("max_utterance_ms", cfg.Segmenter.MaxUtteranceMs),
		slog.String("transcription_provider", cfg.Transcription.Provider),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.Bool("online_translation", cfg.Translation.OnlineEnabled),
		slog.String("offline_translation_endpoint", cfg.Translation.Offline.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Build transcription and translation backends
	backends, err := backend.Build(cfg, appMetrics, logger)
	if err != nil {
		logger.Error("Failed to create backends", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if backends.Router == nil {
		logger.Warn("No translation backend configured, captions will not be translated")
	}

	// Initialize session manager
	sessionMgr, err := stream.NewManager(logger, stream.ManagerConfig{
		Session:     backend.SessionConfig(cfg),
		IdleTimeout: cfg.Session.GetIdleTimeoutDuration(),
	}, backends.Backends(), appMetrics)
	if err != nil {
		logger.Error("Failed to create session manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Session manager initialized",
		slog.Duration("idle_timeout", cfg.Session.GetIdleTimeoutDuration()),
		slog.String("default_source", cfg.Session.DefaultSource),
		slog.String("default_target", cfg.Session.DefaultTarget),
	)

	stats := make(map[string]server.StatsFunc)
	for name, fn := range backends.Stats() {
		stats[name] = fn
	}

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:          cfg.HTTP.Port,
		Address:       cfg.HTTP.Address,
		SampleRate:    cfg.Audio.SampleRate,
		FrameDuration: cfg.Audio.GetFrameDuration(),
		Gatherer:      prometheus.DefaultGatherer,
		Stats:         stats,
	}, logger, cfg, sessionMgr, appMetrics)

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop session manager (closes sessions and stops background routines)
	sessionMgr.Stop()
	backends.Close()

	if backends.Router != nil {
		routerStats := backends.Router.Stats()
		logger.Info("Final translation statistics",
			slog.Uint64("requests", routerStats.Requests),
			slog.Uint64("cache_hits", routerStats.CacheHits),
			slog.Uint64("fallbacks", routerStats.Fallbacks),
			slog.Uint64("failures", routerStats.Failures),
		)
	}

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
