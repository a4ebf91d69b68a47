// Command replay feeds a WAV file through one caption session and prints
// the resulting transcript as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/genyarko/live-caption-service/internal/audio"
	"github.com/genyarko/live-caption-service/internal/backend"
	"github.com/genyarko/live-caption-service/internal/config"
	"github.com/genyarko/live-caption-service/internal/stream"
	"github.com/genyarko/live-caption-service/internal/transcript"
)

type replayResult struct {
	File      string              `json:"file"`
	Source    string              `json:"source_language"`
	Target    string              `json:"target_language,omitempty"`
	Elapsed   string              `json:"elapsed"`
	Entries   []transcript.Entry  `json:"entries"`
	Stats     stream.SessionStats `json:"stats"`
	LastError string              `json:"last_error,omitempty"`
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to an optional .env file with secrets")
	wavPath := flag.String("wav", "", "WAV file to replay (16 kHz, mono, 16 bit)")
	source := flag.String("source", "", "Source language (default from config)")
	target := flag.String("target", "", "Target language, or none (default from config)")
	realtime := flag.Bool("realtime", false, "Pace audio at capture speed")
	timeout := flag.Duration("timeout", 5*time.Minute, "Give up after this long")
	verbose := flag.Bool("v", false, "Log pipeline activity to stderr")
	flag.Parse()

	if *wavPath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -wav file.wav [-source en] [-target fr]")
		os.Exit(2)
	}

	if err := run(*configPath, *envPath, *wavPath, *source, *target, *realtime, *timeout, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envPath, wavPath, source, target string, realtime bool, timeout time.Duration, verbose bool) error {
	if err := config.LoadEnvFile(envPath); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	backends, err := backend.Build(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	sessionConfig := backend.SessionConfig(cfg)
	if source != "" {
		sessionConfig.SourceLanguage = source
	}
	if target != "" {
		sessionConfig.TargetLanguage = target
	}

	session, err := stream.NewSession(sessionConfig, backends.Backends(), nil, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	started := time.Now()
	if err := session.Start(audio.NewWAVFileSource(wavPath, cfg.Audio.GetFrameDuration(), realtime)); err != nil {
		return err
	}

	select {
	case <-session.IngestionDone():
	case <-ctx.Done():
		return fmt.Errorf("timed out reading %s", wavPath)
	}

	// A source failure stops the session and clears the transcript
	if session.State() != stream.StateListening {
		return fmt.Errorf("session stopped: %v", session.LastError())
	}

	if err := session.WaitIdle(ctx); err != nil {
		return fmt.Errorf("waiting for transcription: %w", err)
	}

	src, tgt := session.Languages()
	result := replayResult{
		File:    wavPath,
		Source:  src,
		Target:  tgt,
		Elapsed: time.Since(started).Round(time.Millisecond).String(),
		Entries: session.Transcript(),
		Stats:   session.Stats(),
	}
	if err := session.LastError(); err != nil {
		result.LastError = err.Error()
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
