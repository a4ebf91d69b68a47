// Command mockbackend serves fake transcription and LibreTranslate
// endpoints so the caption server can run without real backends.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-audio/wav"
)

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration"`
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
}

type mockServer struct {
	logger  *slog.Logger
	latency time.Duration
	count   atomic.Int64
}

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	latency := flag.Duration("latency", 200*time.Millisecond, "Simulated processing time per request")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	srv := &mockServer{logger: logger, latency: *latency}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /transcribe", srv.handleTranscribe)
	mux.HandleFunc("POST /translate", srv.handleTranslate)

	logger.Info("Mock backend starting",
		slog.String("address", *addr),
		slog.String("transcription_endpoint", "http://localhost"+*addr+"/transcribe"),
		slog.String("translation_endpoint", "http://localhost"+*addr),
	)

	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func (s *mockServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	duration, err := audioDuration(data, r.FormValue("format"), r.FormValue("sample_rate"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	language := r.FormValue("language")
	if language == "" {
		language = "en"
	}

	n := s.count.Add(1)
	s.logger.Info("Transcription request",
		slog.String("request_id", r.FormValue("request_id")),
		slog.String("filename", header.Filename),
		slog.Int("bytes", len(data)),
		slog.String("language", r.FormValue("language")),
		slog.Duration("duration", duration),
	)

	time.Sleep(s.latency)

	writeJSON(w, http.StatusOK, transcriptionResponse{
		Text:     fmt.Sprintf("segment %d of %.1f seconds", n, duration.Seconds()),
		Language: language,
		Duration: duration.Seconds(),
	})
}

func (s *mockServer) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Target == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "target is required"})
		return
	}

	s.logger.Info("Translation request",
		slog.String("source", req.Source),
		slog.String("target", req.Target),
		slog.Int("length", len(req.Q)),
	)

	time.Sleep(s.latency / 2)

	writeJSON(w, http.StatusOK, translateResponse{TranslatedText: "[" + req.Target + "] " + req.Q})
}

// audioDuration reads the WAV header when present, otherwise treats the
// upload as raw mono PCM16 at the given rate
func audioDuration(data []byte, format, sampleRate string) (time.Duration, error) {
	if format != "raw" {
		decoder := wav.NewDecoder(bytes.NewReader(data))
		if !decoder.IsValidFile() {
			return 0, fmt.Errorf("invalid WAV file")
		}
		return decoder.Duration()
	}

	rate, err := strconv.Atoi(sampleRate)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("invalid sample_rate %q", sampleRate)
	}
	samples := len(data) / 2
	return time.Duration(samples) * time.Second / time.Duration(rate), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
