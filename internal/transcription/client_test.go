package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/genyarko/live-caption-service/internal/audio"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		expectErr bool
	}{
		{"valid", Config{Endpoint: "http://localhost/transcribe"}, false},
		{"missing endpoint", Config{}, true},
		{"bad format", Config{Endpoint: "http://localhost", Format: "flac"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.config, testLogger)
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestClientTranscribeWAV(t *testing.T) {
	pcm := audio.EncodePCM16(make([]float32, 1600))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Missing file field: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		if header.Filename != "segment.wav" {
			t.Errorf("Expected segment.wav, got %s", header.Filename)
		}
		if err := audio.ValidateWAV(data); err != nil {
			t.Errorf("Expected WAV upload: %v", err)
		}
		if len(data) != 44+len(pcm) {
			t.Errorf("Expected %d bytes, got %d", 44+len(pcm), len(data))
		}
		if got := r.FormValue("language"); got != "en-US" {
			t.Errorf("Expected language en-US, got %q", got)
		}
		if got := r.FormValue("sample_rate"); got != "16000" {
			t.Errorf("Expected sample_rate 16000, got %q", got)
		}
		if r.FormValue("request_id") == "" {
			t.Error("Expected request_id field")
		}

		json.NewEncoder(w).Encode(Response{Text: "hello world"})
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, APIKey: "secret"}, testLogger)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	text, err := client.Transcribe(context.Background(), pcm, "en-US")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello world" {
		t.Errorf("Expected 'hello world', got %q", text)
	}

	stats := client.Stats()
	if stats.TotalRequests != 1 || stats.SuccessRequests != 1 {
		t.Errorf("Expected 1 successful request, got %+v", stats)
	}
	if stats.SuccessRate != 100 {
		t.Errorf("Expected 100%% success rate, got %.1f", stats.SuccessRate)
	}
}

func TestClientTranscribeRaw(t *testing.T) {
	pcm := audio.EncodePCM16([]float32{0.1, 0.2, 0.3})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Missing file field: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		if header.Filename != "segment.pcm" {
			t.Errorf("Expected segment.pcm, got %s", header.Filename)
		}
		if string(data) != string(pcm) {
			t.Error("Expected raw PCM payload to be uploaded unchanged")
		}
		if _, ok := r.MultipartForm.Value["language"]; ok {
			t.Error("Expected no language field for auto detection")
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("Expected no Authorization header without API key")
		}

		json.NewEncoder(w).Encode(Response{Text: ""})
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, Format: FormatRaw}, testLogger)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	text, err := client.Transcribe(context.Background(), pcm, "")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "" {
		t.Errorf("Expected empty text, got %q", text)
	}
	if stats := client.Stats(); stats.EmptyResults != 1 {
		t.Errorf("Expected 1 empty result, got %d", stats.EmptyResults)
	}
}

func TestClientNoRetryOnFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "backend down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL}, testLogger)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = client.Transcribe(context.Background(), audio.EncodePCM16(make([]float32, 10)), "en-US")
	if err == nil {
		t.Fatal("Expected error from failing backend")
	}

	var transcriptionErr *Error
	if !errors.As(err, &transcriptionErr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if transcriptionErr.Backend != "http" {
		t.Errorf("Expected backend http, got %s", transcriptionErr.Backend)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected exactly 1 backend call, got %d", got)
	}
	if stats := client.Stats(); stats.FailedRequests != 1 {
		t.Errorf("Expected 1 failed request, got %d", stats.FailedRequests)
	}
}

func TestClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL}, testLogger)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.Transcribe(ctx, audio.EncodePCM16(make([]float32, 10)), "en-US")
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("Expected call to be abandoned promptly, took %v", time.Since(start))
	}
}
