package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/genyarko/live-caption-service/internal/config"
	"github.com/genyarko/live-caption-service/internal/metrics"
	"github.com/genyarko/live-caption-service/internal/protocol"
	"github.com/genyarko/live-caption-service/internal/stream"
)

type echoTranscriber struct {
	mu    sync.Mutex
	calls int
}

func (e *echoTranscriber) Transcribe(ctx context.Context, pcm []byte, languageCode string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return "hello world", nil
}

type upperTranslator struct{}

func (upperTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	return strings.ToUpper(text), nil
}

func newTestServer(t *testing.T) (*httptest.Server, *stream.Manager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sessionConfig := stream.DefaultSessionConfig()
	sessionConfig.Segmenter.SilenceFrames = 2
	sessionConfig.SourceLanguage = "en"

	mgr, err := stream.NewManager(logger, stream.ManagerConfig{Session: sessionConfig, IdleTimeout: time.Minute},
		stream.Backends{Transcriber: &echoTranscriber{}, Translator: upperTranslator{}}, nil)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(mgr.Stop)

	appConfig := config.Default()
	appConfig.Transcription.APIKey = "secret"

	reg := prometheus.NewRegistry()
	h := NewHTTPServer(HTTPServerConfig{
		Port:          8080,
		Address:       "127.0.0.1",
		SampleRate:    16000,
		FrameDuration: 100 * time.Millisecond,
		Gatherer:      reg,
		Stats: map[string]StatsFunc{
			"sessions": func() any { return mgr.GetActiveSessionCount() },
		},
	}, logger, &appConfig, mgr, metrics.New(reg))

	ts := httptest.NewServer(h.Handler())
	t.Cleanup(ts.Close)
	return ts, mgr
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Failed to decode response %q: %v", data, err)
		}
	}
	return resp, decoded
}

func createSession(t *testing.T, baseURL, body string) string {
	t.Helper()
	resp, decoded := doJSON(t, http.MethodPost, baseURL+"/sessions", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d (%v)", resp.StatusCode, decoded)
	}
	return decoded["id"].(string)
}

func TestHealthAndIndex(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, decoded := doJSON(t, http.MethodGet, ts.URL+"/health", "")
	if resp.StatusCode != http.StatusOK || decoded["status"] != "healthy" {
		t.Errorf("Unexpected health response %d %v", resp.StatusCode, decoded)
	}

	resp, decoded = doJSON(t, http.MethodGet, ts.URL+"/", "")
	if resp.StatusCode != http.StatusOK || decoded["service"] != "Live Caption Service" {
		t.Errorf("Unexpected index response %d %v", resp.StatusCode, decoded)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/nope", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/health", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}

func TestConfigIsRedacted(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, decoded := doJSON(t, http.MethodGet, ts.URL+"/config", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	transcription := decoded["transcription"].(map[string]any)
	if transcription["api_key"] != "***" {
		t.Errorf("Expected masked api key, got %v", transcription["api_key"])
	}
}

func TestStatsAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t)
	createSession(t, ts.URL, "")

	resp, decoded := doJSON(t, http.MethodGet, ts.URL+"/stats", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	components := decoded["components"].(map[string]any)
	if components["sessions"] != float64(1) {
		t.Errorf("Expected 1 session in stats, got %v", components["sessions"])
	}

	metricsResp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("Failed to get metrics: %v", err)
	}
	defer metricsResp.Body.Close()
	body, _ := io.ReadAll(metricsResp.Body)
	if !strings.Contains(string(body), "caption_http_requests_total") {
		t.Error("Expected HTTP request metrics to be exposed")
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	ts, mgr := newTestServer(t)

	id := createSession(t, ts.URL, `{"source":"en","target":"de"}`)

	resp, decoded := doJSON(t, http.MethodGet, ts.URL+"/sessions", "")
	if resp.StatusCode != http.StatusOK || decoded["total_sessions"] != float64(1) {
		t.Errorf("Unexpected list response %d %v", resp.StatusCode, decoded)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/sessions/"+id+"/text", `{"text":"good morning"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}

	session, _ := mgr.GetSession(id)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := session.WaitIdle(ctx); err != nil {
		t.Fatalf("Session did not settle: %v", err)
	}

	resp, decoded = doJSON(t, http.MethodGet, ts.URL+"/sessions/"+id, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	entries := decoded["transcript"].([]any)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	entry := entries[0].(map[string]any)
	if entry["text"] != "good morning" || entry["translation"] != "GOOD MORNING" {
		t.Errorf("Unexpected entry %v", entry)
	}

	resp, decoded = doJSON(t, http.MethodPut, ts.URL+"/sessions/"+id+"/language", `{"target":"none"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", resp.StatusCode, decoded)
	}
	if _, ok := decoded["target_language"]; ok {
		t.Errorf("Expected translation off, got %v", decoded["target_language"])
	}

	resp, _ = doJSON(t, http.MethodPut, ts.URL+"/sessions/"+id+"/language", `{"target":"auto"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for auto target, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/sessions/"+id+"/stop", "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 stopping an idle session, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/sessions/"+id, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/sessions/"+id, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestBadRequests(t *testing.T) {
	ts, _ := newTestServer(t)
	id := createSession(t, ts.URL, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"invalid language", http.MethodPost, "/sessions", `{"source":"not a language"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/sessions", `{"src":"en"}`, http.StatusBadRequest},
		{"empty text", http.MethodPost, "/sessions/" + id + "/text", `{"text":"  "}`, http.StatusBadRequest},
		{"no language", http.MethodPut, "/sessions/" + id + "/language", `{}`, http.StatusBadRequest},
		{"missing body", http.MethodPost, "/sessions/" + id + "/text", ``, http.StatusBadRequest},
		{"unknown session", http.MethodPost, "/sessions/missing/text", `{"text":"hi"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, decoded := doJSON(t, tt.method, ts.URL+tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("Expected %d, got %d (%v)", tt.status, resp.StatusCode, decoded)
			}
			if decoded["error"] == nil {
				t.Error("Expected an error message")
			}
		})
	}
}

func pcmFrames(frames int, amplitude float64) []byte {
	var buf bytes.Buffer
	for i := 0; i < frames*1600; i++ {
		sample := int16(amplitude * math.MaxInt16)
		binary.Write(&buf, binary.LittleEndian, sample)
	}
	return buf.Bytes()
}

// readUntil reads websocket messages until match accepts one
func readUntil(t *testing.T, conn *websocket.Conn, what string, match func(map[string]any) bool) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Failed waiting for %s: %v", what, err)
		}
		if match(msg) {
			return msg
		}
	}
}

func isReply(kind, command string) func(map[string]any) bool {
	return func(msg map[string]any) bool {
		return msg["type"] == kind && msg["command"] == command
	}
}

func TestWebSocketCaptioning(t *testing.T) {
	ts, mgr := newTestServer(t)
	id := createSession(t, ts.URL, `{"source":"en","target":"fr"}`)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	defer conn.Close()

	// Audio before start is rejected
	if err := conn.WriteMessage(websocket.BinaryMessage, pcmFrames(1, 0.2)); err != nil {
		t.Fatalf("Failed to write audio: %v", err)
	}
	readUntil(t, conn, "not listening error", func(msg map[string]any) bool {
		return msg["type"] == protocol.ReplyError && msg["error"] == stream.ErrNotListening.Error()
	})

	if err := conn.WriteJSON(protocol.Command{Type: protocol.CommandStart}); err != nil {
		t.Fatalf("Failed to write command: %v", err)
	}
	readUntil(t, conn, "start ack", isReply(protocol.ReplyAck, protocol.CommandStart))

	// Three frames of speech then two of silence close one utterance
	audio := append(pcmFrames(3, 0.2), pcmFrames(2, 0)...)
	if err := conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		t.Fatalf("Failed to write audio: %v", err)
	}

	entry := readUntil(t, conn, "entry event", func(msg map[string]any) bool {
		return msg["type"] == string(stream.EventEntry)
	})
	if text := entry["entry"].(map[string]any)["text"]; text != "hello world" {
		t.Errorf("Expected transcribed text, got %v", text)
	}

	translated := readUntil(t, conn, "translation event", func(msg map[string]any) bool {
		return msg["type"] == string(stream.EventTranslation)
	})
	if tr := translated["entry"].(map[string]any)["translation"]; tr != "HELLO WORLD" {
		t.Errorf("Expected translation, got %v", tr)
	}

	if err := conn.WriteJSON(protocol.Command{Type: protocol.CommandSubmitText, Text: "typed"}); err != nil {
		t.Fatalf("Failed to write command: %v", err)
	}
	readUntil(t, conn, "submit ack", isReply(protocol.ReplyAck, protocol.CommandSubmitText))

	if err := conn.WriteJSON(protocol.Command{Type: protocol.CommandStart}); err != nil {
		t.Fatalf("Failed to write command: %v", err)
	}
	readUntil(t, conn, "second start rejected", isReply(protocol.ReplyError, protocol.CommandStart))

	if err := conn.WriteJSON(protocol.Command{Type: protocol.CommandStop}); err != nil {
		t.Fatalf("Failed to write command: %v", err)
	}
	readUntil(t, conn, "stop ack", isReply(protocol.ReplyAck, protocol.CommandStop))

	session, _ := mgr.GetSession(id)
	if session.State() != stream.StateIdle {
		t.Errorf("Expected idle session, got %s", session.State())
	}
	if n := len(session.Transcript()); n != 0 {
		t.Errorf("Expected cleared transcript, got %d entries", n)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pause"}`)); err != nil {
		t.Fatalf("Failed to write command: %v", err)
	}
	readUntil(t, conn, "parse error", func(msg map[string]any) bool {
		return msg["type"] == protocol.ReplyError && msg["command"] == nil
	})
}

func TestWebSocketDisconnectStopsSession(t *testing.T) {
	ts, mgr := newTestServer(t)
	id := createSession(t, ts.URL, "")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}

	if err := conn.WriteJSON(protocol.Command{Type: protocol.CommandStart}); err != nil {
		t.Fatalf("Failed to write command: %v", err)
	}
	readUntil(t, conn, "start ack", isReply(protocol.ReplyAck, protocol.CommandStart))
	conn.Close()

	session, _ := mgr.GetSession(id)
	deadline := time.Now().Add(3 * time.Second)
	for session.State() != stream.StateIdle {
		if time.Now().After(deadline) {
			t.Fatal("Expected session to stop after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketUnknownSession(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("Expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 response, got %v", resp)
	}
}
