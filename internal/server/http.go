package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/genyarko/live-caption-service/internal/config"
	"github.com/genyarko/live-caption-service/internal/metrics"
	"github.com/genyarko/live-caption-service/internal/stream"
)

const maxRequestBody = 64 << 10

// StatsFunc returns a JSON-serializable statistics snapshot of one component
type StatsFunc func() any

// HTTPServer provides the caption API, the websocket endpoint and monitoring
type HTTPServer struct {
	server   *http.Server
	handler  http.Handler
	logger   *slog.Logger
	config   *config.Config
	sessions *stream.Manager
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	stats    map[string]StatsFunc
	upgrader websocket.Upgrader

	sampleRate    int
	frameDuration time.Duration

	// Server state
	startTime time.Time
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Port          int
	Address       string
	SampleRate    int
	FrameDuration time.Duration
	Gatherer      prometheus.Gatherer  // Defaults to the global registry
	Stats         map[string]StatsFunc // Component statistics served at /stats
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger,
	appConfig *config.Config, sessions *stream.Manager, m *metrics.Metrics) *HTTPServer {

	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 100 * time.Millisecond
	}

	h := &HTTPServer{
		logger:   logger,
		config:   appConfig,
		sessions: sessions,
		metrics:  m,
		gatherer: cfg.Gatherer,
		stats:    cfg.Stats,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024 * 16,
			WriteBufferSize: 1024 * 16,
		},
		sampleRate:    cfg.SampleRate,
		frameDuration: cfg.FrameDuration,
		startTime:     time.Now(),
	}

	// Create HTTP server with routes
	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("GET /config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("GET /stats", h.withMetrics("/stats", h.handleStats))

	// Sessions
	mux.HandleFunc("GET /sessions", h.withMetrics("/sessions", h.handleListSessions))
	mux.HandleFunc("POST /sessions", h.withMetrics("/sessions", h.handleCreateSession))
	mux.HandleFunc("GET /sessions/{id}", h.withMetrics("/sessions/{id}", h.handleGetSession))
	mux.HandleFunc("DELETE /sessions/{id}", h.withMetrics("/sessions/{id}", h.handleDeleteSession))
	mux.HandleFunc("POST /sessions/{id}/stop", h.withMetrics("/sessions/{id}/stop", h.handleStopSession))
	mux.HandleFunc("PUT /sessions/{id}/language", h.withMetrics("/sessions/{id}/language", h.handleSetLanguage))
	mux.HandleFunc("POST /sessions/{id}/text", h.withMetrics("/sessions/{id}/text", h.handleSubmitText))
	mux.HandleFunc("GET /sessions/{id}/ws", h.withMetrics("/sessions/{id}/ws", h.handleWebSocket))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	// Root endpoint with API documentation
	mux.HandleFunc("GET /{$}", h.withMetrics("/", h.handleRoot))
}

// Handler returns the routed handler, used by tests and embedding servers
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		// Call the original handler
		handler(ww, r)

		// Record metrics
		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		// Record error if status code indicates an error
		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	listener, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    "live-caption-service",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"session_manager": map[string]any{
				"status":          "running",
				"active_sessions": h.sessions.GetActiveSessionCount(),
			},
		},
	})
}

// handleConfig implements the /config endpoint with secrets masked
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if h.config == nil {
		writeError(w, http.StatusNotFound, "configuration not available")
		return
	}
	writeJSON(w, http.StatusOK, h.config.Redacted())
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]any, len(h.stats))
	for name, stats := range h.stats {
		components[name] = stats()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"uptime":     time.Since(h.startTime).String(),
		"timestamp":  time.Now().UTC(),
		"components": components,
		"sessions": map[string]any{
			"active_count": h.sessions.GetActiveSessionCount(),
		},
	})
}

// handleListSessions implements GET /sessions
func (h *HTTPServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessions.ListSessions()

	writeJSON(w, http.StatusOK, map[string]any{
		"total_sessions": len(sessions),
		"timestamp":      time.Now().UTC(),
		"sessions":       sessions,
	})
}

type createSessionRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// handleCreateSession implements POST /sessions. An empty body uses the configured languages.
func (h *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.sessions.CreateSession(req.Source, req.Target)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, session.Info())
}

// handleGetSession implements GET /sessions/{id}
func (h *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session":    session.Info(),
		"transcript": session.Transcript(),
	})
}

// handleDeleteSession implements DELETE /sessions/{id}
func (h *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.RemoveSession(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStopSession implements POST /sessions/{id}/stop
func (h *HTTPServer) handleStopSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	if err := session.Stop(); err != nil {
		writeError(w, statusForSessionError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, session.Info())
}

type languageRequest struct {
	Source *string `json:"source"`
	Target *string `json:"target"`
}

// handleSetLanguage implements PUT /sessions/{id}/language
func (h *HTTPServer) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	var req languageRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Source == nil && req.Target == nil {
		writeError(w, http.StatusBadRequest, "source or target is required")
		return
	}

	if req.Source != nil {
		if err := session.SetSourceLanguage(*req.Source); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Target != nil {
		if err := session.SetTargetLanguage(*req.Target); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, session.Info())
}

type textRequest struct {
	Text string `json:"text"`
}

// handleSubmitText implements POST /sessions/{id}/text
func (h *HTTPServer) handleSubmitText(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	var req textRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := session.SubmitTypedText(req.Text); err != nil {
		writeError(w, statusForSessionError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, session.Info())
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "Live Caption Service",
		"version": "1.0.0",
		"endpoints": map[string]any{
			"GET /":                       "API documentation",
			"GET /health":                 "Service health check",
			"GET /config":                 "Get service configuration",
			"GET /stats":                  "Get component statistics",
			"GET /metrics":                "Prometheus metrics",
			"GET /sessions":               "List caption sessions",
			"POST /sessions":              "Create a session {source, target}",
			"GET /sessions/{id}":          "Session details and transcript",
			"DELETE /sessions/{id}":       "Close and remove a session",
			"POST /sessions/{id}/stop":    "Stop listening and clear the transcript",
			"PUT /sessions/{id}/language": "Change source and/or target language",
			"POST /sessions/{id}/text":    "Submit typed text {text}",
			"GET /sessions/{id}/ws":       "Websocket: PCM16LE audio in, events out",
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *HTTPServer) lookupSession(w http.ResponseWriter, r *http.Request) (*stream.Session, bool) {
	session, exists := h.sessions.GetSession(r.PathValue("id"))
	if !exists {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return session, true
}

func statusForSessionError(err error) int {
	switch {
	case errors.Is(err, stream.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, stream.ErrNotListening), errors.Is(err, stream.ErrAlreadyListening):
		return http.StatusConflict
	case errors.Is(err, stream.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, stream.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads a JSON request body; allowEmpty accepts a missing body
func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
