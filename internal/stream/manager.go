package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/genyarko/live-caption-service/internal/metrics"
)

// Manager manages all caption sessions
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	timeout  time.Duration

	config   SessionConfig
	backends Backends
	metrics  *metrics.Metrics

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// ManagerConfig contains configuration for the session manager
type ManagerConfig struct {
	Session     SessionConfig
	IdleTimeout time.Duration // Sessions without activity for this long are removed
}

// NewManager creates a new session manager and starts its cleanup routine
func NewManager(logger *slog.Logger, config ManagerConfig, backends Backends, m *metrics.Metrics) (*Manager, error) {
	if backends.Transcriber == nil {
		return nil, fmt.Errorf("transcription backend is required")
	}
	if err := config.Session.Segmenter.Validate(); err != nil {
		return nil, fmt.Errorf("invalid segmenter config: %w", err)
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
		timeout:  config.IdleTimeout,
		config:   config.Session,
		backends: backends,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr, nil
}

// CreateSession creates an Idle session. Empty languages fall back to the
// configured defaults.
func (m *Manager) CreateSession(sourceLang, targetLang string) (*Session, error) {
	config := m.config
	if sourceLang != "" {
		config.SourceLanguage = sourceLang
	}
	if targetLang != "" {
		config.TargetLanguage = targetLang
	}

	session, err := NewSession(config, m.backends, m.metrics, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.metrics.RecordSessionCreated()

	source, target := session.Languages()
	m.logger.Info("Created caption session",
		slog.String("session_id", session.ID),
		slog.String("source_language", source),
		slog.String("target_language", target),
	)

	return session, nil
}

// GetSession retrieves an existing session
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	return session, exists
}

// GetActiveSessionCount returns the number of sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ListSessions returns a snapshot of all sessions, oldest first
func (m *Manager) ListSessions() []SessionInfo {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	infos := make([]SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, session.Info())
	}
	return infos
}

// RemoveSession stops and removes a session
func (m *Manager) RemoveSession(id string) bool {
	m.mu.Lock()
	session, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !exists {
		return false
	}

	session.Close()
	m.metrics.RecordSessionDestroyed(time.Since(session.CreatedAt))

	m.logger.Info("Caption session removed",
		slog.String("session_id", id),
		slog.Duration("lifetime", time.Since(session.CreatedAt)),
	)

	return true
}

// Stop closes every session and stops the cleanup routine
func (m *Manager) Stop() {
	m.logger.Info("Stopping session manager...")

	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.RemoveSession(id)
	}

	m.cancel()
	<-m.cleanup

	m.logger.Info("Session manager stopped", slog.Int("closed_sessions", len(ids)))
}

// startCleanupRoutine runs in a separate goroutine to remove idle sessions
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	interval := 30 * time.Second
	if half := m.timeout / 2; half < interval {
		interval = half
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("Session cleanup routine started",
		slog.Duration("timeout", m.timeout),
		slog.Duration("check_interval", interval),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Session cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupExpiredSessions()
		}
	}
}

// cleanupExpiredSessions removes sessions that have been inactive for too long
func (m *Manager) cleanupExpiredSessions() {
	now := time.Now()
	expired := make([]string, 0)

	m.mu.RLock()
	for id, session := range m.sessions {
		if now.Sub(session.LastActivity()) > m.timeout {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) > 0 {
		m.logger.Info("Cleaning up idle sessions", slog.Int("expired_count", len(expired)))

		for _, id := range expired {
			m.RemoveSession(id)
		}
	}
}
