package translation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/genyarko/live-caption-service/internal/metrics"
)

// Backend names reported in results, errors and metrics
const (
	BackendCache   = "cache"
	BackendOnline  = "online"
	BackendOffline = "offline"
)

// RouterConfig wires the router's collaborators
type RouterConfig struct {
	Online        Translator // Optional
	Offline       Translator // Optional, but at least one backend is required
	Cache         *Cache     // Optional
	Connectivity  ConnectivityChecker
	OnlineEnabled bool          // Usage policy flag for the online backend
	Timeout       time.Duration // Per backend call
}

// Result describes where a translation came from
type Result struct {
	Text     string `json:"text"`
	Backend  string `json:"backend"`
	Fallback bool   `json:"fallback,omitempty"` // Offline answered after an online failure
}

// Router serves translations from the cache or from the backend chosen by
// the fallback policy, and fills the cache on success
type Router struct {
	online       Translator
	offline      Translator
	cache        *Cache
	connectivity ConnectivityChecker
	timeout      time.Duration

	onlineEnabled atomic.Bool

	// Statistics
	requests  atomic.Uint64
	cacheHits atomic.Uint64
	onlineOK  atomic.Uint64
	offlineOK atomic.Uint64
	fallbacks atomic.Uint64
	failures  atomic.Uint64

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// RouterStats represents router statistics for monitoring
type RouterStats struct {
	Requests      uint64      `json:"requests"`
	CacheHits     uint64      `json:"cache_hits"`
	Online        uint64      `json:"online"`
	Offline       uint64      `json:"offline"`
	Fallbacks     uint64      `json:"fallbacks"`
	Failures      uint64      `json:"failures"`
	OnlineEnabled bool        `json:"online_enabled"`
	Cache         *CacheStats `json:"cache,omitempty"`
}

// NewRouter creates a translation router
func NewRouter(config RouterConfig, m *metrics.Metrics, logger *slog.Logger) (*Router, error) {
	if config.Online == nil && config.Offline == nil {
		return nil, fmt.Errorf("at least one translation backend is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Router{
		online:       config.Online,
		offline:      config.Offline,
		cache:        config.Cache,
		connectivity: config.Connectivity,
		timeout:      config.Timeout,
		metrics:      m,
		logger:       logger.With(slog.String("component", "translation_router")),
	}
	r.onlineEnabled.Store(config.OnlineEnabled)
	return r, nil
}

// SetOnlineEnabled flips the usage policy for the online backend
func (r *Router) SetOnlineEnabled(enabled bool) {
	r.onlineEnabled.Store(enabled)
}

// Translate implements Translator
func (r *Router) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	res, err := r.Route(ctx, text, sourceLang, targetLang)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Route translates text and reports which backend answered
func (r *Router) Route(ctx context.Context, text, sourceLang, targetLang string) (Result, error) {
	r.requests.Add(1)

	key := Key(text, sourceLang, targetLang)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			r.cacheHits.Add(1)
			return Result{Text: cached, Backend: BackendCache}, nil
		}
	}

	var onlineErr error
	if r.useOnline(ctx) {
		translated, err := r.call(ctx, BackendOnline, r.online, text, sourceLang, targetLang)
		if err == nil {
			r.onlineOK.Add(1)
			r.store(key, translated)
			return Result{Text: translated, Backend: BackendOnline}, nil
		}
		// Only a caller that gave up skips the offline attempt; an expired
		// online call is an ordinary failure
		if errors.Is(ctx.Err(), context.Canceled) {
			r.failures.Add(1)
			return Result{}, &Error{Backend: BackendOnline, Err: err}
		}

		onlineErr = err
		r.logger.Warn("Online translation failed, falling back to offline",
			slog.String("source", sourceLang),
			slog.String("target", targetLang),
			slog.String("error", err.Error()))
	}

	if r.offline == nil {
		r.failures.Add(1)
		if onlineErr != nil {
			return Result{}, &Error{Backend: BackendOnline, Err: onlineErr}
		}
		return Result{}, &Error{Backend: BackendOffline, Err: errors.New("online backend unavailable and no offline backend configured")}
	}

	fallback := onlineErr != nil
	if fallback {
		r.fallbacks.Add(1)
		r.metrics.RecordTranslationFallback()
	}

	translated, err := r.call(ctx, BackendOffline, r.offline, text, sourceLang, targetLang)
	if err != nil {
		r.failures.Add(1)
		return Result{}, &Error{Backend: BackendOffline, Err: errors.Join(onlineErr, err)}
	}

	r.offlineOK.Add(1)
	r.store(key, translated)
	return Result{Text: translated, Backend: BackendOffline, Fallback: fallback}, nil
}

// Budget returns the longest a Route call can take: a connectivity check
// plus one online and one offline call
func (r *Router) Budget() time.Duration {
	budget := 2 * r.timeout
	if p, ok := r.connectivity.(*Probe); ok {
		budget += p.Timeout()
	}
	return budget
}

// useOnline applies the selection policy: enabled, credentialed and connected
func (r *Router) useOnline(ctx context.Context) bool {
	if r.online == nil || !r.onlineEnabled.Load() {
		return false
	}
	if cc, ok := r.online.(CredentialChecker); ok && !cc.HasCredentials() {
		return false
	}
	if r.connectivity != nil && !r.connectivity.Online(ctx) {
		return false
	}
	return true
}

func (r *Router) call(ctx context.Context, backend string, t Translator, text, sourceLang, targetLang string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	translated, err := t.Translate(callCtx, text, sourceLang, targetLang)
	r.metrics.RecordTranslation(backend, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return translated, nil
}

func (r *Router) store(key, value string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Put(key, value); err != nil {
		r.logger.Error("Translation cache invariant failure", slog.String("error", err.Error()))
	}
}

// Stats returns current router statistics
func (r *Router) Stats() RouterStats {
	stats := RouterStats{
		Requests:      r.requests.Load(),
		CacheHits:     r.cacheHits.Load(),
		Online:        r.onlineOK.Load(),
		Offline:       r.offlineOK.Load(),
		Fallbacks:     r.fallbacks.Load(),
		Failures:      r.failures.Load(),
		OnlineEnabled: r.onlineEnabled.Load(),
	}
	if r.cache != nil {
		cacheStats := r.cache.Stats()
		stats.Cache = &cacheStats
	}
	return stats
}
