package translation

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// DefaultProbeTimeout bounds one connectivity request
const DefaultProbeTimeout = 2 * time.Second

// Probe checks connectivity by requesting a URL and remembers the answer
// for a short while so that every translation does not pay for a round trip
type Probe struct {
	url     string
	ttl     time.Duration
	timeout time.Duration
	http    *http.Client
	now     func() time.Time

	online    bool
	checkedAt time.Time
	inflight  chan struct{} // Closed when the running check settles
	mu        sync.Mutex
}

// NewProbe creates a probe against url. Any HTTP response, whatever its
// status, counts as connected.
func NewProbe(url string, timeout, ttl time.Duration) *Probe {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Probe{
		url:     url,
		ttl:     ttl,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// Timeout returns the upper bound of a single check
func (p *Probe) Timeout() time.Duration {
	return p.timeout
}

// Online reports whether the probe URL answered recently. At most one check
// runs at a time and it is detached from ctx, so a caller that gives up
// early gets the last known answer without recording it as offline.
func (p *Probe) Online(ctx context.Context) bool {
	p.mu.Lock()
	if !p.checkedAt.IsZero() && p.now().Sub(p.checkedAt) < p.ttl {
		online := p.online
		p.mu.Unlock()
		return online
	}

	done := p.inflight
	if done == nil {
		done = make(chan struct{})
		p.inflight = done
		go p.refresh(done)
	}
	p.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

func (p *Probe) refresh(done chan struct{}) {
	online := p.check()

	p.mu.Lock()
	p.online = online
	p.checkedAt = p.now()
	p.inflight = nil
	p.mu.Unlock()

	close(done)
}

func (p *Probe) check() bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// StaticConnectivity is a ConnectivityChecker with a fixed answer
type StaticConnectivity bool

// Online returns the fixed answer
func (s StaticConnectivity) Online(context.Context) bool {
	return bool(s)
}
