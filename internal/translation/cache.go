package translation

import (
	"container/list"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/genyarko/live-caption-service/internal/metrics"
)

// keyTextLimit is the number of runes of source text that take part in a
// cache key. Texts sharing this prefix and language pair share an entry.
const keyTextLimit = 100

// Key builds the cache key for a translation request
func Key(text, sourceLang, targetLang string) string {
	runes := []rune(text)
	if len(runes) > keyTextLimit {
		runes = runes[:keyTextLimit]
	}

	var b strings.Builder
	b.Grow(len(text) + len(sourceLang) + len(targetLang) + 2)
	b.WriteString(string(runes))
	b.WriteByte('|')
	b.WriteString(sourceLang)
	b.WriteByte('|')
	b.WriteString(targetLang)
	return b.String()
}

// Cache is a bounded map of translations with a fixed expiration window.
// When full, the entry inserted first is evicted; reads never refresh an
// entry. Expired entries are removed lazily on lookup.
type Cache struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	entries map[string]*list.Element
	order   *list.List // Front is the oldest insertion

	// Statistics
	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64

	metrics *metrics.Metrics
	mu      sync.Mutex
}

type cacheEntry struct {
	key        string
	value      string
	insertedAt time.Time
}

// CacheStats represents cache statistics for monitoring
type CacheStats struct {
	Size        int     `json:"size"`
	Capacity    int     `json:"capacity"`
	TTL         string  `json:"ttl"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
}

// NewCache creates a cache holding at most capacity entries for ttl each
func NewCache(capacity int, ttl time.Duration, m *metrics.Metrics) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %v", ttl)
	}

	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
		metrics:  m,
	}, nil
}

// SetClock replaces the time source, for tests
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the cached translation for key. An entry older than the
// expiration window is removed and reported as a miss.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.recordLookup(false)
		return "", false
	}

	entry := elem.Value.(*cacheEntry)
	if c.now().Sub(entry.insertedAt) > c.ttl {
		c.removeLocked(elem)
		c.expirations++
		c.metrics.RecordCacheExpiration()
		c.recordLookup(false)
		return "", false
	}

	c.recordLookup(true)
	return entry.value, true
}

// Put stores a translation. At capacity the oldest insertion is evicted
// first. Storing an existing key replaces it as a fresh insertion.
func (c *Cache) Put(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}

	if len(c.entries) >= c.capacity {
		if oldest := c.order.Front(); oldest != nil {
			c.removeLocked(oldest)
			c.evictions++
			c.metrics.RecordCacheEviction()
		}
	}

	c.entries[key] = c.order.PushBack(&cacheEntry{
		key:        key,
		value:      value,
		insertedAt: c.now(),
	})
	c.metrics.SetCacheSize(len(c.entries))

	if len(c.entries) > c.capacity || len(c.entries) != c.order.Len() {
		return fmt.Errorf("%w: %d entries, %d ordered, capacity %d",
			ErrCapacityViolation, len(c.entries), c.order.Len(), c.capacity)
	}
	return nil
}

// Len returns the number of stored entries, expired ones included
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes every entry
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element, c.capacity)
	c.order.Init()
	c.metrics.SetCacheSize(0)
}

// Stats returns current cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := float64(0)
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total) * 100
	}

	return CacheStats{
		Size:        len(c.entries),
		Capacity:    c.capacity,
		TTL:         c.ttl.String(),
		Hits:        c.hits,
		Misses:      c.misses,
		HitRate:     hitRate,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	entry := c.order.Remove(elem).(*cacheEntry)
	delete(c.entries, entry.key)
	c.metrics.SetCacheSize(len(c.entries))
}

func (c *Cache) recordLookup(hit bool) {
	if hit {
		c.hits++
	} else {
		c.misses++
	}
	c.metrics.RecordCacheLookup(hit)
}
