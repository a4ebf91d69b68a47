package stream

import (
	"sync"
	"time"

	"github.com/genyarko/live-caption-service/internal/transcript"
)

// EventType identifies what changed in a session
type EventType string

const (
	EventState       EventType = "state"
	EventEntry       EventType = "entry"
	EventTranslation EventType = "translation"
	EventPartial     EventType = "partial"
	EventError       EventType = "error"
)

// Event is a session notification for UI consumers
type Event struct {
	Type      EventType         `json:"type"`
	SessionID string            `json:"session_id"`
	State     string            `json:"state,omitempty"`
	Entry     *transcript.Entry `json:"entry,omitempty"`
	Partial   string            `json:"partial,omitempty"`
	Error     string            `json:"error,omitempty"`
	Fatal     bool              `json:"fatal,omitempty"`
	Time      time.Time         `json:"time"`
}

// broker fans events out to subscribers without ever blocking the publisher.
// A subscriber whose buffer is full misses events.
type broker struct {
	subscribers map[int]chan Event
	nextID      int
	buffer      int
	dropped     uint64
	closed      bool
	mu          sync.Mutex
}

func newBroker(buffer int) *broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &broker{
		subscribers: make(map[int]chan Event),
		buffer:      buffer,
	}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(sub)
			}
		})
	}
}

func (b *broker) publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.dropped++
		}
	}
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}

func (b *broker) droppedCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
