// Package transcript holds the ordered caption history of a session.
// Entries are append-only; only their translation changes after creation.
package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Origin tells how an entry's text was produced
type Origin string

const (
	OriginVoice Origin = "voice" // Transcribed from audio
	OriginTyped Origin = "typed" // Submitted as text
)

// Entry is one line of the transcript
type Entry struct {
	ID             string    `json:"id"`
	Seq            uint64    `json:"seq"`
	Text           string    `json:"text"`
	Translation    string    `json:"translation,omitempty"`
	TargetLanguage string    `json:"target_language,omitempty"` // Language of Translation
	Origin         Origin    `json:"origin"`
	Timestamp      time.Time `json:"timestamp"`
}

// Translated reports whether the entry carries a translation
func (e Entry) Translated() bool {
	return e.Translation != ""
}

// History is a concurrency-safe ordered list of entries
type History struct {
	entries []Entry
	index   map[string]int // Entry ID -> position
	nextSeq uint64
	mu      sync.RWMutex
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{
		index:   make(map[string]int),
		nextSeq: 1,
	}
}

// Append adds a new entry at the end and returns it with its ID and Seq set
func (h *History) Append(text string, origin Origin, timestamp time.Time) Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := Entry{
		ID:        uuid.NewString(),
		Seq:       h.nextSeq,
		Text:      text,
		Origin:    origin,
		Timestamp: timestamp,
	}
	h.nextSeq++

	h.index[entry.ID] = len(h.entries)
	h.entries = append(h.entries, entry)
	return entry
}

// SetTranslation attaches a translation to the entry with the given ID.
// It returns false when the entry no longer exists.
func (h *History) SetTranslation(id, translation, targetLanguage string) (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	i, ok := h.index[id]
	if !ok {
		return Entry{}, false
	}
	h.entries[i].Translation = translation
	h.entries[i].TargetLanguage = targetLanguage
	return h.entries[i], true
}

// ClearTranslations removes every attached translation
func (h *History) ClearTranslations() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.entries {
		h.entries[i].Translation = ""
		h.entries[i].TargetLanguage = ""
	}
}

// Get returns the entry with the given ID
func (h *History) Get(id string) (Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	i, ok := h.index[id]
	if !ok {
		return Entry{}, false
	}
	return h.entries[i], true
}

// Entries returns a copy of all entries in order
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Last returns the most recent entry
func (h *History) Last() (Entry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.entries) == 0 {
		return Entry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Len returns the number of entries
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Clear removes every entry. Sequence numbers keep increasing.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = nil
	h.index = make(map[string]int)
}
