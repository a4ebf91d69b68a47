package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/genyarko/live-caption-service/internal/audio"
	"github.com/genyarko/live-caption-service/internal/lang"
	"github.com/genyarko/live-caption-service/internal/metrics"
	"github.com/genyarko/live-caption-service/internal/queue"
	"github.com/genyarko/live-caption-service/internal/transcript"
	"github.com/genyarko/live-caption-service/internal/transcription"
	"github.com/genyarko/live-caption-service/internal/translation"
	"github.com/genyarko/live-caption-service/internal/vad"
)

// State is the lifecycle state of a session
type State int

const (
	StateIdle State = iota
	StateListening
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

var (
	ErrAlreadyListening   = errors.New("session is already listening")
	ErrNotListening       = errors.New("session is not listening")
	ErrSessionClosed      = errors.New("session is closed")
	ErrBackendUnavailable = errors.New("transcription backend unavailable")
	ErrEmptyText          = errors.New("text is empty")
)

// NoTranslation as a target language turns translation off
const NoTranslation = "none"

// SessionConfig contains per-session pipeline settings
type SessionConfig struct {
	Segmenter            audio.SegmenterConfig
	SilenceThreshold     float64
	SkipSilentSegments   bool
	SourceLanguage       string
	TargetLanguage       string
	TranscriptionTimeout time.Duration
	TranslationTimeout   time.Duration
	EventBuffer          int
}

// DefaultSessionConfig returns the settings used when none are configured:
// 100 ms frames, a 400 ms silence run, 2 s utterances
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Segmenter: audio.SegmenterConfig{
			SampleRate:    audio.SampleRate,
			SilenceFrames: 4,
			MaxDuration:   2 * time.Second,
		},
		SilenceThreshold:     vad.DefaultThreshold,
		SkipSilentSegments:   true,
		SourceLanguage:       lang.Auto,
		TranscriptionTimeout: 30 * time.Second,
		TranslationTimeout:   10 * time.Second,
		EventBuffer:          64,
	}
}

// Backends groups the collaborators a session calls out to
type Backends struct {
	Transcriber transcription.Transcriber
	Translator  translation.Translator // Optional
}

// generation scopes all work started between two stops. Stopping cancels
// the generation and bumps the session epoch, so late results are dropped.
type generation struct {
	epoch  uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// run is one Listening period: a source, its segmenter and the worker queue
type run struct {
	gen        *generation
	ctx        context.Context
	cancel     context.CancelFunc
	source     audio.Source
	segmenter  *audio.Segmenter
	queue      *queue.Queue[workItem]
	ingestDone chan struct{}
}

// workItem is one unit for the session worker: a flushed segment or typed text
type workItem struct {
	seq        uint64
	segment    *audio.Segment
	text       string
	enqueuedAt time.Time
}

// Session is a caption session: the state machine tying audio ingestion,
// transcription, translation and the transcript together
type Session struct {
	ID        string
	CreatedAt time.Time

	config      SessionConfig
	transcriber transcription.Transcriber
	translator  translation.Translator
	detector    *vad.SilenceDetector
	classifier  audio.SilenceClassifier
	history     *transcript.History
	events      *broker
	metrics     *metrics.Metrics
	logger      *slog.Logger

	state      State
	closed     bool
	sourceLang string
	targetLang string // Empty when translation is off
	partial    string
	partialID  string
	lastErr    error
	lastErrAt  time.Time

	epoch   uint64
	gen     *generation
	run     *run
	lastRun *run
	nextSeq uint64

	// Outstanding queued items and translations
	pending int
	idleCh  chan struct{}

	lastActivity atomic.Int64

	// Statistics
	segmentsQueued      uint64
	segmentsSkipped     uint64
	transcribed         uint64
	emptyTranscriptions uint64
	transcriptionErrors uint64
	translated          uint64
	translationErrors   uint64
	typedEntries        uint64

	mu sync.Mutex
}

// SessionStats represents session statistics for monitoring
type SessionStats struct {
	SegmentsQueued      uint64                `json:"segments_queued"`
	SegmentsSkipped     uint64                `json:"segments_skipped"`
	Transcribed         uint64                `json:"transcribed"`
	EmptyTranscriptions uint64                `json:"empty_transcriptions"`
	TranscriptionErrors uint64                `json:"transcription_errors"`
	Translated          uint64                `json:"translated"`
	TranslationErrors   uint64                `json:"translation_errors"`
	TypedEntries        uint64                `json:"typed_entries"`
	PendingWork         int                   `json:"pending_work"`
	DroppedEvents       uint64                `json:"dropped_events"`
	Detector            vad.DetectorStats     `json:"detector"`
	Segmenter           *audio.SegmenterStats `json:"segmenter,omitempty"`
}

// SessionInfo is a snapshot of a session for APIs
type SessionInfo struct {
	ID             string       `json:"id"`
	State          string       `json:"state"`
	SourceLanguage string       `json:"source_language"`
	TargetLanguage string       `json:"target_language,omitempty"`
	Partial        string       `json:"partial,omitempty"`
	LastError      string       `json:"last_error,omitempty"`
	LastErrorAt    *time.Time   `json:"last_error_at,omitempty"`
	Entries        int          `json:"entries"`
	CreatedAt      time.Time    `json:"created_at"`
	LastActivity   time.Time    `json:"last_activity"`
	Stats          SessionStats `json:"stats"`
}

// NewSession creates an Idle session
func NewSession(config SessionConfig, backends Backends, m *metrics.Metrics, logger *slog.Logger) (*Session, error) {
	if err := config.Segmenter.Validate(); err != nil {
		return nil, fmt.Errorf("invalid segmenter config: %w", err)
	}

	detector, err := vad.NewSilenceDetector(config.SilenceThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to create silence detector: %w", err)
	}

	source, err := lang.Normalize(config.SourceLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid source language: %w", err)
	}
	target, err := normalizeTarget(config.TargetLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid target language: %w", err)
	}

	if config.TranscriptionTimeout <= 0 {
		config.TranscriptionTimeout = 30 * time.Second
	}
	if config.TranslationTimeout <= 0 {
		config.TranslationTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	s := &Session{
		ID:          id,
		CreatedAt:   time.Now(),
		config:      config,
		transcriber: backends.Transcriber,
		translator:  backends.Translator,
		detector:    detector,
		classifier:  countingClassifier{classifier: detector, metrics: m},
		history:     transcript.NewHistory(),
		events:      newBroker(config.EventBuffer),
		metrics:     m,
		logger:      logger.With(slog.String("session_id", id)),
		state:       StateIdle,
		sourceLang:  source,
		targetLang:  target,
	}
	s.gen = newGeneration(s.epoch)
	s.touch()

	return s, nil
}

func newGeneration(epoch uint64) *generation {
	ctx, cancel := context.WithCancel(context.Background())
	return &generation{epoch: epoch, ctx: ctx, cancel: cancel}
}

func normalizeTarget(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" || strings.EqualFold(code, NoTranslation) {
		return "", nil
	}
	if lang.IsAuto(code) {
		return "", fmt.Errorf("target language cannot be %q", lang.Auto)
	}
	return lang.Normalize(code)
}

// countingClassifier records every classification in the metrics
type countingClassifier struct {
	classifier audio.SilenceClassifier
	metrics    *metrics.Metrics
}

func (c countingClassifier) IsSilent(samples []float32) bool {
	silent := c.classifier.IsSilent(samples)
	c.metrics.RecordFrame(silent)
	return silent
}

// Start moves the session from Idle to Listening and begins consuming
// frames from source. The session owns source until it stops.
func (s *Session) Start(source audio.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.state == StateListening {
		return ErrAlreadyListening
	}
	if s.transcriber == nil {
		return ErrBackendUnavailable
	}

	segmenter, err := audio.NewSegmenter(s.config.Segmenter, s.classifier)
	if err != nil {
		return fmt.Errorf("failed to create segmenter: %w", err)
	}

	ctx, cancel := context.WithCancel(s.gen.ctx)
	frames, err := source.Start(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start audio source: %w", err)
	}

	r := &run{
		gen:        s.gen,
		ctx:        ctx,
		cancel:     cancel,
		source:     source,
		segmenter:  segmenter,
		queue:      queue.New[workItem](),
		ingestDone: make(chan struct{}),
	}
	s.run = r
	s.lastRun = r
	s.detector.Reset()
	s.state = StateListening
	s.touch()

	go s.ingest(r, frames)
	go s.work(r)

	s.logger.Info("Session listening",
		slog.String("source_language", s.sourceLang),
		slog.String("target_language", s.targetLang),
	)
	s.publishLocked(Event{Type: EventState, State: s.state.String()})
	return nil
}

// Stop moves the session from Listening to Idle. In-flight transcription
// and translation are cancelled, buffered audio and queued work are
// discarded and the transcript is cleared before Stop returns.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		return ErrNotListening
	}
	r := s.stopLocked()
	s.mu.Unlock()

	r.source.Close()
	s.logger.Info("Session stopped")
	return nil
}

// stopLocked performs the Listening -> Idle transition and returns the
// finished run so its source can be closed outside the lock
func (s *Session) stopLocked() *run {
	r := s.run
	s.run = nil

	r.cancel()
	s.resetLocked()

	if cleared := r.queue.Clear(); cleared > 0 {
		s.finishWorkLocked(cleared)
	}
	s.metrics.SetQueueSize(0)
	r.segmenter.Reset()

	s.state = StateIdle
	s.touch()
	s.publishLocked(Event{Type: EventState, State: s.state.String()})
	return r
}

// resetLocked cancels the current generation and clears the transcript
func (s *Session) resetLocked() {
	s.gen.cancel()
	s.epoch++
	s.gen = newGeneration(s.epoch)

	s.history.Clear()
	s.partial = ""
	s.partialID = ""
}

// Close stops the session if needed and releases it for good
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var r *run
	if s.state == StateListening {
		r = s.stopLocked()
	}
	s.gen.cancel()
	s.closed = true
	s.mu.Unlock()

	if r != nil {
		r.source.Close()
	}
	s.events.close()
}

// fail handles a fatal source error with full stop semantics
func (s *Session) fail(r *run, err error) {
	var sourceErr *audio.SourceError
	if !errors.As(err, &sourceErr) {
		err = &audio.SourceError{Source: "unknown", Err: err}
	}

	s.mu.Lock()
	if s.run != r {
		s.mu.Unlock()
		return
	}
	s.lastErr = err
	s.lastErrAt = time.Now()
	s.publishLocked(Event{Type: EventError, Error: err.Error(), Fatal: true})
	s.stopLocked()
	s.mu.Unlock()

	r.source.Close()
	s.logger.Error("Audio source failed, session stopped", slog.String("error", err.Error()))
}

// SetSourceLanguage changes the spoken language for subsequent segments
func (s *Session) SetSourceLanguage(code string) error {
	normalized, err := lang.Normalize(code)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sourceLang = normalized
	s.touch()
	return nil
}

// SetTargetLanguage changes the translation language. Existing entries lose
// their translation and are translated again into the new language.
func (s *Session) SetTargetLanguage(code string) error {
	normalized, err := normalizeTarget(code)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.touch()
	if normalized == s.targetLang {
		return nil
	}
	s.targetLang = normalized
	s.partial = ""
	s.partialID = ""

	entries := s.history.Entries()
	if len(entries) == 0 {
		return nil
	}

	s.history.ClearTranslations()
	s.logger.Info("Target language changed, re-translating transcript",
		slog.String("target_language", normalized),
		slog.Int("entries", len(entries)),
	)
	for _, entry := range entries {
		entry.Translation = ""
		entry.TargetLanguage = ""
		s.translateLocked(s.gen, entry, false)
	}
	return nil
}

// SubmitTypedText adds text as if it had been spoken. While Listening it
// is queued behind the segments already flushed; when Idle it is appended
// immediately.
func (s *Session) SubmitTypedText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	s.touch()

	if s.state == StateListening {
		s.enqueueLocked(s.run, workItem{text: text})
		return nil
	}

	entry := s.appendLocked(text, transcript.OriginTyped)
	s.translateLocked(s.gen, entry, false)
	return nil
}

// Subscribe returns a channel of session events and a function that ends the subscription
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

// WaitIdle blocks until no queued segments, typed texts or translations remain
func (s *Session) WaitIdle(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.pending == 0 {
			s.mu.Unlock()
			return nil
		}
		ch := s.idleCh
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// IngestionDone is closed once the most recent audio source has been
// drained and its last segment flushed
func (s *Session) IngestionDone() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRun == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return s.lastRun.ingestDone
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Languages returns the source and target language codes
func (s *Session) Languages() (source, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceLang, s.targetLang
}

// Partial returns the latest voice text whose translation is outstanding
func (s *Session) Partial() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partial
}

// LastError returns the most recent transient or fatal error
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Transcript returns a copy of the transcript history
func (s *Session) Transcript() []transcript.Entry {
	return s.history.Entries()
}

// LastActivity returns when the session last received audio or a command
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Stats returns current session statistics
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Session) statsLocked() SessionStats {
	stats := SessionStats{
		SegmentsQueued:      s.segmentsQueued,
		SegmentsSkipped:     s.segmentsSkipped,
		Transcribed:         s.transcribed,
		EmptyTranscriptions: s.emptyTranscriptions,
		TranscriptionErrors: s.transcriptionErrors,
		Translated:          s.translated,
		TranslationErrors:   s.translationErrors,
		TypedEntries:        s.typedEntries,
		PendingWork:         s.pending,
		DroppedEvents:       s.events.droppedCount(),
		Detector:            s.detector.Stats(),
	}
	if s.run != nil {
		segStats := s.run.segmenter.Stats()
		stats.Segmenter = &segStats
	}
	return stats
}

// Info returns a snapshot of the session
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := SessionInfo{
		ID:             s.ID,
		State:          s.state.String(),
		SourceLanguage: s.sourceLang,
		TargetLanguage: s.targetLang,
		Partial:        s.partial,
		Entries:        s.history.Len(),
		CreatedAt:      s.CreatedAt,
		LastActivity:   s.LastActivity(),
		Stats:          s.statsLocked(),
	}
	if s.lastErr != nil {
		info.LastError = s.lastErr.Error()
		at := s.lastErrAt
		info.LastErrorAt = &at
	}
	return info
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) publishLocked(event Event) {
	event.SessionID = s.ID
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	s.events.publish(event)
}

// beginWorkLocked and finishWorkLocked track outstanding work for WaitIdle
func (s *Session) beginWorkLocked() {
	if s.pending == 0 {
		s.idleCh = make(chan struct{})
	}
	s.pending++
}

func (s *Session) finishWorkLocked(n int) {
	s.pending -= n
	if s.pending <= 0 {
		s.pending = 0
		if s.idleCh != nil {
			close(s.idleCh)
			s.idleCh = nil
		}
	}
}

func (s *Session) finishWork() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishWorkLocked(1)
}

// setErrorLocked records a transient error; the session keeps running
func (s *Session) setErrorLocked(err error) {
	s.lastErr = err
	s.lastErrAt = time.Now()
	s.publishLocked(Event{Type: EventError, Error: err.Error()})
}
