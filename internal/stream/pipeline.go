package stream

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/genyarko/live-caption-service/internal/audio"
	"github.com/genyarko/live-caption-service/internal/lang"
	"github.com/genyarko/live-caption-service/internal/transcript"
	"github.com/genyarko/live-caption-service/internal/transcription"
	"github.com/genyarko/live-caption-service/internal/translation"
)

// ingest consumes frames until the source ends or the run is cancelled.
// It only classifies, buffers and enqueues, so it never waits on a backend.
func (s *Session) ingest(r *run, frames <-chan audio.Frame) {
	defer close(r.ingestDone)

	for {
		select {
		case <-r.ctx.Done():
			return

		case frame, ok := <-frames:
			if !ok {
				s.endOfStream(r)
				return
			}

			s.touch()
			if segment := r.segmenter.Push(frame); segment != nil {
				s.dispatch(r, segment)
			}
		}
	}
}

// endOfStream flushes what is left after a clean close, or stops the
// session if the source failed
func (s *Session) endOfStream(r *run) {
	if r.ctx.Err() != nil {
		return
	}
	if err := r.source.Err(); err != nil {
		s.fail(r, err)
		return
	}

	if segment := r.segmenter.Flush(audio.FlushEndOfStream); segment != nil {
		s.dispatch(r, segment)
	}
	s.logger.Info("Audio source drained")
}

// dispatch hands a flushed segment to the session worker
func (s *Session) dispatch(r *run, segment *audio.Segment) {
	s.metrics.RecordSegmentFlushed(string(segment.Reason), segment.Duration)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != r {
		return
	}

	if s.config.SkipSilentSegments && !segment.HasSpeech() {
		s.segmentsSkipped++
		s.metrics.RecordSegmentSkipped()
		s.logger.Debug("Skipping silent segment",
			slog.Uint64("segment_seq", segment.Seq),
			slog.Duration("duration", segment.Duration),
		)
		return
	}

	s.segmentsQueued++
	s.logger.Debug("Segment flushed",
		slog.Uint64("segment_seq", segment.Seq),
		slog.String("reason", string(segment.Reason)),
		slog.Int("frames", len(segment.Frames)),
		slog.Int("speech_frames", segment.SpeechFrames),
		slog.Duration("duration", segment.Duration),
	)
	s.enqueueLocked(r, workItem{segment: segment})
}

func (s *Session) enqueueLocked(r *run, item workItem) {
	s.nextSeq++
	item.seq = s.nextSeq
	item.enqueuedAt = time.Now()

	s.beginWorkLocked()
	r.queue.Enqueue(item)
	s.metrics.SetQueueSize(r.queue.Len())
}

// work processes queued items one at a time so entries are appended in
// flush order
func (s *Session) work(r *run) {
	for {
		item, err := r.queue.Pop(r.ctx)
		if err != nil {
			return
		}
		s.metrics.SetQueueSize(r.queue.Len())

		if item.segment != nil {
			s.transcribeSegment(r.gen, item)
		} else {
			s.submitQueuedText(r.gen, item)
		}
		s.finishWork()
	}
}

// transcribeSegment encodes a segment, calls the transcription backend and
// appends the text. Failures drop the segment and are reported as transient.
func (s *Session) transcribeSegment(gen *generation, item workItem) {
	s.mu.Lock()
	locale := lang.Locale(s.sourceLang)
	s.mu.Unlock()

	pcm := audio.EncodePCM16(item.segment.Samples())
	s.metrics.RecordTranscriptionRequest(len(pcm))

	ctx, cancel := context.WithTimeout(gen.ctx, s.config.TranscriptionTimeout)
	start := time.Now()
	text, err := s.transcriber.Transcribe(ctx, pcm, locale)
	elapsed := time.Since(start)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Stopped while the backend was working: the result belongs to a
	// cleared transcript
	if gen.epoch != s.epoch {
		return
	}

	if err != nil {
		var transcriptionErr *transcription.Error
		if !errors.As(err, &transcriptionErr) {
			err = &transcription.Error{Backend: "unknown", Err: err}
		}
		s.transcriptionErrors++
		s.metrics.RecordTranscriptionFailure(elapsed)
		s.logger.Warn("Transcription failed, segment dropped",
			slog.Uint64("item_seq", item.seq),
			slog.Duration("segment_duration", item.segment.Duration),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		s.setErrorLocked(err)
		return
	}

	text = strings.TrimSpace(text)
	s.metrics.RecordTranscriptionSuccess(elapsed, text == "")
	if text == "" {
		s.emptyTranscriptions++
		return
	}

	s.transcribed++
	s.logger.Info("Segment transcribed",
		slog.Uint64("item_seq", item.seq),
		slog.String("text", text),
		slog.Duration("elapsed", elapsed),
		slog.Duration("queue_wait", start.Sub(item.enqueuedAt)),
	)

	entry := s.appendLocked(text, transcript.OriginVoice)
	s.translateLocked(gen, entry, true)
}

func (s *Session) submitQueuedText(gen *generation, item workItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen.epoch != s.epoch {
		return
	}
	entry := s.appendLocked(item.text, transcript.OriginTyped)
	s.translateLocked(gen, entry, false)
}

func (s *Session) appendLocked(text string, origin transcript.Origin) transcript.Entry {
	entry := s.history.Append(text, origin, time.Now())
	if origin == transcript.OriginTyped {
		s.typedEntries++
	}
	s.metrics.RecordTranscriptEntry(string(origin))
	s.publishLocked(Event{Type: EventEntry, Entry: &entry})
	return entry
}

// translateLocked starts translating entry when a target language is set
// and differs from the resolved source. Voice entries become the partial
// text until their translation settles.
func (s *Session) translateLocked(gen *generation, entry transcript.Entry, partial bool) {
	if s.translator == nil || s.targetLang == "" {
		return
	}

	source := lang.ResolveForTranslation(s.sourceLang)
	target := lang.TranslationCode(s.targetLang)
	if source == target {
		return
	}

	if partial {
		s.partial = entry.Text
		s.partialID = entry.ID
		s.publishLocked(Event{Type: EventPartial, Partial: entry.Text})
	}

	s.beginWorkLocked()
	go func() {
		defer s.finishWork()
		s.translateEntry(gen, entry, source, target)
	}()
}

// translateEntry calls the translator and attaches the result to the entry
// it was requested for
func (s *Session) translateEntry(gen *generation, entry transcript.Entry, source, target string) {
	ctx, cancel := context.WithTimeout(gen.ctx, s.config.TranslationTimeout)
	translated, err := s.translator.Translate(ctx, entry.Text, source, target)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen.epoch != s.epoch {
		return
	}
	if s.partialID == entry.ID {
		s.partial = ""
		s.partialID = ""
	}

	if err != nil {
		var translationErr *translation.Error
		if !errors.As(err, &translationErr) {
			err = &translation.Error{Backend: "unknown", Err: err}
		}
		s.translationErrors++
		s.logger.Warn("Translation failed, entry left untranslated",
			slog.String("entry_id", entry.ID),
			slog.String("source", source),
			slog.String("target", target),
			slog.String("error", err.Error()),
		)
		s.setErrorLocked(err)
		return
	}

	// The target changed while this call was running; the re-translation
	// for the new target owns the entry now
	if s.targetLang == "" || lang.TranslationCode(s.targetLang) != target {
		return
	}

	updated, ok := s.history.SetTranslation(entry.ID, translated, target)
	if !ok {
		return
	}
	s.translated++
	s.publishLocked(Event{Type: EventTranslation, Entry: &updated})
}
