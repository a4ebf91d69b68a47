// Package stream runs caption sessions. A Session owns one audio source, a
// silence detector and segmenter, and the transcript history. Flushed
// segments and typed text go through a per-session single-worker queue so
// entries are appended in flush order; translations run concurrently and
// attach to their entry by ID. Stopping a session cancels all of its work and
// clears the history. The Manager keeps sessions by ID and removes idle ones.
package stream
