// Package store owns the per-workspace session records: which tmux session
// belongs to a workspace key and when a capture last fully succeeded. Session
// validity decisions are made by the engine; the store only answers Get/Put.
package store

import "time"

// Record tracks one capture session keyed by workspace.
// LastSuccess is updated only after a capture attempt fully succeeds; its
// absence or staleness forces full session recreation regardless of whether
// the tmux session object still exists.
type Record struct {
	Key         string
	WorkDir     string
	TmuxSession string
	CreatedAt   time.Time
	LastSuccess time.Time
}

// RecordStore is the session-record persistence abstraction. The production
// implementation is SQLite-backed; tests use the in-memory one.
type RecordStore interface {
	// Get returns the record for key, or nil if none exists.
	Get(key string) (*Record, error)

	// Put inserts or overwrites the record. Idempotent.
	Put(rec *Record) error

	// Delete removes the record for key. No-op if absent.
	Delete(key string) error

	Close() error
}
