package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists session records in a SQLite database. WAL mode plus a
// busy timeout keeps concurrent invocations for different workspace keys from
// tripping over each other; same-key exclusion is handled by the advisory
// lock, not the database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens the record database at dbPath.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("store: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: wal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: busy timeout: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			key          TEXT PRIMARY KEY,
			workdir      TEXT NOT NULL,
			tmux_session TEXT NOT NULL,
			created_at   INTEGER NOT NULL,
			last_success INTEGER NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(key string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT key, workdir, tmux_session, created_at, last_success
		FROM sessions WHERE key = ?`, key)

	var rec Record
	var createdAt, lastSuccess int64
	err := row.Scan(&rec.Key, &rec.WorkDir, &rec.TmuxSession, &createdAt, &lastSuccess)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.LastSuccess = time.Unix(lastSuccess, 0)
	return &rec, nil
}

func (s *SQLiteStore) Put(rec *Record) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (key, workdir, tmux_session, created_at, last_success)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			workdir      = excluded.workdir,
			tmux_session = excluded.tmux_session,
			last_success = excluded.last_success`,
		rec.Key, rec.WorkDir, rec.TmuxSession,
		rec.CreatedAt.Unix(), rec.LastSuccess.Unix())
	if err != nil {
		return fmt.Errorf("store: put %s: %w", rec.Key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

// Close checkpoints WAL and closes the database.
func (s *SQLiteStore) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
