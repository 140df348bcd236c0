// Package ledger persists a history of computed artifact hashes in a
// SQLite database. The ledger is purely observational: the sidecar
// file next to each artifact remains the source of truth for cache
// freshness. It exists so `artifex status` can answer "what was hashed,
// when, and to what" without touching artifact trees.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Ledger provides SQLite-backed hash history.
type Ledger struct {
	db   *sql.DB
	path string

	// Batch buffer for Record calls.
	mu      sync.Mutex
	batch   []Entry
	done    chan struct{}
	stopped bool
}

// Entry is one recorded hash computation.
type Entry struct {
	Path       string
	Size       int64
	MtimeNano  int64
	Hash       string
	RecordedAt time.Time
}

// Open opens (or creates) the ledger database at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	l := &Ledger{
		db:   db,
		path: path,
		done: make(chan struct{}),
	}

	if err := l.init(); err != nil {
		db.Close()
		return nil, err
	}

	// Start background batch flusher.
	go l.flushLoop()

	return l, nil
}

// DefaultPath returns the ledger location:
// $XDG_STATE_HOME/artifex/ledger.db, falling back to the user home
// state dir, then the system temp dir.
func DefaultPath() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "artifex", "ledger.db")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "artifex", "ledger.db")
	}
	return filepath.Join(os.TempDir(), "artifex-ledger.db")
}

func (l *Ledger) init() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS hashes (
			path        TEXT PRIMARY KEY,
			size        INTEGER NOT NULL,
			mtime       INTEGER NOT NULL,
			hash        TEXT NOT NULL,
			recorded_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Record notes a freshly computed hash. Writes are batched and flushed
// periodically; call Flush to force durability.
func (l *Ledger) Record(path string, size int64, mtimeNano int64, hash string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.batch = append(l.batch, Entry{
		Path:       path,
		Size:       size,
		MtimeNano:  mtimeNano,
		Hash:       hash,
		RecordedAt: time.Now(),
	})

	if len(l.batch) >= 100 {
		return l.flushLocked()
	}
	return nil
}

// Flush writes any pending batch entries to the database.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

func (l *Ledger) flushLocked() error {
	if len(l.batch) == 0 {
		return nil
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	stmt, err := tx.Prepare(
		"INSERT OR REPLACE INTO hashes (path, size, mtime, hash, recorded_at) VALUES (?, ?, ?, ?, ?)",
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range l.batch {
		if _, err := stmt.Exec(e.Path, e.Size, e.MtimeNano, e.Hash, e.RecordedAt.UnixNano()); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w", e.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	l.batch = l.batch[:0]
	return nil
}

// Lookup returns the recorded entry for path, if any.
func (l *Ledger) Lookup(path string) (Entry, bool) {
	var e Entry
	var recorded int64
	err := l.db.QueryRow(
		"SELECT path, size, mtime, hash, recorded_at FROM hashes WHERE path = ?", path,
	).Scan(&e.Path, &e.Size, &e.MtimeNano, &e.Hash, &recorded)
	if err != nil {
		return Entry{}, false
	}
	e.RecordedAt = time.Unix(0, recorded)
	return e, true
}

// Recent returns up to limit entries, most recently recorded first.
func (l *Ledger) Recent(limit int) ([]Entry, error) {
	rows, err := l.db.Query(
		"SELECT path, size, mtime, hash, recorded_at FROM hashes ORDER BY recorded_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var recorded int64
		if err := rows.Scan(&e.Path, &e.Size, &e.MtimeNano, &e.Hash, &recorded); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.RecordedAt = time.Unix(0, recorded)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (l *Ledger) flushLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		}
	}
}

// Close flushes any pending writes and closes the database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	if !l.stopped {
		l.stopped = true
		close(l.done)
	}
	_ = l.flushLocked()
	l.mu.Unlock()
	return l.db.Close()
}

// Path returns the path to the ledger database file.
func (l *Ledger) Path() string {
	return l.path
}
