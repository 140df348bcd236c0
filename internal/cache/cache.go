// Package cache implements the staleness-aware fast hash. Each tracked
// path gets a sidecar file `<path>.hash` holding its last computed
// HashString; the sidecar is trusted while its own mtime is strictly
// newer than every timestamp beneath the artifact.
package cache

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mwhitt/artifex/internal/event"
	"github.com/mwhitt/artifex/internal/hashing"
	"github.com/mwhitt/artifex/internal/ledger"
	"github.com/mwhitt/artifex/internal/stats"
)

// SidecarSuffix is the extension of cached-digest sidecar files.
const SidecarSuffix = hashing.SidecarSuffix

// Config controls cache behavior. The zero value is usable.
type Config struct {
	ChunkSize int             // hashing read window; 0 means hashing.DefaultChunkSize
	Workers   int             // concurrent file reads during tree hashing
	Stats     *stats.Collector
	Ledger    *ledger.Ledger  // optional hash history; nil disables recording
	Events    chan<- event.Event
	Log       *slog.Logger
}

// Cache computes and memoizes artifact hashes through sidecar files.
type Cache struct {
	hasher *hashing.TreeHasher
	chunk  int
	stats  *stats.Collector
	ledger *ledger.Ledger
	events chan<- event.Event
	log    *slog.Logger
}

// New creates a Cache.
func New(cfg Config) *Cache {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = hashing.DefaultChunkSize
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{
		hasher: hashing.NewTreeHasher(cfg.ChunkSize, cfg.Workers),
		chunk:  cfg.ChunkSize,
		stats:  cfg.Stats,
		ledger: cfg.Ledger,
		events: cfg.Events,
		log:    cfg.Log,
	}
}

// FastHash returns the current HashString for path, or ok=false if no
// file or directory exists there. A fresh sidecar is returned verbatim
// without rehashing; a stale or missing sidecar triggers recomputation
// and an overwrite.
func (c *Cache) FastHash(path string) (hash string, ok bool, err error) {
	side := path + SidecarSuffix

	info, statErr := os.Stat(path)
	if statErr != nil {
		if !os.IsNotExist(statErr) {
			return "", false, fmt.Errorf("stat %s: %w", path, statErr)
		}
		// Artifact gone: a leftover sidecar is stale by definition.
		if _, sideErr := os.Stat(side); sideErr == nil {
			if err := os.Remove(side); err != nil {
				return "", false, fmt.Errorf("remove stale sidecar %s: %w", side, err)
			}
			c.log.Debug("removed orphaned sidecar", "path", side)
		}
		return "", false, nil
	}

	if sideInfo, sideErr := os.Stat(side); sideErr == nil {
		dataTime, err := c.deepModTime(path, info)
		if err != nil {
			return "", false, err
		}
		// Strictly-newer comparison at OS timestamp resolution: a
		// sidecar written in the same tick as a data change is
		// treated as stale and rehashed.
		if sideInfo.ModTime().After(dataTime) {
			raw, err := os.ReadFile(side)
			if err != nil {
				return "", false, fmt.Errorf("read sidecar %s: %w", side, err)
			}
			stored := strings.TrimSpace(string(raw))
			c.stats.AddCacheHits(1)
			event.Emit(c.events, event.Event{Type: event.CacheHit, Path: path, Digest: stored})
			c.log.Debug("sidecar fresh", "path", path)
			return stored, true, nil
		}
		c.log.Debug("sidecar stale", "path", path)
	}

	c.stats.AddCacheMisses(1)
	event.Emit(c.events, event.Event{Type: event.CacheMiss, Path: path})

	digest, err := c.rehash(path, info)
	if err != nil {
		return "", false, err
	}
	if err := writeSidecar(side, digest); err != nil {
		return "", false, err
	}
	if c.ledger != nil {
		if err := c.ledger.Record(path, info.Size(), info.ModTime().UnixNano(), digest); err != nil {
			// History only; the hash itself is already durable in
			// the sidecar.
			c.log.Warn("ledger record failed", "path", path, "error", err)
		}
	}
	return digest, true, nil
}

func (c *Cache) rehash(path string, info fs.FileInfo) (string, error) {
	event.Emit(c.events, event.Event{Type: event.HashStarted, Path: path})

	var digest string
	var err error
	if info.IsDir() {
		digest, err = c.hasher.DigestTree(path)
	} else {
		digest, err = hashing.DigestFile(path, c.chunk)
		c.stats.AddBytesHashed(info.Size())
	}
	if err != nil {
		return "", err
	}

	c.stats.AddFilesHashed(1)
	event.Emit(c.events, event.Event{Type: event.HashComplete, Path: path, Digest: digest})
	return digest, nil
}

// deepModTime returns the most recent modification time anywhere
// beneath path: for a file its own mtime, for a directory the maximum
// over the directory's mtime, contained non-metadata file mtimes, and
// subdirectory deep times, recursively. Sidecars and descriptors are
// excluded so that writing one never invalidates its own artifact.
func (c *Cache) deepModTime(path string, info fs.FileInfo) (time.Time, error) {
	if !info.IsDir() {
		return info.ModTime(), nil
	}

	latest := info.ModTime()
	entries, err := os.ReadDir(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("read dir %s: %w", path, err)
	}
	for _, e := range entries {
		if !e.IsDir() && hashing.IsMetadata(e.Name()) {
			continue
		}
		childInfo, err := e.Info()
		if err != nil {
			return time.Time{}, fmt.Errorf("stat %s: %w", filepath.Join(path, e.Name()), err)
		}
		childTime := childInfo.ModTime()
		if e.IsDir() {
			childTime, err = c.deepModTime(filepath.Join(path, e.Name()), childInfo)
			if err != nil {
				return time.Time{}, err
			}
		}
		if childTime.After(latest) {
			latest = childTime
		}
	}
	return latest, nil
}

// writeSidecar persists a digest atomically: write to a uniquely named
// temp file in the same directory, then rename over the sidecar.
func writeSidecar(side, digest string) error {
	dir := filepath.Dir(side)
	base := filepath.Base(side)
	// The temp name keeps the sidecar suffix so a half-written file is
	// still excluded from sibling hash computations.
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s%s", base, uuid.New().String()[:8], SidecarSuffix))

	if err := os.WriteFile(tmp, []byte(digest+"\n"), 0o644); err != nil {
		return fmt.Errorf("write sidecar tmp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, side); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename sidecar %s: %w", side, err)
	}
	return nil
}
