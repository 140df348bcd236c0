// Package stats tracks engine counters with lock-free atomics.
package stats

import (
	"sync/atomic"
	"time"
)

// Collector aggregates hashing, cache, and archive pipeline counters.
// All methods are safe for concurrent use.
type Collector struct {
	filesHashed    atomic.Int64
	bytesHashed    atomic.Int64
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	filesLoaded    atomic.Int64
	bytesLoaded    atomic.Int64
	entriesWritten atomic.Int64
	bytesWritten   atomic.Int64
	filesExtracted atomic.Int64
	startTime      time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

func (c *Collector) AddFilesHashed(n int64)    { c.filesHashed.Add(n) }
func (c *Collector) AddBytesHashed(n int64)    { c.bytesHashed.Add(n) }
func (c *Collector) AddCacheHits(n int64)      { c.cacheHits.Add(n) }
func (c *Collector) AddCacheMisses(n int64)    { c.cacheMisses.Add(n) }
func (c *Collector) AddFilesLoaded(n int64)    { c.filesLoaded.Add(n) }
func (c *Collector) AddBytesLoaded(n int64)    { c.bytesLoaded.Add(n) }
func (c *Collector) AddEntriesWritten(n int64) { c.entriesWritten.Add(n) }
func (c *Collector) AddBytesWritten(n int64)   { c.bytesWritten.Add(n) }
func (c *Collector) AddFilesExtracted(n int64) { c.filesExtracted.Add(n) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesHashed    int64
	BytesHashed    int64
	CacheHits      int64
	CacheMisses    int64
	FilesLoaded    int64
	BytesLoaded    int64
	EntriesWritten int64
	BytesWritten   int64
	FilesExtracted int64
	Elapsed        time.Duration
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesHashed:    c.filesHashed.Load(),
		BytesHashed:    c.bytesHashed.Load(),
		CacheHits:      c.cacheHits.Load(),
		CacheMisses:    c.cacheMisses.Load(),
		FilesLoaded:    c.filesLoaded.Load(),
		BytesLoaded:    c.bytesLoaded.Load(),
		EntriesWritten: c.entriesWritten.Load(),
		BytesWritten:   c.bytesWritten.Load(),
		FilesExtracted: c.filesExtracted.Load(),
		Elapsed:        c.Elapsed(),
	}
}

// Elapsed returns time since the collector was created.
func (c *Collector) Elapsed() time.Duration {
	if c.startTime.IsZero() {
		return 0
	}
	return time.Since(c.startTime)
}
