// Package event defines progress events emitted by the hashing and
// archiving engines. Events are fire-and-forget: emission never blocks
// and never participates in correctness.
package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	HashStarted Type = iota + 1
	HashComplete
	CacheHit
	CacheMiss
	FileLoaded
	EntryWritten
	PackComplete
	ExtractEntry
	ExtractComplete
)

var typeNames = [...]string{
	HashStarted:     "HashStarted",
	HashComplete:    "HashComplete",
	CacheHit:        "CacheHit",
	CacheMiss:       "CacheMiss",
	FileLoaded:      "FileLoaded",
	EntryWritten:    "EntryWritten",
	PackComplete:    "PackComplete",
	ExtractEntry:    "ExtractEntry",
	ExtractComplete: "ExtractComplete",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from the engine.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // artifact path or archive entry name
	Size      int64  // bytes involved, when known
	Total     int64  // total files (PackComplete, ExtractComplete)
	Digest    string // resulting HashString (HashComplete, CacheHit)
	Error     error
}

// Emit sends e on ch without blocking. A nil or full channel drops the
// event; consumers that care about every event must size the channel
// accordingly.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
