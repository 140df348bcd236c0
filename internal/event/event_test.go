package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		want string
		typ  Type
	}{
		{want: "HashStarted", typ: HashStarted},
		{want: "HashComplete", typ: HashComplete},
		{want: "CacheHit", typ: CacheHit},
		{want: "CacheMiss", typ: CacheMiss},
		{want: "FileLoaded", typ: FileLoaded},
		{want: "EntryWritten", typ: EntryWritten},
		{want: "PackComplete", typ: PackComplete},
		{want: "ExtractEntry", typ: ExtractEntry},
		{want: "ExtractComplete", typ: ExtractComplete},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.String())
		})
	}
}

func TestTypeStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Type(999).String())
	assert.Equal(t, "Unknown", Type(0).String())
}

func TestEmitNilChannel(t *testing.T) {
	// Must not panic or block.
	Emit(nil, Event{Type: HashStarted})
}

func TestEmitSetsTimestamp(t *testing.T) {
	ch := make(chan Event, 1)
	Emit(ch, Event{Type: EntryWritten, Path: "a/b"})

	e := <-ch
	require.Equal(t, EntryWritten, e.Type)
	assert.False(t, e.Timestamp.IsZero())
}

func TestEmitFullChannelDrops(t *testing.T) {
	ch := make(chan Event, 1)
	Emit(ch, Event{Type: CacheHit})
	// Second emit must not block.
	Emit(ch, Event{Type: CacheMiss})

	e := <-ch
	assert.Equal(t, CacheHit, e.Type)
	select {
	case <-ch:
		t.Fatal("expected second event to be dropped")
	default:
	}
}
