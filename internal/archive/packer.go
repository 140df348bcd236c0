// Package archive packs files into a single zip stream and restores
// them. Packing runs as a bounded producer/consumer pipeline: many
// concurrent readers feed exactly one serializing writer, coordinated
// by a single goroutine that owns all mutable pipeline state.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"

	"github.com/mwhitt/artifex/internal/event"
	"github.com/mwhitt/artifex/internal/stats"
)

const (
	// SingleEntryName is the reserved entry name for single-file
	// artifacts.
	SingleEntryName = "_content"

	// DefaultReaderSlots bounds how many files may be held in memory
	// between read start and archive write. The writer side is always
	// exactly one: the zip container is not safely appendable from
	// concurrent writers.
	DefaultReaderSlots = 16
)

// Method selects the per-entry compression algorithm.
type Method int

const (
	Deflate Method = iota // klauspost flate, speed-tuned
	Zstd                  // zstd entries (WinZip method 93)
	Store                 // no compression
)

// String returns the method's config-file name.
func (m Method) String() string {
	switch m {
	case Deflate:
		return "deflate"
	case Zstd:
		return "zstd"
	case Store:
		return "store"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseMethod parses a method from its config-file name.
func ParseMethod(name string) (Method, error) {
	switch name {
	case "deflate":
		return Deflate, nil
	case "zstd":
		return Zstd, nil
	case "store":
		return Store, nil
	default:
		return 0, fmt.Errorf("unknown archive method: %q", name)
	}
}

func (m Method) zipMethod() uint16 {
	switch m {
	case Zstd:
		return zstd.ZipMethodWinZip
	case Store:
		return zip.Store
	default:
		return zip.Deflate
	}
}

// PackerConfig controls the archiving pipeline.
type PackerConfig struct {
	ReaderSlots int    // concurrent in-flight files; 0 means DefaultReaderSlots
	Method      Method
	Stats       *stats.Collector
	Events      chan<- event.Event
	Log         *slog.Logger

	// OnComplete, when set, is invoked exactly once per file after its
	// bytes are committed to the archive, in write-completion order.
	OnComplete func(path string)
}

// entry pairs a source path with its archive entry name.
type entry struct {
	path string
	name string
}

// Pack writes the given files into one zip stream on w, naming each
// entry by its path relative to root (forward slashes). It blocks
// until every file is written or the first fault aborts the run; a
// partially written archive is not usable.
func Pack(w io.Writer, root string, files []string, cfg PackerConfig) error {
	entries := make([]entry, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			return fmt.Errorf("relativize %s under %s: %w", f, root, err)
		}
		entries = append(entries, entry{path: f, name: filepath.ToSlash(rel)})
	}
	return pack(w, entries, cfg)
}

// PackFile writes a single file under the reserved entry name.
func PackFile(w io.Writer, path string, cfg PackerConfig) error {
	return pack(w, []entry{{path: path, name: SingleEntryName}}, cfg)
}

func pack(w io.Writer, entries []entry, cfg PackerConfig) error {
	p := newPacker(w, cfg)
	go p.run()

	// Announce the total, then enqueue one load per file. The
	// coordinator drains this channel until the done condition, so
	// these sends cannot wedge even on early failure.
	p.msgs <- msg{kind: msgExpect, total: len(entries)}
	for _, e := range entries {
		p.msgs <- msg{kind: msgLoad, entry: e}
	}

	<-p.done

	// The driver owns the archive wrapper: close it only once the
	// pipeline has fully drained.
	if cerr := p.zw.Close(); cerr != nil && p.err == nil {
		p.err = fmt.Errorf("close archive: %w", cerr)
	}
	if p.err == nil {
		event.Emit(p.events, event.Event{Type: event.PackComplete, Total: int64(len(entries))})
	}
	return p.err
}

// msgKind discriminates pipeline control messages.
type msgKind int

const (
	msgExpect  msgKind = iota + 1 // driver announces the total file count
	msgLoad                      // driver enqueues one file to read
	msgLoaded                    // a reader finished loading a file into memory
	msgWritten                   // the writer committed one entry
	msgFail                      // a reader or writer task faulted
)

// msg is one control-plane message. Messages are created by the driver
// or by tasks, consumed by the coordinator, and discarded.
type msg struct {
	kind  msgKind
	entry entry
	data  []byte // msgLoaded
	total int    // msgExpect
	err   error  // msgFail
}

type packer struct {
	slots  int
	method uint16
	zw     *zip.Writer
	stats  *stats.Collector
	events chan<- event.Event
	log    *slog.Logger
	onDone func(string)

	msgs chan msg
	done chan struct{}
	err  error // first fault; read by the driver after done

	// Coordinator-owned state. Only the run loop touches these, so
	// no two mutations can race and no locks are needed.
	pending   []entry
	loaded    []msg
	readers   int
	writing   bool
	announced bool
	expected  int
	enqueued  int
	completed int
	inflight  int
	failed    bool
}

func newPacker(w io.Writer, cfg PackerConfig) *packer {
	if cfg.ReaderSlots <= 0 {
		cfg.ReaderSlots = DefaultReaderSlots
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())

	return &packer{
		slots:  cfg.ReaderSlots,
		method: cfg.Method.zipMethod(),
		zw:     zw,
		stats:  cfg.Stats,
		events: cfg.Events,
		log:    cfg.Log,
		onDone: cfg.OnComplete,
		msgs:   make(chan msg, cfg.ReaderSlots*2+4),
		done:   make(chan struct{}),
	}
}

// run is the coordinator: a strictly serialized message loop that owns
// every queue and counter in the pipeline.
func (p *packer) run() {
	for m := range p.msgs {
		p.apply(m)
		p.schedule()
		if p.finished() {
			close(p.done)
			return
		}
	}
}

func (p *packer) apply(m msg) {
	switch m.kind {
	case msgExpect:
		p.announced = true
		p.expected = m.total

	case msgLoad:
		p.enqueued++
		if !p.failed {
			p.pending = append(p.pending, m.entry)
		}

	case msgLoaded:
		p.inflight--
		if !p.failed {
			p.loaded = append(p.loaded, m)
		}

	case msgWritten:
		p.inflight--
		p.readers-- // the file's reader slot is held until its entry is committed
		p.writing = false
		p.completed++
		p.stats.AddEntriesWritten(1)
		event.Emit(p.events, event.Event{Type: event.EntryWritten, Path: m.entry.name})
		p.log.Debug("entry written", "entry", m.entry.name)
		if p.onDone != nil {
			p.onDone(m.entry.path)
		}

	case msgFail:
		p.inflight--
		if !p.failed {
			p.failed = true
			p.err = m.err
			p.pending = nil
			p.loaded = nil
		}
	}
}

// schedule greedily starts as many reads as the reader budget allows
// and at most one write. Started tasks report back through the message
// channel; they never touch coordinator state directly.
func (p *packer) schedule() {
	if p.failed {
		return
	}
	for p.readers < p.slots && len(p.pending) > 0 {
		e := p.pending[0]
		p.pending = p.pending[1:]
		p.readers++
		p.inflight++
		go p.load(e)
	}
	if !p.writing && len(p.loaded) > 0 {
		m := p.loaded[0]
		p.loaded = p.loaded[1:]
		p.writing = true
		p.inflight++
		go p.write(m)
	}
}

// finished is the done condition: the total is announced, every load
// request has been received, no task is in flight, and either all
// entries are committed or the run has faulted.
func (p *packer) finished() bool {
	if !p.announced || p.enqueued < p.expected || p.inflight > 0 {
		return false
	}
	return p.failed || p.completed == p.expected
}

// load reads one file fully into memory. Runs outside the coordinator;
// reports by message only.
func (p *packer) load(e entry) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		p.msgs <- msg{kind: msgFail, entry: e, err: fmt.Errorf("read %s: %w", e.path, err)}
		return
	}
	p.stats.AddFilesLoaded(1)
	p.stats.AddBytesLoaded(int64(len(data)))
	event.Emit(p.events, event.Event{Type: event.FileLoaded, Path: e.path, Size: int64(len(data))})
	p.msgs <- msg{kind: msgLoaded, entry: e, data: data}
}

// write appends one buffer as a zip entry. The coordinator guarantees
// at most one write task exists at a time, so the zip writer is never
// shared.
func (p *packer) write(m msg) {
	hdr := &zip.FileHeader{
		Name:     m.entry.name,
		Method:   p.method,
		Modified: time.Now(),
	}
	ew, err := p.zw.CreateHeader(hdr)
	if err == nil {
		_, err = ew.Write(m.data)
	}
	if err != nil {
		p.msgs <- msg{kind: msgFail, entry: m.entry, err: fmt.Errorf("write entry %s: %w", m.entry.name, err)}
		return
	}
	p.stats.AddBytesWritten(int64(len(m.data)))
	p.msgs <- msg{kind: msgWritten, entry: m.entry}
}
