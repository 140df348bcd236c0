package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/mwhitt/artifex/internal/event"
	"github.com/mwhitt/artifex/internal/stats"
)

// ErrEntryNotFound is returned when a single-file archive lacks the
// reserved entry name.
var ErrEntryNotFound = errors.New("archive: entry not found")

// UnpackConfig controls extraction.
type UnpackConfig struct {
	Stats  *stats.Collector
	Events chan<- event.Event
	Log    *slog.Logger
}

func (cfg *UnpackConfig) defaults() {
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

func openArchive(path string) (*zip.ReadCloser, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	rc.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())
	return rc, nil
}

// IsSingleFile reports whether the archive at path holds a single-file
// artifact (one entry under the reserved name).
func IsSingleFile(path string) (bool, error) {
	rc, err := openArchive(path)
	if err != nil {
		return false, err
	}
	defer rc.Close()
	return len(rc.File) == 1 && rc.File[0].Name == SingleEntryName, nil
}

// ExtractFile restores a single-file archive to dst, overwriting any
// existing file.
func ExtractFile(archivePath, dst string, cfg UnpackConfig) error {
	cfg.defaults()

	rc, err := openArchive(archivePath)
	if err != nil {
		return err
	}
	defer rc.Close()

	for _, f := range rc.File {
		if f.Name != SingleEntryName {
			continue
		}
		if err := extractEntry(f, dst, &cfg); err != nil {
			return err
		}
		event.Emit(cfg.Events, event.Event{Type: event.ExtractComplete, Path: dst, Total: 1})
		return nil
	}
	return fmt.Errorf("%w: %s in %s", ErrEntryNotFound, SingleEntryName, archivePath)
}

// ExtractTree expands every entry of the archive under dstDir,
// recreating the relative structure recorded at pack time.
func ExtractTree(archivePath, dstDir string, cfg UnpackConfig) error {
	cfg.defaults()

	rc, err := openArchive(archivePath)
	if err != nil {
		return err
	}
	defer rc.Close()

	for _, f := range rc.File {
		dst, err := entryTarget(dstDir, f.Name)
		if err != nil {
			return err
		}
		if strings.HasSuffix(f.Name, "/") {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", dst, err)
			}
			continue
		}
		if err := extractEntry(f, dst, &cfg); err != nil {
			return err
		}
	}

	event.Emit(cfg.Events, event.Event{Type: event.ExtractComplete, Path: dstDir, Total: int64(len(rc.File))})
	return nil
}

// entryTarget resolves an entry name under dstDir, rejecting names
// that would escape it.
func entryTarget(dstDir, name string) (string, error) {
	dst := filepath.Join(dstDir, filepath.FromSlash(name))
	if !strings.HasPrefix(dst, filepath.Clean(dstDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("entry %q escapes target directory", name)
	}
	return dst, nil
}

func extractEntry(f *zip.File, dst string, cfg *UnpackConfig) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create parent dir %s: %w", dst, err)
	}

	er, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer er.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	n, err := io.Copy(out, er)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}

	cfg.Stats.AddFilesExtracted(1)
	event.Emit(cfg.Events, event.Event{Type: event.ExtractEntry, Path: f.Name, Size: n})
	cfg.Log.Debug("entry extracted", "entry", f.Name, "dst", dst)
	return nil
}
