package archive

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwhitt/artifex/internal/stats"
)

func writeFiles(t *testing.T, root string, files map[string]string) []string {
	t.Helper()
	paths := make([]string, 0, len(files))
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func packToFile(t *testing.T, root string, files []string, cfg PackerConfig) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, root, files, cfg))
	out := filepath.Join(t.TempDir(), "archive.zip")
	require.NoError(t, os.WriteFile(out, buf.Bytes(), 0o644))
	return out
}

func TestPackUnpackRoundTrip(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"a.txt":           "alpha",
		"b.txt":           "beta",
		"sub/c.txt":       "gamma",
		"sub/deep/d.bin":  string([]byte{0, 1, 2, 3, 255}),
		"sub/deep/e.json": `{"k":"v"}`,
	}
	paths := writeFiles(t, src, files)

	archivePath := packToFile(t, src, paths, PackerConfig{})

	dst := t.TempDir()
	require.NoError(t, ExtractTree(archivePath, dst, UnpackConfig{}))

	for rel, content := range files {
		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(rel)))
		require.NoError(t, err, rel)
		assert.Equal(t, content, string(got), rel)
	}
}

func TestPackUnpackSingleFile(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "model.bin")
	content := bytes.Repeat([]byte("weights"), 1000)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	var buf bytes.Buffer
	require.NoError(t, PackFile(&buf, path, PackerConfig{}))

	archivePath := filepath.Join(t.TempDir(), "single.zip")
	require.NoError(t, os.WriteFile(archivePath, buf.Bytes(), 0o644))

	single, err := IsSingleFile(archivePath)
	require.NoError(t, err)
	assert.True(t, single)

	dst := filepath.Join(t.TempDir(), "restored.bin")
	require.NoError(t, ExtractFile(archivePath, dst, UnpackConfig{}))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestExtractFileOverwrites(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "data")
	require.NoError(t, os.WriteFile(path, []byte("fresh"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, PackFile(&buf, path, PackerConfig{}))
	archivePath := filepath.Join(t.TempDir(), "a.zip")
	require.NoError(t, os.WriteFile(archivePath, buf.Bytes(), 0o644))

	dst := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(dst, []byte("previous longer content"), 0o644))

	require.NoError(t, ExtractFile(archivePath, dst, UnpackConfig{}))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(got))
}

func TestPackCompletionCallback(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{}
	for i := 0; i < 50; i++ {
		files[filepath.Join("d", string(rune('a'+i%26))+string(rune('0'+i/26)))+".txt"] = "x"
	}
	paths := writeFiles(t, src, files)

	var completed []string
	cfg := PackerConfig{
		// The callback runs on the coordinator goroutine, so plain
		// slice appends are safe.
		OnComplete: func(path string) { completed = append(completed, path) },
	}

	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, src, paths, cfg))

	assert.Len(t, completed, len(paths))
	sort.Strings(completed)
	assert.Equal(t, paths, completed)
}

func TestPackZeroFiles(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, t.TempDir(), nil, PackerConfig{}))

	archivePath := filepath.Join(t.TempDir(), "empty.zip")
	require.NoError(t, os.WriteFile(archivePath, buf.Bytes(), 0o644))

	rc, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	defer rc.Close()
	assert.Empty(t, rc.File)
}

func TestPackReadFailureAborts(t *testing.T) {
	src := t.TempDir()
	good := filepath.Join(src, "good.txt")
	require.NoError(t, os.WriteFile(good, []byte("ok"), 0o644))
	missing := filepath.Join(src, "missing.txt")

	var buf bytes.Buffer
	err := Pack(&buf, src, []string{good, missing}, PackerConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.txt")
}

func TestPackMethods(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"text.txt": "compressible compressible compressible compressible",
		"sub/b":    "data",
	}
	paths := writeFiles(t, src, files)

	for _, method := range []Method{Deflate, Zstd, Store} {
		t.Run(method.String(), func(t *testing.T) {
			archivePath := packToFile(t, src, paths, PackerConfig{Method: method})

			dst := t.TempDir()
			require.NoError(t, ExtractTree(archivePath, dst, UnpackConfig{}))
			for rel, content := range files {
				got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(rel)))
				require.NoError(t, err)
				assert.Equal(t, content, string(got))
			}
		})
	}
}

func TestParseMethod(t *testing.T) {
	for _, m := range []Method{Deflate, Zstd, Store} {
		got, err := ParseMethod(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMethod("lzma")
	assert.Error(t, err)
}

func TestPackManyFilesBoundedReaders(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{}
	for i := 0; i < 200; i++ {
		files[filepath.Join("shard", "f"+string(rune('a'+i%26)))+string(rune('a'+(i/26)%26))+string(rune('a'+i/676))+".dat"] = string(bytes.Repeat([]byte{byte(i)}, 100))
	}
	paths := writeFiles(t, src, files)

	col := stats.NewCollector()
	archivePath := packToFile(t, src, paths, PackerConfig{ReaderSlots: 4, Stats: col})

	s := col.Snapshot()
	assert.Equal(t, int64(len(paths)), s.FilesLoaded)
	assert.Equal(t, int64(len(paths)), s.EntriesWritten)

	dst := t.TempDir()
	require.NoError(t, ExtractTree(archivePath, dst, UnpackConfig{}))
	for rel, content := range files {
		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(rel)))
		require.NoError(t, err, rel)
		assert.Equal(t, content, string(got), rel)
	}
}

func TestExtractTreeRejectsEscape(t *testing.T) {
	// Build a hostile archive by hand.
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("../evil.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("nope"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	archivePath := filepath.Join(t.TempDir(), "hostile.zip")
	require.NoError(t, os.WriteFile(archivePath, buf.Bytes(), 0o644))

	err = ExtractTree(archivePath, t.TempDir(), UnpackConfig{})
	assert.Error(t, err)
}

func TestExtractFileMissingEntry(t *testing.T) {
	src := t.TempDir()
	paths := writeFiles(t, src, map[string]string{"a.txt": "x"})
	archivePath := packToFile(t, src, paths, PackerConfig{})

	err := ExtractFile(archivePath, filepath.Join(t.TempDir(), "out"), UnpackConfig{})
	assert.ErrorIs(t, err, ErrEntryNotFound)
}
