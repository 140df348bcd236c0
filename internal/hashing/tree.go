package hashing

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

// SidecarSuffix marks cached-digest sidecar files.
const SidecarSuffix = ".hash"

// SectionSuffix marks compute-section descriptor files.
const SectionSuffix = ".section"

// IsMetadata reports whether name is a sidecar or descriptor file.
// Metadata files never contribute to content digests or to directory
// timestamp aggregation; otherwise writing a sidecar would invalidate
// the very cache entry it stores.
func IsMetadata(name string) bool {
	return strings.HasSuffix(name, SidecarSuffix) || strings.HasSuffix(name, SectionSuffix)
}

// TreeHasher produces one digest for an entire directory tree. The
// digest depends only on relative names and file content: never on
// absolute paths, enumeration order, or timestamps, so it is stable
// across hosts and platforms.
type TreeHasher struct {
	chunkSize int
	sem       chan struct{}
}

// NewTreeHasher creates a tree hasher. workers bounds the number of
// files being read concurrently across the whole recursion.
func NewTreeHasher(chunkSize, workers int) *TreeHasher {
	if workers <= 0 {
		workers = min(runtime.NumCPU(), 8)
	}
	return &TreeHasher{
		chunkSize: chunkSize,
		sem:       make(chan struct{}, workers),
	}
}

// DigestTree computes the digest of the directory at root.
//
// Construction: immediate files (metadata excluded) sorted by name,
// then immediate subdirectories sorted by name. The concatenated
// relative names form the first digest block; the concatenated child
// digests, in the same order, form the second. Sibling digests are
// computed in parallel and re-sorted before combination, so completion
// order never leaks into the result.
func (t *TreeHasher) DigestTree(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("read dir %s: %w", root, err)
	}

	var files, dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
			continue
		}
		if IsMetadata(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}
	// os.ReadDir returns name-sorted entries, but the ordering is
	// load-bearing for digest portability, so enforce it.
	sort.Strings(files)
	sort.Strings(dirs)

	names := make([]string, 0, len(files)+len(dirs))
	names = append(names, files...)
	names = append(names, dirs...)

	digests := make([]string, len(names))
	errs := make([]error, len(names))
	var wg sync.WaitGroup

	for i, name := range files {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			// The semaphore bounds open file handles, not
			// recursion: directory goroutines must stay free to
			// wait on their children without holding a slot.
			t.sem <- struct{}{}
			defer func() { <-t.sem }()
			digests[i], errs[i] = DigestFile(path, t.chunkSize)
		}(i, filepath.Join(root, name))
	}
	for i, name := range dirs {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			digests[i], errs[i] = t.DigestTree(path)
		}(len(files)+i, filepath.Join(root, name))
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return "", err
		}
	}

	h := blake3.New()
	h.Write([]byte(strings.Join(names, "")))
	h.Write([]byte(strings.Join(digests, "")))
	return encode(h.Sum(nil)), nil
}

// DigestPath hashes path as a file or, if it is a directory, as a tree.
func (t *TreeHasher) DigestPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return t.DigestTree(path)
	}
	return DigestFile(path, t.chunkSize)
}
