package cache

import (
	"fmt"

	"github.com/mwhitt/artifex/internal/pattern"
)

// BatchResult is the fast-hash outcome for one element of an expanded
// pattern. Present is false when no file or directory existed at Path.
type BatchResult struct {
	Index   int
	Path    string
	Hash    string
	Present bool
}

// FastHashPattern expands pat through enum and applies the single-path
// fast hash to each element independently. Results preserve the
// pattern's element ordering; one element failing fails the batch.
func (c *Cache) FastHashPattern(pat string, enum pattern.Enumerator) ([]BatchResult, error) {
	matches, err := enum.Expand(pat)
	if err != nil {
		return nil, err
	}

	results := make([]BatchResult, 0, len(matches))
	for _, m := range matches {
		hash, ok, err := c.FastHash(m.Path)
		if err != nil {
			return nil, fmt.Errorf("fast hash %s: %w", m.Path, err)
		}
		results = append(results, BatchResult{
			Index:   m.Index,
			Path:    m.Path,
			Hash:    hash,
			Present: ok,
		})
	}
	return results, nil
}
