// Package pattern expands path patterns into ordered concrete paths.
// It is the enumeration collaborator consumed by the batch fast-hash:
// the cache never interprets patterns itself.
package pattern

import (
	"fmt"
	"path/filepath"
)

// Match is one element of an expanded pattern. Index is the element's
// position within the pattern's ordering and identifies the element in
// vector artifact versions.
type Match struct {
	Index int
	Path  string
}

// Enumerator expands a path pattern into its ordered concrete matches.
type Enumerator interface {
	Expand(pattern string) ([]Match, error)
}

// Glob expands patterns with filepath.Glob semantics. Matches come
// back in lexical order, which fixes the element indices.
type Glob struct{}

func (Glob) Expand(pattern string) ([]Match, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("expand pattern %q: %w", pattern, err)
	}
	matches := make([]Match, len(paths))
	for i, p := range paths {
		matches[i] = Match{Index: i, Path: p}
	}
	return matches, nil
}
