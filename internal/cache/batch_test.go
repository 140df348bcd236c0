package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwhitt/artifex/internal/pattern"
)

func TestFastHashPattern(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"r0.csv", "r1.csv", "r2.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}

	c := New(Config{})
	results, err := c.FastHashPattern(filepath.Join(dir, "r*.csv"), pattern.Glob{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.True(t, r.Present)
		assert.Len(t, r.Hash, 64)
	}
	// Distinct content, distinct hashes.
	assert.NotEqual(t, results[0].Hash, results[1].Hash)
}

// stubEnumerator returns a fixed match list, the way the surrounding
// build layer replays recorded vector indices.
type stubEnumerator struct {
	matches []pattern.Match
	err     error
}

func (s stubEnumerator) Expand(string) ([]pattern.Match, error) {
	return s.matches, s.err
}

func TestFastHashPatternAbsentElement(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.txt")
	require.NoError(t, os.WriteFile(present, []byte("here"), 0o644))

	enum := stubEnumerator{matches: []pattern.Match{
		{Index: 0, Path: present},
		{Index: 1, Path: filepath.Join(dir, "missing.txt")},
	}}

	c := New(Config{})
	results, err := c.FastHashPattern("ignored", enum)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Present)
	assert.False(t, results[1].Present)
	assert.Empty(t, results[1].Hash)
}

func TestFastHashPatternEnumeratorError(t *testing.T) {
	c := New(Config{})
	_, err := c.FastHashPattern("x", stubEnumerator{err: errors.New("bad pattern")})
	assert.Error(t, err)
}
