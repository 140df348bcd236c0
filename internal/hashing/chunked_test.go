package hashing

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Uppercase hex of the BLAKE3 digest of zero bytes. Pins the digest
// primitive and encoding across runs and platforms.
const emptyDigest = "AF1349B9F5F9A1A6A0404DEA36DCC9499BCB25C9ADC112B7CC9A93CAE41F3262"

func TestDigestDeterministic(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")

	d1, err := Digest(bytes.NewReader(content), 0)
	require.NoError(t, err)
	d2, err := Digest(bytes.NewReader(content), 0)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestDigestChunkSizeIndependent(t *testing.T) {
	content := bytes.Repeat([]byte("abcdefgh"), 4096)

	var digests []string
	for _, chunk := range []int{1, 7, 64, 4096, len(content), len(content) * 2} {
		d, err := Digest(bytes.NewReader(content), chunk)
		require.NoError(t, err)
		digests = append(digests, d)
	}
	for _, d := range digests[1:] {
		assert.Equal(t, digests[0], d, "chunking must be a pure windowing strategy")
	}
}

func TestDigestDistinctContent(t *testing.T) {
	d1, err := Digest(bytes.NewReader([]byte("content-a")), 16)
	require.NoError(t, err)
	d2, err := Digest(bytes.NewReader([]byte("content-b")), 16)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2)
}

func TestDigestEmptyStream(t *testing.T) {
	d, err := Digest(bytes.NewReader(nil), 1024)
	require.NoError(t, err)
	assert.Equal(t, emptyDigest, d)
}

func TestDigestFormat(t *testing.T) {
	d, err := Digest(bytes.NewReader([]byte("x")), 1)
	require.NoError(t, err)
	assert.Len(t, d, 64)
	assert.Equal(t, strings.ToUpper(d), d)
	assert.NotContains(t, d, " ")
}

func TestDigestReadFailure(t *testing.T) {
	_, err := Digest(&failingReader{}, 64)
	assert.Error(t, err)
}

type failingReader struct{}

func (*failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestDigestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	d1, err := DigestFile(path, 4)
	require.NoError(t, err)

	d2, err := Digest(bytes.NewReader([]byte("hello world")), 1024)
	require.NoError(t, err)
	assert.Equal(t, d2, d1)
}

func TestDigestFileEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	d, err := DigestFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, emptyDigest, d)
}

func TestDigestFileNotExist(t *testing.T) {
	_, err := DigestFile(filepath.Join(t.TempDir(), "missing"), 0)
	assert.Error(t, err)
}
