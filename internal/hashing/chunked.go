// Package hashing computes content digests for files and directory
// trees. Digests are BLAKE3, rendered as uppercase hex HashStrings.
package hashing

import (
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// DefaultChunkSize is the read window used when streaming file content
// through the digest.
const DefaultChunkSize = 1 << 20

// Digest streams r through BLAKE3 in chunks of at most chunkSize bytes
// and returns the uppercase hex digest. The chunk size is a pure
// windowing strategy: identical content produces identical digests
// regardless of chunking. An empty stream yields the digest of zero
// bytes.
func Digest(r io.Reader, chunkSize int) (string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	h := blake3.New()
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}

	return encode(h.Sum(nil)), nil
}

// DigestFile computes the content digest of the file at path.
func DigestFile(path string, chunkSize int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	d, err := Digest(f, chunkSize)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return d, nil
}

// encode renders a raw digest as a HashString: fixed-length uppercase
// hex, no separators.
func encode(digest []byte) string {
	return fmt.Sprintf("%X", digest)
}
