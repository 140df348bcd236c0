package section

import (
	"fmt"

	"github.com/zeebo/blake3"
)

// Signature digests a section's identity-relevant fields: the command,
// the working directory, then for every input and output in order its
// relative path and every present hash in index order. Absent version
// entries contribute nothing. The stored Signature field and the
// External flag are excluded.
func Signature(s *Section) string {
	h := blake3.New()
	h.Write([]byte(s.Command))
	h.Write([]byte(s.Workdir))
	for _, ref := range s.Inputs {
		writeArtifact(h, ref)
	}
	for _, ref := range s.Outputs {
		writeArtifact(h, ref)
	}
	return fmt.Sprintf("%X", h.Sum(nil))
}

func writeArtifact(h *blake3.Hasher, ref *Artifact) {
	h.Write([]byte(ref.Path))
	if ref.Version == nil {
		return
	}
	for _, i := range ref.Version.Indices() {
		if hash, ok := ref.Version.Get(i); ok {
			h.Write([]byte(hash))
		}
	}
}

// Sign records the current signature on the section. Callers re-sign
// after regenerating outputs.
func Sign(s *Section) {
	s.Signature = Signature(s)
}

// Validate recomputes the signature and compares it to the stored one.
// On a match the section is left untouched and true is returned. On a
// mismatch every output version is invalidated (all indices absent)
// while inputs and the stored signature are left as-is: the recipe or
// its declared artifacts changed, so recorded results can no longer be
// trusted and downstream recomputation is forced.
func Validate(s *Section) bool {
	if Signature(s) == s.Signature {
		return true
	}
	for _, out := range s.Outputs {
		if out.Version != nil {
			out.Version.Invalidate()
		}
	}
	return false
}
