// Package section models compute-section descriptors: the recorded
// recipe (command, working directory, inputs, outputs) that produced
// an artifact, and the signature that detects when the recipe has
// drifted from its recorded results.
package section

import "sort"

// Version maps vector indices to optional HashStrings. A scalar
// artifact occupies index 0; a vector artifact has one entry per
// pattern element. An absent entry means "not yet computed" or
// "invalidated". Entries are keyed, unique per index, and traversal
// order is always ascending index order regardless of insertion order.
type Version struct {
	entries map[int]entry
}

type entry struct {
	hash    string
	present bool
}

// NewVersion creates an empty version map.
func NewVersion() *Version {
	return &Version{entries: make(map[int]entry)}
}

// Set records the hash for index.
func (v *Version) Set(index int, hash string) {
	v.entries[index] = entry{hash: hash, present: true}
}

// SetAbsent records index as known but without a hash.
func (v *Version) SetAbsent(index int) {
	v.entries[index] = entry{}
}

// Get returns the hash at index, if present.
func (v *Version) Get(index int) (string, bool) {
	e, ok := v.entries[index]
	if !ok || !e.present {
		return "", false
	}
	return e.hash, true
}

// Indices returns all known indices in ascending order.
func (v *Version) Indices() []int {
	idx := make([]int, 0, len(v.entries))
	for i := range v.entries {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Len returns the number of known indices, present or absent.
func (v *Version) Len() int {
	return len(v.entries)
}

// Invalidate marks every known index absent, keeping the index set.
func (v *Version) Invalidate() {
	for i := range v.entries {
		v.entries[i] = entry{}
	}
}

// Artifact is one input or output reference of a compute section. It
// is exclusively owned by the section that lists it.
type Artifact struct {
	// Path is relative to the section's working directory.
	Path string

	// Version holds the recorded hash per vector index.
	Version *Version

	// External marks artifacts tracked outside the experiment.
	// Excluded from the signature.
	External bool
}

// NewArtifact creates an artifact reference with an empty version.
func NewArtifact(path string) *Artifact {
	return &Artifact{Path: path, Version: NewVersion()}
}

// Section is a computation descriptor: the command, where it runs, and
// the ordered artifacts it consumes and produces.
type Section struct {
	Command string
	Workdir string
	Inputs  []*Artifact
	Outputs []*Artifact

	// Signature is the recorded digest over the fields above. See
	// Sign and Validate.
	Signature string
}
