// Package phash detects visually repeated screenshots with perceptual hashes.
package phash

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png" // register decoder
	"math/bits"

	"github.com/corona10/goimagehash"
)

// Algorithm selects the hash function.
type Algorithm string

// Supported algorithms.
const (
	Perception Algorithm = "perception"
	Average    Algorithm = "average"
)

// Hasher computes 64-bit image hashes. Two hashes are similar when their
// Hamming distance is at most Threshold.
type Hasher struct {
	Algorithm Algorithm
	Threshold int
}

// New returns a Hasher. An empty algorithm means Perception.
func New(algo Algorithm, threshold int) (*Hasher, error) {
	if algo == "" {
		algo = Perception
	}
	if algo != Perception && algo != Average {
		return nil, fmt.Errorf("unknown hash algorithm %q", algo)
	}
	if threshold < 0 || threshold > 64 {
		return nil, fmt.Errorf("hash threshold must be between 0 and 64")
	}
	return &Hasher{Algorithm: algo, Threshold: threshold}, nil
}

// Hash decodes the image and returns its hash.
func (h *Hasher) Hash(data []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode image: %w", err)
	}
	var ih *goimagehash.ImageHash
	switch h.Algorithm {
	case Average:
		ih, err = goimagehash.AverageHash(img)
	default:
		ih, err = goimagehash.PerceptionHash(img)
	}
	if err != nil {
		return 0, fmt.Errorf("hash image: %w", err)
	}
	return ih.GetHash(), nil
}

// Similar reports whether a and b are within the distance threshold.
func (h *Hasher) Similar(a, b uint64) bool {
	return Distance(a, b) <= h.Threshold
}

// Distance is the Hamming distance between two hashes.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
