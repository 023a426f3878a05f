// Package storage defines the optional artifact mirror. Artifacts always land
// in the local screenshots directory first; a Mirror copies them elsewhere.
package storage

import (
	"context"
)

// Mirror copies a saved artifact to secondary storage and returns its URI.
type Mirror interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// NoOpMirror discards uploads. It is used when no bucket is configured.
type NoOpMirror struct{}

// Upload does nothing and always succeeds.
func (NoOpMirror) Upload(context.Context, string, []byte) (string, error) {
	return "", nil
}
