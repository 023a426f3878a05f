// Package memory keeps artifacts in memory for tests and dry runs.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
)

const scheme = "memory://"

// Store holds artifacts keyed by pseudo URI.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Save copies data under name (suffixing _2, _3, ... on collision) and returns
// a memory:// URI.
func (s *Store) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("save artifact: %w", err)
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", capture.InvalidInput("artifact name %q must be a bare file name", name)
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	s.mu.Lock()
	defer s.mu.Unlock()
	key := scheme + name
	for i := 2; ; i++ {
		if _, taken := s.data[key]; !taken {
			break
		}
		key = fmt.Sprintf("%s%s_%d%s", scheme, stem, i, ext)
	}
	s.data[key] = append([]byte(nil), data...)
	return key, nil
}

// Open returns a reader over a copy of the artifact.
func (s *Store) Open(uri string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[uri]
	if !ok {
		return nil, fmt.Errorf("%w: %s", capture.ErrNotFound, uri)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

// Remove deletes an artifact.
func (s *Store) Remove(uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, uri)
	return nil
}

// Len returns the number of stored artifacts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
