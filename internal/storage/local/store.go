// Package local implements the sandboxed screenshots directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
	"github.com/JakeFAU/screenshot-orchestrator/internal/storage"
)

// maxVariants bounds the collision suffixes tried for one name.
const maxVariants = 10000

// Config captures the parameters for the local artifact store.
type Config struct {
	// BaseDir is the screenshots directory; every artifact resolves under it.
	BaseDir string
	// Mirror optionally copies each saved artifact elsewhere.
	Mirror storage.Mirror
	Logger *zap.Logger
}

// Store writes artifacts to the local filesystem.
type Store struct {
	baseDir string
	mirror  storage.Mirror
	logger  *zap.Logger
}

// New creates the store, creating BaseDir if needed and verifying it is writable.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	base, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	info, err := os.Stat(base)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(base, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(base, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	// Anchor on the symlink-free path so containment checks compare like with like.
	if resolved, err := filepath.EvalSymlinks(base); err == nil {
		base = resolved
	}
	mirror := cfg.Mirror
	if mirror == nil {
		mirror = storage.NoOpMirror{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{baseDir: base, mirror: mirror, logger: logger}, nil
}

// Root returns the canonical screenshots directory.
func (s *Store) Root() string {
	return s.baseDir
}

// ResolveUnder canonicalizes p (relative paths are taken from root) and
// fails with capture.ErrInvalidInput unless it lies strictly inside root.
// Existing paths are resolved through symlinks before the check.
func ResolveUnder(root, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", capture.InvalidInput("artifact path is required")
	}
	if strings.ContainsRune(p, 0) {
		return "", capture.InvalidInput("artifact path contains a NUL byte")
	}
	root = filepath.Clean(root)
	candidate := p
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, candidate)
	}
	candidate = filepath.Clean(candidate)
	if !within(root, candidate) {
		return "", capture.InvalidInput("path %q is outside the screenshots directory", p)
	}
	if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
		if !within(root, resolved) {
			return "", capture.InvalidInput("path %q is outside the screenshots directory", p)
		}
		candidate = resolved
	}
	return candidate, nil
}

func within(root, p string) bool {
	return strings.HasPrefix(p, root+string(filepath.Separator))
}

// Save writes data under name, or under name_2, name_3, ... when taken, and
// returns the absolute path. Name must be a bare file name.
func (s *Store) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("save artifact: %w", err)
	}
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", capture.InvalidInput("artifact name %q must be a bare file name", name)
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 1; i <= maxVariants; i++ {
		candidate := name
		if i > 1 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		full, err := ResolveUnder(s.baseDir, candidate)
		if err != nil {
			return "", err
		}
		f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create artifact: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(full)
			return "", fmt.Errorf("write artifact: %w", err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(full)
			return "", fmt.Errorf("close artifact: %w", err)
		}
		s.mirrorArtifact(ctx, candidate, data)
		return full, nil
	}
	return "", fmt.Errorf("no free artifact name for %q", name)
}

func (s *Store) mirrorArtifact(ctx context.Context, name string, data []byte) {
	uri, err := s.mirror.Upload(ctx, name, data)
	if err != nil {
		s.logger.Warn("artifact mirror upload failed", zap.String("name", name), zap.Error(err))
		return
	}
	if uri != "" {
		s.logger.Debug("artifact mirrored", zap.String("name", name), zap.String("uri", uri))
	}
}

// Open returns a reader for a stored artifact.
func (s *Store) Open(path string) (io.ReadCloser, error) {
	full, err := ResolveUnder(s.baseDir, path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full) // #nosec G304 -- path is confined to baseDir by ResolveUnder.
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", capture.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	info, err := f.Stat()
	if err == nil && info.IsDir() {
		_ = f.Close()
		return nil, capture.InvalidInput("path %q is a directory", path)
	}
	return f, nil
}

// Remove deletes a stored artifact. Missing files are ignored.
func (s *Store) Remove(path string) error {
	full, err := ResolveUnder(s.baseDir, path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}
