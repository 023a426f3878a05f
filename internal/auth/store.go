package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
)

const (
	previewLimit      = 10
	previewValueLimit = 100
)

// Names containing any of these are surfaced in status previews.
var (
	cookieKeywords = []string{"token", "session", "auth", "sid", "jsession"}
	itemKeywords   = []string{"token", "auth", "user", "session"}
)

// SaveSummary is returned after a storage state is persisted.
type SaveSummary struct {
	CookieCount       int `json:"cookie_count"`
	LocalStorageCount int `json:"localStorage_count"`
}

// CookiePreview is a redacted view of a saved cookie.
type CookiePreview struct {
	Name    string  `json:"name"`
	Domain  string  `json:"domain"`
	Expires float64 `json:"expires"`
}

// ItemPreview is a truncated view of a saved localStorage entry.
type ItemPreview struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Status describes the saved state file.
type Status struct {
	Exists            bool            `json:"exists"`
	CookieCount       int             `json:"cookie_count,omitempty"`
	LocalStorageCount int             `json:"localStorage_count,omitempty"`
	Cookies           []CookiePreview `json:"cookies,omitempty"`
	LocalStorageItems []ItemPreview   `json:"localStorage_items,omitempty"`
	File              string          `json:"file,omitempty"`
	FileSize          int64           `json:"file_size,omitempty"`
	Error             string          `json:"error,omitempty"`
}

// FileStore persists one storage-state document on disk.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore returns a store rooted at path.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("auth state path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}, nil
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

type wireState struct {
	Cookies []wireCookie     `json:"cookies"`
	Origins []capture.Origin `json:"origins"`
}

func parseState(data []byte) (capture.StorageState, error) {
	var ws wireState
	if err := json.Unmarshal(data, &ws); err != nil {
		return capture.StorageState{}, invalidState(fmt.Errorf("parse storage state: %w", err))
	}
	cookies, err := decodeCookies(ws.Cookies)
	if err != nil {
		return capture.StorageState{}, err
	}
	return capture.StorageState{Cookies: cookies, Origins: ws.Origins}, nil
}

// Save validates raw as a storage-state document and atomically replaces
// the file with it.
func (s *FileStore) Save(ctx context.Context, raw []byte) (SaveSummary, error) {
	if err := ctx.Err(); err != nil {
		return SaveSummary{}, err
	}
	state, err := parseState(raw)
	if err != nil {
		return SaveSummary{}, err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return SaveSummary{}, fmt.Errorf("create auth dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".auth-state-*.json")
	if err != nil {
		return SaveSummary{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return SaveSummary{}, fmt.Errorf("write auth state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return SaveSummary{}, fmt.Errorf("close auth state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return SaveSummary{}, fmt.Errorf("replace auth state: %w", err)
	}
	summary := SaveSummary{CookieCount: len(state.Cookies), LocalStorageCount: state.LocalStorageCount()}
	s.logger.Info("auth state saved",
		zap.String("file", s.path),
		zap.Int("cookies", summary.CookieCount),
		zap.Int("local_storage", summary.LocalStorageCount),
	)
	return summary, nil
}

// Load reads the saved state. A missing file yields an empty state.
func (s *FileStore) Load(ctx context.Context) (capture.StorageState, error) {
	if err := ctx.Err(); err != nil {
		return capture.StorageState{}, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return capture.StorageState{}, nil
	}
	if err != nil {
		return capture.StorageState{}, fmt.Errorf("read auth state: %w", err)
	}
	return parseState(data)
}

// Status summarizes the saved file with redacted previews.
func (s *FileStore) Status(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Status{Exists: false}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("stat auth state: %w", err)
	}
	state, err := s.Load(ctx)
	if err != nil {
		if errors.Is(err, capture.ErrStorageStateInvalid) {
			return Status{Exists: false, Error: err.Error()}, nil
		}
		return Status{}, err
	}
	return Status{
		Exists:            true,
		CookieCount:       len(state.Cookies),
		LocalStorageCount: state.LocalStorageCount(),
		Cookies:           cookiePreviews(state.Cookies),
		LocalStorageItems: itemPreviews(state.Origins),
		File:              s.path,
		FileSize:          info.Size(),
	}, nil
}

// Clear removes the saved file. It reports whether a file was deleted.
func (s *FileStore) Clear(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("remove auth state: %w", err)
	}
	s.logger.Info("auth state cleared", zap.String("file", s.path))
	return true, nil
}

func matchesAny(name string, keywords []string) bool {
	lower := strings.ToLower(name)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func cookiePreviews(cookies []capture.Cookie) []CookiePreview {
	var out []CookiePreview
	for _, c := range cookies {
		if !matchesAny(c.Name, cookieKeywords) {
			continue
		}
		expires := -1.0
		if c.Expires != nil {
			expires = *c.Expires
		}
		out = append(out, CookiePreview{Name: c.Name, Domain: c.Domain, Expires: expires})
		if len(out) == previewLimit {
			break
		}
	}
	return out
}

func itemPreviews(origins []capture.Origin) []ItemPreview {
	var out []ItemPreview
	for _, o := range origins {
		for _, item := range o.LocalStorage {
			if !matchesAny(item.Name, itemKeywords) {
				continue
			}
			value := item.Value
			if len(value) > previewValueLimit {
				value = value[:previewValueLimit] + "..."
			}
			out = append(out, ItemPreview{Name: item.Name, Value: value})
			if len(out) == previewLimit {
				return out
			}
		}
	}
	return out
}

func sortItems(items []capture.StorageItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
}
