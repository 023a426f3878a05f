package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
)

// Inputs are the auth sources attached to one request.
type Inputs struct {
	// Cookies is an inline JSON array of storage-state cookies.
	Cookies string
	// LocalStorage is an inline JSON object of key/value pairs applied to the
	// origin of every target URL.
	LocalStorage string
	// UseSaved loads the on-disk state first.
	UseSaved bool
	// TargetURLs are the request URLs; their origins receive inline localStorage.
	TargetURLs []string
}

// StateLoader reads a previously saved storage state. A missing document
// yields an empty state and no error.
type StateLoader interface {
	Load(ctx context.Context) (capture.StorageState, error)
}

// Materializer merges saved and inline auth into one StorageState.
type Materializer struct {
	saved  StateLoader
	clock  capture.Clock
	logger *zap.Logger
}

// NewMaterializer wires the saved-state loader (which may be nil) and clock.
func NewMaterializer(saved StateLoader, clock capture.Clock, logger *zap.Logger) *Materializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Materializer{saved: saved, clock: clock, logger: logger}
}

// Materialize builds the state for a request. Inline entries override saved
// ones with the same key; expired cookies are dropped and session cookies kept.
// Unparseable inline JSON fails with capture.ErrStorageStateInvalid.
func (m *Materializer) Materialize(ctx context.Context, in Inputs) (capture.StorageState, error) {
	var base capture.StorageState
	if in.UseSaved && m.saved != nil {
		saved, err := m.saved.Load(ctx)
		if err != nil {
			return capture.StorageState{}, err
		}
		base = saved
	}

	inlineCookies, err := parseInlineCookies(in.Cookies)
	if err != nil {
		return capture.StorageState{}, err
	}
	inlineStorage, err := parseInlineLocalStorage(in.LocalStorage)
	if err != nil {
		return capture.StorageState{}, err
	}

	cookies := mergeCookies(base.Cookies, inlineCookies)
	cookies = m.dropExpired(cookies)
	origins := cloneOrigins(base.Origins)
	if len(inlineStorage) > 0 {
		for _, origin := range targetOrigins(in.TargetURLs) {
			origins = mergeOrigin(origins, capture.Origin{Origin: origin, LocalStorage: inlineStorage})
		}
	}

	state := capture.StorageState{Cookies: cookies, Origins: origins}
	if !state.Empty() {
		m.logger.Debug("auth state materialized",
			zap.Int("cookies", len(state.Cookies)),
			zap.Int("local_storage", state.LocalStorageCount()),
		)
	}
	return state, nil
}

func (m *Materializer) dropExpired(cookies []capture.Cookie) []capture.Cookie {
	if len(cookies) == 0 {
		return cookies
	}
	now := float64(m.clock.Now().Unix())
	kept := cookies[:0]
	for _, c := range cookies {
		if !c.IsSession() && *c.Expires < now {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// wireCookie keeps Value as a pointer so a missing value can be told apart
// from an empty one.
type wireCookie struct {
	Name     string   `json:"name"`
	Value    *string  `json:"value"`
	Domain   string   `json:"domain"`
	Path     string   `json:"path"`
	Expires  *float64 `json:"expires"`
	HTTPOnly bool     `json:"httpOnly"`
	Secure   bool     `json:"secure"`
	SameSite string   `json:"sameSite"`
}

func (w wireCookie) toCookie() (capture.Cookie, error) {
	if strings.TrimSpace(w.Name) == "" {
		return capture.Cookie{}, fmt.Errorf("cookie name is required")
	}
	if w.Value == nil {
		return capture.Cookie{}, fmt.Errorf("cookie %q has no value", w.Name)
	}
	return capture.Cookie{
		Name:     w.Name,
		Value:    *w.Value,
		Domain:   w.Domain,
		Path:     w.Path,
		Expires:  w.Expires,
		HTTPOnly: w.HTTPOnly,
		Secure:   w.Secure,
		SameSite: w.SameSite,
	}, nil
}

func decodeCookies(raw []wireCookie) ([]capture.Cookie, error) {
	out := make([]capture.Cookie, 0, len(raw))
	for _, w := range raw {
		c, err := w.toCookie()
		if err != nil {
			return nil, invalidState(err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseInlineCookies(blob string) ([]capture.Cookie, error) {
	if strings.TrimSpace(blob) == "" {
		return nil, nil
	}
	var raw []wireCookie
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return nil, invalidState(fmt.Errorf("parse inline cookies: %w", err))
	}
	return decodeCookies(raw)
}

func parseInlineLocalStorage(blob string) ([]capture.StorageItem, error) {
	if strings.TrimSpace(blob) == "" {
		return nil, nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return nil, invalidState(fmt.Errorf("parse inline local storage: %w", err))
	}
	items := make([]capture.StorageItem, 0, len(raw))
	for key, value := range raw {
		items = append(items, capture.StorageItem{Name: key, Value: stringify(value)})
	}
	sortItems(items)
	return items, nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

func cookieKey(c capture.Cookie) string {
	return c.Name + "\x00" + strings.TrimPrefix(strings.ToLower(c.Domain), ".") + "\x00" + c.Path
}

func mergeCookies(base, inline []capture.Cookie) []capture.Cookie {
	if len(inline) == 0 {
		return append([]capture.Cookie(nil), base...)
	}
	override := make(map[string]struct{}, len(inline))
	for _, c := range inline {
		override[cookieKey(c)] = struct{}{}
	}
	out := make([]capture.Cookie, 0, len(base)+len(inline))
	for _, c := range base {
		if _, ok := override[cookieKey(c)]; ok {
			continue
		}
		out = append(out, c)
	}
	return append(out, inline...)
}

func cloneOrigins(in []capture.Origin) []capture.Origin {
	out := make([]capture.Origin, 0, len(in))
	for _, o := range in {
		out = append(out, capture.Origin{
			Origin:       o.Origin,
			LocalStorage: append([]capture.StorageItem(nil), o.LocalStorage...),
		})
	}
	return out
}

func mergeOrigin(origins []capture.Origin, add capture.Origin) []capture.Origin {
	for i := range origins {
		if !strings.EqualFold(origins[i].Origin, add.Origin) {
			continue
		}
		byName := make(map[string]int, len(origins[i].LocalStorage))
		for j, item := range origins[i].LocalStorage {
			byName[item.Name] = j
		}
		for _, item := range add.LocalStorage {
			if j, ok := byName[item.Name]; ok {
				origins[i].LocalStorage[j] = item
				continue
			}
			origins[i].LocalStorage = append(origins[i].LocalStorage, item)
		}
		return origins
	}
	return append(origins, capture.Origin{
		Origin:       add.Origin,
		LocalStorage: append([]capture.StorageItem(nil), add.LocalStorage...),
	})
}

func targetOrigins(urls []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		origin := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
		if _, ok := seen[origin]; ok {
			continue
		}
		seen[origin] = struct{}{}
		out = append(out, origin)
	}
	return out
}

func invalidState(err error) error {
	return fmt.Errorf("%w: %w: %v", capture.ErrStorageStateInvalid, capture.ErrInvalidInput, err)
}
