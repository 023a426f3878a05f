package auth

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var now = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "auth", "state.json"), nil)
	require.NoError(t, err)
	return store
}

const savedDoc = `{
  "cookies": [
    {"name": "session_id", "value": "disk", "domain": ".example.com", "path": "/", "expires": -1},
    {"name": "theme", "value": "dark", "domain": "example.com", "path": "/"}
  ],
  "origins": [
    {"origin": "https://example.com", "localStorage": [{"name": "auth_token", "value": "disk-token"}]}
  ]
}`

func TestMaterializeInlineOverridesSaved(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	_, err := store.Save(context.Background(), []byte(savedDoc))
	require.NoError(t, err)

	m := NewMaterializer(store, fixedClock{now}, nil)
	state, err := m.Materialize(context.Background(), Inputs{
		Cookies:      `[{"name":"session_id","value":"inline","domain":"example.com","path":"/"}]`,
		LocalStorage: `{"auth_token":"inline-token","count":3}`,
		UseSaved:     true,
		TargetURLs:   []string{"https://example.com/a", "https://example.com/b", "https://other.org/"},
	})
	require.NoError(t, err)

	require.Len(t, state.Cookies, 2)
	byName := map[string]string{}
	for _, c := range state.Cookies {
		byName[c.Name] = c.Value
	}
	require.Equal(t, "inline", byName["session_id"])
	require.Equal(t, "dark", byName["theme"])

	require.Len(t, state.Origins, 2)
	require.Equal(t, "https://example.com", state.Origins[0].Origin)
	require.ElementsMatch(t, []capture.StorageItem{
		{Name: "auth_token", Value: "inline-token"},
		{Name: "count", Value: "3"},
	}, state.Origins[0].LocalStorage)
	require.Equal(t, "https://other.org", state.Origins[1].Origin)
}

func TestMaterializeSkipsSavedWhenDisabled(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	_, err := store.Save(context.Background(), []byte(savedDoc))
	require.NoError(t, err)

	state, err := NewMaterializer(store, fixedClock{now}, nil).Materialize(context.Background(), Inputs{UseSaved: false})
	require.NoError(t, err)
	require.True(t, state.Empty())
}

func TestMaterializeDropsExpiredCookies(t *testing.T) {
	t.Parallel()

	past := now.Add(-time.Hour).Unix()
	future := now.Add(time.Hour).Unix()
	blob := `[
	  {"name":"old","value":"x","domain":"a.com","path":"/","expires":` + strconv.FormatInt(past, 10) + `},
	  {"name":"fresh","value":"x","domain":"a.com","path":"/","expires":` + strconv.FormatInt(future, 10) + `},
	  {"name":"session","value":"x","domain":"a.com","path":"/","expires":-1},
	  {"name":"noexp","value":"x","domain":"a.com","path":"/"}
	]`
	state, err := NewMaterializer(nil, fixedClock{now}, nil).Materialize(context.Background(), Inputs{Cookies: blob})
	require.NoError(t, err)

	var names []string
	for _, c := range state.Cookies {
		names = append(names, c.Name)
	}
	require.Equal(t, []string{"fresh", "session", "noexp"}, names)
}

func TestMaterializeRejectsInvalidInline(t *testing.T) {
	t.Parallel()

	m := NewMaterializer(nil, fixedClock{now}, nil)
	cases := map[string]Inputs{
		"cookies not json":         {Cookies: "not-json"},
		"cookies missing value":    {Cookies: `[{"name":"a","domain":"x.com"}]`},
		"cookies missing name":     {Cookies: `[{"value":"a"}]`},
		"local storage not object": {LocalStorage: `["a"]`},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := m.Materialize(context.Background(), in)
			require.ErrorIs(t, err, capture.ErrStorageStateInvalid)
			require.ErrorIs(t, err, capture.ErrInvalidInput)
		})
	}
}

func TestMaterializeSavedMissingFile(t *testing.T) {
	t.Parallel()

	state, err := NewMaterializer(newStore(t), fixedClock{now}, nil).Materialize(context.Background(), Inputs{UseSaved: true})
	require.NoError(t, err)
	require.True(t, state.Empty())
}

func TestFileStoreStatusAndClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)

	st, err := store.Status(ctx)
	require.NoError(t, err)
	require.False(t, st.Exists)

	long := strings.Repeat("v", 150)
	doc := `{"cookies":[
	  {"name":"JSESSIONID","value":"1","domain":"a.com","path":"/"},
	  {"name":"theme","value":"2","domain":"a.com","path":"/","expires":99}
	],"origins":[{"origin":"https://a.com","localStorage":[
	  {"name":"user_jwt","value":"` + long + `"},
	  {"name":"color","value":"red"}
	]}]}`
	summary, err := store.Save(ctx, []byte(doc))
	require.NoError(t, err)
	require.Equal(t, SaveSummary{CookieCount: 2, LocalStorageCount: 2}, summary)

	st, err = store.Status(ctx)
	require.NoError(t, err)
	require.True(t, st.Exists)
	require.Equal(t, 2, st.CookieCount)
	require.Equal(t, 2, st.LocalStorageCount)
	require.Equal(t, []CookiePreview{{Name: "JSESSIONID", Domain: "a.com", Expires: -1}}, st.Cookies)
	require.Len(t, st.LocalStorageItems, 1)
	require.Equal(t, strings.Repeat("v", 100)+"...", st.LocalStorageItems[0].Value)
	require.Equal(t, store.Path(), st.File)
	require.Equal(t, int64(len(doc)), st.FileSize)

	removed, err := store.Clear(ctx)
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = store.Clear(ctx)
	require.NoError(t, err)
	require.False(t, removed)
}

func TestFileStoreSaveRejectsInvalid(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	_, err := store.Save(context.Background(), []byte("{"))
	require.ErrorIs(t, err, capture.ErrStorageStateInvalid)
	_, statErr := os.Stat(store.Path())
	require.True(t, os.IsNotExist(statErr))
}

func TestFileStoreStatusReportsCorruptFile(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o755))
	require.NoError(t, os.WriteFile(store.Path(), []byte("garbage"), 0o600))

	st, err := store.Status(context.Background())
	require.NoError(t, err)
	require.False(t, st.Exists)
	require.NotEmpty(t, st.Error)
}

func TestLocalStorageScript(t *testing.T) {
	t.Parallel()

	state := capture.StorageState{Origins: []capture.Origin{
		{Origin: "https://example.com", LocalStorage: []capture.StorageItem{{Name: "token", Value: `a"b`}}},
		{Origin: "https://other.org", LocalStorage: []capture.StorageItem{{Name: "skip", Value: "x"}}},
	}}

	script, err := LocalStorageScript(state, "https://app.example.com/dashboard")
	require.NoError(t, err)
	require.Contains(t, script, `"token":"a\"b"`)
	require.NotContains(t, script, "skip")
	require.Contains(t, script, "localStorage.setItem")

	// Writes are gated on the evaluating document's host and happen once per
	// origin, so iframes and redirects to other sites never see the values.
	require.Contains(t, script, `const hosts = ["example.com"];`)
	require.Contains(t, script, "window.location.hostname")
	guard := strings.Index(script, "hosts.some(")
	write := strings.Index(script, "localStorage.setItem")
	require.Positive(t, guard)
	require.Less(t, guard, write)
	require.Contains(t, script, `sessionStorage.getItem("`+seededMarker+`")`)

	script, err = LocalStorageScript(state, "https://unrelated.net/")
	require.NoError(t, err)
	require.Empty(t, script)
}
