package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/screenshot-orchestrator/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Storage.ScreenshotsDir = filepath.Join(dir, "screenshots")
	cfg.Storage.AuthStateFile = filepath.Join(dir, "auth_state.json")
	return &cfg
}

func TestBuildWiresLocalServices(t *testing.T) {
	cfg := testConfig(t)
	app, err := Build(context.Background(), cfg,
		WithLogger(zaptest.NewLogger(t)),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	require.NotNil(t, app.Orchestrator())
	require.Equal(t, cfg.Storage.AuthStateFile, app.AuthStore().Path())

	serve := func(method, target, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, bytes.NewBufferString(body)))
		return rec
	}

	require.Equal(t, http.StatusOK, serve(http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, serve(http.MethodGet, "/readyz", "").Code)
	require.Equal(t, http.StatusOK, serve(http.MethodGet, "/metrics", "").Code)

	rec := serve(http.MethodGet, "/api/auth/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"exists":false`)

	// Validation fails before any browser is launched.
	rec = serve(http.MethodPost, "/api/screenshots/capture", `{"urls":["javascript:alert(1)"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_input")

	require.NoError(t, app.Close(context.Background()))
}

func TestBuildFailsOnUnknownHashAlgorithm(t *testing.T) {
	cfg := testConfig(t)
	cfg.Capture.DuplicateHashAlgorithm = "sha1"

	_, err := Build(context.Background(), cfg,
		WithLogger(zaptest.NewLogger(t)),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.ErrorContains(t, err, "hasher init failed")
}

func TestBuildRequiresConfig(t *testing.T) {
	_, err := Build(context.Background(), nil)
	require.Error(t, err)
}
