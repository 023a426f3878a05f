package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/screenshot-orchestrator/internal/auth"
	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
	"github.com/JakeFAU/screenshot-orchestrator/internal/config"
)

type fakeApp struct {
	requests   []capture.Request
	captureErr error
	served     bool
	closed     bool
	removed    bool
	status     auth.Status
	loadedCfg  *config.Config
}

func (f *fakeApp) Serve(context.Context) error {
	f.served = true
	return nil
}

func (f *fakeApp) Capture(_ context.Context, req capture.Request) (capture.Envelope, error) {
	f.requests = append(f.requests, req)
	if f.captureErr != nil {
		return capture.Envelope{}, f.captureErr
	}
	results := make([]capture.Result, 0, len(req.URLs))
	for _, u := range req.URLs {
		results = append(results, capture.Result{URL: u, Status: capture.StatusSuccess})
	}
	return capture.Envelope{Results: results, RequestID: "req-cli"}, nil
}

func (f *fakeApp) CancelAll() int { return 0 }

func (f *fakeApp) AuthStatus(context.Context) (auth.Status, error) { return f.status, nil }

func (f *fakeApp) ClearAuth(context.Context) (bool, error) { return f.removed, nil }

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

// runRoot executes the CLI with a fake app injected through the factory.
// Tests that use it cannot run in parallel.
func runRoot(t *testing.T, fake *fakeApp, args ...string) (string, error) {
	t.Helper()
	orig := newApp
	newApp = func(_ context.Context, cfg *config.Config) (App, error) {
		fake.loadedCfg = cfg
		return fake, nil
	}
	t.Cleanup(func() {
		newApp = orig
		cfgFile = ""
	})

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCaptureCmd_MapsFlagsToRequest(t *testing.T) {
	fake := &fakeApp{}
	out, err := runRoot(t, fake, "capture",
		"--mode", "segmented",
		"--width", "1280",
		"--stealth",
		"--base-url", "https://example.com/docs",
		"--overlap", "30",
		"--skip-duplicates=false",
		"--batch-timeout", "60",
		"--no-saved-auth",
		"https://example.com/docs/a", "https://example.com/docs/b",
	)
	require.NoError(t, err)
	require.Len(t, fake.requests, 1)

	req := fake.requests[0]
	assert.Equal(t, []string{"https://example.com/docs/a", "https://example.com/docs/b"}, req.URLs)
	assert.Equal(t, capture.ModeSegmented, req.Mode)
	assert.Equal(t, capture.EngineDefault, req.Engine)
	assert.Equal(t, capture.Viewport{Width: 1280, Height: capture.DefaultViewportHeight}, req.Viewport)
	assert.True(t, req.Stealth)
	assert.False(t, req.UseSavedAuth)
	assert.Equal(t, "https://example.com/docs", req.BaseURL)
	assert.Equal(t, 30, req.Segment.OverlapPercent)
	assert.False(t, req.Segment.SkipDuplicates)
	assert.True(t, req.Segment.SmartLazyLoad)
	require.NotNil(t, req.BatchTimeoutSeconds)
	assert.Equal(t, 60, *req.BatchTimeoutSeconds)

	var env capture.Envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.Equal(t, "req-cli", env.RequestID)
	assert.Len(t, env.Results, 2)
	assert.True(t, fake.closed)
}

func TestCaptureCmd_DefaultsLeaveTimeoutUnset(t *testing.T) {
	fake := &fakeApp{}
	_, err := runRoot(t, fake, "capture", "https://example.com")
	require.NoError(t, err)
	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Nil(t, req.BatchTimeoutSeconds)
	assert.Equal(t, capture.DefaultRequest().Segment, req.Segment)
	assert.True(t, req.UseSavedAuth)
}

func TestCaptureCmd_RequiresURL(t *testing.T) {
	_, err := runRoot(t, &fakeApp{}, "capture")
	require.Error(t, err)
}

func TestCaptureCmd_PropagatesError(t *testing.T) {
	fake := &fakeApp{captureErr: capture.InvalidInput("url list cannot be empty")}
	_, err := runRoot(t, fake, "capture", "https://example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, capture.ErrInvalidInput))
}

func TestServeCmd(t *testing.T) {
	fake := &fakeApp{}
	_, err := runRoot(t, fake, "serve")
	require.NoError(t, err)
	assert.True(t, fake.served)
}

func TestAuthCmds(t *testing.T) {
	fake := &fakeApp{status: auth.Status{Exists: true, CookieCount: 3}, removed: true}

	out, err := runRoot(t, fake, "auth", "status")
	require.NoError(t, err)
	var st auth.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.Exists)
	assert.Equal(t, 3, st.CookieCount)

	out, err = runRoot(t, fake, "auth", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "auth state cleared")
}

func TestRootCmd_LoadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9123\n"), 0o600))

	fake := &fakeApp{}
	_, err := runRoot(t, fake, "--config", path, "auth", "status")
	require.NoError(t, err)
	require.NotNil(t, fake.loadedCfg)
	assert.Equal(t, 9123, fake.loadedCfg.Server.Port)
}

func TestRootCmd_BadConfigFile(t *testing.T) {
	_, err := runRoot(t, &fakeApp{}, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "auth", "status")
	require.ErrorContains(t, err, "load config")
}
