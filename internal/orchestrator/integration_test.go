package orchestrator_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/screenshot-orchestrator/internal/auth"
	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
	"github.com/JakeFAU/screenshot-orchestrator/internal/naming"
	"github.com/JakeFAU/screenshot-orchestrator/internal/orchestrator"
	"github.com/JakeFAU/screenshot-orchestrator/internal/phash"
	"github.com/JakeFAU/screenshot-orchestrator/internal/planner"
	"github.com/JakeFAU/screenshot-orchestrator/internal/quality"
	"github.com/JakeFAU/screenshot-orchestrator/internal/registry"
	"github.com/JakeFAU/screenshot-orchestrator/internal/storage/local"
	"github.com/JakeFAU/screenshot-orchestrator/internal/validate"
	"github.com/JakeFAU/screenshot-orchestrator/internal/worker"
)

// pngDriver renders a deterministic noise image per scroll offset, so frames
// at the same offset hash identically and distinct offsets do not.
type pngDriver struct {
	viewport, height int
}

func (d pngDriver) NewSession(context.Context, capture.SessionOptions) (capture.Session, error) {
	return &pngSession{d: d}, nil
}

type pngSession struct {
	d pngDriver
	y int
}

func (s *pngSession) Goto(ctx context.Context, _ string, _ capture.WaitUntil) error { return ctx.Err() }
func (s *pngSession) ViewportHeight(context.Context) (int, error) { return s.d.viewport, nil }
func (s *pngSession) DocumentHeight(context.Context) (int, error) { return s.d.height, nil }
func (s *pngSession) NetworkEvents() []capture.NetworkEvent { return nil }
func (s *pngSession) Close() error { return nil }

func (s *pngSession) ScrollTo(_ context.Context, y int) error {
	s.y = min(y, max(0, s.d.height-s.d.viewport))
	return nil
}

func (s *pngSession) Screenshot(context.Context, bool) ([]byte, error) {
	rng := rand.New(rand.NewPCG(uint64(s.y)+1, 7))
	img := image.NewRGBA(image.Rect(0, 0, 160, 160))
	for y := range 160 {
		for x := range 160 {
			img.Set(x, y, color.RGBA{R: uint8(rng.IntN(256)), G: uint8(rng.IntN(256)), B: uint8(rng.IntN(256)), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newIntegration(t *testing.T, d capture.Driver) (*orchestrator.Orchestrator, string) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clock := fixedClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store, err := local.New(local.Config{BaseDir: t.TempDir(), Logger: logger})
	require.NoError(t, err)
	hasher, err := phash.New(phash.Perception, 0)
	require.NoError(t, err)
	w, err := worker.New(worker.Deps{
		Driver:  d,
		Store:   store,
		Quality: quality.New(store, quality.Config{Logger: logger}),
		Hasher:  hasher,
		Namer:   naming.New(clock),
		Clock:   clock,
	}, worker.Config{}, logger)
	require.NoError(t, err)
	orch, err := orchestrator.New(orchestrator.Deps{
		Validator: validate.New(false),
		Planner:   planner.New(0, 0),
		Auth:      auth.NewMaterializer(nil, clock, logger),
		Registry:  registry.New(registry.Config{Clock: clock}),
		Runner:    w,
		IDs:       &seqIDs{},
		Clock:     clock,
	}, logger)
	require.NoError(t, err)
	return orch, store.Root()
}

func TestEndToEndViewportCapture(t *testing.T) {
	t.Parallel()
	orch, root := newIntegration(t, pngDriver{viewport: 1080, height: 1080})

	env, err := orch.Execute(context.Background(), request("https://example.com/"))

	require.NoError(t, err)
	require.Len(t, env.Results, 1)
	res := env.Results[0]
	require.Equal(t, capture.StatusSuccess, res.Status, res.Error)
	assert.Nil(t, res.SegmentCount)
	rel, err := filepath.Rel(root, res.PrimaryPath)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(rel, ".."))
	_, err = local.ResolveUnder(root, res.PrimaryPath)
	require.NoError(t, err)
}

func TestEndToEndSegmentedDuplicateTail(t *testing.T) {
	t.Parallel()
	orch, _ := newIntegration(t, pngDriver{viewport: 1000, height: 1200})
	req := request("https://example.com/short")
	req.Mode = capture.ModeSegmented
	req.Segment.ScrollDelayMs = 0
	req.Segment.SmartLazyLoad = false
	req.Segment.OverlapPercent = 50

	env, err := orch.Execute(context.Background(), req)

	require.NoError(t, err)
	res := env.Results[0]
	require.Equal(t, capture.StatusSuccess, res.Status, res.Error)
	require.NotNil(t, res.SegmentCount)
	assert.Equal(t, 2, *res.SegmentCount)
	assert.Equal(t, res.AllPaths[0], res.PrimaryPath)
	assert.Len(t, res.AllPaths, 2)
}
