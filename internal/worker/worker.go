// Package worker runs one URL capture: it acquires a browser session, loads
// the page, takes the screenshot(s), scores the result and maps every exit
// path to a capture.Result.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/screenshot-orchestrator/internal/auth"
	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
	"github.com/JakeFAU/screenshot-orchestrator/internal/metrics"
)

// Token is the cooperative cancellation cell observed at each check point.
type Token interface {
	Cancelled() bool
}

// Reporter receives the progress announcement for a job.
type Reporter interface {
	Progress(url string, index, total int)
}

// Namer picks artifact file names.
type Namer interface {
	Name(rawURL, baseURL, wordsToRemove string, ordinal int) string
}

// LazyLoad tunes the document-height polling done after each segment scroll.
type LazyLoad struct {
	MaxChecks    int
	Interval     time.Duration
	StableChecks int
}

// Config controls Worker behavior.
type Config struct {
	// UserAgent overrides the browser default when set.
	UserAgent string
	// StealthUserAgents is the pool a stealth session picks from.
	StealthUserAgents []string
	LazyLoad          LazyLoad
}

// Deps are the collaborators a Worker needs. Limiter and Slots are optional.
type Deps struct {
	Driver  capture.Driver
	Store   capture.ArtifactStore
	Quality capture.QualityChecker
	Hasher  capture.Hasher
	Namer   Namer
	Clock   capture.Clock
	Limiter capture.Limiter
	// Slots caps concurrent sessions across every request in the process.
	Slots *semaphore.Weighted
}

// Worker executes capture jobs. It is stateless between jobs and safe for
// concurrent use.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Worker, error) {
	switch {
	case deps.Driver == nil:
		return nil, errors.New("worker: driver is required")
	case deps.Store == nil:
		return nil, errors.New("worker: artifact store is required")
	case deps.Quality == nil:
		return nil, errors.New("worker: quality checker is required")
	case deps.Hasher == nil:
		return nil, errors.New("worker: hasher is required")
	case deps.Namer == nil:
		return nil, errors.New("worker: namer is required")
	case deps.Clock == nil:
		return nil, errors.New("worker: clock is required")
	}
	if cfg.LazyLoad.MaxChecks <= 0 {
		cfg.LazyLoad.MaxChecks = 6
	}
	if cfg.LazyLoad.Interval <= 0 {
		cfg.LazyLoad.Interval = 500 * time.Millisecond
	}
	if cfg.LazyLoad.StableChecks <= 0 {
		cfg.LazyLoad.StableChecks = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{deps: deps, cfg: cfg, logger: logger.Named("worker")}, nil
}

// task is the per-run state threaded through the capture steps.
type task struct {
	job     capture.Job
	tok     Token
	session capture.Session
	logger  *zap.Logger
	saved   []string
}

// Run captures job.URL. The per-job deadline bounds everything from session
// acquisition through the quality check. Run never panics and always returns
// a result for the job's URL.
func (w *Worker) Run(ctx context.Context, job capture.Job, tok Token, rep Reporter) (res capture.Result) {
	start := time.Now()
	t := &task{
		job:    job,
		tok:    tok,
		logger: w.logger.With(zap.String("request_id", job.RequestID), zap.String("url", job.URL), zap.Int("index", job.Index)),
	}
	defer func() {
		metrics.ObserveCapture(string(job.Mode), string(res.Status), string(res.ErrorKind), time.Since(start))
	}()
	// Runs before the metrics observation so the recovered result is counted.
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("capture panicked", zap.Any("panic", r), zap.Stack("stack"))
			w.abandon(t)
			res = w.failed(t, capture.KindDriver, fmt.Sprintf("capture panicked: %v", r))
		}
	}()

	if tok.Cancelled() {
		return w.cancelled(t)
	}
	if rep != nil {
		rep.Progress(job.URL, job.Index, job.Total)
	}

	runCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	return w.capture(runCtx, t)
}

func (w *Worker) capture(ctx context.Context, t *task) capture.Result {
	if w.deps.Slots != nil {
		if err := w.deps.Slots.Acquire(ctx, 1); err != nil {
			return w.fromError(ctx, t, fmt.Errorf("wait for capture slot: %w", err))
		}
		defer w.deps.Slots.Release(1)
	}
	if w.deps.Limiter != nil {
		if err := w.deps.Limiter.Wait(ctx, t.job.URL); err != nil {
			return w.fromError(ctx, t, err)
		}
	}

	session, err := w.deps.Driver.NewSession(ctx, w.sessionOptions(t))
	if err != nil {
		return w.fromError(ctx, t, fmt.Errorf("new session: %w", err))
	}
	metrics.IncActiveCaptures()
	defer func() {
		metrics.DecActiveCaptures()
		if cerr := session.Close(); cerr != nil {
			t.logger.Warn("session close failed", zap.Error(cerr))
		}
	}()
	t.session = session

	wait := capture.WaitLoad
	if t.job.Mode == capture.ModeSegmented {
		wait = capture.WaitDOMContentLoaded
	}
	if err := session.Goto(ctx, t.job.URL, wait); err != nil {
		return w.fromError(ctx, t, fmt.Errorf("navigate: %w", err))
	}
	if t.tok.Cancelled() {
		return w.cancelled(t)
	}

	var segments *int
	switch t.job.Mode {
	case capture.ModeSegmented:
		if err := w.segmented(ctx, t); err != nil {
			return w.fromError(ctx, t, err)
		}
		n := len(t.saved)
		segments = &n
	case capture.ModeFullPage:
		err = w.single(ctx, t, true)
	default:
		err = w.single(ctx, t, false)
	}
	if err != nil {
		return w.fromError(ctx, t, err)
	}

	if t.tok.Cancelled() {
		return w.cancelled(t)
	}

	verdict, err := w.deps.Quality.Check(ctx, t.saved[0])
	if err != nil {
		if k := classify(ctx, t.tok, err); k != capture.KindDriver {
			return w.fromError(ctx, t, err)
		}
		return w.failed(t, capture.KindQuality, fmt.Sprintf("quality check: %v", err))
	}

	res := capture.Result{
		URL:           t.job.URL,
		PrimaryPath:   t.saved[0],
		AllPaths:      append([]string(nil), t.saved...),
		SegmentCount:  segments,
		QualityScore:  &verdict.Score,
		QualityIssues: verdict.Issues,
		Timestamp:     w.deps.Clock.Now(),
	}
	if t.job.TrackNetwork {
		res.NetworkEvents = session.NetworkEvents()
	}
	if verdict.Passed {
		res.Status = capture.StatusSuccess
		t.logger.Info("capture succeeded", zap.Int("artifacts", len(t.saved)), zap.Float64("score", verdict.Score))
		return res
	}
	res.Status = capture.StatusFailed
	res.ErrorKind = capture.KindQuality
	res.Error = fmt.Sprintf("quality score %.1f below threshold", verdict.Score)
	t.logger.Warn("capture failed quality check", zap.Float64("score", verdict.Score), zap.Strings("issues", verdict.Issues))
	return res
}

func (w *Worker) sessionOptions(t *task) capture.SessionOptions {
	opts := capture.SessionOptions{
		Viewport:     t.job.Viewport,
		UserAgent:    w.cfg.UserAgent,
		State:        t.job.Auth,
		Engine:       t.job.Engine,
		Stealth:      t.job.Stealth,
		RealBrowser:  t.job.Real,
		TrackNetwork: t.job.TrackNetwork,
	}
	if t.job.Stealth && len(w.cfg.StealthUserAgents) > 0 {
		opts.UserAgent = w.cfg.StealthUserAgents[rand.IntN(len(w.cfg.StealthUserAgents))]
	}
	script, err := auth.LocalStorageScript(t.job.Auth, t.job.URL)
	if err != nil {
		t.logger.Warn("local storage script skipped", zap.Error(err))
	} else if script != "" {
		opts.InitScripts = append(opts.InitScripts, script)
	}
	return opts
}

func (w *Worker) single(ctx context.Context, t *task, fullPage bool) error {
	png, err := t.session.Screenshot(ctx, fullPage)
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	return w.save(ctx, t, png, 0)
}

func (w *Worker) save(ctx context.Context, t *task, png []byte, ordinal int) error {
	name := w.deps.Namer.Name(t.job.URL, t.job.BaseURL, t.job.WordsToRemove, ordinal)
	path, err := w.deps.Store.Save(ctx, name, png)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	t.saved = append(t.saved, path)
	return nil
}

// abandon removes artifacts written by a run that will not report them.
func (w *Worker) abandon(t *task) {
	for _, p := range t.saved {
		if err := w.deps.Store.Remove(p); err != nil {
			t.logger.Warn("remove abandoned artifact failed", zap.String("path", p), zap.Error(err))
		}
	}
	t.saved = nil
}

func (w *Worker) cancelled(t *task) capture.Result {
	w.abandon(t)
	t.logger.Info("capture cancelled")
	return capture.Result{
		URL:       t.job.URL,
		Status:    capture.StatusCancelled,
		ErrorKind: capture.KindCancelled,
		Error:     "capture cancelled",
		Timestamp: w.deps.Clock.Now(),
	}
}

func (w *Worker) failed(t *task, kind capture.ErrorKind, msg string) capture.Result {
	return capture.Result{
		URL:       t.job.URL,
		Status:    capture.StatusFailed,
		ErrorKind: kind,
		Error:     msg,
		Timestamp: w.deps.Clock.Now(),
	}
}

func (w *Worker) fromError(ctx context.Context, t *task, err error) capture.Result {
	switch classify(ctx, t.tok, err) {
	case capture.KindCancelled:
		return w.cancelled(t)
	case capture.KindTimeout:
		w.abandon(t)
		t.logger.Warn("capture timed out", zap.Duration("timeout", t.job.Timeout), zap.Error(err))
		return w.failed(t, capture.KindTimeout, fmt.Sprintf("capture exceeded %s: %v", t.job.Timeout, err))
	default:
		w.abandon(t)
		t.logger.Error("capture failed", zap.Error(err))
		return w.failed(t, capture.KindDriver, err.Error())
	}
}

// classify maps a failure to an error kind. A set token wins over everything,
// then the deadline, then any cancellation signal.
func classify(ctx context.Context, tok Token, err error) capture.ErrorKind {
	switch {
	case tok.Cancelled():
		return capture.KindCancelled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return capture.KindTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, capture.ErrCancelled):
		return capture.KindCancelled
	case strings.Contains(strings.ToLower(err.Error()), "cancelled"),
		strings.Contains(strings.ToLower(err.Error()), "canceled"):
		return capture.KindCancelled
	default:
		return capture.KindDriver
	}
}
