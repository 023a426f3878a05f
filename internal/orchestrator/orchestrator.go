// Package orchestrator owns a capture request's lifetime: validation, auth,
// cancellation registration, batch fan-out, event emission and aggregation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/screenshot-orchestrator/internal/auth"
	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
	"github.com/JakeFAU/screenshot-orchestrator/internal/planner"
	"github.com/JakeFAU/screenshot-orchestrator/internal/progress"
	"github.com/JakeFAU/screenshot-orchestrator/internal/registry"
	"github.com/JakeFAU/screenshot-orchestrator/internal/timeout"
	"github.com/JakeFAU/screenshot-orchestrator/internal/validate"
	"github.com/JakeFAU/screenshot-orchestrator/internal/worker"
)

// Runner executes one capture job.
type Runner interface {
	Run(ctx context.Context, job capture.Job, tok worker.Token, rep worker.Reporter) capture.Result
}

// Materializer produces the storage state for a request.
type Materializer interface {
	Materialize(ctx context.Context, in auth.Inputs) (capture.StorageState, error)
}

// Deps are the collaborators of an Orchestrator. Events may be nil.
type Deps struct {
	Validator *validate.Validator
	Planner   *planner.Planner
	Auth      Materializer
	Registry  *registry.Registry
	Runner    Runner
	Events    progress.Emitter
	IDs       capture.IDGenerator
	Clock     capture.Clock
	Timeouts  timeout.Policy
}

// Orchestrator executes capture requests. Multiple requests may run at once,
// each with its own token and worker fleet.
type Orchestrator struct {
	deps   Deps
	logger *zap.Logger
}

// New validates deps and returns an Orchestrator.
func New(deps Deps, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Validator == nil:
		return nil, errors.New("orchestrator: validator is required")
	case deps.Planner == nil:
		return nil, errors.New("orchestrator: planner is required")
	case deps.Auth == nil:
		return nil, errors.New("orchestrator: auth materializer is required")
	case deps.Registry == nil:
		return nil, errors.New("orchestrator: registry is required")
	case deps.Runner == nil:
		return nil, errors.New("orchestrator: runner is required")
	case deps.IDs == nil:
		return nil, errors.New("orchestrator: id generator is required")
	case deps.Clock == nil:
		return nil, errors.New("orchestrator: clock is required")
	}
	if deps.Timeouts == (timeout.Policy{}) {
		deps.Timeouts = timeout.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, logger: logger.Named("orchestrator")}, nil
}

// Execute runs req to completion and returns one result per URL in input
// order. Invalid input and unparseable auth fail before any registry entry or
// capture exists. Cancelling ctx cancels the request like an external cancel.
func (o *Orchestrator) Execute(ctx context.Context, req capture.Request) (capture.Envelope, error) {
	req = req.WithDefaults()
	if err := o.deps.Validator.Request(req); err != nil {
		return capture.Envelope{}, err
	}
	state, err := o.deps.Auth.Materialize(ctx, auth.Inputs{
		Cookies:      req.Cookies,
		LocalStorage: req.LocalStorage,
		UseSaved:     req.UseSavedAuth,
		TargetURLs:   req.URLs,
	})
	if err != nil {
		return capture.Envelope{}, fmt.Errorf("materialize auth: %w", err)
	}

	id, err := o.deps.IDs.NewID()
	if err != nil {
		return capture.Envelope{}, fmt.Errorf("generate request id: %w", err)
	}
	tok, err := o.deps.Registry.Create(id)
	if err != nil {
		return capture.Envelope{}, fmt.Errorf("register request: %w", err)
	}
	defer o.deps.Registry.Remove(id)
	if ctx.Err() != nil {
		tok.Cancel()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopWatch := context.AfterFunc(ctx, func() { tok.Cancel() })
	defer stopWatch()
	go func() {
		select {
		case <-tok.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	logger := o.logger.With(zap.String("request_id", id), zap.Int("urls", len(req.URLs)))
	logger.Info("capture request started",
		zap.String("mode", string(req.Mode)),
		zap.String("engine", string(req.Engine)),
		zap.Bool("real_browser", req.RealBrowser),
	)
	start := time.Now()

	run := &requestRun{
		tok:     tok,
		stream:  progress.NewRequestStream(o.deps.Events, o.deps.Clock, id),
		results: make([]capture.Result, len(req.URLs)),
		filled:  make([]bool, len(req.URLs)),
	}
	template := o.jobTemplate(id, req, state)
	batches := o.deps.Planner.Plan(req.URLs, len(req.URLs) > 1, req.MaxParallelURLs, req.RealBrowser)
	for i, batch := range batches {
		if tok.Cancelled() {
			logger.Info("request cancelled, skipping remaining batches", zap.Int("batch", i))
			break
		}
		o.runBatch(runCtx, run, template, batch)
	}

	cancelled := tok.Cancelled()
	for i, ok := range run.filled {
		if ok {
			continue
		}
		r := capture.Result{
			URL:       req.URLs[i],
			Status:    capture.StatusCancelled,
			ErrorKind: capture.KindCancelled,
			Error:     "capture cancelled before start",
			Timestamp: o.deps.Clock.Now(),
		}
		run.results[i] = r
		run.stream.Result(r)
	}
	if cancelled {
		run.stream.Cancelled(run.completed, len(req.URLs))
	}

	succeeded := 0
	for _, r := range run.results {
		if r.Status == capture.StatusSuccess {
			succeeded++
		}
	}
	logger.Info("capture request finished",
		zap.Int("succeeded", succeeded),
		zap.Int("batches", len(batches)),
		zap.Bool("cancelled", cancelled),
		zap.Duration("elapsed", time.Since(start)),
	)
	return capture.Envelope{Results: run.results, Cancelled: cancelled, RequestID: id}, nil
}

// Cancel sets the token of one in-flight request.
func (o *Orchestrator) Cancel(id string) bool {
	return o.deps.Registry.Cancel(id)
}

// CancelAll sets every registered token and reports how many were set.
func (o *Orchestrator) CancelAll() int {
	return o.deps.Registry.CancelAll()
}

type requestRun struct {
	tok    *registry.Token
	stream *progress.RequestStream

	mu        sync.Mutex
	results   []capture.Result
	filled    []bool
	completed int
}

func (r *requestRun) record(index int, res capture.Result) {
	r.mu.Lock()
	r.results[index] = res
	r.filled[index] = true
	r.completed++
	r.mu.Unlock()
	r.stream.Result(res)
}

// runBatch starts one worker per entry and waits for all of them. Workers
// never return errors, so one URL's failure leaves its siblings running.
func (o *Orchestrator) runBatch(ctx context.Context, run *requestRun, template capture.Job, batch planner.Batch) {
	var g errgroup.Group
	for _, entry := range batch {
		job := template
		job.URL = entry.URL
		job.Index = entry.Index + 1
		g.Go(func() error {
			run.record(entry.Index, o.deps.Runner.Run(ctx, job, run.tok, run.stream))
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) jobTemplate(id string, req capture.Request, state capture.StorageState) capture.Job {
	return capture.Job{
		RequestID:     id,
		Total:         len(req.URLs),
		Timeout:       o.deps.Timeouts.Deadline(req.Flags(), req.BatchTimeoutSeconds),
		Mode:          req.Mode,
		Engine:        req.Engine,
		Viewport:      req.Viewport,
		Stealth:       req.Stealth,
		Real:          req.RealBrowser,
		BaseURL:       req.BaseURL,
		WordsToRemove: req.WordsToRemove,
		Segment:       req.Segment,
		TrackNetwork:  req.TrackNetwork,
		Auth:          state,
	}
}
