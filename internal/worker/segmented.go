package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// segmented scrolls through the page taking overlapping viewport shots. It
// always saves at least one image when it returns nil.
func (w *Worker) segmented(ctx context.Context, t *task) error {
	opts := t.job.Segment
	viewport, err := t.session.ViewportHeight(ctx)
	if err != nil {
		return fmt.Errorf("measure viewport: %w", err)
	}
	docHeight, err := t.session.DocumentHeight(ctx)
	if err != nil {
		return fmt.Errorf("measure document: %w", err)
	}

	step := viewport * (100 - opts.OverlapPercent) / 100
	if step <= 0 {
		step = viewport
	}
	if step <= 0 {
		step = 1
	}
	maxSegments := opts.MaxSegments
	if maxSegments <= 0 {
		maxSegments = 1
	}
	delay := time.Duration(opts.ScrollDelayMs) * time.Millisecond

	var (
		prevHash uint64
		havePrev bool
	)
	for i := 0; i < maxSegments; i++ {
		if t.tok.Cancelled() {
			return fmt.Errorf("segment %d: %w", i+1, context.Canceled)
		}
		y := min(i*step, max(0, docHeight-viewport))
		if err := t.session.ScrollTo(ctx, y); err != nil {
			return fmt.Errorf("scroll to %d: %w", y, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("scroll delay: %w", err)
		}
		if opts.SmartLazyLoad {
			docHeight = w.settle(ctx, t, docHeight)
		}

		png, err := t.session.Screenshot(ctx, false)
		if err != nil {
			return fmt.Errorf("screenshot segment %d: %w", i+1, err)
		}
		if opts.SkipDuplicates {
			hash, err := w.deps.Hasher.Hash(png)
			if err != nil {
				return fmt.Errorf("hash segment %d: %w", i+1, err)
			}
			if havePrev && w.deps.Hasher.Similar(prevHash, hash) {
				t.logger.Debug("duplicate segment, stopping", zap.Int("segment", i+1), zap.Int("y", y))
				break
			}
			prevHash, havePrev = hash, true
		}
		if err := w.save(ctx, t, png, i+1); err != nil {
			return err
		}
		if (i+1)*step >= docHeight {
			break
		}
	}
	t.logger.Debug("segmented capture finished",
		zap.Int("segments", len(t.saved)),
		zap.Int("viewport_height", viewport),
		zap.Int("document_height", docHeight),
	)
	return nil
}

// settle polls the document height until it holds for StableChecks reads or
// MaxChecks is spent. Measurement errors keep the last known height.
func (w *Worker) settle(ctx context.Context, t *task, height int) int {
	lazy := w.cfg.LazyLoad
	stable := 0
	for range lazy.MaxChecks {
		if sleep(ctx, lazy.Interval) != nil {
			return height
		}
		h, err := t.session.DocumentHeight(ctx)
		if err != nil {
			return height
		}
		if h == height {
			stable++
			if stable >= lazy.StableChecks {
				return h
			}
			continue
		}
		height, stable = h, 0
	}
	return height
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
