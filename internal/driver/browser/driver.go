// Package browser implements capture.Driver on top of chromedp.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
)

// Config controls how browsers are launched or attached.
type Config struct {
	// ExecPath overrides Chrome discovery.
	ExecPath string
	Headless bool
	// RemoteURL is the DevTools endpoint of a long-lived Chrome used in
	// real-browser mode. Empty means a visible local Chrome is launched instead.
	RemoteURL string
	// AltFlags are extra Chrome switches for the alternate engine, either
	// "name" or "name=value".
	AltFlags []string
	Logger   *zap.Logger
}

// Driver hands out one isolated chromedp target per session. Allocators are
// created lazily per launch profile and shared until Close.
type Driver struct {
	cfg    Config
	logger *zap.Logger

	mu         sync.Mutex
	allocators map[profile]allocator
	closed     bool
}

type profile int

const (
	profileDefault profile = iota
	profileAlt
	profileReal
)

type allocator struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a Driver. No browser starts until the first session.
func New(cfg Config) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		cfg:        cfg,
		logger:     logger.Named("browser"),
		allocators: make(map[profile]allocator),
	}
}

// ErrClosed is returned by NewSession after Close.
var ErrClosed = errors.New("browser driver closed")

// NewSession opens a fresh browser target configured from opts. The target is
// released by Session.Close.
func (d *Driver) NewSession(ctx context.Context, opts capture.SessionOptions) (capture.Session, error) {
	alloc, err := d.allocator(profileFor(opts))
	if err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(alloc.ctx)
	s := newSession(tabCtx, tabCancel, opts.TrackNetwork)

	// The first Run on a chromedp context starts the browser or tab and ties
	// its lifetime to tabCtx, so it must run on tabCtx itself.
	stop := context.AfterFunc(ctx, tabCancel)
	err = chromedp.Run(tabCtx, setupActions(opts)...)
	if !stop() || err != nil {
		tabCancel()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("open browser session: %w", ctx.Err())
		}
		return nil, fmt.Errorf("open browser session: %w", err)
	}
	d.logger.Debug("browser session opened",
		zap.Int("width", opts.Viewport.Width),
		zap.Int("height", opts.Viewport.Height),
		zap.Bool("stealth", opts.Stealth),
		zap.Bool("real_browser", opts.RealBrowser),
	)
	return s, nil
}

// Close shuts every allocator down, which terminates launched browsers. A
// remote browser is only disconnected.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for p, a := range d.allocators {
		a.cancel()
		delete(d.allocators, p)
	}
}

func profileFor(opts capture.SessionOptions) profile {
	switch {
	case opts.RealBrowser:
		return profileReal
	case opts.Engine == capture.EngineAlt:
		return profileAlt
	default:
		return profileDefault
	}
}

func (d *Driver) allocator(p profile) (allocator, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return allocator{}, ErrClosed
	}
	if a, ok := d.allocators[p]; ok {
		return a, nil
	}
	var a allocator
	if p == profileReal && d.cfg.RemoteURL != "" {
		a.ctx, a.cancel = chromedp.NewRemoteAllocator(context.Background(), d.cfg.RemoteURL)
		d.logger.Info("attached to remote browser", zap.String("url", d.cfg.RemoteURL))
	} else {
		a.ctx, a.cancel = chromedp.NewExecAllocator(context.Background(), d.execOptions(p)...)
	}
	d.allocators[p] = a
	return a, nil
}

func (d *Driver) execOptions(p profile) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	headless := d.cfg.Headless && p != profileReal
	if headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if d.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(d.cfg.ExecPath))
	}
	if p == profileAlt {
		for _, f := range d.cfg.AltFlags {
			name, value := parseFlag(f)
			opts = append(opts, chromedp.Flag(name, value))
		}
	}
	return opts
}

// parseFlag splits "name=value" into a chromedp flag. A bare name is a boolean
// switch.
func parseFlag(raw string) (string, any) {
	name, value, ok := strings.Cut(raw, "=")
	name = strings.TrimLeft(name, "-")
	if !ok {
		return name, true
	}
	return name, value
}
