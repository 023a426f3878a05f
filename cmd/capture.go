package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
)

type captureFlags struct {
	mode          string
	engine        string
	width         int
	height        int
	stealth       bool
	realBrowser   bool
	baseURL       string
	wordsToRemove string
	cookies       string
	localStorage  string
	noSavedAuth   bool
	overlap       int
	scrollDelayMs int
	maxSegments   int
	skipDups      bool
	smartLazyLoad bool
	trackNetwork  bool
	batchTimeout  int
	maxParallel   int
}

// newCaptureCmd creates the 'capture' subcommand: a one-shot capture of the
// URLs given as arguments, printing the result envelope as JSON.
func newCaptureCmd() *cobra.Command {
	f := &captureFlags{}
	cmd := &cobra.Command{
		Use:   "capture URL [URL...]",
		Short: "Capture screenshots of one or more URLs",
		Long: `Captures every URL once and prints {results, cancelled, request_id} to
stdout. Ctrl-C cancels the request; results finished so far are still printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd, f, args)
		},
	}

	d := capture.DefaultRequest()
	fl := cmd.Flags()
	fl.StringVar(&f.mode, "mode", string(d.Mode), "capture mode: viewport, fullpage, or segmented")
	fl.StringVar(&f.engine, "engine", string(d.Engine), "browser engine: default or alt")
	fl.IntVar(&f.width, "width", d.Viewport.Width, "viewport width")
	fl.IntVar(&f.height, "height", d.Viewport.Height, "viewport height")
	fl.BoolVar(&f.stealth, "stealth", false, "enable stealth evasions and a rotating user agent")
	fl.BoolVar(&f.realBrowser, "real-browser", false, "attach to the configured real Chrome")
	fl.StringVar(&f.baseURL, "base-url", "", "URL prefix stripped when naming artifacts")
	fl.StringVar(&f.wordsToRemove, "words-to-remove", "", "comma list or JSON replacements applied to artifact names")
	fl.StringVar(&f.cookies, "cookies", "", "inline JSON array of storage-state cookies")
	fl.StringVar(&f.localStorage, "local-storage", "", "inline JSON object of localStorage entries")
	fl.BoolVar(&f.noSavedAuth, "no-saved-auth", false, "ignore the saved auth state file")
	fl.IntVar(&f.overlap, "overlap", d.Segment.OverlapPercent, "segment overlap percent")
	fl.IntVar(&f.scrollDelayMs, "scroll-delay", d.Segment.ScrollDelayMs, "delay after each segment scroll in milliseconds")
	fl.IntVar(&f.maxSegments, "max-segments", d.Segment.MaxSegments, "maximum segments per page")
	fl.BoolVar(&f.skipDups, "skip-duplicates", d.Segment.SkipDuplicates, "stop when a segment repeats the previous one")
	fl.BoolVar(&f.smartLazyLoad, "smart-lazy-load", d.Segment.SmartLazyLoad, "wait for the document height to settle after each scroll")
	fl.BoolVar(&f.trackNetwork, "track-network", false, "attach observed network requests to each result")
	fl.IntVar(&f.batchTimeout, "batch-timeout", 0, "per-URL timeout in seconds (0 uses the mode default)")
	fl.IntVar(&f.maxParallel, "max-parallel", d.MaxParallelURLs, "parallel URLs per batch for the real browser")
	return cmd
}

func (f *captureFlags) request(urls []string) capture.Request {
	req := capture.Request{
		URLs:          urls,
		Viewport:      capture.Viewport{Width: f.width, Height: f.height},
		Mode:          capture.Mode(f.mode),
		Engine:        capture.Engine(f.engine),
		Stealth:       f.stealth,
		RealBrowser:   f.realBrowser,
		BaseURL:       f.baseURL,
		WordsToRemove: f.wordsToRemove,
		Cookies:       f.cookies,
		LocalStorage:  f.localStorage,
		UseSavedAuth:  !f.noSavedAuth,
		Segment: capture.SegmentOptions{
			OverlapPercent: f.overlap,
			ScrollDelayMs:  f.scrollDelayMs,
			MaxSegments:    f.maxSegments,
			SkipDuplicates: f.skipDups,
			SmartLazyLoad:  f.smartLazyLoad,
		},
		TrackNetwork:    f.trackNetwork,
		MaxParallelURLs: f.maxParallel,
	}
	if f.batchTimeout > 0 {
		t := f.batchTimeout
		req.BatchTimeoutSeconds = &t
	}
	return req
}

func runCapture(cmd *cobra.Command, f *captureFlags, urls []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	// The first interrupt cancels through the registry so partial results
	// are still reported; a second one aborts outright.
	ctx, abort := context.WithCancel(cmd.Context())
	defer abort()
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
		case <-ctx.Done():
			return
		}
		logger.Info("interrupt received, cancelling capture", zap.Int("requests", appInstance.CancelAll()))
		select {
		case <-sigs:
			abort()
		case <-ctx.Done():
		}
	}()

	env, err := appInstance.Capture(ctx, f.request(urls))
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}
