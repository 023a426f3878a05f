package browser

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
)

const (
	viewportHeightJS = `window.innerHeight`
	documentHeightJS = `Math.max(
		document.body ? document.body.scrollHeight : 0,
		document.documentElement ? document.documentElement.scrollHeight : 0
	)`
)

type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	net    *networkLog
}

func newSession(ctx context.Context, cancel context.CancelFunc, trackNetwork bool) *session {
	s := &session{ctx: ctx, cancel: cancel}
	if trackNetwork {
		s.net = newNetworkLog()
		chromedp.ListenTarget(ctx, s.net.observe)
	}
	return s
}

// setupActions configures the target before any navigation: device metrics,
// user agent, headers, cookies and init scripts.
func setupActions(opts capture.SessionOptions) []chromedp.Action {
	return []chromedp.Action{chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
			err := emulation.SetDeviceMetricsOverride(int64(opts.Viewport.Width), int64(opts.Viewport.Height), 1.0, false).Do(ctx)
			if err != nil {
				return fmt.Errorf("set device metrics: %w", err)
			}
		}
		if opts.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(opts.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(opts.ExtraHeaders) > 0 {
			headers := make(network.Headers, len(opts.ExtraHeaders))
			for k, v := range opts.ExtraHeaders {
				headers[k] = v
			}
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		if cookies := cookieParams(opts.State.Cookies); len(cookies) > 0 {
			if err := network.SetCookies(cookies).Do(ctx); err != nil {
				return fmt.Errorf("set cookies: %w", err)
			}
		}
		for _, script := range initScripts(opts) {
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("add init script: %w", err)
			}
		}
		return nil
	})}
}

func initScripts(opts capture.SessionOptions) []string {
	scripts := make([]string, 0, len(opts.InitScripts)+1)
	if opts.Stealth {
		scripts = append(scripts, stealth.JS)
	}
	return append(scripts, opts.InitScripts...)
}

func cookieParams(cookies []capture.Cookie) []*network.CookieParam {
	out := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if p.Path == "" {
			p.Path = "/"
		}
		switch c.SameSite {
		case "Strict", "Lax", "None":
			p.SameSite = network.CookieSameSite(c.SameSite)
		}
		if !c.IsSession() {
			sec, frac := math.Modf(*c.Expires)
			exp := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
			p.Expires = &exp
		}
		out = append(out, p)
	}
	return out
}

// run executes actions on the session target while honoring ctx. The session
// context carries the chromedp target; ctx only adds cancellation.
func (s *session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (s *session) Goto(ctx context.Context, url string, wait capture.WaitUntil) error {
	if wait != capture.WaitDOMContentLoaded {
		if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
			return fmt.Errorf("navigate %s: %w", url, err)
		}
		return nil
	}
	return s.gotoDOMContentLoaded(ctx, url)
}

// gotoDOMContentLoaded returns as soon as the document is parsed instead of
// waiting for every subresource.
func (s *session) gotoDOMContentLoaded(ctx context.Context, url string) error {
	navCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	parsed := make(chan struct{})
	var once sync.Once
	chromedp.ListenTarget(navCtx, func(ev any) {
		if _, ok := ev.(*page.EventDomContentEventFired); ok {
			once.Do(func() { close(parsed) })
		}
	})

	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(navCtx, chromedp.Navigate(url)) }()
	select {
	case <-parsed:
		return nil
	case err := <-errc:
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return fmt.Errorf("navigate %s: %w", url, err)
		}
		return nil
	case <-navCtx.Done():
		return fmt.Errorf("navigate %s: %w", url, ctx.Err())
	}
}

func (s *session) ViewportHeight(ctx context.Context) (int, error) {
	var h float64
	if err := s.run(ctx, chromedp.Evaluate(viewportHeightJS, &h)); err != nil {
		return 0, fmt.Errorf("read viewport height: %w", err)
	}
	return int(h), nil
}

func (s *session) DocumentHeight(ctx context.Context) (int, error) {
	var h float64
	if err := s.run(ctx, chromedp.Evaluate(documentHeightJS, &h)); err != nil {
		return 0, fmt.Errorf("read document height: %w", err)
	}
	return int(h), nil
}

func (s *session) ScrollTo(ctx context.Context, y int) error {
	var top float64
	if err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollTo(0, %d); window.scrollY", y), &top)); err != nil {
		return fmt.Errorf("scroll to %d: %w", y, err)
	}
	return nil
}

func (s *session) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var (
		buf    []byte
		action chromedp.Action = chromedp.CaptureScreenshot(&buf)
	)
	if fullPage {
		// Quality 100 keeps the PNG encoding.
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := s.run(ctx, action); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (s *session) NetworkEvents() []capture.NetworkEvent {
	if s.net == nil {
		return nil
	}
	return s.net.snapshot()
}

func (s *session) Close() error {
	s.cancel()
	return nil
}

// networkLog records one entry per request in the order requests were issued.
type networkLog struct {
	mu    sync.Mutex
	order []network.RequestID
	byID  map[network.RequestID]*capture.NetworkEvent
}

func newNetworkLog() *networkLog {
	return &networkLog{byID: make(map[network.RequestID]*capture.NetworkEvent)}
}

func (l *networkLog) observe(ev any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return
		}
		if _, seen := l.byID[e.RequestID]; !seen {
			l.order = append(l.order, e.RequestID)
		}
		l.byID[e.RequestID] = &capture.NetworkEvent{
			Method:       e.Request.Method,
			URL:          e.Request.URL,
			ResourceType: string(e.Type),
		}
	case *network.EventResponseReceived:
		entry, ok := l.byID[e.RequestID]
		if !ok || e.Response == nil {
			return
		}
		entry.Status = int(e.Response.Status)
		entry.MimeType = e.Response.MimeType
	case *network.EventLoadingFailed:
		if entry, ok := l.byID[e.RequestID]; ok {
			entry.Failed = true
		}
	}
}

func (l *networkLog) snapshot() []capture.NetworkEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]capture.NetworkEvent, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.byID[id])
	}
	return out
}
