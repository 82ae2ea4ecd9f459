package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// articleSelector matches the main post element on rendered status pages.
const articleSelector = `article[data-testid="tweet"]`

const desktopUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// chromedpSession is the production Session over a dedicated Chrome
// process.
type chromedpSession struct {
	ctx     context.Context
	cancels []context.CancelFunc
	zoom    int
	closed  bool
}

// NewChromedpFactory returns the production session factory. The full
// configuration pins a desktop viewport and user agent and disables
// automation fingerprinting; the minimal fallback uses bare defaults.
func NewChromedpFactory() SessionFactory {
	return func(ctx context.Context, cfg Config, minimal bool) (Session, error) {
		opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		if !minimal {
			opts = append(opts,
				chromedp.Flag("disable-extensions", true),
				chromedp.Flag("disable-blink-features", "AutomationControlled"),
				chromedp.Flag("hide-scrollbars", true),
				chromedp.WindowSize(1280, 1024),
				chromedp.UserAgent(desktopUserAgent),
			)
		}

		allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)

		// Start the browser now so construction failures surface here, where
		// the retry state machine can classify them.
		if err := chromedp.Run(browserCtx); err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("start browser: %w", err)
		}

		return &chromedpSession{
			ctx:     browserCtx,
			cancels: []context.CancelFunc{browserCancel, allocCancel},
			zoom:    cfg.ZoomPercent,
		}, nil
	}
}

// run executes actions on the session's browser context while honoring the
// caller's cancellation and deadline.
func (s *chromedpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	zoomJS := fmt.Sprintf(`document.body.style.zoom = '%d%%'`, s.zoom)
	return s.run(ctx,
		chromedp.Navigate(url),
		chromedp.Evaluate(zoomJS, nil),
	)
}

func (s *chromedpSession) WaitReady(ctx context.Context) error {
	return s.run(ctx, chromedp.WaitVisible(articleSelector, chromedp.ByQuery))
}

func (s *chromedpSession) ScrollBy(ctx context.Context, pixels float64) error {
	js := fmt.Sprintf(`window.scrollBy(0, %f)`, pixels)
	return s.run(ctx, chromedp.Evaluate(js, nil))
}

func (s *chromedpSession) Metrics(ctx context.Context) (PageMetrics, error) {
	var raw struct {
		ScrollY        float64 `json:"scrollY"`
		ViewportHeight float64 `json:"viewportHeight"`
		DocumentHeight float64 `json:"documentHeight"`
	}
	js := `({
		scrollY: window.scrollY,
		viewportHeight: window.innerHeight,
		documentHeight: document.documentElement.scrollHeight
	})`
	if err := s.run(ctx, chromedp.Evaluate(js, &raw)); err != nil {
		return PageMetrics{}, err
	}
	return PageMetrics{
		ScrollY:        raw.ScrollY,
		ViewportHeight: raw.ViewportHeight,
		DocumentHeight: raw.DocumentHeight,
	}, nil
}

func (s *chromedpSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	capture := chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			Do(ctx)
		return err
	})
	if err := s.run(ctx, capture); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *chromedpSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	for _, cancel := range s.cancels {
		cancel()
	}
	return nil
}
