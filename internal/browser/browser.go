// Package browser drives headless-browser sessions to render post pages and
// produce progressive scroll screenshots.
package browser

import (
	"context"
	"time"

	"github.com/lenswire/lenswire/internal/models"
)

// Config holds renderer parameters.
type Config struct {
	// ZoomPercent is the page zoom, 25-200.
	ZoomPercent int

	// Crop, when enabled, is applied in place to every screenshot.
	Crop models.CropSettings

	// Session construction retry pacing.
	MaxBrowserRetries int
	RetryDelay        time.Duration
	RetryBackoff      float64

	// Navigation retry and waits.
	NavigationTimeout time.Duration
	NavigationRetries int
	PostLoadDwell     time.Duration

	// Scroll loop pacing.
	ScrollDelay time.Duration

	// WorkDir receives the local screenshot files.
	WorkDir string
}

// DefaultConfig returns the renderer defaults.
func DefaultConfig() Config {
	return Config{
		ZoomPercent:       60,
		MaxBrowserRetries: 3,
		RetryDelay:        2 * time.Second,
		RetryBackoff:      2.0,
		NavigationTimeout: 10 * time.Second,
		NavigationRetries: 2,
		PostLoadDwell:     3 * time.Second,
		ScrollDelay:       2 * time.Second,
		WorkDir:           ".",
	}
}

// Validate rejects configurations the renderer cannot run with.
func (c Config) Validate() error {
	if err := c.Crop.Validate(); err != nil {
		return err
	}
	if c.ZoomPercent < 25 || c.ZoomPercent > 200 {
		return errZoomRange
	}
	return nil
}

// PageMetrics is a snapshot of the page's scroll state in CSS pixels.
type PageMetrics struct {
	ScrollY        float64
	ViewportHeight float64
	DocumentHeight float64
}

// AtBottom reports whether the viewport has reached the document end.
func (m PageMetrics) AtBottom() bool {
	return m.ScrollY >= m.DocumentHeight-m.ViewportHeight
}

// Session is one exclusive headless-browser session. Sessions are
// single-owner and short-lived: each capture acquires a fresh one and quits
// it on every exit path.
type Session interface {
	// Navigate loads the URL.
	Navigate(ctx context.Context, url string) error

	// WaitReady blocks until the main article element is visible.
	WaitReady(ctx context.Context) error

	// ScrollBy scrolls the viewport down by the given number of pixels.
	ScrollBy(ctx context.Context, pixels float64) error

	// Metrics reads the current scroll state.
	Metrics(ctx context.Context) (PageMetrics, error)

	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Close quits the browser. Safe to call more than once.
	Close() error
}

// SessionFactory constructs a session. minimal selects the bare fallback
// configuration: default flags, no extensions, no user-agent override.
type SessionFactory func(ctx context.Context, cfg Config, minimal bool) (Session, error)
