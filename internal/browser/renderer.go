package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lenswire/lenswire/internal/retry"
)

// Capture is the result of rendering one post URL: ordered local PNG paths,
// scrolled progressively from the top.
type Capture struct {
	Screenshots []string
	Timestamp   time.Time
}

// Renderer owns short-lived headless-browser sessions and produces scroll
// screenshots for post URLs. Captures are strictly sequential; each one
// holds a session exclusively.
type Renderer struct {
	cfg        Config
	newSession SessionFactory
	sleep      func(time.Duration)
	logger     *slog.Logger
}

// NewRenderer validates the configuration and constructs a renderer.
func NewRenderer(cfg Config, factory SessionFactory, logger *slog.Logger) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("renderer config: %w", err)
	}
	return &Renderer{
		cfg:        cfg,
		newSession: factory,
		sleep:      time.Sleep,
		logger:     logger,
	}, nil
}

// withSleep overrides the sleep function (tests).
func (r *Renderer) withSleep(fn func(time.Duration)) *Renderer {
	r.sleep = fn
	return r
}

// Capture renders the post page and returns the ordered screenshot paths.
// maxShots bounds both the screenshot count and the scroll iterations.
func (r *Renderer) Capture(ctx context.Context, url, postID string, maxShots int) (*Capture, error) {
	sess, err := r.acquireSession(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { r.closeSession(sess) }()

	sess, err = r.navigate(ctx, sess, url)
	if err != nil {
		return nil, err
	}

	r.sleep(r.cfg.PostLoadDwell)

	shots, err := r.scrollAndSnapshot(ctx, sess, postID, maxShots)
	if err != nil {
		return nil, err
	}
	if len(shots) == 0 {
		return nil, fmt.Errorf("no screenshots produced for %s", url)
	}

	return &Capture{Screenshots: shots, Timestamp: time.Now().UTC()}, nil
}

// acquireSession builds a fully-instrumented session, retrying transient
// construction failures with exponential backoff. After exhaustion it falls
// back to a single attempt with the minimal configuration. Permanent
// failures fail fast with no fallback.
func (r *Renderer) acquireSession(ctx context.Context) (Session, error) {
	policy := retry.Policy{
		InitialBackoff: r.cfg.RetryDelay,
		BackoffFactor:  r.cfg.RetryBackoff,
	}

	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxBrowserRetries; attempt++ {
		sess, err := r.newSession(ctx, r.cfg, false)
		if err == nil {
			return sess, nil
		}
		lastErr = err

		switch classifyFailure(err) {
		case failurePermanent:
			r.logger.Warn("permanent browser failure, not retrying", "error", err)
			return nil, err
		case failureUnknown:
			r.logger.Warn("unrecognized browser failure, treating as transient",
				"attempt", attempt+1, "error", err)
		default:
			r.logger.Debug("transient browser failure",
				"attempt", attempt+1, "error", err)
		}

		if attempt < r.cfg.MaxBrowserRetries-1 {
			r.sleep(retry.BackoffFor(policy, attempt))
		}
	}

	r.logger.Warn("session setup exhausted retries, attempting minimal fallback",
		"retries", r.cfg.MaxBrowserRetries, "error", lastErr)

	sess, err := r.newSession(ctx, r.cfg, true)
	if err != nil {
		return nil, fmt.Errorf("fallback session failed after %d primary attempts: %w",
			r.cfg.MaxBrowserRetries, err)
	}
	return sess, nil
}

// navigate loads the URL and waits for the article element, retrying with a
// freshly rebuilt session on timeout. Returns the session that ended up
// holding the loaded page.
func (r *Renderer) navigate(ctx context.Context, sess Session, url string) (Session, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.NavigationRetries; attempt++ {
		navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavigationTimeout)
		err := sess.Navigate(navCtx, url)
		if err == nil {
			err = sess.WaitReady(navCtx)
		}
		cancel()
		if err == nil {
			return sess, nil
		}
		lastErr = err

		if attempt == r.cfg.NavigationRetries {
			break
		}

		r.logger.Warn("navigation failed, rebuilding session",
			"url", url, "attempt", attempt+1, "error", err)
		r.closeSession(sess)

		rebuilt, err := r.acquireSession(ctx)
		if err != nil {
			return sess, err
		}
		sess = rebuilt
	}

	return sess, fmt.Errorf("navigation failed after %d attempts: %w",
		r.cfg.NavigationRetries+1, lastErr)
}

// scrollAndSnapshot takes a top-of-page screenshot and then scrolls down in
// 80%-viewport steps, screenshotting each step that advanced at least 30% of
// the viewport. Two consecutive non-advances or a bottom stop terminate the
// loop; iterations are bounded by maxShots.
func (r *Renderer) scrollAndSnapshot(ctx context.Context, sess Session, postID string, maxShots int) ([]string, error) {
	var shots []string

	take := func() error {
		png, err := sess.Screenshot(ctx)
		if err != nil {
			return fmt.Errorf("screenshot: %w", err)
		}
		path := filepath.Join(r.cfg.WorkDir, fmt.Sprintf("%s_%02d.png", postID, len(shots)+1))
		if err := os.WriteFile(path, png, 0o644); err != nil {
			return fmt.Errorf("write screenshot: %w", err)
		}
		if r.cfg.Crop.Enabled {
			if err := CropFile(path, r.cfg.Crop); err != nil {
				// Keep the uncropped original rather than dropping the shot.
				r.logger.Warn("crop failed, keeping original", "path", path, "error", err)
			}
		}
		shots = append(shots, path)
		return nil
	}

	if err := take(); err != nil {
		return nil, err
	}

	noProgress := 0
	for iter := 0; iter < maxShots && len(shots) < maxShots; iter++ {
		before, err := sess.Metrics(ctx)
		if err != nil {
			return shots, err
		}

		if err := sess.ScrollBy(ctx, 0.8*before.ViewportHeight); err != nil {
			return shots, err
		}
		r.sleep(r.cfg.ScrollDelay)

		after, err := sess.Metrics(ctx)
		if err != nil {
			return shots, err
		}

		advance := after.ScrollY - before.ScrollY
		if advance <= 0 {
			noProgress++
			if noProgress >= 2 {
				break
			}
			continue
		}

		if advance >= 0.3*after.ViewportHeight {
			if err := take(); err != nil {
				return shots, err
			}
			noProgress = 0
		}
		// Sub-threshold advances skip the screenshot to avoid near-duplicates.

		if after.AtBottom() {
			break
		}
	}

	return shots, nil
}

// closeSession quits the session on every exit path. A quit that itself
// fails is swallowed with a WARN.
func (r *Renderer) closeSession(sess Session) {
	if sess == nil {
		return
	}
	if err := sess.Close(); err != nil {
		r.logger.Warn("browser quit failed", "error", err)
	}
}
