package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSession scripts page behavior: a fixed document height scrolled in
// perfect steps unless overridden.
type fakeSession struct {
	viewport float64
	document float64
	scrollY  float64

	// scrollFn overrides the default perfect-scroll behavior.
	scrollFn func(s *fakeSession, pixels float64)

	navigateErr   error
	screenshotErr error
	closed        int
	screenshots   int
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error { return s.navigateErr }
func (s *fakeSession) WaitReady(ctx context.Context) error            { return nil }

func (s *fakeSession) ScrollBy(ctx context.Context, pixels float64) error {
	if s.scrollFn != nil {
		s.scrollFn(s, pixels)
		return nil
	}
	s.scrollY += pixels
	max := s.document - s.viewport
	if s.scrollY > max {
		s.scrollY = max
	}
	return nil
}

func (s *fakeSession) Metrics(ctx context.Context) (PageMetrics, error) {
	return PageMetrics{ScrollY: s.scrollY, ViewportHeight: s.viewport, DocumentHeight: s.document}, nil
}

func (s *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	if s.screenshotErr != nil {
		return nil, s.screenshotErr
	}
	s.screenshots++
	// Valid 1x1 PNG so crop-enabled paths can decode it.
	return tinyPNG(), nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

// factoryScript returns sessions or errors in sequence, recording whether
// each attempt asked for the minimal configuration.
type factoryScript struct {
	results []func() (Session, error)
	minimal []bool
	calls   int
}

func (f *factoryScript) factory(ctx context.Context, cfg Config, minimal bool) (Session, error) {
	f.minimal = append(f.minimal, minimal)
	idx := f.calls
	f.calls++
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx]()
}

func okSession(s *fakeSession) func() (Session, error) {
	return func() (Session, error) { return s, nil }
}

func failWith(msg string) func() (Session, error) {
	return func() (Session, error) { return nil, errors.New(msg) }
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.WorkDir = t.TempDir()
	cfg.RetryDelay = time.Millisecond
	cfg.PostLoadDwell = 0
	cfg.ScrollDelay = 0
	return cfg
}

func newTestRenderer(t *testing.T, cfg Config, factory SessionFactory) (*Renderer, *[]time.Duration) {
	t.Helper()
	r, err := NewRenderer(cfg, factory, testLogger())
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	var sleeps []time.Duration
	r.withSleep(func(d time.Duration) { sleeps = append(sleeps, d) })
	return r, &sleeps
}

func TestCapture_ScrollsAndScreenshots(t *testing.T) {
	// 768px viewport, 3000px document: initial shot plus scroll steps of
	// 614.4px until bottom.
	sess := &fakeSession{viewport: 768, document: 3000}
	script := &factoryScript{results: []func() (Session, error){okSession(sess)}}

	r, _ := newTestRenderer(t, testConfig(t), script.factory)
	cap, err := r.Capture(context.Background(), "https://x.com/a/status/1", "1", 10)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if len(cap.Screenshots) < 2 {
		t.Errorf("expected multiple screenshots for a long page, got %d", len(cap.Screenshots))
	}
	if len(cap.Screenshots) > 10 {
		t.Errorf("screenshot cap exceeded: %d", len(cap.Screenshots))
	}
	if sess.closed == 0 {
		t.Error("session not closed after capture")
	}
}

func TestCapture_ShortPageSingleScreenshot(t *testing.T) {
	// Document fits in the viewport: the first scroll cannot advance.
	sess := &fakeSession{viewport: 768, document: 600}
	script := &factoryScript{results: []func() (Session, error){okSession(sess)}}

	r, _ := newTestRenderer(t, testConfig(t), script.factory)
	cap, err := r.Capture(context.Background(), "https://x.com/a/status/1", "1", 10)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if len(cap.Screenshots) != 1 {
		t.Errorf("short page should yield exactly the initial screenshot, got %d", len(cap.Screenshots))
	}
}

func TestCapture_RespectsMaxShots(t *testing.T) {
	sess := &fakeSession{viewport: 768, document: 100000}
	script := &factoryScript{results: []func() (Session, error){okSession(sess)}}

	r, _ := newTestRenderer(t, testConfig(t), script.factory)
	cap, err := r.Capture(context.Background(), "https://x.com/a/status/1", "1", 3)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if len(cap.Screenshots) != 3 {
		t.Errorf("got %d screenshots, want exactly maxShots=3", len(cap.Screenshots))
	}
}

func TestCapture_SubThresholdAdvanceSkipsScreenshot(t *testing.T) {
	// Scrolls advance only 100px per step, under 30% of the 768px viewport:
	// no screenshots beyond the initial one, loop ends at the bottom.
	sess := &fakeSession{viewport: 768, document: 1200}
	sess.scrollFn = func(s *fakeSession, pixels float64) {
		s.scrollY += 100
		if s.scrollY > s.document-s.viewport {
			s.scrollY = s.document - s.viewport
		}
	}
	script := &factoryScript{results: []func() (Session, error){okSession(sess)}}

	r, _ := newTestRenderer(t, testConfig(t), script.factory)
	cap, err := r.Capture(context.Background(), "https://x.com/a/status/1", "1", 10)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if len(cap.Screenshots) != 1 {
		t.Errorf("sub-threshold advances should not add screenshots, got %d", len(cap.Screenshots))
	}
}

func TestCapture_StuckPageBreaksAfterTwoNonAdvances(t *testing.T) {
	sess := &fakeSession{viewport: 768, document: 5000}
	scrolls := 0
	sess.scrollFn = func(s *fakeSession, pixels float64) {
		scrolls++
		// Page never moves.
	}
	script := &factoryScript{results: []func() (Session, error){okSession(sess)}}

	r, _ := newTestRenderer(t, testConfig(t), script.factory)
	cap, err := r.Capture(context.Background(), "https://x.com/a/status/1", "1", 10)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if len(cap.Screenshots) != 1 {
		t.Errorf("stuck page should keep only the initial screenshot, got %d", len(cap.Screenshots))
	}
	if scrolls != 2 {
		t.Errorf("loop should break after 2 consecutive non-advances, saw %d scrolls", scrolls)
	}
}

func TestAcquireSession_TransientRetriesWithBackoff(t *testing.T) {
	sess := &fakeSession{viewport: 768, document: 600}
	script := &factoryScript{results: []func() (Session, error){
		failWith("connection timed out"),
		failWith("session not created"),
		okSession(sess),
	}}

	cfg := testConfig(t)
	cfg.RetryDelay = 2 * time.Second
	cfg.RetryBackoff = 2.0
	r, sleeps := newTestRenderer(t, cfg, script.factory)

	_, err := r.Capture(context.Background(), "https://x.com/a/status/1", "1", 10)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if script.calls != 3 {
		t.Errorf("factory called %d times, want 3", script.calls)
	}

	// Backoffs between the first three attempts: 2s then 4s. Later sleeps
	// are dwell/scroll pacing (zeroed in testConfig).
	var backoffs []time.Duration
	for _, d := range *sleeps {
		if d > 0 {
			backoffs = append(backoffs, d)
		}
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(backoffs) != len(want) {
		t.Fatalf("got %d backoff sleeps %v, want %v", len(backoffs), backoffs, want)
	}
	for i := range want {
		if backoffs[i] != want[i] {
			t.Errorf("backoff[%d] = %v, want %v", i, backoffs[i], want[i])
		}
	}
}

func TestAcquireSession_FallbackAfterExhaustion(t *testing.T) {
	sess := &fakeSession{viewport: 768, document: 600}
	script := &factoryScript{results: []func() (Session, error){
		failWith("connection timed out"),
		failWith("connection timed out"),
		failWith("connection timed out"),
		okSession(sess), // minimal fallback
	}}

	r, _ := newTestRenderer(t, testConfig(t), script.factory)
	_, err := r.Capture(context.Background(), "https://x.com/a/status/1", "1", 10)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if script.calls != 4 {
		t.Fatalf("factory called %d times, want 3 primary + 1 fallback", script.calls)
	}
	wantMinimal := []bool{false, false, false, true}
	for i, want := range wantMinimal {
		if script.minimal[i] != want {
			t.Errorf("attempt %d minimal = %v, want %v", i+1, script.minimal[i], want)
		}
	}
}

func TestAcquireSession_PermanentFailureFailsFast(t *testing.T) {
	script := &factoryScript{results: []func() (Session, error){
		failWith("chrome: executable file not found in $PATH"),
	}}

	r, _ := newTestRenderer(t, testConfig(t), script.factory)
	_, err := r.Capture(context.Background(), "https://x.com/a/status/1", "1", 10)
	if err == nil {
		t.Fatal("expected permanent failure")
	}
	if script.calls != 1 {
		t.Errorf("permanent failure retried: %d factory calls, want 1", script.calls)
	}
}

func TestAcquireSession_FallbackFailureSurfaces(t *testing.T) {
	script := &factoryScript{results: []func() (Session, error){
		failWith("connection timed out"),
	}}

	r, _ := newTestRenderer(t, testConfig(t), script.factory)
	_, err := r.Capture(context.Background(), "https://x.com/a/status/1", "1", 10)
	if err == nil {
		t.Fatal("expected error when fallback also fails")
	}
	if !strings.Contains(err.Error(), "fallback") {
		t.Errorf("error should mention the fallback attempt: %v", err)
	}
	// 3 primary attempts plus the minimal fallback.
	if script.calls != 4 {
		t.Errorf("factory called %d times, want 4", script.calls)
	}
}

func TestNavigate_RebuildsSessionOnTimeout(t *testing.T) {
	bad := &fakeSession{viewport: 768, document: 600, navigateErr: fmt.Errorf("context deadline exceeded")}
	good := &fakeSession{viewport: 768, document: 600}
	script := &factoryScript{results: []func() (Session, error){
		okSession(bad),
		okSession(good),
	}}

	r, _ := newTestRenderer(t, testConfig(t), script.factory)
	cap, err := r.Capture(context.Background(), "https://x.com/a/status/1", "1", 10)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if len(cap.Screenshots) == 0 {
		t.Error("expected screenshots from the rebuilt session")
	}
	if bad.closed == 0 {
		t.Error("failed session should be closed before rebuilding")
	}
}

func TestNavigate_ExhaustedRetriesFail(t *testing.T) {
	mk := func() (Session, error) {
		return &fakeSession{viewport: 768, document: 600, navigateErr: fmt.Errorf("context deadline exceeded")}, nil
	}
	script := &factoryScript{results: []func() (Session, error){mk}}

	r, _ := newTestRenderer(t, testConfig(t), script.factory)
	_, err := r.Capture(context.Background(), "https://x.com/a/status/1", "1", 10)
	if err == nil {
		t.Fatal("expected navigation failure")
	}
	if !strings.Contains(err.Error(), "navigation failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		msg  string
		want failureClass
	}{
		{"websocket url timeout reached", failureTransient},
		{"cannot connect to browser at :9222", failureTransient},
		{"exec: chrome: executable file not found", failurePermanent},
		{"open /usr/bin/chromium: permission denied", failurePermanent},
		{"something entirely novel", failureUnknown},
	}
	for _, tt := range tests {
		if got := classifyFailure(errors.New(tt.msg)); got != tt.want {
			t.Errorf("classifyFailure(%q) = %d, want %d", tt.msg, got, tt.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ZoomPercent = 10
	if err := cfg.Validate(); err == nil {
		t.Error("zoom below 25 should be rejected")
	}
	cfg.ZoomPercent = 201
	if err := cfg.Validate(); err == nil {
		t.Error("zoom above 200 should be rejected")
	}
	cfg.ZoomPercent = 60
	if err := cfg.Validate(); err != nil {
		t.Errorf("default zoom should validate: %v", err)
	}
}
