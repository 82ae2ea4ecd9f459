package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, c *PipelineCollector) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("metrics endpoint returned %d", rec.Code)
	}
	return rec.Body.String()
}

func TestPipelineCollector_Exposition(t *testing.T) {
	c, err := NewPipelineCollector()
	if err != nil {
		t.Fatalf("NewPipelineCollector: %v", err)
	}

	c.ObserveCapture("tweet", true)
	c.ObserveCapture("convo", false)
	c.ObserveScreenshots(3)
	c.ObserveLLMCall("gpt-4o-mini", "classify_l1", 2*time.Second, nil)
	c.ObserveLLMCall("gpt-4o", "text_extraction", time.Second, errors.New("boom"))
	c.ObserveClassification("Industry News")
	c.SetQueueDepth(7)

	body := scrape(t, c)

	checks := []string{
		`lenswire_capture_items_total{content_type="tweet",outcome="success"} 1`,
		`lenswire_capture_items_total{content_type="convo",outcome="failure"} 1`,
		`lenswire_capture_screenshots_total 3`,
		`lenswire_classify_results_total{level1="Industry News"} 1`,
		`lenswire_queue_depth 7`,
	}
	for _, want := range checks {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
	if !strings.Contains(body, `purpose="classify_l1"`) || !strings.Contains(body, `outcome="failure"`) {
		t.Error("llm call labels missing from exposition")
	}
}

func TestPipelineCollector_NilSafe(t *testing.T) {
	var c *PipelineCollector

	// None of these may panic.
	c.ObserveCapture("tweet", true)
	c.ObserveScreenshots(1)
	c.ObserveLLMCall("m", "p", time.Second, nil)
	c.ObserveClassification("x")
	c.SetQueueDepth(1)
}
