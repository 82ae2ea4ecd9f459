// Package llmlog records every LLM call for auditability: model, purpose,
// token usage, latency, and outcome.
package llmlog

import (
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lenswire/lenswire/internal/metrics"
)

// Recorder logs LLM calls through slog and feeds the call-duration
// histogram. A nil Recorder is a no-op.
type Recorder struct {
	logger  *slog.Logger
	metrics *metrics.PipelineCollector
}

// New creates a recorder. metrics may be nil.
func New(logger *slog.Logger, collector *metrics.PipelineCollector) *Recorder {
	return &Recorder{logger: logger, metrics: collector}
}

// Record logs one completed (or failed) LLM call.
func (r *Recorder) Record(model, purpose string, usage openai.Usage, latency time.Duration, err error) {
	if r == nil {
		return
	}

	r.metrics.ObserveLLMCall(model, purpose, latency, err)

	if err != nil {
		r.logger.Warn("llm call failed",
			"model", model,
			"purpose", purpose,
			"latency_ms", latency.Milliseconds(),
			"error", err)
		return
	}

	r.logger.Info("llm call",
		"model", model,
		"purpose", purpose,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"total_tokens", usage.TotalTokens,
		"latency_ms", latency.Milliseconds())
}
