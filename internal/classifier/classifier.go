// Package classifier assigns posts to a two-level topic taxonomy with a
// confidence-gated pair of LLM calls.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lenswire/lenswire/internal/llmlog"
)

// Uncertain is the L1 value returned when the model's confidence falls
// below the gate or the call persistently fails. It is not an error.
const Uncertain = "Uncertain"

// ChatCompleter is the slice of the OpenAI client the classifier needs;
// *openai.Client satisfies it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds classifier parameters.
type Config struct {
	Model       string
	L1Threshold float64
	MaxRetries  int
}

// DefaultConfig returns the classifier defaults.
func DefaultConfig(model string) Config {
	return Config{Model: model, L1Threshold: 0.5, MaxRetries: 2}
}

// Result is a fully-populated classification, including the raw LLM
// response strings for both calls.
type Result struct {
	Level1 string
	Level2 []string
	ConfL1 float64
	ConfL2 float64
	Model  string
	RawL1  string
	RawL2  string
}

// Classifier performs the two-pass hierarchical classification.
type Classifier struct {
	llm      ChatCompleter
	taxonomy *Taxonomy
	cfg      Config
	logger   *slog.Logger
	recorder *llmlog.Recorder
}

// New constructs a classifier over a loaded taxonomy.
func New(llm ChatCompleter, taxonomy *Taxonomy, cfg Config, logger *slog.Logger, recorder *llmlog.Recorder) *Classifier {
	return &Classifier{
		llm:      llm,
		taxonomy: taxonomy,
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
	}
}

type l1Response struct {
	Level1     string  `json:"level1"`
	Confidence float64 `json:"confidence"`
}

type l2Response struct {
	Level2     []string `json:"level2"`
	Confidence float64  `json:"confidence"`
}

// Classify runs the L1 pass and, when its confidence clears the gate, the
// L2 pass scoped to the chosen coarse topic. Persistent model failures
// yield an Uncertain result rather than an error.
func (c *Classifier) Classify(ctx context.Context, postID, text string) (*Result, error) {
	result := &Result{Model: c.cfg.Model, Level2: []string{}}

	rawL1, parsedL1, err := c.classifyL1(ctx, text)
	result.RawL1 = rawL1
	if err != nil {
		c.logger.Warn("level-1 classification failed, marking uncertain",
			"post_id", postID, "error", err)
		result.Level1 = Uncertain
		return result, nil
	}

	result.Level1 = parsedL1.Level1
	result.ConfL1 = parsedL1.Confidence

	if parsedL1.Confidence < c.cfg.L1Threshold {
		c.logger.Info("level-1 confidence below gate, skipping level 2",
			"post_id", postID,
			"level1", parsedL1.Level1,
			"confidence", parsedL1.Confidence,
			"threshold", c.cfg.L1Threshold)
		result.Level1 = Uncertain
		result.ConfL2 = 0
		return result, nil
	}

	rawL2, parsedL2, err := c.classifyL2(ctx, parsedL1.Level1, text)
	result.RawL2 = rawL2
	if err != nil {
		c.logger.Warn("level-2 classification failed, marking uncertain",
			"post_id", postID, "level1", parsedL1.Level1, "error", err)
		result.Level1 = Uncertain
		result.Level2 = []string{}
		result.ConfL2 = 0
		return result, nil
	}

	result.Level2 = c.taxonomy.FilterLevel2(parsedL1.Level1, parsedL2.Level2)
	result.ConfL2 = parsedL2.Confidence

	return result, nil
}

// classifyL1 issues the coarse-topic call with bounded retries against the
// identical prompt.
func (c *Classifier) classifyL1(ctx context.Context, text string) (string, *l1Response, error) {
	prompt := c.buildL1Prompt(text)

	var lastRaw string
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		raw, err := c.complete(ctx, prompt, "classify_l1")
		if err != nil {
			lastErr = err
			continue
		}
		lastRaw = raw

		var parsed l1Response
		if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
			lastErr = fmt.Errorf("malformed level-1 response: %w", err)
			continue
		}
		if !c.taxonomy.HasLevel1(parsed.Level1) {
			lastErr = fmt.Errorf("level-1 topic %q not in taxonomy", parsed.Level1)
			continue
		}
		return raw, &parsed, nil
	}

	return lastRaw, nil, lastErr
}

// classifyL2 issues the fine-topic call scoped to the chosen L1 topic.
func (c *Classifier) classifyL2(ctx context.Context, level1, text string) (string, *l2Response, error) {
	prompt := c.buildL2Prompt(level1, text)

	var lastRaw string
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		raw, err := c.complete(ctx, prompt, "classify_l2")
		if err != nil {
			lastErr = err
			continue
		}
		lastRaw = raw

		var parsed l2Response
		if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
			lastErr = fmt.Errorf("malformed level-2 response: %w", err)
			continue
		}
		return raw, &parsed, nil
	}

	return lastRaw, nil, lastErr
}

// complete issues one chat completion at temperature 0 and returns the
// message content. Empty content is a failure, not an empty success.
func (c *Classifier) complete(ctx context.Context, prompt, purpose string) (string, error) {
	start := time.Now()
	resp, err := c.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		// go-openai omits a zero temperature; the smallest positive float is
		// the documented way to pin the API to 0.
		Temperature: math.SmallestNonzeroFloat32,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	latency := time.Since(start)

	var usage openai.Usage
	if err == nil {
		usage = resp.Usage
	}
	c.recorder.Record(c.cfg.Model, purpose, usage, latency, err)

	if err != nil {
		return "", fmt.Errorf("llm call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices from model %s", c.cfg.Model)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("empty response from model %s", c.cfg.Model)
	}
	return content, nil
}

// extractJSON strips markdown code fences some models wrap around JSON.
func extractJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	return strings.TrimSpace(trimmed)
}
