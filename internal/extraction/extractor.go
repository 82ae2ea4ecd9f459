// Package extraction pulls authoritative text out of capture screenshots
// with an OCR-capable vision model and writes it back into the metadata
// record.
package extraction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lenswire/lenswire/internal/blobstore"
	"github.com/lenswire/lenswire/internal/llmlog"
	"github.com/lenswire/lenswire/internal/models"
)

// ErrNoText is returned when the model produces empty or whitespace-only
// output; that is a failure, not an empty success.
var ErrNoText = fmt.Errorf("could not extract text from screenshots")

// ChatCompleter is the slice of the OpenAI client the extractor needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Extractor reads a metadata record, runs OCR over its ordered screenshots,
// and appends full_text, summary, and extraction_timestamp in place.
type Extractor struct {
	llm      ChatCompleter
	store    blobstore.Store
	model    string
	logger   *slog.Logger
	recorder *llmlog.Recorder
	now      func() time.Time
}

// New constructs an extractor.
func New(llm ChatCompleter, store blobstore.Store, model string, logger *slog.Logger, recorder *llmlog.Recorder) *Extractor {
	return &Extractor{
		llm:      llm,
		store:    store,
		model:    model,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
}

// Extract updates the metadata record at metadataKey. A record that already
// carries full_text is left untouched and the model is not invoked.
func (e *Extractor) Extract(ctx context.Context, metadataKey string) error {
	var record models.MetadataRecord
	if err := e.store.GetJSON(ctx, metadataKey, &record); err != nil {
		return fmt.Errorf("load metadata %s: %w", metadataKey, err)
	}

	if record.FullText != "" {
		e.logger.Debug("full_text already present, skipping extraction",
			"tweet_id", record.TweetID, "metadata_key", metadataKey)
		return nil
	}

	if len(record.Screenshots) == 0 {
		return fmt.Errorf("metadata %s lists no screenshots", metadataKey)
	}

	fullText, summary, err := e.extractFromScreenshots(ctx, record.TweetID, record.Screenshots)
	if err != nil {
		return err
	}

	now := e.now().UTC()
	record.FullText = fullText
	record.Summary = summary
	record.ExtractionTimestamp = &now

	if err := e.store.PutJSON(ctx, metadataKey, &record); err != nil {
		return fmt.Errorf("write metadata %s: %w", metadataKey, err)
	}

	e.logger.Info("extracted text",
		"tweet_id", record.TweetID,
		"screenshots", len(record.Screenshots),
		"text_length", len(fullText))
	return nil
}

type extractionResponse struct {
	FullText string `json:"full_text"`
	Summary  string `json:"summary"`
}

// extractFromScreenshots sends the ordered screenshots to the vision model
// as one multi-image message.
func (e *Extractor) extractFromScreenshots(ctx context.Context, tweetID string, keys []string) (string, string, error) {
	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: extractionPrompt,
	}}

	for _, key := range keys {
		data, err := e.store.GetObject(ctx, key)
		if err != nil {
			return "", "", fmt.Errorf("download screenshot %s: %w", key, err)
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(data),
			},
		})
	}

	start := time.Now()
	resp, err := e.llm.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	})
	latency := time.Since(start)

	var usage openai.Usage
	if err == nil {
		usage = resp.Usage
	}
	e.recorder.Record(e.model, "text_extraction", usage, latency, err)

	if err != nil {
		return "", "", fmt.Errorf("ocr call failed for %s: %w", tweetID, err)
	}
	if len(resp.Choices) == 0 {
		return "", "", fmt.Errorf("no completion choices for %s", tweetID)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", "", ErrNoText
	}

	// The model usually honors the JSON shape; fall back to treating the
	// whole response as the text when it does not.
	var parsed extractionResponse
	if jerrr := json.Unmarshal([]byte(stripFences(content)), &parsed); jerrr == nil && strings.TrimSpace(parsed.FullText) != "" {
		return strings.TrimSpace(parsed.FullText), strings.TrimSpace(parsed.Summary), nil
	}

	return content, "", nil
}

const extractionPrompt = `These images are ordered screenshots of a social-media post (or thread), scrolled from top to bottom. Transcribe the authoritative text of the post exactly as visible, merging the screenshots in order and de-duplicating any overlap.

Respond with ONLY this JSON structure:
{
  "full_text": "the complete visible post text",
  "summary": "one or two sentences summarizing the post"
}`

func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	return strings.TrimSpace(trimmed)
}
