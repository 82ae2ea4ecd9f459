package models

import (
	"strings"
	"time"
)

// ClassificationResult holds both taxonomy levels plus the raw LLM responses
// for auditability. L2Topic is nil when classification stopped at an
// uncertain L1.
type ClassificationResult struct {
	L1Topics     string  `json:"l1_topics"`
	L1Confidence float64 `json:"l1_confidence"`
	L1Raw        string  `json:"l1_raw_response"`
	L2Topic      *string `json:"l2_topic"`
	L2Confidence float64 `json:"l2_confidence"`
	L2Raw        string  `json:"l2_raw_response,omitempty"`
}

// ClassifiedRecord is the record-store row derived from a classified
// metadata record, keyed by tweet ID. Upserts are idempotent: re-classifying
// the same post overwrites the prior row.
type ClassifiedRecord struct {
	TweetID        string               `json:"tweet_id"`
	AuthorID       string               `json:"author_id"`
	AuthorHandle   string               `json:"author_handle"`
	FullText       string               `json:"full_text"`
	CreatedAt      time.Time            `json:"created_at"`
	Classification ClassificationResult `json:"classification_result"`
	AIModels       []string             `json:"ai_models_used"`
	ScreenshotPath string               `json:"screenshot_path"`
	ClassifiedAt   time.Time            `json:"classified_at"`
}

// handleFromURL pulls the handle segment out of a status URL.
func handleFromURL(url string) string {
	parts := strings.Split(url, "/")
	for i, part := range parts {
		if part == "status" && i > 0 {
			return parts[i-1]
		}
	}
	return ""
}
