package models

import "time"

// TweetInfo is the per-post block embedded in a metadata record.
type TweetInfo struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	AuthorID       string        `json:"author_id"`
	AuthorHandle   string        `json:"author_handle"`
	AuthorName     string        `json:"author_name"`
	Text           string        `json:"text"`
	CreatedAt      time.Time     `json:"created_at"`
	PublicMetrics  PublicMetrics `json:"public_metrics"`
}

// TweetInfoFrom copies the post fields that the metadata record carries.
func TweetInfoFrom(p Post) TweetInfo {
	return TweetInfo{
		ID:             p.ID,
		ConversationID: p.ConversationID,
		AuthorID:       p.AuthorID,
		AuthorHandle:   p.AuthorHandle,
		AuthorName:     p.AuthorName,
		Text:           p.Text,
		CreatedAt:      p.CreatedAt,
		PublicMetrics:  p.Metrics,
	}
}

// OrderedTweet is a thread constituent as it appears in the metadata record,
// carrying capture info alongside the post fields. Entries are ordered by
// post ID ascending (capture order), which may differ from chronological
// display order.
type OrderedTweet struct {
	TweetID         string        `json:"tweet_id"`
	Text            string        `json:"text"`
	CreatedAt       time.Time     `json:"created_at"`
	PublicMetrics   PublicMetrics `json:"public_metrics"`
	ScreenshotCount int           `json:"screenshot_count"`
	Screenshots     []string      `json:"s3_screenshots"`
}

// ThreadSummary aggregates a captured thread inside the metadata record.
// Author fields apply to every constituent post: threads are single-author
// by construction.
type ThreadSummary struct {
	ConversationID       string        `json:"conversation_id"`
	AuthorID             string        `json:"author_id"`
	AuthorHandle         string        `json:"author_handle"`
	TotalTweets          int           `json:"total_tweets_in_thread"`
	SuccessfullyCaptured int           `json:"successfully_captured"`
	CombinedText         string        `json:"combined_text"`
	AggregateMetrics     PublicMetrics `json:"aggregate_metrics"`
	Truncated            bool          `json:"truncated,omitempty"`
}

// MetadataRecord is the authoritative JSON document persisted to blob
// storage for each capture item. It is the single source of truth for the
// item: the extractor and the classifier read it and append their fields in
// place, never removing existing keys.
type MetadataRecord struct {
	TweetID          string       `json:"tweet_id"`
	TweetURL         string       `json:"tweet_url"`
	ContentType      ContentType  `json:"content_type"`
	CaptureTimestamp time.Time    `json:"capture_timestamp"`
	ScreenshotCount  int          `json:"screenshot_count"`
	Screenshots      []string     `json:"s3_screenshots"`
	Bucket           string       `json:"s3_bucket"`
	FolderPrefix     string       `json:"s3_folder_prefix"`
	BrowserZoom      int          `json:"browser_zoom"`
	Cropping         CropSettings `json:"cropping"`

	// Exactly one of TweetMetadata (singleton/retweet) or
	// ThreadSummary+OrderedTweets (thread) is populated.
	TweetMetadata *TweetInfo     `json:"tweet_metadata,omitempty"`
	ThreadSummary *ThreadSummary `json:"thread_summary,omitempty"`
	OrderedTweets []OrderedTweet `json:"ordered_tweets,omitempty"`

	// Appended by the text extractor.
	FullText            string     `json:"full_text,omitempty"`
	Summary             string     `json:"summary,omitempty"`
	ExtractionTimestamp *time.Time `json:"extraction_timestamp,omitempty"`

	// Appended by the classification worker.
	L1Category   string     `json:"L1_category,omitempty"`
	L1Confidence *float64   `json:"L1_categorization_confidence,omitempty"`
	L1Reasoning  string     `json:"L1_categorization_reasoning,omitempty"`
	L1Timestamp  *time.Time `json:"L1_categorization_timestamp,omitempty"`
	L2Category   string     `json:"L2_category,omitempty"`
	L2Confidence *float64   `json:"L2_categorization_confidence,omitempty"`
	L2Timestamp  *time.Time `json:"L2_categorization_timestamp,omitempty"`
}

// Text returns the best available body text for classification: the
// OCR-extracted full text when present, otherwise the API-reported text.
func (r *MetadataRecord) Text() string {
	if r.FullText != "" {
		return r.FullText
	}
	if r.TweetMetadata != nil {
		return r.TweetMetadata.Text
	}
	if r.ThreadSummary != nil {
		return r.ThreadSummary.CombinedText
	}
	return ""
}

// AuthorID returns the author ID recorded for the item.
func (r *MetadataRecord) AuthorID() string {
	if r.TweetMetadata != nil {
		return r.TweetMetadata.AuthorID
	}
	if r.ThreadSummary != nil {
		return r.ThreadSummary.AuthorID
	}
	return ""
}

// AuthorHandle returns the author handle recorded for the item.
func (r *MetadataRecord) AuthorHandle() string {
	if r.TweetMetadata != nil {
		return r.TweetMetadata.AuthorHandle
	}
	if r.ThreadSummary != nil {
		if r.ThreadSummary.AuthorHandle != "" {
			return r.ThreadSummary.AuthorHandle
		}
		return handleFromURL(r.TweetURL)
	}
	return ""
}

// CreatedAt returns the primary post's creation time when known, falling
// back to the capture timestamp.
func (r *MetadataRecord) CreatedAt() time.Time {
	if r.TweetMetadata != nil {
		return r.TweetMetadata.CreatedAt
	}
	if len(r.OrderedTweets) > 0 {
		return r.OrderedTweets[0].CreatedAt
	}
	return r.CaptureTimestamp
}
