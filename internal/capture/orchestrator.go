// Package capture orchestrates the per-account pipeline: fetch recent
// posts, render each capture item through the browser, persist screenshots
// and the authoritative metadata record, and enqueue the item for
// classification.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/lenswire/lenswire/internal/blobstore"
	"github.com/lenswire/lenswire/internal/browser"
	"github.com/lenswire/lenswire/internal/metrics"
	"github.com/lenswire/lenswire/internal/models"
	"github.com/lenswire/lenswire/internal/queue"
)

// Fetcher is the slice of the post fetcher the orchestrator needs.
type Fetcher interface {
	GroupThreads(ctx context.Context, handle string, daysBack, maxItems int) ([]models.CaptureItem, error)
}

// Renderer is the slice of the browser renderer the orchestrator needs.
type Renderer interface {
	Capture(ctx context.Context, url, postID string, maxShots int) (*browser.Capture, error)
}

// Config holds per-item capture parameters.
type Config struct {
	ZoomPercent int
	Crop        models.CropSettings

	// MaxScreenshots bounds singleton captures; ThreadScreenshots bounds
	// each post inside a thread.
	MaxScreenshots    int
	ThreadScreenshots int
}

// Orchestrator wires fetcher, renderer, blob sink, and queue for one
// account at a time. Captures within an account are strictly sequential:
// the renderer owns the scarce browser resource.
type Orchestrator struct {
	fetcher  Fetcher
	renderer Renderer
	store    blobstore.Store
	queue    queue.Queue
	layout   blobstore.Layout
	cfg      Config
	metrics  *metrics.PipelineCollector
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs an orchestrator. q may be nil when no classification stage
// follows (dry runs).
func New(fetcher Fetcher, renderer Renderer, store blobstore.Store, q queue.Queue, cfg Config, collector *metrics.PipelineCollector, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		fetcher:  fetcher,
		renderer: renderer,
		store:    store,
		queue:    q,
		cfg:      cfg,
		metrics:  collector,
		logger:   logger,
		now:      time.Now,
	}
}

// withClock overrides the clock (tests).
func (o *Orchestrator) withClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// ItemResult is one capture item's outcome in the account summary.
type ItemResult struct {
	TweetID      string             `json:"tweet_id"`
	ContentType  models.ContentType `json:"content_type"`
	FolderPrefix string             `json:"s3_folder_prefix,omitempty"`
	MetadataKey  string             `json:"s3_metadata_path,omitempty"`
	Screenshots  int                `json:"screenshot_count"`
	Error        string             `json:"error,omitempty"`
}

// Summary aggregates one CaptureAccount invocation. It is persisted as
// capture_summary.json next to the account's item folders.
type Summary struct {
	Account       string       `json:"account"`
	CaptureDate   string       `json:"capture_date"`
	Bucket        string       `json:"s3_bucket"`
	ItemsFound    int          `json:"items_found"`
	ItemsCaptured int          `json:"items_captured"`
	Threads       int          `json:"threads"`
	Singletons    int          `json:"singletons"`
	SuccessRate   float64      `json:"success_rate"`
	Items         []ItemResult `json:"items"`
}

// CaptureAccount runs the full capture pipeline for one handle. Item
// failures are isolated: they are recorded in the summary and never abort
// sibling items.
func (o *Orchestrator) CaptureAccount(ctx context.Context, handle string, daysBack, maxItems int) (*Summary, error) {
	day := o.now().UTC()

	items, err := o.fetcher.GroupThreads(ctx, handle, daysBack, maxItems)
	if err != nil {
		return nil, fmt.Errorf("fetch posts for @%s: %w", handle, err)
	}

	summary := &Summary{
		Account:     handle,
		CaptureDate: o.layout.DateFolder(day),
		Bucket:      o.store.Bucket(),
		ItemsFound:  len(items),
		Items:       make([]ItemResult, 0, len(items)),
	}

	for _, item := range items {
		if item.Type == models.ContentTypeConvo {
			summary.Threads++
		} else {
			summary.Singletons++
		}

		result := o.captureItem(ctx, day, handle, item)
		summary.Items = append(summary.Items, result)

		ok := result.Error == ""
		o.metrics.ObserveCapture(string(item.Type), ok)
		if ok {
			summary.ItemsCaptured++
		} else {
			o.logger.Warn("capture item failed",
				"handle", handle,
				"tweet_id", result.TweetID,
				"content_type", result.ContentType,
				"error", result.Error)
		}
	}

	if summary.ItemsFound > 0 {
		summary.SuccessRate = float64(summary.ItemsCaptured) / float64(summary.ItemsFound)
	}

	summaryKey := o.layout.SummaryKey(day, handle)
	if err := o.store.PutJSON(ctx, summaryKey, summary); err != nil {
		o.logger.Error("failed to write capture summary", "key", summaryKey, "error", err)
	}

	o.logger.Info("account capture complete",
		"handle", handle,
		"found", summary.ItemsFound,
		"captured", summary.ItemsCaptured,
		"threads", summary.Threads)

	return summary, nil
}

// captureItem renders, uploads, and records one capture item.
func (o *Orchestrator) captureItem(ctx context.Context, day time.Time, handle string, item models.CaptureItem) ItemResult {
	result := ItemResult{
		TweetID:     item.PrimaryID(),
		ContentType: item.Type,
	}

	folder := o.layout.ItemFolder(day, handle, item.Type, item.PrimaryID())
	result.FolderPrefix = folder

	var record *models.MetadataRecord
	var err error
	if item.Type == models.ContentTypeConvo {
		record, err = o.captureThread(ctx, folder, item.Thread)
	} else {
		record, err = o.captureSingle(ctx, folder, item)
	}
	if err != nil {
		result.Error = err.Error()
		return result
	}

	record.ContentType = item.Type
	record.Bucket = o.store.Bucket()
	record.FolderPrefix = folder
	record.BrowserZoom = o.cfg.ZoomPercent
	record.Cropping = o.cfg.Crop

	metadataKey := o.layout.MetadataKey(folder, item.Type)
	if err := o.store.PutJSON(ctx, metadataKey, record); err != nil {
		result.Error = fmt.Sprintf("write metadata: %v", err)
		return result
	}
	result.MetadataKey = metadataKey
	result.Screenshots = record.ScreenshotCount

	if o.queue != nil {
		body, err := queue.Payload{MetadataPath: metadataKey}.Encode()
		if err == nil {
			err = o.queue.Send(ctx, body)
		}
		if err != nil {
			// Classification is recoverable by a later re-run; the capture
			// itself stands.
			o.logger.Error("failed to enqueue for classification",
				"metadata_key", metadataKey, "error", err)
		}
	}

	return result
}

// captureSingle renders a singleton or retweet.
func (o *Orchestrator) captureSingle(ctx context.Context, folder string, item models.CaptureItem) (*models.MetadataRecord, error) {
	post := item.Post

	cap, err := o.renderer.Capture(ctx, post.URL(), post.ID, o.cfg.MaxScreenshots)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", post.URL(), err)
	}

	keys := o.uploadScreenshots(ctx, folder, cap.Screenshots)
	if len(keys) == 0 {
		return nil, fmt.Errorf("no screenshots uploaded for %s", post.ID)
	}
	o.metrics.ObserveScreenshots(len(keys))

	info := models.TweetInfoFrom(*post)
	return &models.MetadataRecord{
		TweetID:          post.ID,
		TweetURL:         post.URL(),
		CaptureTimestamp: cap.Timestamp,
		ScreenshotCount:  len(keys),
		Screenshots:      keys,
		TweetMetadata:    &info,
	}, nil
}

// captureThread renders each constituent post in ascending id order (capture
// order, distinct from chronological display order). Per-post failures are
// isolated; the record lists only successfully-captured posts.
func (o *Orchestrator) captureThread(ctx context.Context, folder string, thread *models.Thread) (*models.MetadataRecord, error) {
	byID := make([]models.Post, len(thread.Tweets))
	copy(byID, thread.Tweets)
	sort.Slice(byID, func(i, j int) bool { return byID[i].ID < byID[j].ID })

	var ordered []models.OrderedTweet
	var allKeys []string
	captureTime := o.now().UTC()

	for _, post := range byID {
		cap, err := o.renderer.Capture(ctx, post.URL(), post.ID, o.cfg.ThreadScreenshots)
		if err != nil {
			o.logger.Warn("thread post capture failed, continuing",
				"conversation_id", thread.ConversationID,
				"tweet_id", post.ID,
				"error", err)
			continue
		}
		captureTime = cap.Timestamp

		postFolder := o.layout.ThreadPostFolder(folder, post.ID)
		keys := o.uploadScreenshots(ctx, postFolder, cap.Screenshots)
		if len(keys) == 0 {
			o.logger.Warn("thread post produced no uploaded screenshots",
				"conversation_id", thread.ConversationID,
				"tweet_id", post.ID)
			continue
		}
		o.metrics.ObserveScreenshots(len(keys))

		ordered = append(ordered, models.OrderedTweet{
			TweetID:         post.ID,
			Text:            post.Text,
			CreatedAt:       post.CreatedAt,
			PublicMetrics:   post.Metrics,
			ScreenshotCount: len(keys),
			Screenshots:     keys,
		})
		allKeys = append(allKeys, keys...)
	}

	if len(ordered) == 0 {
		return nil, fmt.Errorf("no posts captured for conversation %s", thread.ConversationID)
	}

	return &models.MetadataRecord{
		TweetID:          thread.PrimaryID(),
		TweetURL:         thread.Tweets[0].URL(),
		CaptureTimestamp: captureTime,
		ScreenshotCount:  len(allKeys),
		Screenshots:      allKeys,
		ThreadSummary: &models.ThreadSummary{
			ConversationID:       thread.ConversationID,
			AuthorID:             thread.Tweets[0].AuthorID,
			AuthorHandle:         thread.Tweets[0].AuthorHandle,
			TotalTweets:          thread.Count(),
			SuccessfullyCaptured: len(ordered),
			CombinedText:         thread.CombinedText(),
			AggregateMetrics:     thread.AggregateMetrics(),
			Truncated:            thread.Truncated,
		},
		OrderedTweets: ordered,
	}, nil
}

// uploadScreenshots pushes local screenshot files to blob storage. Per-file
// failures are logged and skipped; the returned keys cover only successful
// uploads. Local files are removed after upload.
func (o *Orchestrator) uploadScreenshots(ctx context.Context, folder string, paths []string) []string {
	keys := make([]string, 0, len(paths))
	for i, path := range paths {
		key := o.layout.ScreenshotKey(folder, i+1)
		if err := o.store.PutImage(ctx, path, key); err != nil {
			o.logger.Error("screenshot upload failed",
				"path", path, "key", key, "error", err)
			continue
		}
		keys = append(keys, key)
		if err := os.Remove(path); err != nil {
			o.logger.Debug("failed to remove local screenshot", "path", path, "error", err)
		}
	}
	return keys
}
