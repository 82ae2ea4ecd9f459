// Package blobstore persists screenshots and metadata JSON to object
// storage under a deterministic, content-typed key layout.
package blobstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/lenswire/lenswire/internal/models"
)

// Root is the fixed top-level prefix for all capture keys.
const Root = "visual_captures"

// Layout builds deterministic blob keys. Handles are lowercased so that
// re-running a capture for the same account and day overwrites the prior
// objects.
type Layout struct{}

// DateFolder formats the per-run date segment.
func (Layout) DateFolder(day time.Time) string {
	return day.UTC().Format("2006-01-02")
}

// ItemFolder returns the folder for one capture item:
// visual_captures/<date>/<handle>/<type>_<primary_id>.
func (l Layout) ItemFolder(day time.Time, handle string, ct models.ContentType, primaryID string) string {
	return fmt.Sprintf("%s/%s/%s/%s_%s", Root, l.DateFolder(day), strings.ToLower(handle), ct, primaryID)
}

// ThreadPostFolder returns the per-post sub-folder inside a thread's convo
// folder.
func (Layout) ThreadPostFolder(itemFolder, postID string) string {
	return fmt.Sprintf("%s/tweet_%s", itemFolder, postID)
}

// ScreenshotKey returns the key for the n-th screenshot (1-based) in a
// folder.
func (Layout) ScreenshotKey(folder string, n int) string {
	return fmt.Sprintf("%s/screenshot_%02d.png", folder, n)
}

// MetadataKey returns the metadata document key for an item folder. Threads
// use metadata.json at the convo folder root; singletons and retweets use
// capture_metadata.json.
func (Layout) MetadataKey(itemFolder string, ct models.ContentType) string {
	if ct == models.ContentTypeConvo {
		return itemFolder + "/metadata.json"
	}
	return itemFolder + "/capture_metadata.json"
}

// SummaryKey returns the per-invocation capture summary key for an account.
func (l Layout) SummaryKey(day time.Time, handle string) string {
	return fmt.Sprintf("%s/%s/%s/capture_summary.json", Root, l.DateFolder(day), strings.ToLower(handle))
}
