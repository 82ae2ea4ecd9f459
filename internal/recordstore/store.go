// Package recordstore persists classified records keyed by tweet ID.
package recordstore

import (
	"context"

	"github.com/lenswire/lenswire/internal/models"
)

// Store is the record-store capability set. PutBatch is an idempotent
// upsert: writing the same tweet ID twice leaves one row, last write wins.
type Store interface {
	PutBatch(ctx context.Context, records []models.ClassifiedRecord) error
	Get(ctx context.Context, tweetID string) (*models.ClassifiedRecord, error)
	Count(ctx context.Context) (int, error)
}
