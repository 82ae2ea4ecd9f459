package recordstore

import (
	"context"
	"testing"
	"time"

	"github.com/lenswire/lenswire/internal/models"
)

func record(id, l1 string) models.ClassifiedRecord {
	return models.ClassifiedRecord{
		TweetID:      id,
		AuthorHandle: "alice",
		FullText:     "text",
		Classification: models.ClassificationResult{
			L1Topics:     l1,
			L1Confidence: 0.9,
		},
		AIModels:     []string{"test-model"},
		ClassifiedAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemory_UpsertIdempotent(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.PutBatch(ctx, []models.ClassifiedRecord{record("1", "Industry News")}); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}
	// Re-classification of the same post overwrites, never duplicates.
	if err := store.PutBatch(ctx, []models.ClassifiedRecord{record("1", "Product Launches")}); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 after duplicate upsert", count)
	}

	rec, err := store.Get(ctx, "1")
	if err != nil || rec == nil {
		t.Fatalf("Get: %v, %v", rec, err)
	}
	if rec.Classification.L1Topics != "Product Launches" {
		t.Errorf("L1 = %q, last write should win", rec.Classification.L1Topics)
	}
}

func TestMemory_GetMissing(t *testing.T) {
	store := NewMemory()
	rec, err := store.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec != nil {
		t.Errorf("missing key should return nil, got %+v", rec)
	}
}

func TestMemory_BatchMixedIDs(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	batch := []models.ClassifiedRecord{
		record("1", "Industry News"),
		record("2", "Industry News"),
		record("1", "Opinion & Commentary"), // duplicate within the batch
	}
	if err := store.PutBatch(ctx, batch); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	count, _ := store.Count(ctx)
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	rec, _ := store.Get(ctx, "1")
	if rec.Classification.L1Topics != "Opinion & Commentary" {
		t.Errorf("later batch entry should win: %q", rec.Classification.L1Topics)
	}
}
