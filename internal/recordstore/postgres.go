package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/lenswire/lenswire/internal/models"
)

// Postgres is the hosted record store: one row per tweet ID with the
// classification result stored as JSONB.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the classified_records table if it does not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS classified_records (
			tweet_id TEXT PRIMARY KEY,
			author_id TEXT NOT NULL DEFAULT '',
			author_handle TEXT NOT NULL DEFAULT '',
			full_text TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ,
			classification_result JSONB NOT NULL,
			ai_models_used TEXT[] NOT NULL DEFAULT '{}',
			screenshot_path TEXT NOT NULL DEFAULT '',
			classified_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure classified_records schema: %w", err)
	}
	return nil
}

func (s *Postgres) PutBatch(ctx context.Context, records []models.ClassifiedRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO classified_records (
			tweet_id, author_id, author_handle, full_text, created_at,
			classification_result, ai_models_used, screenshot_path, classified_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tweet_id) DO UPDATE SET
			author_id = EXCLUDED.author_id,
			author_handle = EXCLUDED.author_handle,
			full_text = EXCLUDED.full_text,
			created_at = EXCLUDED.created_at,
			classification_result = EXCLUDED.classification_result,
			ai_models_used = EXCLUDED.ai_models_used,
			screenshot_path = EXCLUDED.screenshot_path,
			classified_at = EXCLUDED.classified_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		classification, err := json.Marshal(r.Classification)
		if err != nil {
			return fmt.Errorf("marshal classification for %s: %w", r.TweetID, err)
		}
		_, err = stmt.ExecContext(ctx,
			r.TweetID, r.AuthorID, r.AuthorHandle, r.FullText, r.CreatedAt,
			classification, pq.Array(r.AIModels), r.ScreenshotPath, r.ClassifiedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", r.TweetID, err)
		}
	}

	return tx.Commit()
}

func (s *Postgres) Get(ctx context.Context, tweetID string) (*models.ClassifiedRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tweet_id, author_id, author_handle, full_text, created_at,
			classification_result, ai_models_used, screenshot_path, classified_at
		FROM classified_records
		WHERE tweet_id = $1
	`, tweetID)

	var r models.ClassifiedRecord
	var classification []byte
	err := row.Scan(
		&r.TweetID, &r.AuthorID, &r.AuthorHandle, &r.FullText, &r.CreatedAt,
		&classification, pq.Array(&r.AIModels), &r.ScreenshotPath, &r.ClassifiedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", tweetID, err)
	}

	if err := json.Unmarshal(classification, &r.Classification); err != nil {
		return nil, fmt.Errorf("decode classification for %s: %w", tweetID, err)
	}
	return &r, nil
}

func (s *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM classified_records`).Scan(&n)
	return n, err
}
