// Package worker consumes classification messages, runs the taxonomy
// classifier over each metadata record, and upserts the results into the
// record store.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lenswire/lenswire/internal/blobstore"
	"github.com/lenswire/lenswire/internal/classifier"
	"github.com/lenswire/lenswire/internal/metrics"
	"github.com/lenswire/lenswire/internal/models"
	"github.com/lenswire/lenswire/internal/queue"
	"github.com/lenswire/lenswire/internal/recordstore"
)

// Classifier is the slice of the topic classifier the worker needs.
type Classifier interface {
	Classify(ctx context.Context, postID, text string) (*classifier.Result, error)
}

// Config holds worker loop parameters.
type Config struct {
	BatchSize int
	FetchWait time.Duration
	IdleSleep time.Duration
}

// DefaultConfig returns the worker defaults.
func DefaultConfig() Config {
	return Config{BatchSize: 10, FetchWait: 5 * time.Second, IdleSleep: time.Second}
}

// Worker is the classification consumer. Messages are acked only after the
// classified record is durably stored; a crash between classify and ack
// redelivers the message, and the idempotent upsert absorbs the duplicate.
type Worker struct {
	queue      queue.Queue
	store      blobstore.Store
	classifier Classifier
	records    recordstore.Store
	cfg        Config
	metrics    *metrics.PipelineCollector
	logger     *slog.Logger
	depth      func(ctx context.Context) (int64, error)
	now        func() time.Time
}

// New constructs a worker.
func New(q queue.Queue, store blobstore.Store, cls Classifier, records recordstore.Store, cfg Config, collector *metrics.PipelineCollector, logger *slog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = time.Second
	}
	return &Worker{
		queue:      q,
		store:      store,
		classifier: cls,
		records:    records,
		cfg:        cfg,
		metrics:    collector,
		logger:     logger,
		now:        time.Now,
	}
}

// WithDepthGauge registers a queue-depth probe sampled once per loop
// iteration.
func (w *Worker) WithDepthGauge(depth func(ctx context.Context) (int64, error)) *Worker {
	w.depth = depth
	return w
}

// Run polls the queue until ctx is cancelled. A batch in flight when
// cancellation arrives is processed to completion before Run returns, so no
// fetched message is abandoned un-acked mid-classification.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("classification worker started", "batch_size", w.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("classification worker stopping")
			return nil
		default:
		}

		w.sampleDepth(ctx)

		msgs, err := w.queue.FetchBatch(ctx, w.cfg.BatchSize, w.cfg.FetchWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("queue fetch failed", "error", err)
			w.idle(ctx)
			continue
		}
		if len(msgs) == 0 {
			w.idle(ctx)
			continue
		}

		// Finish the batch even if shutdown begins while classifying.
		w.ProcessBatch(context.WithoutCancel(ctx), msgs)
	}
}

// DrainOnce fetches and processes batches until the queue yields nothing,
// returning the number of messages handled. Used by local in-process runs.
func (w *Worker) DrainOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		msgs, err := w.queue.FetchBatch(ctx, w.cfg.BatchSize, 0)
		if err != nil {
			return total, err
		}
		if len(msgs) == 0 {
			return total, nil
		}
		total += len(msgs)
		w.ProcessBatch(ctx, msgs)
	}
}

// ProcessBatch classifies every message, upserts the batch, and acks only
// the messages whose records were stored. Per-message failures leave the
// message un-acked for redelivery.
func (w *Worker) ProcessBatch(ctx context.Context, msgs []queue.Message) {
	var records []models.ClassifiedRecord
	var receipts []string

	for _, msg := range msgs {
		record, err := w.processMessage(ctx, msg)
		if err != nil {
			w.logger.Error("message processing failed, leaving for redelivery",
				"receipt", msg.Receipt, "error", err)
			continue
		}
		records = append(records, *record)
		receipts = append(receipts, msg.Receipt)
	}

	if len(records) == 0 {
		return
	}

	if err := w.records.PutBatch(ctx, records); err != nil {
		// Nothing acked: the whole batch redelivers and re-upserts.
		w.logger.Error("record store upsert failed", "count", len(records), "error", err)
		return
	}

	for _, receipt := range receipts {
		if err := w.queue.Ack(ctx, receipt); err != nil {
			w.logger.Warn("ack failed, message may redeliver", "receipt", receipt, "error", err)
		}
	}

	w.logger.Info("batch classified", "stored", len(records), "fetched", len(msgs))
}

// processMessage classifies one metadata record and returns the row to
// store. The classification fields are also appended to the metadata record
// in blob storage when not already present.
func (w *Worker) processMessage(ctx context.Context, msg queue.Message) (*models.ClassifiedRecord, error) {
	payload, err := queue.DecodePayload(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if payload.MetadataPath == "" {
		return nil, fmt.Errorf("payload missing metadata path")
	}

	var record models.MetadataRecord
	if err := w.store.GetJSON(ctx, payload.MetadataPath, &record); err != nil {
		return nil, fmt.Errorf("load metadata %s: %w", payload.MetadataPath, err)
	}

	text := record.Text()
	if text == "" {
		return nil, fmt.Errorf("metadata %s carries no text to classify", payload.MetadataPath)
	}

	result, err := w.classifier.Classify(ctx, record.TweetID, text)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", record.TweetID, err)
	}
	w.metrics.ObserveClassification(result.Level1)

	now := w.now().UTC()
	w.annotateMetadata(ctx, payload.MetadataPath, &record, result, now)

	classification := models.ClassificationResult{
		L1Topics:     result.Level1,
		L1Confidence: result.ConfL1,
		L1Raw:        result.RawL1,
		L2Confidence: result.ConfL2,
		L2Raw:        result.RawL2,
	}
	if len(result.Level2) > 0 {
		topic := result.Level2[0]
		classification.L2Topic = &topic
	}

	var screenshot string
	if len(record.Screenshots) > 0 {
		screenshot = record.Screenshots[0]
	}

	return &models.ClassifiedRecord{
		TweetID:        record.TweetID,
		AuthorID:       record.AuthorID(),
		AuthorHandle:   record.AuthorHandle(),
		FullText:       text,
		CreatedAt:      record.CreatedAt(),
		Classification: classification,
		AIModels:       []string{result.Model},
		ScreenshotPath: screenshot,
		ClassifiedAt:   now,
	}, nil
}

// annotateMetadata writes the classification fields back into the metadata
// record. Existing classification fields are left alone so a redelivered
// message cannot clobber a concurrent writer's result. Failures here are
// logged only; the record store remains authoritative.
func (w *Worker) annotateMetadata(ctx context.Context, key string, record *models.MetadataRecord, result *classifier.Result, now time.Time) {
	if record.L1Category != "" {
		return
	}

	confL1 := result.ConfL1
	record.L1Category = result.Level1
	record.L1Confidence = &confL1
	record.L1Reasoning = result.RawL1
	record.L1Timestamp = &now

	if len(result.Level2) > 0 {
		confL2 := result.ConfL2
		record.L2Category = result.Level2[0]
		record.L2Confidence = &confL2
		record.L2Timestamp = &now
	}

	if err := w.store.PutJSON(ctx, key, record); err != nil {
		w.logger.Warn("failed to annotate metadata with classification",
			"metadata_key", key, "error", err)
	}
}

func (w *Worker) idle(ctx context.Context) {
	timer := time.NewTimer(w.cfg.IdleSleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *Worker) sampleDepth(ctx context.Context) {
	if w.depth == nil {
		return
	}
	depth, err := w.depth(ctx)
	if err != nil {
		w.logger.Debug("queue depth probe failed", "error", err)
		return
	}
	w.metrics.SetQueueDepth(depth)
}
