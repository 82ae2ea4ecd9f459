package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/lenswire/lenswire/internal/blobstore"
	"github.com/lenswire/lenswire/internal/classifier"
	"github.com/lenswire/lenswire/internal/models"
	"github.com/lenswire/lenswire/internal/queue"
	"github.com/lenswire/lenswire/internal/recordstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeClassifier returns a fixed result, optionally failing specific posts.
type fakeClassifier struct {
	result  classifier.Result
	failFor map[string]bool
	calls   int
}

func (f *fakeClassifier) Classify(_ context.Context, postID, text string) (*classifier.Result, error) {
	f.calls++
	if f.failFor[postID] {
		return nil, fmt.Errorf("classifier down")
	}
	r := f.result
	return &r, nil
}

func confident() classifier.Result {
	return classifier.Result{
		Level1: "Breakthrough Research",
		Level2: []string{"Training Methods"},
		ConfL1: 0.9,
		ConfL2: 0.8,
		Model:  "test-model",
		RawL1:  `{"level1":"Breakthrough Research","confidence":0.9}`,
		RawL2:  `{"level2":["Training Methods"],"confidence":0.8}`,
	}
}

func seedCapture(t *testing.T, store *blobstore.Memory, q *queue.Memory, key string, record models.MetadataRecord) {
	t.Helper()
	ctx := context.Background()
	if err := store.PutJSON(ctx, key, record); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}
	body, err := queue.Payload{MetadataPath: key}.Encode()
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	if err := q.Send(ctx, body); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func singletonRecord(id string) models.MetadataRecord {
	return models.MetadataRecord{
		TweetID:     id,
		TweetURL:    "https://twitter.com/alice/status/" + id,
		ContentType: models.ContentTypeTweet,
		Screenshots: []string{"folder/screenshot_01.png", "folder/screenshot_02.png"},
		FullText:    "extracted text for " + id,
		TweetMetadata: &models.TweetInfo{
			ID:           id,
			AuthorID:     "u1",
			AuthorHandle: "alice",
			Text:         "api text",
			CreatedAt:    time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC),
		},
	}
}

func threadRecord(convoID string) models.MetadataRecord {
	return models.MetadataRecord{
		TweetID:     convoID,
		TweetURL:    "https://twitter.com/alice/status/" + convoID,
		ContentType: models.ContentTypeConvo,
		Screenshots: []string{"convo/tweet_" + convoID + "/screenshot_01.png"},
		ThreadSummary: &models.ThreadSummary{
			ConversationID:       convoID,
			AuthorID:             "u1",
			AuthorHandle:         "alice",
			TotalTweets:          2,
			SuccessfullyCaptured: 2,
			CombinedText:         "[1/2] one\n\n[2/2] two",
		},
		OrderedTweets: []models.OrderedTweet{
			{TweetID: convoID, Text: "one", CreatedAt: time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)},
		},
	}
}

func newTestWorker(store *blobstore.Memory, q *queue.Memory, cls Classifier, records recordstore.Store) *Worker {
	return New(q, store, cls, records, Config{BatchSize: 10, IdleSleep: time.Millisecond}, nil, testLogger())
}

func TestDrainOnce_ClassifiesAndStores(t *testing.T) {
	store := blobstore.NewMemory("b")
	q := queue.NewMemory(time.Minute)
	records := recordstore.NewMemory()
	key := "visual_captures/2026-08-24/alice/tweet_1/capture_metadata.json"
	seedCapture(t, store, q, key, singletonRecord("1"))

	w := newTestWorker(store, q, &fakeClassifier{result: confident()}, records)
	n, err := w.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}
	if n != 1 {
		t.Errorf("drained %d, want 1", n)
	}
	if q.Len() != 0 {
		t.Errorf("queue not empty after drain: %d", q.Len())
	}

	rec, err := records.Get(context.Background(), "1")
	if err != nil || rec == nil {
		t.Fatalf("record missing: %v", err)
	}
	if rec.Classification.L1Topics != "Breakthrough Research" {
		t.Errorf("L1 = %q", rec.Classification.L1Topics)
	}
	if rec.Classification.L2Topic == nil || *rec.Classification.L2Topic != "Training Methods" {
		t.Errorf("L2 = %v", rec.Classification.L2Topic)
	}
	if rec.FullText != "extracted text for 1" {
		t.Errorf("FullText = %q, should prefer the extracted text", rec.FullText)
	}
	if rec.ScreenshotPath != "folder/screenshot_01.png" {
		t.Errorf("ScreenshotPath = %q, want the first screenshot", rec.ScreenshotPath)
	}
	if len(rec.AIModels) != 1 || rec.AIModels[0] != "test-model" {
		t.Errorf("AIModels = %v", rec.AIModels)
	}
	if rec.AuthorHandle != "alice" || rec.AuthorID != "u1" {
		t.Errorf("author fields: %s/%s", rec.AuthorHandle, rec.AuthorID)
	}
}

func TestDrainOnce_ThreadRecordCarriesAuthor(t *testing.T) {
	store := blobstore.NewMemory("b")
	q := queue.NewMemory(time.Minute)
	records := recordstore.NewMemory()
	seedCapture(t, store, q, "c/metadata.json", threadRecord("9001"))

	w := newTestWorker(store, q, &fakeClassifier{result: confident()}, records)
	if _, err := w.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}

	rec, err := records.Get(context.Background(), "9001")
	if err != nil || rec == nil {
		t.Fatalf("thread record missing: %v", err)
	}
	if rec.AuthorID != "u1" {
		t.Errorf("author_id = %q, want u1", rec.AuthorID)
	}
	if rec.AuthorHandle != "alice" {
		t.Errorf("author_handle = %q, want alice", rec.AuthorHandle)
	}
	if rec.FullText != "[1/2] one\n\n[2/2] two" {
		t.Errorf("FullText = %q, want the combined thread text", rec.FullText)
	}
}

func TestDrainOnce_UncertainStoresNullL2(t *testing.T) {
	store := blobstore.NewMemory("b")
	q := queue.NewMemory(time.Minute)
	records := recordstore.NewMemory()
	key := "k/capture_metadata.json"
	seedCapture(t, store, q, key, singletonRecord("2"))

	uncertain := classifier.Result{
		Level1: classifier.Uncertain,
		Level2: []string{},
		ConfL1: 0.3,
		Model:  "test-model",
		RawL1:  `{"level1":"Industry News","confidence":0.3}`,
	}
	w := newTestWorker(store, q, &fakeClassifier{result: uncertain}, records)
	if _, err := w.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}

	rec, _ := records.Get(context.Background(), "2")
	if rec == nil {
		t.Fatal("uncertain result should still be stored")
	}
	if rec.Classification.L1Topics != classifier.Uncertain {
		t.Errorf("L1 = %q", rec.Classification.L1Topics)
	}
	if rec.Classification.L2Topic != nil {
		t.Errorf("L2Topic = %v, want nil", rec.Classification.L2Topic)
	}

	// Serialized form carries an explicit null.
	data, err := json.Marshal(rec.Classification)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"l2_topic":null`) {
		t.Errorf("serialized classification missing null l2_topic: %s", data)
	}
}

func TestDrainOnce_FailedMessageLeftForRedelivery(t *testing.T) {
	store := blobstore.NewMemory("b")
	q := queue.NewMemory(time.Minute)
	records := recordstore.NewMemory()
	seedCapture(t, store, q, "a/capture_metadata.json", singletonRecord("10"))
	seedCapture(t, store, q, "b/capture_metadata.json", singletonRecord("11"))

	cls := &fakeClassifier{result: confident(), failFor: map[string]bool{"11": true}}
	w := newTestWorker(store, q, cls, records)
	if _, err := w.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}

	if rec, _ := records.Get(context.Background(), "10"); rec == nil {
		t.Error("successful message not stored")
	}
	if rec, _ := records.Get(context.Background(), "11"); rec != nil {
		t.Error("failed message should not be stored")
	}
	// The failed delivery stays in flight for redelivery after the
	// visibility window.
	if q.Len() != 1 {
		t.Errorf("queue len = %d, want 1 unacked", q.Len())
	}
}

func TestDrainOnce_RedeliveryIsIdempotent(t *testing.T) {
	store := blobstore.NewMemory("b")
	q := queue.NewMemory(time.Minute)
	records := recordstore.NewMemory()
	key := "k/capture_metadata.json"
	seedCapture(t, store, q, key, singletonRecord("5"))

	// Simulate a crash after classify but before ack: process once without
	// acking by enqueueing the same payload twice.
	body, _ := queue.Payload{MetadataPath: key}.Encode()
	q.Send(context.Background(), body)

	w := newTestWorker(store, q, &fakeClassifier{result: confident()}, records)
	if _, err := w.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}

	count, _ := records.Count(context.Background())
	if count != 1 {
		t.Errorf("duplicate delivery created %d records, want 1", count)
	}
}

func TestDrainOnce_MalformedPayloadNotAcked(t *testing.T) {
	store := blobstore.NewMemory("b")
	q := queue.NewMemory(time.Minute)
	q.Send(context.Background(), "not json at all")

	w := newTestWorker(store, q, &fakeClassifier{result: confident()}, recordstore.NewMemory())
	if _, err := w.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}
	if q.Len() != 1 {
		t.Errorf("malformed message should stay in flight, len = %d", q.Len())
	}
}

func TestProcessBatch_AnnotatesMetadata(t *testing.T) {
	store := blobstore.NewMemory("b")
	q := queue.NewMemory(time.Minute)
	key := "k/capture_metadata.json"
	seedCapture(t, store, q, key, singletonRecord("3"))

	w := newTestWorker(store, q, &fakeClassifier{result: confident()}, recordstore.NewMemory())
	if _, err := w.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}

	var record models.MetadataRecord
	if err := store.GetJSON(context.Background(), key, &record); err != nil {
		t.Fatalf("reload metadata: %v", err)
	}
	if record.L1Category != "Breakthrough Research" {
		t.Errorf("L1_category = %q", record.L1Category)
	}
	if record.L1Confidence == nil || *record.L1Confidence != 0.9 {
		t.Errorf("L1_categorization_confidence = %v", record.L1Confidence)
	}
	if record.L2Category != "Training Methods" {
		t.Errorf("L2_category = %q", record.L2Category)
	}
	if record.L1Timestamp == nil || record.L2Timestamp == nil {
		t.Error("classification timestamps missing")
	}
	// Capture and extraction fields untouched.
	if record.FullText != "extracted text for 3" || len(record.Screenshots) != 2 {
		t.Errorf("prior fields clobbered: %+v", record)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := blobstore.NewMemory("b")
	q := queue.NewMemory(time.Minute)
	w := newTestWorker(store, q, &fakeClassifier{result: confident()}, recordstore.NewMemory())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestDrainOnce_NoTextNotAcked(t *testing.T) {
	store := blobstore.NewMemory("b")
	q := queue.NewMemory(time.Minute)
	key := "k/capture_metadata.json"
	record := models.MetadataRecord{TweetID: "9", Screenshots: []string{"s.png"}}
	seedCapture(t, store, q, key, record)

	cls := &fakeClassifier{result: confident()}
	w := newTestWorker(store, q, cls, recordstore.NewMemory())
	if _, err := w.DrainOnce(context.Background()); err != nil {
		t.Fatalf("DrainOnce failed: %v", err)
	}
	if cls.calls != 0 {
		t.Errorf("classifier invoked for textless record: %d calls", cls.calls)
	}
	if q.Len() != 1 {
		t.Errorf("textless message should stay for redelivery, len = %d", q.Len())
	}
}
