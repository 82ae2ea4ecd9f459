// Command pipeline runs the capture side of lenswire: it fetches recent
// posts for a set of accounts, renders and uploads screenshots, extracts
// text, and enqueues each capture item for classification. Without --hosted
// (or without the hosted backends' environment variables) it runs fully
// self-contained, draining the in-memory queue through an in-process
// classification worker.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/lenswire/lenswire/internal/blobstore"
	"github.com/lenswire/lenswire/internal/browser"
	"github.com/lenswire/lenswire/internal/capture"
	"github.com/lenswire/lenswire/internal/classifier"
	"github.com/lenswire/lenswire/internal/config"
	"github.com/lenswire/lenswire/internal/extraction"
	"github.com/lenswire/lenswire/internal/fetcher"
	"github.com/lenswire/lenswire/internal/llmlog"
	"github.com/lenswire/lenswire/internal/logging"
	"github.com/lenswire/lenswire/internal/metrics"
	"github.com/lenswire/lenswire/internal/queue"
	"github.com/lenswire/lenswire/internal/recordstore"
	"github.com/lenswire/lenswire/internal/worker"
)

type flags struct {
	accounts     []string
	daysBack     int
	maxItems     int
	outputDir    string
	concurrency  int
	taxonomyPath string
	skipClassify bool
	hosted       bool
}

// accountOutcome is one handle's entry in the run manifest.
type accountOutcome struct {
	Account       string `json:"account"`
	ItemsFound    int    `json:"items_found"`
	ItemsCaptured int    `json:"items_captured"`
	Error         string `json:"error,omitempty"`
}

// runManifest is written to the output directory at the end of a run.
type runManifest struct {
	StartedAt         time.Time        `json:"started_at"`
	FinishedAt        time.Time        `json:"finished_at"`
	Accounts          []accountOutcome `json:"accounts"`
	ItemsCaptured     int              `json:"items_captured"`
	RecordsClassified int              `json:"records_classified"`
}

func main() {
	var f flags

	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Capture, extract, and classify recent posts for a set of accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringSliceVar(&f.accounts, "accounts", nil, "account handles to capture (required)")
	cmd.Flags().IntVar(&f.daysBack, "days", 7, "look-back window in days")
	cmd.Flags().IntVar(&f.maxItems, "max", 20, "maximum capture items per account")
	cmd.Flags().StringVar(&f.outputDir, "output", "run_artifacts", "local output directory (used when no hosted blob store is configured)")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 2, "accounts processed in parallel")
	cmd.Flags().StringVar(&f.taxonomyPath, "taxonomy", "", "taxonomy registry path (embedded default when empty)")
	cmd.Flags().BoolVar(&f.skipClassify, "skip-classify", false, "capture and extract only, leave messages on the queue")
	cmd.Flags().BoolVar(&f.hosted, "hosted", false, "use hosted queue/store backends where their environment variables are present")
	cmd.MarkFlagRequired("accounts")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags) error {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Twitter.BearerToken == "" {
		return fmt.Errorf("TWITTER_BEARER_TOKEN is required")
	}
	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	collector, err := metrics.NewPipelineCollector()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	store, err := buildBlobStore(ctx, cfg, f.outputDir, f.hosted, logger)
	if err != nil {
		return err
	}

	q, err := buildQueue(ctx, cfg, f.hosted, logger)
	if err != nil {
		return err
	}

	records, dbClose, err := buildRecordStore(ctx, cfg, f.hosted)
	if err != nil {
		return err
	}
	defer dbClose()

	browserCfg := browser.Config{
		ZoomPercent:       cfg.Browser.ZoomPercent,
		Crop:              cfg.Browser.Crop,
		MaxBrowserRetries: cfg.Browser.MaxBrowserRetries,
		RetryDelay:        cfg.Browser.RetryDelay,
		RetryBackoff:      cfg.Browser.RetryBackoff,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		NavigationRetries: cfg.Browser.NavigationRetries,
		PostLoadDwell:     cfg.Browser.PostLoadDwell,
		ScrollDelay:       cfg.Browser.ScrollDelay,
		WorkDir:           cfg.Browser.WorkDir,
	}
	renderer, err := browser.NewRenderer(browserCfg, browser.NewChromedpFactory(), logger)
	if err != nil {
		return fmt.Errorf("init renderer: %w", err)
	}

	llm := openai.NewClient(cfg.OpenAI.APIKey)
	recorder := llmlog.New(logger, collector)
	extractor := extraction.New(llm, store, cfg.OpenAI.OCRModel, logger, recorder)

	orchestrator := capture.New(
		fetcher.NewClient(cfg.Twitter.BearerToken, logger),
		renderer,
		store,
		q,
		capture.Config{
			ZoomPercent:       cfg.Browser.ZoomPercent,
			Crop:              cfg.Browser.Crop,
			MaxScreenshots:    cfg.Browser.MaxScreenshots,
			ThreadScreenshots: cfg.Browser.ThreadScreenshots,
		},
		collector,
		logger,
	)

	manifest := runManifest{StartedAt: time.Now().UTC()}

	// Bounded fan-out over accounts. Each account's captures are sequential;
	// only distinct accounts run in parallel.
	type accountRun struct {
		outcome accountOutcome
		summary *capture.Summary
	}
	results := make([]accountRun, len(f.accounts))
	sem := make(chan struct{}, max(1, f.concurrency))
	var wg sync.WaitGroup

	for i, handle := range f.accounts {
		wg.Add(1)
		go func(i int, handle string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome := accountOutcome{Account: handle}
			summary, err := orchestrator.CaptureAccount(ctx, handle, f.daysBack, f.maxItems)
			if err != nil {
				outcome.Error = err.Error()
				logger.Error("account capture failed", "handle", handle, "error", err)
			} else {
				outcome.ItemsFound = summary.ItemsFound
				outcome.ItemsCaptured = summary.ItemsCaptured
			}
			results[i] = accountRun{outcome: outcome, summary: summary}
		}(i, handle)
	}
	wg.Wait()

	for _, r := range results {
		manifest.Accounts = append(manifest.Accounts, r.outcome)
		manifest.ItemsCaptured += r.outcome.ItemsCaptured

		if r.summary == nil {
			continue
		}
		for _, item := range r.summary.Items {
			if item.MetadataKey == "" {
				continue
			}
			if err := extractor.Extract(ctx, item.MetadataKey); err != nil {
				logger.Warn("text extraction failed",
					"metadata_key", item.MetadataKey, "error", err)
			}
		}
	}

	if !f.skipClassify {
		taxonomy, err := classifier.LoadTaxonomy(f.taxonomyPath)
		if err != nil {
			return fmt.Errorf("load taxonomy: %w", err)
		}
		clsCfg := classifier.DefaultConfig(cfg.OpenAI.ClassifyModel)
		clsCfg.L1Threshold = cfg.OpenAI.L1Threshold
		cls := classifier.New(llm, taxonomy, clsCfg, logger, recorder)

		w := worker.New(q, store, cls, records, worker.Config{
			BatchSize: cfg.Worker.BatchSize,
			IdleSleep: cfg.Worker.IdleSleep,
		}, collector, logger)

		classified, err := w.DrainOnce(ctx)
		if err != nil {
			logger.Error("queue drain failed", "classified", classified, "error", err)
		}
		manifest.RecordsClassified = classified
	}

	manifest.FinishedAt = time.Now().UTC()
	if err := writeManifest(f.outputDir, manifest); err != nil {
		logger.Warn("failed to write run manifest", "error", err)
	}

	logger.Info("run complete",
		"accounts", len(f.accounts),
		"items_captured", manifest.ItemsCaptured,
		"records_classified", manifest.RecordsClassified)

	if manifest.ItemsCaptured == 0 {
		return fmt.Errorf("no items captured for any account")
	}
	return nil
}

// buildBlobStore selects the hosted object store when --hosted is set and
// the store is configured, otherwise a filesystem sink under the output
// directory.
func buildBlobStore(ctx context.Context, cfg config.Config, outputDir string, hosted bool, logger *slog.Logger) (blobstore.Store, error) {
	if hosted && cfg.Blob.Hosted() {
		return blobstore.NewMinioStore(ctx, cfg.Blob, logger)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return blobstore.NewLocal(outputDir, cfg.Blob.Bucket), nil
}

func buildQueue(ctx context.Context, cfg config.Config, hosted bool, logger *slog.Logger) (queue.Queue, error) {
	if hosted && cfg.Queue.Hosted() {
		return queue.NewRedis(ctx, cfg.Queue, logger)
	}
	return queue.NewMemory(cfg.Queue.VisibilityTimeout), nil
}

func buildRecordStore(ctx context.Context, cfg config.Config, hosted bool) (recordstore.Store, func(), error) {
	if !hosted || !cfg.Records.Hosted() {
		return recordstore.NewMemory(), func() {}, nil
	}
	db, err := sql.Open("postgres", cfg.Records.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	store := recordstore.NewPostgres(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}

func writeManifest(dir string, manifest runManifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "run_manifest.json"), data, 0o644)
}
