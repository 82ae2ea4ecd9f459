// Command worker runs the standalone classification consumer against hosted
// backends: it polls the Redis queue, classifies each metadata record, and
// upserts the results into Postgres. It serves /metrics and /healthz while
// running and drains in-flight work on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lenswire/lenswire/internal/blobstore"
	"github.com/lenswire/lenswire/internal/classifier"
	"github.com/lenswire/lenswire/internal/config"
	"github.com/lenswire/lenswire/internal/llmlog"
	"github.com/lenswire/lenswire/internal/logging"
	"github.com/lenswire/lenswire/internal/metrics"
	"github.com/lenswire/lenswire/internal/queue"
	"github.com/lenswire/lenswire/internal/recordstore"
	"github.com/lenswire/lenswire/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if !cfg.Blob.Hosted() {
		return fmt.Errorf("S3_ENDPOINT is required: the worker reads metadata from hosted object storage")
	}
	if !cfg.Queue.Hosted() {
		return fmt.Errorf("REDIS_ADDR is required: the worker consumes the hosted queue")
	}
	if !cfg.Records.Hosted() {
		return fmt.Errorf("DATABASE_URL is required: the worker writes the hosted record store")
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector, err := metrics.NewPipelineCollector()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	store, err := blobstore.NewMinioStore(ctx, cfg.Blob, logger)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	q, err := queue.NewRedis(ctx, cfg.Queue, logger)
	if err != nil {
		return fmt.Errorf("init queue: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Records.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	records := recordstore.NewPostgres(db)
	if err := records.EnsureSchema(ctx); err != nil {
		return err
	}

	taxonomy, err := classifier.LoadTaxonomy(os.Getenv("TAXONOMY_PATH"))
	if err != nil {
		return fmt.Errorf("load taxonomy: %w", err)
	}

	llm := openai.NewClient(cfg.OpenAI.APIKey)
	recorder := llmlog.New(logger, collector)
	clsCfg := classifier.DefaultConfig(cfg.OpenAI.ClassifyModel)
	clsCfg.L1Threshold = cfg.OpenAI.L1Threshold
	cls := classifier.New(llm, taxonomy, clsCfg, logger, recorder)

	w := worker.New(q, store, cls, records, worker.Config{
		BatchSize: cfg.Worker.BatchSize,
		FetchWait: 5 * time.Second,
		IdleSleep: cfg.Worker.IdleSleep,
	}, collector, logger).WithDepthGauge(q.Len)

	srv := serveHTTP(cfg.Worker.MetricsAddr, collector, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("worker starting",
		"queue", cfg.Queue.Name,
		"batch_size", cfg.Worker.BatchSize,
		"metrics_addr", cfg.Worker.MetricsAddr)

	return w.Run(ctx)
}

// serveHTTP exposes /metrics and /healthz on the configured address.
func serveHTTP(addr string, collector *metrics.PipelineCollector, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
