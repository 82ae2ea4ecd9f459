package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lenswire/lenswire/internal/models"
)

// Config represents runtime configuration derived from environment
// variables. Hosted backends (blob store, queue, record store) are selected
// only when their variables are present; otherwise in-process fallbacks are
// used.
type Config struct {
	Logging LoggingConfig
	Twitter TwitterConfig
	OpenAI  OpenAIConfig
	Blob    BlobConfig
	Queue   QueueConfig
	Records RecordsConfig
	Browser BrowserConfig
	Worker  WorkerConfig
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// TwitterConfig holds upstream API credentials.
type TwitterConfig struct {
	BearerToken string
}

// OpenAIConfig holds LLM credentials and model selection.
type OpenAIConfig struct {
	APIKey        string
	OCRModel      string
	ClassifyModel string
	L1Threshold   float64
}

// BlobConfig holds S3-compatible object storage parameters. An empty
// Endpoint selects the local filesystem sink.
type BlobConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Hosted reports whether a hosted object store is configured.
func (c BlobConfig) Hosted() bool { return c.Endpoint != "" }

// QueueConfig holds classification queue parameters. An empty RedisAddr
// selects the in-memory queue.
type QueueConfig struct {
	RedisAddr         string
	Name              string
	VisibilityTimeout time.Duration
}

// Hosted reports whether a hosted queue is configured.
func (c QueueConfig) Hosted() bool { return c.RedisAddr != "" }

// RecordsConfig holds record store parameters. An empty DatabaseURL selects
// the in-memory store.
type RecordsConfig struct {
	DatabaseURL string
}

// Hosted reports whether a hosted record store is configured.
func (c RecordsConfig) Hosted() bool { return c.DatabaseURL != "" }

// BrowserConfig holds renderer parameters.
type BrowserConfig struct {
	ZoomPercent       int
	Crop              models.CropSettings
	MaxBrowserRetries int
	RetryDelay        time.Duration
	RetryBackoff      float64
	NavigationTimeout time.Duration
	NavigationRetries int
	PostLoadDwell     time.Duration
	ScrollDelay       time.Duration
	MaxScreenshots    int
	ThreadScreenshots int
	WorkDir           string
}

// WorkerConfig holds classification worker parameters.
type WorkerConfig struct {
	BatchSize   int
	IdleSleep   time.Duration
	MetricsAddr string
}

const (
	defaultLogFormat         = "json"
	defaultOCRModel          = "gpt-4o"
	defaultClassifyModel     = "gpt-4o-mini"
	defaultL1Threshold       = 0.5
	defaultQueueName         = "lenswire-classify"
	defaultVisibility        = 60 * time.Second
	defaultZoomPercent       = 60
	defaultBrowserRetries    = 3
	defaultRetryDelay        = 2 * time.Second
	defaultRetryBackoff      = 2.0
	defaultNavTimeout        = 10 * time.Second
	defaultNavRetries        = 2
	defaultPostLoadDwell     = 3 * time.Second
	defaultScrollDelay       = 2 * time.Second
	defaultMaxScreenshots    = 10
	defaultThreadScreenshots = 5
	defaultWorkerBatch       = 10
	defaultIdleSleep         = 1 * time.Second
	defaultMetricsAddr       = ":9090"
)

// Load reads configuration from environment variables, applying defaults
// when values are not provided. Malformed values and invalid crop
// coordinates are fatal here rather than deep inside the pipeline.
func Load() (Config, error) {
	cfg := Config{
		Logging: LoggingConfig{Level: slog.LevelInfo, Format: defaultLogFormat},
		Twitter: TwitterConfig{BearerToken: os.Getenv("TWITTER_BEARER_TOKEN")},
		OpenAI: OpenAIConfig{
			APIKey:        os.Getenv("OPENAI_API_KEY"),
			OCRModel:      getEnv("OPENAI_OCR_MODEL", defaultOCRModel),
			ClassifyModel: getEnv("OPENAI_CLASSIFY_MODEL", defaultClassifyModel),
			L1Threshold:   defaultL1Threshold,
		},
		Blob: BlobConfig{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    getEnv("S3_BUCKET", "lenswire-captures"),
			UseSSL:    os.Getenv("S3_USE_SSL") == "true",
		},
		Queue: QueueConfig{
			RedisAddr:         os.Getenv("REDIS_ADDR"),
			Name:              getEnv("QUEUE_NAME", defaultQueueName),
			VisibilityTimeout: defaultVisibility,
		},
		Records: RecordsConfig{DatabaseURL: os.Getenv("DATABASE_URL")},
		Browser: BrowserConfig{
			ZoomPercent:       defaultZoomPercent,
			MaxBrowserRetries: defaultBrowserRetries,
			RetryDelay:        defaultRetryDelay,
			RetryBackoff:      defaultRetryBackoff,
			NavigationTimeout: defaultNavTimeout,
			NavigationRetries: defaultNavRetries,
			PostLoadDwell:     defaultPostLoadDwell,
			ScrollDelay:       defaultScrollDelay,
			MaxScreenshots:    defaultMaxScreenshots,
			ThreadScreenshots: defaultThreadScreenshots,
			WorkDir:           getEnv("BROWSER_WORK_DIR", os.TempDir()),
		},
		Worker: WorkerConfig{
			BatchSize:   defaultWorkerBatch,
			IdleSleep:   defaultIdleSleep,
			MetricsAddr: getEnv("WORKER_METRICS_ADDR", defaultMetricsAddr),
		},
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if v := os.Getenv("BROWSER_ZOOM_PERCENT"); v != "" {
		zoom, err := strconv.Atoi(v)
		if err != nil || zoom < 25 || zoom > 200 {
			return Config{}, fmt.Errorf("invalid BROWSER_ZOOM_PERCENT: must be an integer in [25,200]")
		}
		cfg.Browser.ZoomPercent = zoom
	}

	if v := os.Getenv("L1_CONF_THRESHOLD"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil || threshold < 0 || threshold > 1 {
			return Config{}, fmt.Errorf("invalid L1_CONF_THRESHOLD: must be a number in [0,1]")
		}
		cfg.OpenAI.L1Threshold = threshold
	}

	if os.Getenv("CROP_ENABLED") == "true" {
		crop, err := parseCrop(os.Getenv("CROP_COORDS"))
		if err != nil {
			return Config{}, fmt.Errorf("invalid CROP_COORDS: %w", err)
		}
		cfg.Browser.Crop = crop
	}

	if v := os.Getenv("QUEUE_VISIBILITY_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid QUEUE_VISIBILITY_SECONDS: %w", err)
		}
		cfg.Queue.VisibilityTimeout = d
	}

	return cfg, nil
}

// parseCrop parses "x1,y1,x2,y2" into validated crop settings.
func parseCrop(raw string) (models.CropSettings, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return models.CropSettings{}, fmt.Errorf("expected x1,y1,x2,y2")
	}
	coords := make([]int, 4)
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return models.CropSettings{}, fmt.Errorf("coordinate %d is not an integer", i+1)
		}
		coords[i] = n
	}
	return models.NewCropSettings(coords[0], coords[1], coords[2], coords[3])
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
