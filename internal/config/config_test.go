package config

import (
	"log/slog"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TWITTER_BEARER_TOKEN", "OPENAI_API_KEY", "OPENAI_OCR_MODEL", "OPENAI_CLASSIFY_MODEL",
		"S3_ENDPOINT", "S3_BUCKET", "REDIS_ADDR", "DATABASE_URL",
		"LOG_LEVEL", "LOG_FORMAT", "BROWSER_ZOOM_PERCENT", "L1_CONF_THRESHOLD",
		"CROP_ENABLED", "CROP_COORDS", "QUEUE_VISIBILITY_SECONDS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Logging.Level != slog.LevelInfo || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults: %+v", cfg.Logging)
	}
	if cfg.Browser.ZoomPercent != 60 {
		t.Errorf("zoom default = %d, want 60", cfg.Browser.ZoomPercent)
	}
	if cfg.Browser.MaxBrowserRetries != 3 {
		t.Errorf("browser retries default = %d, want 3", cfg.Browser.MaxBrowserRetries)
	}
	if cfg.Browser.MaxScreenshots != 10 || cfg.Browser.ThreadScreenshots != 5 {
		t.Errorf("screenshot caps: %d/%d", cfg.Browser.MaxScreenshots, cfg.Browser.ThreadScreenshots)
	}
	if cfg.OpenAI.L1Threshold != 0.5 {
		t.Errorf("L1 threshold default = %v, want 0.5", cfg.OpenAI.L1Threshold)
	}
	if cfg.Queue.VisibilityTimeout != 60*time.Second {
		t.Errorf("visibility default = %v", cfg.Queue.VisibilityTimeout)
	}
	if cfg.Browser.Crop.Enabled {
		t.Error("crop should default to disabled")
	}
	if cfg.Blob.Hosted() || cfg.Queue.Hosted() || cfg.Records.Hosted() {
		t.Error("hosted backends selected with no endpoints configured")
	}
}

func TestLoad_HostedSelection(t *testing.T) {
	clearEnv(t)
	t.Setenv("S3_ENDPOINT", "minio.internal:9000")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/lenswire")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Blob.Hosted() || !cfg.Queue.Hosted() || !cfg.Records.Hosted() {
		t.Error("hosted backends not selected despite endpoints")
	}
}

func TestLoad_CropParsing(t *testing.T) {
	clearEnv(t)
	t.Setenv("CROP_ENABLED", "true")
	t.Setenv("CROP_COORDS", "31, 0, 63, 98")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	crop := cfg.Browser.Crop
	if !crop.Enabled || crop.X1 != 31 || crop.Y1 != 0 || crop.X2 != 63 || crop.Y2 != 98 {
		t.Errorf("crop = %+v", crop)
	}
}

func TestLoad_InvalidCropFatal(t *testing.T) {
	clearEnv(t)
	t.Setenv("CROP_ENABLED", "true")

	for _, coords := range []string{"", "1,2,3", "60,0,40,100", "a,b,c,d", "0,50,100,50"} {
		t.Setenv("CROP_COORDS", coords)
		if _, err := Load(); err == nil {
			t.Errorf("CROP_COORDS=%q should fail", coords)
		}
	}
}

func TestLoad_ZoomBounds(t *testing.T) {
	clearEnv(t)

	t.Setenv("BROWSER_ZOOM_PERCENT", "150")
	cfg, err := Load()
	if err != nil || cfg.Browser.ZoomPercent != 150 {
		t.Errorf("valid zoom rejected: %v, %d", err, cfg.Browser.ZoomPercent)
	}

	for _, zoom := range []string{"24", "201", "abc", "-60"} {
		t.Setenv("BROWSER_ZOOM_PERCENT", zoom)
		if _, err := Load(); err == nil {
			t.Errorf("BROWSER_ZOOM_PERCENT=%q should fail", zoom)
		}
	}
}

func TestLoad_ThresholdBounds(t *testing.T) {
	clearEnv(t)

	t.Setenv("L1_CONF_THRESHOLD", "0.7")
	cfg, err := Load()
	if err != nil || cfg.OpenAI.L1Threshold != 0.7 {
		t.Errorf("valid threshold rejected: %v, %v", err, cfg.OpenAI.L1Threshold)
	}

	for _, v := range []string{"-0.1", "1.5", "high"} {
		t.Setenv("L1_CONF_THRESHOLD", v)
		if _, err := Load(); err == nil {
			t.Errorf("L1_CONF_THRESHOLD=%q should fail", v)
		}
	}
}

func TestLoad_LogLevelParsing(t *testing.T) {
	clearEnv(t)

	t.Setenv("LOG_LEVEL", "debug")
	cfg, err := Load()
	if err != nil || cfg.Logging.Level != slog.LevelDebug {
		t.Errorf("debug level: %v, %v", err, cfg.Logging.Level)
	}

	t.Setenv("LOG_LEVEL", "verbose")
	if _, err := Load(); err == nil {
		t.Error("unknown LOG_LEVEL should fail")
	}

	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "xml")
	if _, err := Load(); err == nil {
		t.Error("unknown LOG_FORMAT should fail")
	}
}
