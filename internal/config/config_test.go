package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cesargomez89/etude/internal/constants"
)

func TestLoad(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != constants.DefaultPort {
		t.Errorf("Expected Port to be %s, got %s", constants.DefaultPort, cfg.Port)
	}
	if cfg.Database.DSN != constants.DefaultDBPath {
		t.Errorf("Expected DSN to be %s, got %s", constants.DefaultDBPath, cfg.Database.DSN)
	}
	if cfg.Services.OMRURL != constants.DefaultOMRURL {
		t.Errorf("Expected OMR URL to be %s, got %s", constants.DefaultOMRURL, cfg.Services.OMRURL)
	}
	if len(cfg.Worker.Queues) != 3 {
		t.Errorf("Expected all three queues by default, got %v", cfg.Worker.Queues)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadWithEnvVars(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/tmp/test.db")
	t.Setenv("OMR_SERVICE_URL", "http://localhost:9001")
	t.Setenv("WORKER_QUEUES", "omr, rendering")
	t.Setenv("TASK_SOFT_TIME_LIMIT", "10m")
	t.Setenv("WORKER_EMBEDDED", "true")
	t.Setenv("WORKER_NAME", "omr-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Expected Port to be 9090, got %s", cfg.Port)
	}
	if cfg.Database.DSN != "/tmp/test.db" {
		t.Errorf("Expected DSN to be /tmp/test.db, got %s", cfg.Database.DSN)
	}
	if cfg.Services.OMRURL != "http://localhost:9001" {
		t.Errorf("Expected OMR URL override, got %s", cfg.Services.OMRURL)
	}
	if strings.Join(cfg.Worker.Queues, ",") != "omr,rendering" {
		t.Errorf("Expected queues omr,rendering, got %v", cfg.Worker.Queues)
	}
	if cfg.Worker.SoftTimeLimit != 10*time.Minute {
		t.Errorf("Expected soft limit 10m, got %v", cfg.Worker.SoftTimeLimit)
	}
	if !cfg.Worker.Embedded {
		t.Error("Expected embedded worker to be enabled")
	}
	if cfg.Worker.Name != "omr-1" {
		t.Errorf("Expected worker name omr-1, got %q", cfg.Worker.Name)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "etude.yaml")
	doc := `
port: "7070"
storage:
  backend: minio
  minio:
    endpoint: localhost:9000
    access_key: minio
    secret_key: minio123
queue:
  backend: redis
  redis_addr: localhost:6379
worker:
  hard_time_limit: 45m
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7171")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "7171" {
		t.Errorf("Expected env to override file port, got %s", cfg.Port)
	}
	if cfg.Storage.Backend != constants.StorageBackendMinio {
		t.Errorf("Expected minio backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Storage.Minio.Endpoint != "localhost:9000" {
		t.Errorf("Expected minio endpoint from file, got %s", cfg.Storage.Minio.Endpoint)
	}
	if cfg.Queue.RedisAddr != "localhost:6379" {
		t.Errorf("Expected redis addr from file, got %s", cfg.Queue.RedisAddr)
	}
	if cfg.Worker.HardTimeLimit != 45*time.Minute {
		t.Errorf("Expected hard limit 45m, got %v", cfg.Worker.HardTimeLimit)
	}
	if cfg.Storage.PDFBucket != constants.DefaultPDFBucket {
		t.Errorf("Expected unset fields to keep defaults, got %s", cfg.Storage.PDFBucket)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected config to validate, got %v", err)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("port: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid config", func(c *Config) {}, ""},
		{"empty port", func(c *Config) { c.Port = "" }, "PORT cannot be empty"},
		{"port out of range", func(c *Config) { c.Port = "70000" }, "PORT must be between"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "DB_DRIVER"},
		{"same buckets", func(c *Config) { c.Storage.DerivedBucket = c.Storage.PDFBucket }, "must differ"},
		{"minio without endpoint", func(c *Config) { c.Storage.Backend = "minio" }, "MINIO_ENDPOINT"},
		{"redis without addr", func(c *Config) { c.Queue.Backend = "redis" }, "REDIS_ADDR"},
		{"bad service url", func(c *Config) { c.Services.RendererURL = "renderer" }, "RENDERER_SERVICE_URL"},
		{"unknown queue", func(c *Config) { c.Worker.Queues = []string{"engraving"} }, "unknown queue"},
		{"soft after hard", func(c *Config) { c.Worker.SoftTimeLimit = time.Hour }, "TASK_SOFT_TIME_LIMIT"},
		{"zero voices", func(c *Config) { c.Resolution.MaxVoices = 0 }, "MAX_VOICES"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_AccumulatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Port = ""
	cfg.LogFormat = "xml"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected error")
	}
	if !strings.Contains(err.Error(), "PORT") || !strings.Contains(err.Error(), "LOG_FORMAT") {
		t.Errorf("Expected both problems reported, got %v", err)
	}
}
