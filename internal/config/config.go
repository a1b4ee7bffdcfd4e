package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
)

// Config holds all application configuration
type Config struct {
	Port        string           `yaml:"port"`
	LogLevel    string           `yaml:"log_level"`
	LogFormat   string           `yaml:"log_format"`
	OTelEnabled bool             `yaml:"otel_enabled"`
	Database    DatabaseConfig   `yaml:"database"`
	Storage     StorageConfig    `yaml:"storage"`
	Queue       QueueConfig      `yaml:"queue"`
	Services    ServicesConfig   `yaml:"services"`
	Worker      WorkerConfig     `yaml:"worker"`
	Resolution  ResolutionConfig `yaml:"resolution"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres
	DSN    string `yaml:"dsn"`
}

type StorageConfig struct {
	Backend            string      `yaml:"backend"` // fs, memory, minio, gcs
	Dir                string      `yaml:"dir"`
	PDFBucket          string      `yaml:"pdf_bucket"`
	DerivedBucket      string      `yaml:"derived_bucket"`
	GCSCredentialsFile string      `yaml:"gcs_credentials_file"`
	GCSProjectID       string      `yaml:"gcs_project_id"`
	Minio              MinioConfig `yaml:"minio"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type QueueConfig struct {
	Backend       string `yaml:"backend"` // memory, redis
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type ServicesConfig struct {
	OMRURL        string `yaml:"omr_url"`
	FingeringURL  string `yaml:"fingering_url"`
	RendererURL   string `yaml:"renderer_url"`
	HealthRetries int    `yaml:"health_retries"`
}

type WorkerConfig struct {
	// Name identifies the worker to the queue. It must stay the same across
	// restarts so reserved tasks can be recovered.
	Name            string        `yaml:"name"`
	Queues          []string      `yaml:"queues"`
	Concurrency     int           `yaml:"concurrency"`
	MaxTasksPerSlot int           `yaml:"max_tasks_per_slot"`
	SoftTimeLimit   time.Duration `yaml:"soft_time_limit"`
	HardTimeLimit   time.Duration `yaml:"hard_time_limit"`
	Embedded        bool          `yaml:"embedded"`
}

type ResolutionConfig struct {
	QuantizeTolerance float64       `yaml:"quantize_tolerance"`
	MinDuration       float64       `yaml:"min_duration"`
	MaxVoices         int           `yaml:"max_voices"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() *Config {
	return &Config{
		Port:      constants.DefaultPort,
		LogLevel:  "info",
		LogFormat: "text",
		Database: DatabaseConfig{
			Driver: constants.DefaultDBDriver,
			DSN:    constants.DefaultDBPath,
		},
		Storage: StorageConfig{
			Backend:       constants.StorageBackendFS,
			Dir:           constants.DefaultStorageDir,
			PDFBucket:     constants.DefaultPDFBucket,
			DerivedBucket: constants.DefaultDerivedBkt,
		},
		Queue: QueueConfig{
			Backend: constants.QueueBackendMemory,
		},
		Services: ServicesConfig{
			OMRURL:        constants.DefaultOMRURL,
			FingeringURL:  constants.DefaultFingeringURL,
			RendererURL:   constants.DefaultRendererURL,
			HealthRetries: constants.DefaultHealthRetries,
		},
		Worker: WorkerConfig{
			Queues:          stageNames(),
			Concurrency:     constants.DefaultConcurrency,
			MaxTasksPerSlot: constants.DefaultMaxTasksPerSlot,
			SoftTimeLimit:   constants.DefaultSoftTimeLimit,
			HardTimeLimit:   constants.DefaultHardTimeLimit,
		},
		Resolution: ResolutionConfig{
			QuantizeTolerance: constants.QuantizeTolerance,
			MinDuration:       constants.QuantizeMinDuration,
			MaxVoices:         constants.MaxVoices,
			CacheTTL:          constants.RenderCacheTTL,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE if set, then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.OTelEnabled = getEnvBool("OTEL_ENABLED", c.OTelEnabled)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DATABASE_URL", getEnv("DB_PATH", c.Database.DSN))

	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Dir = getEnv("STORAGE_DIR", c.Storage.Dir)
	c.Storage.PDFBucket = getEnv("PDF_BUCKET", c.Storage.PDFBucket)
	c.Storage.DerivedBucket = getEnv("ARTIFACTS_BUCKET", c.Storage.DerivedBucket)
	c.Storage.GCSCredentialsFile = getEnv("GCS_CREDENTIALS_FILE", c.Storage.GCSCredentialsFile)
	c.Storage.GCSProjectID = getEnv("GCS_PROJECT_ID", c.Storage.GCSProjectID)
	c.Storage.Minio.Endpoint = getEnv("MINIO_ENDPOINT", c.Storage.Minio.Endpoint)
	c.Storage.Minio.AccessKey = getEnv("MINIO_ACCESS_KEY", c.Storage.Minio.AccessKey)
	c.Storage.Minio.SecretKey = getEnv("MINIO_SECRET_KEY", c.Storage.Minio.SecretKey)
	c.Storage.Minio.UseSSL = getEnvBool("MINIO_SECURE", c.Storage.Minio.UseSSL)

	c.Queue.Backend = getEnv("QUEUE_BACKEND", c.Queue.Backend)
	c.Queue.RedisAddr = getEnv("REDIS_ADDR", c.Queue.RedisAddr)
	c.Queue.RedisPassword = getEnv("REDIS_PASSWORD", c.Queue.RedisPassword)
	c.Queue.RedisDB = getEnvInt("REDIS_DB", c.Queue.RedisDB)

	c.Services.OMRURL = getEnv("OMR_SERVICE_URL", c.Services.OMRURL)
	c.Services.FingeringURL = getEnv("FINGERING_SERVICE_URL", c.Services.FingeringURL)
	c.Services.RendererURL = getEnv("RENDERER_SERVICE_URL", c.Services.RendererURL)
	c.Services.HealthRetries = getEnvInt("HEALTH_CHECK_RETRIES", c.Services.HealthRetries)

	c.Worker.Name = getEnv("WORKER_NAME", c.Worker.Name)
	c.Worker.Embedded = getEnvBool("WORKER_EMBEDDED", c.Worker.Embedded)
	c.Worker.Queues = getEnvList("WORKER_QUEUES", c.Worker.Queues)
	c.Worker.Concurrency = getEnvInt("WORKER_CONCURRENCY", c.Worker.Concurrency)
	c.Worker.MaxTasksPerSlot = getEnvInt("WORKER_MAX_TASKS_PER_SLOT", c.Worker.MaxTasksPerSlot)
	c.Worker.SoftTimeLimit = getEnvDuration("TASK_SOFT_TIME_LIMIT", c.Worker.SoftTimeLimit)
	c.Worker.HardTimeLimit = getEnvDuration("TASK_TIME_LIMIT", c.Worker.HardTimeLimit)

	c.Resolution.QuantizeTolerance = getEnvFloat("QUANTIZE_TOLERANCE", c.Resolution.QuantizeTolerance)
	c.Resolution.MinDuration = getEnvFloat("QUANTIZE_MIN_DURATION", c.Resolution.MinDuration)
	c.Resolution.MaxVoices = getEnvInt("MAX_VOICES", c.Resolution.MaxVoices)
	c.Resolution.CacheTTL = getEnvDuration("RENDER_CACHE_TTL", c.Resolution.CacheTTL)
}

// Validate validates the configuration and returns detailed errors
func (c *Config) Validate() error {
	var errors []string

	// Validate Port
	if c.Port == "" {
		errors = append(errors, "PORT cannot be empty")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("PORT must be a valid number, got: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be between 1 and 65535, got: %d", port))
		}
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		errors = append(errors, fmt.Sprintf("DB_DRIVER must be one of: sqlite, postgres, got: %s", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errors = append(errors, "DATABASE_URL cannot be empty")
	}

	switch c.Storage.Backend {
	case constants.StorageBackendFS:
		if c.Storage.Dir == "" {
			errors = append(errors, "STORAGE_DIR cannot be empty for the fs backend")
		}
	case constants.StorageBackendMinio:
		if c.Storage.Minio.Endpoint == "" {
			errors = append(errors, "MINIO_ENDPOINT cannot be empty for the minio backend")
		}
	case constants.StorageBackendGCS, constants.StorageBackendMemory:
	default:
		errors = append(errors, fmt.Sprintf("STORAGE_BACKEND must be one of: fs, memory, minio, gcs, got: %s", c.Storage.Backend))
	}
	if c.Storage.PDFBucket == "" || c.Storage.DerivedBucket == "" {
		errors = append(errors, "PDF_BUCKET and ARTIFACTS_BUCKET cannot be empty")
	} else if c.Storage.PDFBucket == c.Storage.DerivedBucket {
		errors = append(errors, "PDF_BUCKET and ARTIFACTS_BUCKET must differ")
	}

	switch c.Queue.Backend {
	case constants.QueueBackendMemory:
	case constants.QueueBackendRedis:
		if c.Queue.RedisAddr == "" {
			errors = append(errors, "REDIS_ADDR cannot be empty for the redis queue")
		}
	default:
		errors = append(errors, fmt.Sprintf("QUEUE_BACKEND must be one of: memory, redis, got: %s", c.Queue.Backend))
	}

	for name, raw := range map[string]string{
		"OMR_SERVICE_URL":       c.Services.OMRURL,
		"FINGERING_SERVICE_URL": c.Services.FingeringURL,
		"RENDERER_SERVICE_URL":  c.Services.RendererURL,
	} {
		if raw == "" {
			errors = append(errors, fmt.Sprintf("%s cannot be empty", name))
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("%s is not a valid URL: %s", name, raw))
		}
	}
	if c.Services.HealthRetries < 0 {
		errors = append(errors, "HEALTH_CHECK_RETRIES cannot be negative")
	}

	for _, q := range c.Worker.Queues {
		if _, err := domain.ParseStage(q); err != nil {
			errors = append(errors, fmt.Sprintf("WORKER_QUEUES contains unknown queue: %s", q))
		}
	}
	if c.Worker.Concurrency < 1 {
		errors = append(errors, fmt.Sprintf("WORKER_CONCURRENCY must be at least 1, got: %d", c.Worker.Concurrency))
	}
	if c.Worker.SoftTimeLimit <= 0 || c.Worker.HardTimeLimit <= 0 {
		errors = append(errors, "task time limits must be positive")
	} else if c.Worker.SoftTimeLimit >= c.Worker.HardTimeLimit {
		errors = append(errors, "TASK_SOFT_TIME_LIMIT must be lower than TASK_TIME_LIMIT")
	}

	if c.Resolution.MinDuration <= 0 {
		errors = append(errors, "QUANTIZE_MIN_DURATION must be positive")
	}
	if c.Resolution.QuantizeTolerance < 0 {
		errors = append(errors, "QUANTIZE_TOLERANCE cannot be negative")
	}
	if c.Resolution.MaxVoices < 1 {
		errors = append(errors, "MAX_VOICES must be at least 1")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func stageNames() []string {
	var names []string
	for _, s := range domain.Stages() {
		names = append(names, string(s))
	}
	return names
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
