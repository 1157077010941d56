package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string

	// Remote worker
	WorkerURL       string
	DispatchTimeout time.Duration

	// Webhook verification
	WebhookSecret          string
	SignatureHeader        string
	AllowTerminalOverwrite bool

	// Object store
	MediaBucket    string
	UploadURLTTL   time.Duration
	DownloadURLTTL time.Duration

	// Orphan sweep
	QueuedJobTTL  time.Duration
	SweepInterval time.Duration

	// Logging
	LogLevel string
}

// fileConfig is the YAML shape of an optional config file. Durations are
// Go duration strings ("30s", "12h").
type fileConfig struct {
	DatabaseURL            string `yaml:"database_url"`
	ServerPort             string `yaml:"server_port"`
	WorkerURL              string `yaml:"worker_url"`
	DispatchTimeout        string `yaml:"dispatch_timeout"`
	WebhookSecret          string `yaml:"webhook_secret"`
	SignatureHeader        string `yaml:"signature_header"`
	AllowTerminalOverwrite *bool  `yaml:"allow_terminal_overwrite"`
	MediaBucket            string `yaml:"media_bucket"`
	UploadURLTTL           string `yaml:"upload_url_ttl"`
	DownloadURLTTL         string `yaml:"download_url_ttl"`
	QueuedJobTTL           string `yaml:"queued_job_ttl"`
	SweepInterval          string `yaml:"sweep_interval"`
	LogLevel               string `yaml:"log_level"`
}

// Load loads configuration defaults, then an optional YAML file named by
// CONFIG_FILE, then environment variable overrides. A .env file is honored
// if present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:            "postgres://localhost/transcripts?sslmode=disable",
		ServerPort:             "8080",
		DispatchTimeout:        30 * time.Second,
		SignatureHeader:        "X-Worker-Signature",
		AllowTerminalOverwrite: false,
		UploadURLTTL:           24 * time.Hour,
		DownloadURLTTL:         15 * time.Minute,
		QueuedJobTTL:           12 * time.Hour,
		SweepInterval:          10 * time.Minute,
		LogLevel:               "info",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			var fc fileConfig
			if err := yaml.Unmarshal(data, &fc); err == nil {
				applyFile(cfg, &fc)
			}
		}
	}

	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.WorkerURL = getEnv("WORKER_URL", cfg.WorkerURL)
	cfg.DispatchTimeout = getEnvDuration("DISPATCH_TIMEOUT", cfg.DispatchTimeout)
	cfg.WebhookSecret = getEnv("WEBHOOK_SECRET", cfg.WebhookSecret)
	cfg.SignatureHeader = getEnv("WEBHOOK_SIGNATURE_HEADER", cfg.SignatureHeader)
	cfg.AllowTerminalOverwrite = getEnvBool("WEBHOOK_ALLOW_TERMINAL_OVERWRITE", cfg.AllowTerminalOverwrite)
	cfg.MediaBucket = getEnv("MEDIA_BUCKET", cfg.MediaBucket)
	cfg.UploadURLTTL = getEnvDuration("UPLOAD_URL_TTL", cfg.UploadURLTTL)
	cfg.DownloadURLTTL = getEnvDuration("DOWNLOAD_URL_TTL", cfg.DownloadURLTTL)
	cfg.QueuedJobTTL = getEnvDuration("JOB_QUEUED_TTL", cfg.QueuedJobTTL)
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	return cfg
}

func applyFile(cfg *Config, fc *fileConfig) {
	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	setString(&cfg.ServerPort, fc.ServerPort)
	setString(&cfg.WorkerURL, fc.WorkerURL)
	setDuration(&cfg.DispatchTimeout, fc.DispatchTimeout)
	setString(&cfg.WebhookSecret, fc.WebhookSecret)
	setString(&cfg.SignatureHeader, fc.SignatureHeader)
	if fc.AllowTerminalOverwrite != nil {
		cfg.AllowTerminalOverwrite = *fc.AllowTerminalOverwrite
	}
	setString(&cfg.MediaBucket, fc.MediaBucket)
	setDuration(&cfg.UploadURLTTL, fc.UploadURLTTL)
	setDuration(&cfg.DownloadURLTTL, fc.DownloadURLTTL)
	setDuration(&cfg.QueuedJobTTL, fc.QueuedJobTTL)
	setDuration(&cfg.SweepInterval, fc.SweepInterval)
	setString(&cfg.LogLevel, fc.LogLevel)
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setDuration(dst *time.Duration, value string) {
	if value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			*dst = d
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
