package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	StoragePath     string
	CatalogPath     string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string

	MaxUploadBytes   int64
	MaxDownloadBytes int64
	DownloadTimeout  time.Duration

	// DownloadAllowPrivate disables the private/loopback address checks on
	// download URLs. Intended for tests and air-gapped deployments only.
	DownloadAllowPrivate bool

	DecodeCacheSize int

	// Kafka event publishing configuration.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	downloadTimeout, err := parseDuration("DOWNLOAD_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	maxUploadBytes, err := parseBytes("MAX_UPLOAD_BYTES", 512<<20)
	if err != nil {
		return nil, err
	}
	maxDownloadBytes, err := parseBytes("MAX_DOWNLOAD_BYTES", 1<<30)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("DECODE_CACHE_SIZE", 8)
	if err != nil {
		return nil, err
	}

	storagePath := envOrDefault("GRIB_STORAGE_PATH", "./data/grib")

	kafkaEnabled := false
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		StoragePath:     storagePath,
		CatalogPath:     envOrDefault("GRIB_CATALOG_PATH", filepath.Join(storagePath, "catalog.db")),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		AllowedOrigins:  splitList(envOrDefault("ALLOWED_ORIGINS", "http://localhost:3000")),

		MaxUploadBytes:       maxUploadBytes,
		MaxDownloadBytes:     maxDownloadBytes,
		DownloadTimeout:      downloadTimeout,
		DownloadAllowPrivate: os.Getenv("DOWNLOAD_ALLOW_PRIVATE") == "true",

		DecodeCacheSize: cacheSize,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: splitList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   strings.TrimSpace(envOrDefault("KAFKA_TOPIC", "grib-file-events")),
	}

	if cfg.StoragePath == "" {
		return nil, errors.New("GRIB_STORAGE_PATH is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_TOPIC is not set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitList splits a comma-separated env value, dropping empty elements.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDuration(key, fallback string) (time.Duration, error) {
	s := envOrDefault(key, fallback)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseBytes(key string, fallback int64) (int64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}
