package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/civicdata/inspection-etl/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	LogLevel  string
	LogFormat string

	// Streaming normalizer settings.
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	HTTPAddr           string
	ShutdownTimeout    time.Duration
	BatchSize          int
	BatchFlushInterval time.Duration

	// Spatial zip resolution. Empty path disables the spatial stage;
	// explicit zip and postal-code fields still apply.
	ZipBoundariesPath string
	ZipCacheSize      int

	// Batch pipeline settings.
	OutputDir    string
	PostgresDSN  string // empty disables the Postgres mirror
	Granularity  domain.Granularity
	PanelBackend string // empty picks the first available backend
	Weights      domain.Weights

	// Dataset download settings.
	SocrataEndpoint string
	SocrataPageSize int
}

// Load reads configuration from a .env file (when present) and the
// environment, applying defaults where unset.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	flushInterval, err := parseDuration("BATCH_FLUSH_INTERVAL", "500ms")
	if err != nil {
		return nil, err
	}
	batchSize, err := parsePositiveInt("BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parsePositiveInt("ZIP_CACHE_SIZE", 10000)
	if err != nil {
		return nil, err
	}
	pageSize, err := parsePositiveInt("SOCRATA_PAGE_SIZE", 50000)
	if err != nil {
		return nil, err
	}
	weights, err := parseWeights()
	if err != nil {
		return nil, err
	}
	granularity, err := parseGranularity()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),

		KafkaBrokers:       splitBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   envOrDefault("KAFKA_SOURCE_TOPIC", "raw-inspection-rows"),
		KafkaSinkTopic:     envOrDefault("KAFKA_SINK_TOPIC", "normalized-inspections"),
		KafkaGroupID:       envOrDefault("KAFKA_GROUP_ID", "inspection-etl"),
		HTTPAddr:           envOrDefault("HTTP_ADDR", ":8080"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		ZipBoundariesPath: os.Getenv("ZIP_BOUNDARIES_PATH"),
		ZipCacheSize:      cacheSize,

		OutputDir:    envOrDefault("OUTPUT_DIR", "results"),
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		Granularity:  granularity,
		PanelBackend: os.Getenv("PANEL_BACKEND"),
		Weights:      weights,

		SocrataEndpoint: envOrDefault("SOCRATA_ENDPOINT", "https://data.cityofnewyork.us/resource/43nn-pn8j.csv"),
		SocrataPageSize: pageSize,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}

	return cfg, nil
}

func parseWeights() (domain.Weights, error) {
	w := domain.DefaultWeights
	for _, f := range []struct {
		env    string
		target *float64
	}{
		{"WEIGHT_SCORE", &w.Score},
		{"WEIGHT_CRITICAL", &w.Critical},
		{"WEIGHT_VIOLATIONS", &w.ViolationCount},
	} {
		s := os.Getenv(f.env)
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return w, fmt.Errorf("invalid %s: %q", f.env, s)
		}
		*f.target = v
	}
	if w.Score+w.Critical+w.ViolationCount <= 0 {
		return w, errors.New("hygiene index weights must not all be zero")
	}
	return w, nil
}

func parseGranularity() (domain.Granularity, error) {
	s := envOrDefault("PERIOD_GRANULARITY", string(domain.Monthly))
	switch g := domain.Granularity(s); g {
	case domain.Monthly, domain.Quarterly:
		return g, nil
	default:
		return "", fmt.Errorf("invalid PERIOD_GRANULARITY: %q", s)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
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
