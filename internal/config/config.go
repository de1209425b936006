package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

const (
	// DefaultCWABaseURL is the CWA open data REST root.
	DefaultCWABaseURL = "https://opendata.cwa.gov.tw/api/v1/rest/datastore"
	// DefaultCWAFileBaseURL serves the file-only datasets such as F-A0010-001.
	DefaultCWAFileBaseURL = "https://opendata.cwa.gov.tw/fileapi/v1/opendataapi"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// CWA open data API.
	CWAAPIKey             string
	CWABaseURL            string
	CWAFileBaseURL        string
	CWADataset            string
	CWALocations          []string
	CWATimeout            time.Duration
	CWACacheTTL           time.Duration
	CWAInsecureSkipVerify bool

	// ReferenceElement is the element whose timeline drives the join.
	ReferenceElement string
	// ReadingElement is the series stored by observation datasets.
	ReadingElement string

	SQLitePath  string
	SQLiteTrace bool

	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string

	HTTPAddr string
	// Up to RefreshBurst manual refreshes run back to back, then one per
	// RefreshInterval. Zero disables the limit.
	RefreshBurst    int
	RefreshInterval time.Duration

	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first if present; real
// environment variables take precedence over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cwaTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("CWA_TIMEOUT", "10s"))
	if err != nil || cwaTimeout <= 0 {
		return nil, errors.New("invalid CWA_TIMEOUT: must be a positive duration")
	}

	cacheTTL, err := time.ParseDuration(sharedcfg.EnvOrDefault("CWA_CACHE_TTL", "0s"))
	if err != nil || cacheTTL < 0 {
		return nil, errors.New("invalid CWA_CACHE_TTL: must be a non-negative duration")
	}

	insecure, err := parseBool("CWA_INSECURE_SKIP_VERIFY", false)
	if err != nil {
		return nil, err
	}
	trace, err := parseBool("SQLITE_TRACE", false)
	if err != nil {
		return nil, err
	}
	refreshBurst, err := strconv.Atoi(sharedcfg.EnvOrDefault("REFRESH_RATE_BURST", "3"))
	if err != nil || refreshBurst < 0 {
		return nil, errors.New("invalid REFRESH_RATE_BURST: must be a non-negative integer")
	}
	refreshInterval, err := time.ParseDuration(sharedcfg.EnvOrDefault("REFRESH_RATE_INTERVAL", "20s"))
	if err != nil || refreshInterval <= 0 {
		return nil, errors.New("invalid REFRESH_RATE_INTERVAL: must be a positive duration")
	}

	kafkaEnabled, err := parseBool("KAFKA_ENABLED", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		CWAAPIKey:             strings.TrimSpace(os.Getenv("CWA_API_KEY")),
		CWABaseURL:            strings.TrimRight(sharedcfg.EnvOrDefault("CWA_BASE_URL", DefaultCWABaseURL), "/"),
		CWAFileBaseURL:        strings.TrimRight(sharedcfg.EnvOrDefault("CWA_FILE_BASE_URL", DefaultCWAFileBaseURL), "/"),
		CWADataset:            sharedcfg.EnvOrDefault("CWA_DATASET", "F-C0032-001"),
		CWALocations:          SplitList(os.Getenv("CWA_LOCATIONS")),
		CWATimeout:            cwaTimeout,
		CWACacheTTL:           cacheTTL,
		CWAInsecureSkipVerify: insecure,
		ReferenceElement:      strings.TrimSpace(sharedcfg.EnvOrDefault("FORECAST_REFERENCE_ELEMENT", "Wx")),
		ReadingElement:        strings.TrimSpace(sharedcfg.EnvOrDefault("READING_ELEMENT", "TEMP")),
		SQLitePath:            sharedcfg.EnvOrDefault("SQLITE_PATH", "data/forecast.db"),
		SQLiteTrace:           trace,
		KafkaEnabled:          kafkaEnabled,
		KafkaBrokers:          sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:        sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "forecast-periods"),
		HTTPAddr:              sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		RefreshBurst:          refreshBurst,
		RefreshInterval:       refreshInterval,
		LogLevel:              sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:             sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:       shutdownTimeout,
	}

	if cfg.CWAAPIKey == "" {
		return nil, errors.New("CWA_API_KEY is required")
	}
	if cfg.ReferenceElement == "" {
		return nil, errors.New("FORECAST_REFERENCE_ELEMENT must not be blank")
	}
	if cfg.ReadingElement == "" {
		return nil, errors.New("READING_ELEMENT must not be blank")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	return cfg, nil
}

// SplitList splits a comma-separated value, trimming blanks. The shared
// broker parser does exactly this, so location and element lists reuse it.
func SplitList(s string) []string {
	return sharedcfg.ParseBrokers(s)
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", key)
	}
	return v, nil
}
