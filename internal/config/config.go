package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/beach-weather-cache/internal/logger"
)

var validate = validator.New()

type AppConfig struct {
	// BeachesPath is the CSV or YAML beach list. Empty or missing uses the
	// built-in sample.
	BeachesPath    string
	GeocoderAPIKey string

	CacheBackend   string `validate:"oneof=file git sqlite gcs"`
	CachePath      string `validate:"required_if=CacheBackend file,required_if=CacheBackend git"`
	CacheSQLiteDSN string `validate:"required_if=CacheBackend sqlite"`
	CacheGCSBucket string `validate:"required_if=CacheBackend gcs"`
	CacheGCSObject string
	GitRemote      string
	GitBranch      string
	CommitAttempts int `validate:"gte=1,lte=10"`

	PartialBackend   string `validate:"oneof=file redis"`
	PartialDir       string `validate:"required_if=PartialBackend file"`
	PartialRetention time.Duration
	RedisAddr        string `validate:"required_if=PartialBackend redis"`
	RedisPassword    string
	RedisDB          int `validate:"gte=0"`

	BatchSize        int           `validate:"gte=1"`
	BatchConcurrency int           `validate:"gte=1,lte=100"`
	ItemTimeout      time.Duration `validate:"gt=0"`
	CollectionWindow time.Duration `validate:"gte=0"`
	RefreshInterval  time.Duration `validate:"gte=1m"`

	HTTPTimeout    time.Duration `validate:"gt=0"`
	ForecastURL    string        `validate:"url"`
	MarineURL      string        `validate:"url"`
	SSTURL         string        `validate:"url"`
	SSTMaxDistance float64       `validate:"gt=0"`
	SSTCacheTTL    time.Duration `validate:"gt=0"`

	// Run report history retention.
	ReportHistory int           // max number of run summaries kept (0 = unlimited)
	ReportMaxAge  time.Duration // max age of run summaries (0 = unlimited)

	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"oneof=DEBUG INFO WARN ERROR"`
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debugf("no .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{
		BeachesPath:    getenvDefault("BEACHES_PATH", "blueflag_greece_scraped.csv"),
		GeocoderAPIKey: os.Getenv("GEOCODER_API_KEY"),

		CacheBackend:   getenvDefault("CACHE_BACKEND", "file"),
		CachePath:      getenvDefault("CACHE_PATH", "beach_weather_cache.json"),
		CacheSQLiteDSN: os.Getenv("CACHE_SQLITE_DSN"),
		CacheGCSBucket: os.Getenv("CACHE_GCS_BUCKET"),
		CacheGCSObject: getenvDefault("CACHE_GCS_OBJECT", "beach_weather_cache.json"),
		GitRemote:      getenvDefault("GIT_REMOTE", "origin"),
		GitBranch:      getenvDefault("GIT_BRANCH", "main"),
		CommitAttempts: getenvInt("COMMIT_ATTEMPTS", 3),

		PartialBackend: getenvDefault("PARTIAL_BACKEND", "file"),
		PartialDir:     getenvDefault("PARTIAL_DIR", "partial_results"),
		RedisAddr:      getenvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getenvInt("REDIS_DB", 0),

		BatchSize:        getenvInt("BATCH_SIZE", 50),
		BatchConcurrency: getenvInt("BATCH_CONCURRENCY", 10),

		ForecastURL: getenvDefault("FORECAST_URL", "https://api.open-meteo.com/v1/forecast"),
		MarineURL:   getenvDefault("MARINE_URL", "https://marine-api.open-meteo.com/v1/marine"),
		SSTURL:      os.Getenv("SST_URL"),

		ReportHistory: getenvInt("REPORT_HISTORY", 48), // a day of runs at 30-minute intervals

		Port:     getenvDefault("PORT", "8080"),
		LogLevel: getenvDefault("LOG_LEVEL", "INFO"),
	}

	var err error
	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"PARTIAL_RETENTION", "24h", &cfg.PartialRetention},
		{"ITEM_TIMEOUT", "10s", &cfg.ItemTimeout},
		{"COLLECTION_WINDOW", "20m", &cfg.CollectionWindow},
		{"REFRESH_INTERVAL", "30m", &cfg.RefreshInterval},
		{"HTTP_TIMEOUT", "10s", &cfg.HTTPTimeout},
		{"SST_CACHE_TTL", "1h", &cfg.SSTCacheTTL},
		{"REPORT_MAX_AGE", "24h", &cfg.ReportMaxAge},
	}
	for _, d := range durations {
		if *d.dst, err = getenvDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}
	if cfg.SSTMaxDistance, err = getenvFloat("SST_MAX_DISTANCE", 2.0); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints. The SST URL may be empty, meaning the
// default NOAA dataset.
func (c *AppConfig) Validate() error {
	check := *c
	if check.SSTURL == "" {
		check.SSTURL = "https://coastwatch.pfeg.noaa.gov/erddap"
	}
	if err := validate.Struct(check); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
		logger.Warnf("ignoring invalid %s=%q", key, v)
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
