package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type AppConfig struct {
	Port string `validate:"required,numeric"`

	APIToken   string `validate:"required"`
	APIBaseURL string `validate:"required,url"`
	Zone       string `validate:"required"`

	// FetchInterval controls how often the snapshot is refreshed.
	FetchInterval time.Duration `validate:"gt=0"`
	HTTPTimeout   time.Duration `validate:"gt=0"`

	UpstreamMaxRetries    int     `validate:"gte=0,lte=10"`
	UpstreamRatePerSecond float64 `validate:"gte=0"`

	// DataFile is where the snapshot is persisted; a .zst suffix compresses it
	// and an empty value keeps it in memory only.
	DataFile         string
	SnapshotCacheTTL time.Duration `validate:"gte=0"`

	// Historical inputs; each is a file path or an http(s) URL.
	DatasetPath     string
	GeoJSONPath     string
	DatasetTimezone *time.Location `validate:"required"`

	LogLevel       string `validate:"oneof=trace debug info warn error fatal panic disabled"`
	LogPretty      bool
	MetricsEnabled bool
	CORSOrigins    string
}

var validate = validator.New()

// Load reads configuration from the environment, after an optional .env file.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
	return FromEnv()
}

// FromEnv reads configuration from the process environment with defaults and validates it.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		Port:                  getenvDefault("PORT", "8080"),
		APIToken:              os.Getenv("ELECTRICITY_API_TOKEN"),
		APIBaseURL:            getenvDefault("ELECTRICITY_API_BASE_URL", "https://api.electricitymap.org/v3"),
		Zone:                  getenvDefault("ELECTRICITY_ZONE", "IL"),
		UpstreamMaxRetries:    getenvInt("UPSTREAM_MAX_RETRIES", 2),
		UpstreamRatePerSecond: getenvFloat("UPSTREAM_RATE_PER_SECOND", 4),
		DataFile:              lookupDefault("DATA_FILE", "data/combined_electricity_data.json"),
		DatasetPath:           os.Getenv("DATASET_PATH"),
		GeoJSONPath:           os.Getenv("GEOJSON_PATH"),
		LogLevel:              strings.ToLower(getenvDefault("LOG_LEVEL", "info")),
		LogPretty:             getenvBool("LOG_PRETTY", false),
		MetricsEnabled:        getenvBool("METRICS_ENABLED", true),
		CORSOrigins:           getenvDefault("CORS_ORIGINS", "*"),
	}

	var err error
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", "5m"); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.SnapshotCacheTTL, err = getenvDuration("SNAPSHOT_CACHE_TTL", "1m"); err != nil {
		return nil, err
	}

	tz := getenvDefault("DATASET_TIMEZONE", "Local")
	if cfg.DatasetTimezone, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid DATASET_TIMEZONE: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// lookupDefault is like getenvDefault but keeps an explicitly empty value.
func lookupDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
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
