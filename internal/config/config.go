// Package config loads replay pipeline configuration from the
// environment, following the order-book service's LoadFromEnv/getenv
// style. CLI argument parsing stays out of scope; an operator is expected
// to export the relevant *_ env vars before invoking the replay binary.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RedisConfig holds telemetry sink connection settings.
type RedisConfig struct {
	Addr     string
	Password string
}

// MongoConfig holds consistency-audit archive connection settings.
type MongoConfig struct {
	URI      string
	Database string
}

// DashboardConfig holds the local progress-dashboard WebSocket server
// settings.
type DashboardConfig struct {
	Addr string
}

// HealthConfig holds the coordinator/telemetry health-check server
// settings.
type HealthConfig struct {
	Addr string
}

// ReplayConfig holds the core replay parameters from spec §6.
type ReplayConfig struct {
	SourceDir          string
	ExchangeID         string
	DestinationDir     string
	StartDate          time.Time
	Frequency          time.Duration
	Universe           []string // empty = infer from first day's L2 codes
	BufferSize         int
	MaxWorkers         int
	SessionStartOffset time.Duration // default -2h, open question (b)
	Layers             []int         // default 0..5
	IncludeRealizedVol bool
	RealizedVolWindow  int
}

// AppConfig aggregates all runtime configuration for the replay binary.
type AppConfig struct {
	Replay      ReplayConfig
	Redis       RedisConfig
	Mongo       MongoConfig
	Dashboard   DashboardConfig
	Health      HealthConfig
	MetricsAddr string
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (AppConfig, error) {
	freq, err := parseDurationEnv("REPLAY_FREQUENCY", time.Second)
	if err != nil {
		return AppConfig{}, err
	}

	startDate, err := parseDateEnv("REPLAY_START_DATE")
	if err != nil {
		return AppConfig{}, err
	}

	sessionOffset, err := parseDurationEnv("REPLAY_SESSION_START_OFFSET", -2*time.Hour)
	if err != nil {
		return AppConfig{}, err
	}

	return AppConfig{
		Replay: ReplayConfig{
			SourceDir:          getenvWithDefault("REPLAY_SOURCE_DIR", "./data"),
			ExchangeID:         getenvWithDefault("REPLAY_EXCHANGE_ID", "default"),
			DestinationDir:     getenvWithDefault("REPLAY_DEST_DIR", "./output"),
			StartDate:          startDate,
			Frequency:          freq,
			Universe:           splitNonEmpty(os.Getenv("REPLAY_UNIVERSE"), ","),
			BufferSize:         getenvIntWithDefault("REPLAY_BUFFER_SIZE", 1<<20),
			MaxWorkers:         getenvIntWithDefault("REPLAY_MAX_WORKERS", 4),
			SessionStartOffset: sessionOffset,
			Layers:             defaultLayers(),
			IncludeRealizedVol: getenvBoolWithDefault("REPLAY_INCLUDE_REALIZED_VOL", false),
			RealizedVolWindow:  getenvIntWithDefault("REPLAY_REALIZED_VOL_WINDOW", 20),
		},
		Redis: RedisConfig{
			Addr:     getenvWithDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Mongo: MongoConfig{
			URI:      getenvWithDefault("MONGO_URI", "mongodb://localhost:27017"),
			Database: getenvWithDefault("MONGO_DATABASE", "ob_replay"),
		},
		Dashboard: DashboardConfig{
			Addr: getenvWithDefault("DASHBOARD_ADDR", "0.0.0.0:8090"),
		},
		Health: HealthConfig{
			Addr: getenvWithDefault("HEALTH_ADDR", "0.0.0.0:8091"),
		},
		MetricsAddr: getenvWithDefault("METRICS_ADDR", "0.0.0.0:9090"),
	}, nil
}

func defaultLayers() []int {
	return []int{0, 1, 2, 3, 4, 5}
}

func getenvWithDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntWithDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBoolWithDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func parseDateEnv(key string) (time.Time, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: %s: %w", key, err)
	}
	return t, nil
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
