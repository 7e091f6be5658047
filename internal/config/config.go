package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	// Database
	DBPath        string
	OpenTimeout   time.Duration
	TxTimeout     time.Duration
	BusyTimeoutMs int
	MaxOpenRetry  int
	MaxRows       int

	// Durability. LowDurability selects the conservative journal mode used
	// on old or low-end devices where WAL misbehaves.
	LowDurability bool

	// Caching
	AggregateTTL time.Duration
	TodayTTL     time.Duration

	// Diagnostics
	Debug bool
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		DBPath:        getEnv("CREDIARIO_DB_PATH", DefaultDBPath()),
		OpenTimeout:   getEnvDuration("CREDIARIO_OPEN_TIMEOUT", 8*time.Second),
		TxTimeout:     getEnvDuration("CREDIARIO_TX_TIMEOUT", 5*time.Second),
		BusyTimeoutMs: getEnvInt("CREDIARIO_BUSY_TIMEOUT_MS", 30000),
		MaxOpenRetry:  getEnvInt("CREDIARIO_MAX_OPEN_RETRY", 3),
		MaxRows:       getEnvInt("CREDIARIO_MAX_ROWS", 10000),
		LowDurability: getEnvBool("CREDIARIO_LOW_DURABILITY", false),
		AggregateTTL:  getEnvDuration("CREDIARIO_AGGREGATE_TTL", 30*time.Second),
		TodayTTL:      getEnvDuration("CREDIARIO_TODAY_TTL", 15*time.Second),
		Debug:         getEnvBool("CREDIARIO_DEBUG", false),
	}
}

// DefaultDBPath places the database file under the OS application-data
// directory, the location the engine's own storage convention expects.
func DefaultDBPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "crediario", "crediario.db")
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.ToLower(v) == "true" || v == "1"
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
