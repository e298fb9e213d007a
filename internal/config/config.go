package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	IssuerURL      string

	// WebSocket tuning
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// Coordinator loops and timers. All injectable so tests never wait on
	// production wall-clock values.
	RosterRefreshInterval time.Duration
	PollInterval          time.Duration
	DialerCallTimeout     time.Duration
	OfflineDebounce       time.Duration
	SnapshotStaleAfter    time.Duration

	// Nightly unassignment job
	JanitorHour      int
	JanitorBatchSize int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		IssuerURL:      getEnv("OIDC_ISSUER_URL", ""),
	}

	var err error
	if config.WSReadTimeout, err = getEnvSeconds("WS_READ_TIMEOUT", 60); err != nil {
		return nil, err
	}
	if config.WSWriteTimeout, err = getEnvSeconds("WS_WRITE_TIMEOUT", 10); err != nil {
		return nil, err
	}

	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 4096

	if config.RosterRefreshInterval, err = getEnvSeconds("ROSTER_REFRESH_INTERVAL", 1); err != nil {
		return nil, err
	}
	if config.PollInterval, err = getEnvSeconds("POLL_INTERVAL", 1); err != nil {
		return nil, err
	}
	if config.DialerCallTimeout, err = getEnvSeconds("DIALER_CALL_TIMEOUT", 5); err != nil {
		return nil, err
	}
	if config.OfflineDebounce, err = getEnvSeconds("OFFLINE_DEBOUNCE", 120); err != nil {
		return nil, err
	}
	if config.SnapshotStaleAfter, err = getEnvSeconds("SNAPSHOT_STALE_AFTER", 300); err != nil {
		return nil, err
	}

	janitorHour, err := strconv.Atoi(getEnv("JANITOR_HOUR", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid JANITOR_HOUR: %w", err)
	}
	if janitorHour < 0 || janitorHour > 23 {
		return nil, fmt.Errorf("JANITOR_HOUR must be 0-23, got %d", janitorHour)
	}
	config.JanitorHour = janitorHour

	batchSize, err := strconv.Atoi(getEnv("JANITOR_BATCH_SIZE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid JANITOR_BATCH_SIZE: %w", err)
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("JANITOR_BATCH_SIZE must be positive, got %d", batchSize)
	}
	config.JanitorBatchSize = batchSize

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnvSeconds parses an env var holding a duration in whole seconds
func getEnvSeconds(key string, defaultSeconds int) (time.Duration, error) {
	raw := getEnv(key, strconv.Itoa(defaultSeconds))
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(seconds) * time.Second, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
