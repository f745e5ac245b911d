package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	Environment    string
	LogLevel       string
	AllowedOrigins []string

	DatabaseURL     string
	DatabaseReadURL string // Read replica URL for SELECT queries
	RedisURL        string

	ClickHouseAddr     []string
	ClickHouseDB       string
	ClickHouseUsername string
	ClickHousePassword string

	SessionJWTSecret string

	QueueName        string
	QueueMaxAttempts int
	QueueBackoff     time.Duration
	QueueLeaseTTL    time.Duration

	WorkerCount int
	JobTimeout  time.Duration
	JobRetry    bool
	DedupTTL    time.Duration

	AnalyticsCacheTTL time.Duration // 0 disables the aggregate cache

	IngestRateLimit int // requests per IP per minute, 0 disables
	MaxBatchSize    int

	BreakerFailureThreshold uint32
	BreakerOpenTimeout      time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "production"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:5174")),

		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DatabaseReadURL: getEnv("DATABASE_READ_URL", getEnv("DATABASE_URL", "")), // Falls back to write DB if not set
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),

		ClickHouseAddr:     parseOrigins(getEnv("CLICKHOUSE_ADDR", "localhost:9000")),
		ClickHouseDB:       getEnv("CLICKHOUSE_DB", "analytics"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		SessionJWTSecret: getEnv("SESSION_JWT_SECRET", ""),

		QueueName:        getEnv("QUEUE_NAME", "analytics-events"),
		QueueMaxAttempts: getIntEnv("QUEUE_MAX_ATTEMPTS", 3),
		QueueBackoff:     getDurationEnv("QUEUE_BACKOFF", 2*time.Second),
		QueueLeaseTTL:    getDurationEnv("QUEUE_LEASE_TTL", 30*time.Second),

		WorkerCount: getIntEnv("WORKER_COUNT", 4),
		JobTimeout:  getDurationEnv("JOB_TIMEOUT", 10*time.Second),
		JobRetry:    getBoolEnv("JOB_RETRY", false),
		DedupTTL:    getDurationEnv("DEDUP_TTL", time.Hour),

		AnalyticsCacheTTL: getDurationEnv("ANALYTICS_CACHE_TTL", 30*time.Second),

		IngestRateLimit: getIntEnv("INGEST_RATE_LIMIT", 600),
		MaxBatchSize:    getIntEnv("MAX_BATCH_SIZE", 100),

		BreakerFailureThreshold: uint32(getIntEnv("BREAKER_FAILURE_THRESHOLD", 5)),
		BreakerOpenTimeout:      getDurationEnv("BREAKER_OPEN_TIMEOUT", 15*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.QueueMaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1, got %d", c.QueueMaxAttempts)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1, got %d", c.WorkerCount)
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("MAX_BATCH_SIZE must be at least 1, got %d", c.MaxBatchSize)
	}
	if c.IsProduction() && c.SessionJWTSecret == "" {
		return fmt.Errorf("SESSION_JWT_SECRET is required in production")
	}
	return nil
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseOrigins parses a comma-separated list into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDurationEnv accepts Go durations ("90s") or plain seconds ("90")
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
