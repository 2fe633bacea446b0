package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// BreakerConfig holds circuit breaker tunables for one external service.
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
	Timeout          time.Duration
}

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel        string
	HTTPPort        string
	AdminToken      string
	ShutdownTimeout time.Duration

	// Storage
	StorageMode  string // "postgres" or "memory"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string

	// Venues
	PolymarketGammaURL string
	KalshiAPIURL       string
	PolymarketBreaker  BreakerConfig
	KalshiBreaker      BreakerConfig
	VenueCacheTTL      time.Duration

	// Resolution poller
	PollerInterval    time.Duration
	PollerStaleGrace  time.Duration
	PollerConcurrency int
	PollerLockTTL     time.Duration
	RedisAddr         string // optional tick lock

	// Payment webhook
	PaymentWebhookSecret    string
	PaymentWebhookTolerance time.Duration

	// Events
	EventsMode      string // "log", "nats" or "kafka"
	EventsQueueSize int
	NATSURL         string
	KafkaBrokers    []string
	KafkaTopic      string
}

// Load reads configuration from environment variables with defaults, without validating it.
func Load() *Config {
	return &Config{
		// Application defaults
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort:        getEnvOrDefault("HTTP_PORT", "8080"),
		AdminToken:      os.Getenv("ADMIN_TOKEN"),
		ShutdownTimeout: getDurationOrDefault("SHUTDOWN_TIMEOUT", 30*time.Second),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "postgres"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "arena"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "arena123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "arena_settle"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),

		// Venue defaults
		PolymarketGammaURL: getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		KalshiAPIURL:       getEnvOrDefault("KALSHI_API_URL", "https://api.elections.kalshi.com"),
		PolymarketBreaker: BreakerConfig{
			FailureThreshold: getIntOrDefault("POLYMARKET_BREAKER_FAILURE_THRESHOLD", 5),
			Cooldown:         getDurationOrDefault("POLYMARKET_BREAKER_COOLDOWN", 60*time.Second),
			Timeout:          getDurationOrDefault("POLYMARKET_BREAKER_TIMEOUT", 10*time.Second),
		},
		KalshiBreaker: BreakerConfig{
			FailureThreshold: getIntOrDefault("KALSHI_BREAKER_FAILURE_THRESHOLD", 3),
			Cooldown:         getDurationOrDefault("KALSHI_BREAKER_COOLDOWN", 30*time.Second),
			Timeout:          getDurationOrDefault("KALSHI_BREAKER_TIMEOUT", 5*time.Second),
		},
		VenueCacheTTL: getDurationOrDefault("VENUE_CACHE_TTL", time.Hour),

		// Poller defaults
		PollerInterval:    getDurationOrDefault("POLLER_INTERVAL", 5*time.Minute),
		PollerStaleGrace:  getDurationOrDefault("POLLER_STALE_GRACE", 25*time.Hour),
		PollerConcurrency: getIntOrDefault("POLLER_CONCURRENCY", 4),
		PollerLockTTL:     getDurationOrDefault("POLLER_LOCK_TTL", 4*time.Minute),
		RedisAddr:         os.Getenv("REDIS_ADDR"),

		// Webhook defaults
		PaymentWebhookSecret:    os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		PaymentWebhookTolerance: getDurationOrDefault("PAYMENT_WEBHOOK_TOLERANCE", 5*time.Minute),

		// Events defaults
		EventsMode:      getEnvOrDefault("EVENTS_MODE", "log"),
		EventsQueueSize: getIntOrDefault("EVENTS_QUEUE_SIZE", 1024),
		NATSURL:         getEnvOrDefault("NATS_URL", "nats://localhost:4222"),
		KafkaBrokers:    getListOrDefault("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaTopic:      getEnvOrDefault("KAFKA_TOPIC", "arena-settle-events"),
	}
}

// LoadFromEnv loads and validates configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := Load()

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if err := c.ValidateStorage(); err != nil {
		return err
	}

	if c.PolymarketGammaURL == "" {
		return fmt.Errorf("POLYMARKET_GAMMA_API_URL cannot be empty")
	}
	if c.KalshiAPIURL == "" {
		return fmt.Errorf("KALSHI_API_URL cannot be empty")
	}
	if err := c.PolymarketBreaker.validate("POLYMARKET_BREAKER"); err != nil {
		return err
	}
	if err := c.KalshiBreaker.validate("KALSHI_BREAKER"); err != nil {
		return err
	}

	if c.PollerInterval <= 0 {
		return fmt.Errorf("POLLER_INTERVAL must be positive, got %v", c.PollerInterval)
	}
	if c.PollerStaleGrace <= 0 {
		return fmt.Errorf("POLLER_STALE_GRACE must be positive, got %v", c.PollerStaleGrace)
	}
	if c.PollerConcurrency < 1 {
		return fmt.Errorf("POLLER_CONCURRENCY must be at least 1, got %d", c.PollerConcurrency)
	}
	if c.RedisAddr != "" && c.PollerLockTTL <= 0 {
		return fmt.Errorf("POLLER_LOCK_TTL must be positive when REDIS_ADDR is set")
	}

	if c.PaymentWebhookSecret == "" {
		return fmt.Errorf("PAYMENT_WEBHOOK_SECRET cannot be empty")
	}
	if c.PaymentWebhookTolerance <= 0 {
		return fmt.Errorf("PAYMENT_WEBHOOK_TOLERANCE must be positive, got %v", c.PaymentWebhookTolerance)
	}

	switch c.EventsMode {
	case "log":
	case "nats":
		if c.NATSURL == "" {
			return fmt.Errorf("NATS_URL cannot be empty when EVENTS_MODE=nats")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS cannot be empty when EVENTS_MODE=kafka")
		}
		if c.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_TOPIC cannot be empty when EVENTS_MODE=kafka")
		}
	default:
		return fmt.Errorf("EVENTS_MODE must be 'log', 'nats' or 'kafka', got %q", c.EventsMode)
	}

	return nil
}

// ValidateStorage checks only the storage settings. The migrate command needs nothing else.
func (c *Config) ValidateStorage() error {
	switch c.StorageMode {
	case "memory":
	case "postgres":
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST cannot be empty when STORAGE_MODE=postgres")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB cannot be empty when STORAGE_MODE=postgres")
		}
	default:
		return fmt.Errorf("STORAGE_MODE must be 'postgres' or 'memory', got %q", c.StorageMode)
	}
	return nil
}

func (b BreakerConfig) validate(prefix string) error {
	if b.FailureThreshold < 1 {
		return fmt.Errorf("%s_FAILURE_THRESHOLD must be at least 1, got %d", prefix, b.FailureThreshold)
	}
	if b.Cooldown <= 0 {
		return fmt.Errorf("%s_COOLDOWN must be positive, got %v", prefix, b.Cooldown)
	}
	if b.Timeout <= 0 {
		return fmt.Errorf("%s_TIMEOUT must be positive, got %v", prefix, b.Timeout)
	}
	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

// getListOrDefault splits a comma-separated value, dropping empty entries.
func getListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
