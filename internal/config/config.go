package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ServiceName    = "fulfillment-saga"
	ServiceVersion = "0.1.0"
)

const (
	BackendMemory = "memory"
	BackendMySQL  = "mysql"
	BackendRedis  = "redis"
)

// Config holds environment-specific configuration
type Config struct {
	HTTPAddr string
	GRPCAddr string

	// StorageBackend holds orders, payments and the catalog.
	StorageBackend string
	// LedgerBackend holds available stock and checkout idempotency keys.
	LedgerBackend string
	MySQLDSN      string
	RedisAddr     string

	KafkaBrokers []string // empty disables the event relay
	KafkaTopic   string

	OtelEndpoint string // empty disables trace export

	PaymentSuccessRate float64
	ShutdownTimeout    time.Duration
	SeedProducts       bool
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:       getEnvOrDefault("HTTP_ADDR", ":8080"),
		GRPCAddr:       getEnvOrDefault("GRPC_ADDR", ":50051"),
		StorageBackend: strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", BackendMemory)),
		LedgerBackend:  strings.ToLower(getEnvOrDefault("LEDGER_BACKEND", BackendMemory)),
		MySQLDSN:       os.Getenv("MYSQL_DSN"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     getEnvOrDefault("KAFKA_TOPIC", "marketplace.events"),
		OtelEndpoint:   os.Getenv("OTEL_ENDPOINT"),
	}

	var err error
	if cfg.PaymentSuccessRate, err = strconv.ParseFloat(getEnvOrDefault("PAYMENT_SUCCESS_RATE", "0.9"), 64); err != nil {
		return nil, fmt.Errorf("PAYMENT_SUCCESS_RATE: %w", err)
	}
	if cfg.ShutdownTimeout, err = time.ParseDuration(getEnvOrDefault("SHUTDOWN_TIMEOUT", "5s")); err != nil {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}
	if cfg.SeedProducts, err = strconv.ParseBool(getEnvOrDefault("SEED_PRODUCTS", "false")); err != nil {
		return nil, fmt.Errorf("SEED_PRODUCTS: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendMemory, BackendMySQL:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", BackendMemory, BackendMySQL, c.StorageBackend)
	}
	switch c.LedgerBackend {
	case BackendMemory, BackendMySQL, BackendRedis:
	default:
		return fmt.Errorf("LEDGER_BACKEND must be %q, %q or %q, got %q", BackendMemory, BackendRedis, BackendMySQL, c.LedgerBackend)
	}
	if c.NeedsMySQL() && c.MySQLDSN == "" {
		return fmt.Errorf("MYSQL_DSN is required when a backend is %q", BackendMySQL)
	}
	if c.LedgerBackend == BackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when LEDGER_BACKEND is %q", BackendRedis)
	}
	if c.PaymentSuccessRate < 0 || c.PaymentSuccessRate > 1 {
		return fmt.Errorf("PAYMENT_SUCCESS_RATE must be within [0,1], got %v", c.PaymentSuccessRate)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}

func (c *Config) NeedsMySQL() bool {
	return c.StorageBackend == BackendMySQL || c.LedgerBackend == BackendMySQL
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
