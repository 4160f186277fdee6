// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pkgstrings "npi-gateway/pkg/platform/strings"
)

// Config is the full runtime configuration for the gateway.
type Config struct {
	Server   Server
	Log      Log
	Redis    RedisConfig
	Database DatabaseConfig
	Registry RegistryConfig
	Batch    BatchConfig
	Cleanup  CleanupConfig
	Kafka    KafkaConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Log selects the slog handler.
type Log struct {
	Level  string
	Format string
}

// RedisConfig configures the shared cache tier. An empty URL leaves the tier
// unconfigured.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig configures the durable cache tier. An empty URL leaves the
// tier unconfigured.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	BootstrapSchema bool
}

// RegistryConfig points at the NPPES API.
type RegistryConfig struct {
	BaseURL string
	Timeout time.Duration
}

// BatchConfig bounds batch requests.
type BatchConfig struct {
	Concurrency int
	MaxItems    int
}

// CleanupConfig drives the expired-row worker. Zero disables it.
type CleanupConfig struct {
	Interval time.Duration
}

// KafkaConfig enables validation events when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables. Every malformed or
// out-of-range value is reported in the returned error.
func FromEnv() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	e := &env{lookup: lookup}
	cfg := Config{
		Server: Server{
			Addr:            e.str("NPI_GATEWAY_ADDR", ":8080"),
			ShutdownTimeout: e.duration("NPI_GATEWAY_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Log: Log{
			Level:  strings.ToLower(e.str("LOG_LEVEL", "info")),
			Format: strings.ToLower(e.str("LOG_FORMAT", "json")),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 500*time.Millisecond),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 500*time.Millisecond),
		},
		Database: DatabaseConfig{
			URL:             e.str("DATABASE_URL", ""),
			MaxOpenConns:    e.int("DATABASE_MAX_OPEN_CONNS", 10),
			BootstrapSchema: e.bool("DATABASE_BOOTSTRAP_SCHEMA", false),
		},
		Registry: RegistryConfig{
			BaseURL: e.str("NPI_REGISTRY_URL", "https://npiregistry.cms.hhs.gov/api/"),
			Timeout: e.duration("NPI_REGISTRY_TIMEOUT", 10*time.Second),
		},
		Batch: BatchConfig{
			Concurrency: e.int("NPI_BATCH_CONCURRENCY", 2),
			MaxItems:    e.int("NPI_BATCH_MAX_ITEMS", 100),
		},
		Cleanup: CleanupConfig{
			Interval: e.duration("NPI_CACHE_CLEANUP_INTERVAL", time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers: e.list("KAFKA_BROKERS"),
			Topic:   e.str("KAFKA_VALIDATION_TOPIC", "npi.validation.v1"),
		},
	}
	if err := errors.Join(append(e.errs, cfg.Validate())...); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Server.Addr != "", "NPI_GATEWAY_ADDR must not be empty")
	check(c.Server.ShutdownTimeout > 0, "NPI_GATEWAY_SHUTDOWN_TIMEOUT must be positive")
	check(oneOf(c.Log.Level, "debug", "info", "warn", "error"), "LOG_LEVEL %q is not one of debug, info, warn, error", c.Log.Level)
	check(oneOf(c.Log.Format, "json", "text"), "LOG_FORMAT %q is not json or text", c.Log.Format)
	check(c.Redis.PoolSize > 0, "REDIS_POOL_SIZE must be > 0")
	check(c.Redis.MinIdleConns >= 0, "REDIS_MIN_IDLE_CONNS must be >= 0")
	check(c.Database.MaxOpenConns > 0, "DATABASE_MAX_OPEN_CONNS must be > 0")
	check(c.Registry.BaseURL != "", "NPI_REGISTRY_URL must not be empty")
	check(c.Registry.Timeout > 0, "NPI_REGISTRY_TIMEOUT must be positive")
	check(c.Batch.Concurrency > 0, "NPI_BATCH_CONCURRENCY must be > 0")
	check(c.Batch.MaxItems > 0, "NPI_BATCH_MAX_ITEMS must be > 0")
	check(c.Cleanup.Interval >= 0, "NPI_CACHE_CLEANUP_INTERVAL must not be negative")
	check(len(c.Kafka.Brokers) == 0 || c.Kafka.Topic != "", "KAFKA_VALIDATION_TOPIC is required when KAFKA_BROKERS is set")
	return errors.Join(errs...)
}

// env reads typed values and collects parse failures.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) int(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, raw))
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, raw))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration", key, raw))
		return def
	}
	return d
}

func (e *env) list(key string) []string {
	return pkgstrings.SplitList(e.str(key, ""), ",")
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
