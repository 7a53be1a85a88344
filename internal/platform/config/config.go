// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "idregistry/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	Admin     AdminConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Registry  RegistryConfig
	RateLimit RateLimitConfig
}

// AdminConfig configures operator tokens.
type AdminConfig struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

// PostgresConfig selects the Postgres store. An empty DSN keeps state in memory.
type PostgresConfig struct {
	DSN string
}

// RedisConfig configures the registration read cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// KafkaConfig configures receiver notifications. No brokers means receivers
// are notified through the in-process recorder.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RateLimitConfig caps public API requests per client IP. Zero requests
// disables limiting.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// RegistryConfig holds the values used to initialize an empty registry.
// Verifiers empty means the registry starts uninitialized and waits for
// persisted settings.
type RegistryConfig struct {
	Context               string
	Verifiers             []string
	RequiredVerifications int
	RegistrationPeriod    time.Duration
	TimestampVariance     time.Duration
}

// RegistryCacheTTL is the default lifetime of cached registration records.
var RegistryCacheTTL = 5 * time.Minute

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var errs []string
	intVar := func(key string, def int) int {
		v, err := envInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	durationVar := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	cfg := Server{
		Addr:            envString("IDREGISTRY_ADDR", ":8080"),
		LogLevel:        envString("LOG_LEVEL", "info"),
		LogFormat:       envString("LOG_FORMAT", "json"),
		ShutdownTimeout: durationVar("SHUTDOWN_TIMEOUT", 10*time.Second),
		Admin: AdminConfig{
			// Use a default for development - should be overridden in production
			JWTSigningKey: envString("ADMIN_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:        envString("ADMIN_JWT_ISSUER", "idregistry"),
			Audience:      envString("ADMIN_JWT_AUDIENCE", "idregistry-admin"),
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     intVar("REDIS_POOL_SIZE", 10),
			MinIdleConns: intVar("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  durationVar("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  durationVar("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: durationVar("REDIS_WRITE_TIMEOUT", 3*time.Second),
			CacheTTL:     durationVar("REGISTRY_CACHE_TTL", RegistryCacheTTL),
		},
		Kafka: KafkaConfig{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   envString("KAFKA_NOTIFICATION_TOPIC", "idregistry.registrations"),
		},
		Registry: RegistryConfig{
			Context:               envString("REGISTRY_CONTEXT", "1hive"),
			Verifiers:             envList("REGISTRY_VERIFIERS"),
			RequiredVerifications: intVar("REGISTRY_REQUIRED_VERIFICATIONS", 1),
			RegistrationPeriod:    durationVar("REGISTRY_REGISTRATION_PERIOD", 30*24*time.Hour),
			TimestampVariance:     durationVar("REGISTRY_TIMESTAMP_VARIANCE", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Requests: intVar("RATE_LIMIT_REQUESTS", 120),
			Window:   durationVar("RATE_LIMIT_WINDOW", time.Minute),
		},
	}
	if len(errs) > 0 {
		return Server{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

// envDuration accepts Go durations ("36h") or plain seconds ("129600").
func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envList(key string) []string {
	return platformstrings.SplitList(os.Getenv(key), ",")
}
