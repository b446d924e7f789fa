package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. FromEnv keeps main lean.
type Server struct {
	Addr string

	// DatabaseURL is the PostgreSQL connection string. Empty selects the
	// in-memory stores (development and unit tests).
	DatabaseURL string

	// RedisURL enables the identity-mapping cache when set.
	RedisURL string

	Revolori RevoloriConfig
	Kafka    KafkaConfig

	// JWTSigningKey verifies owner bearer tokens issued by Revolori.
	JWTSigningKey string

	TechnicalUser     string
	TechnicalPassword string
	AdminUser         string
	AdminPassword     string
}

// RevoloriConfig points at the Revolori SSO provider used for identity
// resolution.
type RevoloriConfig struct {
	BaseURL string
	Timeout time.Duration

	// CacheTTL bounds how long resolved id mappings may be served from
	// cache. Identity mappings change when people link or unlink tool
	// accounts, so keep this short.
	CacheTTL time.Duration
}

// KafkaConfig configures the outbox publisher. Empty brokers disable
// publishing; recorded accesses then stay in the outbox table.
type KafkaConfig struct {
	Brokers []string
	Topic   string

	PollInterval time.Duration
	BatchSize    int
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:              envOr("OVERSEER_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("OVERSEER_DATABASE_URL"),
		RedisURL:          os.Getenv("OVERSEER_REDIS_URL"),
		JWTSigningKey:     envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		TechnicalUser:     envOr("TECHNICAL_USER", "technical"),
		TechnicalPassword: os.Getenv("TECHNICAL_USER_PASSWORD"),
		AdminUser:         envOr("ADMIN_USER", "admin"),
		AdminPassword:     os.Getenv("ADMIN_USER_PASSWORD"),
		Revolori: RevoloriConfig{
			BaseURL:  envOr("REVOLORI_SERVICE_ROOT", "http://localhost:5429"),
			Timeout:  envDurationOr("REVOLORI_TIMEOUT", 5*time.Second),
			CacheTTL: envDurationOr("REVOLORI_CACHE_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Topic:        envOr("KAFKA_ACCESS_TOPIC", "overseer.data-accesses"),
			PollInterval: envDurationOr("OUTBOX_POLL_INTERVAL", time.Second),
			BatchSize:    envIntOr("OUTBOX_BATCH_SIZE", 100),
		},
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitAndTrim(brokers)
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
