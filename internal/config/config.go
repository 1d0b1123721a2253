// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP server
	Port            string
	ShutdownTimeout time.Duration

	// Storage
	DatabaseURL string
	AutoMigrate bool
	DevSeed     bool

	// Logging
	LogLevel  string
	LogFormat string

	// Change notifications; empty AMQPURL keeps them in-process
	AMQPURL      string
	AMQPExchange string

	// Balances
	BalanceCacheSize int
	BalanceCacheTTL  time.Duration
	DustMinor        int64

	// Auth; empty secret disables JWT checks
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		DatabaseURL: strings.TrimSpace(getEnv("DATABASE_URL", "")),
		AutoMigrate: getEnvBool("AUTO_MIGRATE", false),
		DevSeed:     getEnvBool("DEV_SEED", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		AMQPURL:      strings.TrimSpace(getEnv("AMQP_URL", "")),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "tripsettle.expenses"),

		BalanceCacheSize: getEnvInt("BALANCE_CACHE_SIZE", 512),
		BalanceCacheTTL:  getEnvDuration("BALANCE_CACHE_TTL", 10*time.Minute),
		DustMinor:        int64(getEnvInt("SETTLEMENT_DUST_MINOR", 0)),

		JWTSecret:   strings.TrimSpace(getEnv("JWT_HS256_SECRET", "")),
		JWTIssuer:   strings.TrimSpace(getEnv("JWT_ISSUER", "")),
		JWTAudience: strings.TrimSpace(getEnv("JWT_AUDIENCE", "")),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.DatabaseURL != "" {
		if u, err := url.Parse(c.DatabaseURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid DATABASE_URL: %v", err))
		} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			problems = append(problems, fmt.Sprintf("invalid DATABASE_URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
		}
	}
	if c.AutoMigrate && c.DatabaseURL == "" {
		problems = append(problems, "AUTO_MIGRATE requires DATABASE_URL")
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be 'json' or 'text'", c.LogFormat))
	}

	if c.BalanceCacheSize < 1 {
		problems = append(problems, fmt.Sprintf("invalid balance cache size %d: must be at least 1", c.BalanceCacheSize))
	}
	if c.BalanceCacheTTL < time.Second {
		problems = append(problems, fmt.Sprintf("invalid balance cache ttl %v: must be at least 1 second", c.BalanceCacheTTL))
	}
	if c.DustMinor < 0 {
		problems = append(problems, fmt.Sprintf("invalid settlement dust %d: must not be negative", c.DustMinor))
	}
	if c.ShutdownTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("invalid shutdown timeout %v: must be positive", c.ShutdownTimeout))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string { return ":" + c.Port }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return defaultValue
}
