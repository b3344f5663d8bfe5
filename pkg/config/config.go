// Package config provides environment-based configuration for the storefront server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all configuration for the server.
type Config struct {
	// Database configuration
	DatabaseDSN string
	StoreDriver string

	// Authentication
	JWTSecret string
	JWTExpiry time.Duration

	// Server configuration
	APIHost         string
	APIPort         int
	ShutdownTimeout time.Duration

	// Routing
	BaseDomain    string
	DevHosts      []string
	ReservedPaths []string

	// Domain verification
	DNS DNSConfig

	// WarmupTimeout bounds a background tenant cache warmup.
	WarmupTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// DNSConfig holds the TXT lookup configuration.
type DNSConfig struct {
	// Nameservers are queried in order; empty means /etc/resolv.conf.
	Nameservers []string
	Timeout     time.Duration
}

// Load reads an optional .env file, then configuration from environment
// variables, and validates it.
func Load() (*Config, error) {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	cfg := LoadWithDefaults()
	cfg.JWTSecret = getEnv("JWT_SECRET", "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not validate required fields, useful for testing.
func LoadWithDefaults() *Config {
	return &Config{
		DatabaseDSN:     getEnv("DATABASE_URL", "postgres://localhost:5432/storefront?sslmode=disable"),
		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		JWTSecret:       getEnv("JWT_SECRET", "development-secret-key-min-32-chars"),
		JWTExpiry:       getDurationEnv("JWT_EXPIRY", 24*time.Hour),
		APIHost:         getEnv("API_HOST", "0.0.0.0"),
		APIPort:         getIntEnv("API_PORT", 8080),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		BaseDomain:      strings.ToLower(getEnv("BASE_DOMAIN", "localhost")),
		DevHosts:        getListEnv("DEV_HOSTS", []string{"localhost", "127.0.0.1"}),
		ReservedPaths:   getListEnv("RESERVED_PATHS", nil),
		DNS: DNSConfig{
			Nameservers: getListEnv("DNS_NAMESERVERS", nil),
			Timeout:     getDurationEnv("DNS_TIMEOUT", 5*time.Second),
		},
		WarmupTimeout: getDurationEnv("WARMUP_TIMEOUT", 30*time.Second),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
	}
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.BaseDomain == "" {
		return fmt.Errorf("BASE_DOMAIN is required")
	}
	if strings.ContainsAny(c.BaseDomain, "/: ") {
		return fmt.Errorf("BASE_DOMAIN must be a bare host name, got %q", c.BaseDomain)
	}
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getListEnv splits a comma separated value, dropping blanks.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
