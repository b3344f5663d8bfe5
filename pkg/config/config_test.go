package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg := LoadWithDefaults()

	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, []string{"localhost", "127.0.0.1"}, cfg.DevHosts)
	assert.Nil(t, cfg.ReservedPaths)
	assert.Equal(t, 5*time.Second, cfg.DNS.Timeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-production-secret-of-at-least-32-chars")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("BASE_DOMAIN", "Example.com")
	t.Setenv("DEV_HOSTS", "dev.local, ,localhost")
	t.Setenv("DNS_NAMESERVERS", "9.9.9.9,1.1.1.1:53")
	t.Setenv("DNS_TIMEOUT", "2s")
	t.Setenv("API_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, "example.com", cfg.BaseDomain)
	assert.Equal(t, []string{"dev.local", "localhost"}, cfg.DevHosts)
	assert.Equal(t, []string{"9.9.9.9", "1.1.1.1:53"}, cfg.DNS.Nameservers)
	assert.Equal(t, 2*time.Second, cfg.DNS.Timeout)
	assert.Equal(t, 8080, cfg.APIPort, "invalid numbers fall back to the default")
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("JWT_SECRET=dotenv-secret-that-is-long-enough-123\nSTORE_DRIVER=memory\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	// Registered so the values loaded from .env are unset again afterwards.
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE_DRIVER", "")
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("STORE_DRIVER")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dotenv-secret-that-is-long-enough-123", cfg.JWTSecret)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secret", func(c *Config) { c.JWTSecret = "" }},
		{"short secret", func(c *Config) { c.JWTSecret = "short" }},
		{"missing base domain", func(c *Config) { c.BaseDomain = "" }},
		{"base domain with scheme", func(c *Config) { c.BaseDomain = "https://example.com" }},
		{"unknown driver", func(c *Config) { c.StoreDriver = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.StoreDriver = StoreDriverPostgres; c.DatabaseDSN = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadWithDefaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
