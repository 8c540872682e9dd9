package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1", cfg.Server.Bind)
	assert.Equal(t, 37780, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
	assert.Equal(t, 64, cfg.Engine.ColorMaxAttempts)
	assert.True(t, cfg.MetricsEnabled)
}

func TestListenAddr(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1:37780", cfg.ListenAddr())

	cfg.Server.Bind = "0.0.0.0"
	cfg.Server.Port = 9090
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr())
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DAYBOOK_PORT", "8081")
	t.Setenv("DAYBOOK_DB_DRIVER", "postgres")
	t.Setenv("DAYBOOK_POSTGRES_DSN", "postgres://localhost/daybook")
	t.Setenv("DAYBOOK_IDEMPOTENCY_TTL", "1h")
	t.Setenv("DAYBOOK_RATE_LIMIT", "2.5")
	t.Setenv("DAYBOOK_LOG_PRETTY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/daybook", cfg.Database.PostgresDSN)
	assert.Equal(t, time.Hour, cfg.Redis.IdempotencyTTL)
	assert.Equal(t, 2.5, cfg.RateLimit.PerSecond)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoadRejectsBadValue(t *testing.T) {
	t.Setenv("DAYBOOK_PORT", "not-a-port")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	secret := strings.Repeat("s", MinJWTSecretLen)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"sqlite with secret", func(c *Config) { c.Auth.JWTSecret = secret }, ""},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "JWT_SECRET"},
		{"oidc without secret", func(c *Config) {
			c.Auth.OIDCIssuerURL = "https://issuer.example.com"
			c.Auth.OIDCClientID = "daybook"
		}, ""},
		{"oidc half configured", func(c *Config) {
			c.Auth.JWTSecret = secret
			c.Auth.OIDCIssuerURL = "https://issuer.example.com"
		}, "must be set together"},
		{"postgres without dsn", func(c *Config) {
			c.Auth.JWTSecret = secret
			c.Database.Driver = "postgres"
		}, "POSTGRES_DSN"},
		{"mongo without uri", func(c *Config) {
			c.Auth.JWTSecret = secret
			c.Database.Driver = "mongo"
		}, "MONGO_URI"},
		{"unknown driver", func(c *Config) {
			c.Auth.JWTSecret = secret
			c.Database.Driver = "dynamo"
		}, "unsupported"},
		{"zero burst", func(c *Config) {
			c.Auth.JWTSecret = secret
			c.RateLimit.Burst = 0
		}, "burst"},
		{"zero color attempts", func(c *Config) {
			c.Auth.JWTSecret = secret
			c.Engine.ColorMaxAttempts = 0
		}, "COLOR_MAX_ATTEMPTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
