package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix, e.g. DAYBOOK_PORT.
const Prefix = "DAYBOOK"

// Config holds all daybook configuration.
// Sections are embedded so that every variable sits directly under the prefix.
type Config struct {
	Server
	Database
	Auth
	Redis
	RateLimit
	Log
	Engine

	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`
}

type Server struct {
	Bind string `envconfig:"BIND" default:"127.0.0.1"`
	Port int    `envconfig:"PORT" default:"37780"`
}

type Database struct {
	Driver        string `envconfig:"DB_DRIVER" default:"sqlite"` // "sqlite", "postgres", "mongo"
	Path          string `envconfig:"DB_PATH"`                    // resolved at runtime via store.DefaultDBPath()
	PostgresDSN   string `envconfig:"POSTGRES_DSN"`
	MongoURI      string `envconfig:"MONGO_URI"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"daybook"`
}

type Auth struct {
	JWTSecret     string `envconfig:"JWT_SECRET"`
	JWTIssuer     string `envconfig:"JWT_ISSUER" default:"daybook"`
	OIDCIssuerURL string `envconfig:"OIDC_ISSUER_URL"`
	OIDCClientID  string `envconfig:"OIDC_CLIENT_ID"`
}

type Redis struct {
	URL            string        `envconfig:"REDIS_URL"` // empty disables idempotency replay
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
}

type RateLimit struct {
	PerSecond float64 `envconfig:"RATE_LIMIT" default:"10"`
	Burst     int     `envconfig:"RATE_BURST" default:"20"`
}

type Log struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

type Engine struct {
	ColorMaxAttempts int `envconfig:"COLOR_MAX_ATTEMPTS" default:"64"`
}

// MinJWTSecretLen is the shortest accepted HMAC secret.
const MinJWTSecretLen = 32

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: Server{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Database: Database{
			Driver:        "sqlite",
			MongoDatabase: "daybook",
		},
		Auth: Auth{
			JWTIssuer: "daybook",
		},
		Redis: Redis{
			IdempotencyTTL: 24 * time.Hour,
		},
		RateLimit: RateLimit{
			PerSecond: 10,
			Burst:     20,
		},
		Log: Log{
			Level: "info",
		},
		Engine: Engine{
			ColorMaxAttempts: 64,
		},
		MetricsEnabled: true,
	}
}

// Load reads DAYBOOK_* environment variables over the defaults.
func Load() (Config, error) {
	cfg := Default()
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return cfg, fmt.Errorf("process environment: %w", err)
	}
	return cfg, nil
}

// Validate checks the driver and auth requirements needed to serve.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("%s_POSTGRES_DSN is required for the postgres driver", Prefix)
		}
	case "mongo":
		if c.Database.MongoURI == "" {
			return fmt.Errorf("%s_MONGO_URI is required for the mongo driver", Prefix)
		}
	default:
		return fmt.Errorf("unsupported %s_DB_DRIVER: %q", Prefix, c.Database.Driver)
	}

	if (c.Auth.OIDCIssuerURL == "") != (c.Auth.OIDCClientID == "") {
		return fmt.Errorf("%s_OIDC_ISSUER_URL and %s_OIDC_CLIENT_ID must be set together", Prefix, Prefix)
	}
	if c.Auth.OIDCIssuerURL == "" && len(c.Auth.JWTSecret) < MinJWTSecretLen {
		return fmt.Errorf("%s_JWT_SECRET must be at least %d characters", Prefix, MinJWTSecretLen)
	}

	if c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit and burst must be positive")
	}
	if c.Engine.ColorMaxAttempts <= 0 {
		return fmt.Errorf("%s_COLOR_MAX_ATTEMPTS must be positive", Prefix)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
