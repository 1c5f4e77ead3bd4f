// Package config loads the service configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"

	MailQueueMemory = "memory"
	MailQueueRedis  = "redis"
)

type Config struct {
	Port            string        `env:"PORT,             default=8080"`
	Env             string        `env:"ENV,              default=development"`
	LogLevel        string        `env:"LOG_LEVEL,        default=info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=10s"`

	Auth     AuthConfig
	Store    StoreConfig
	Postgres PostgresConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Mail     MailConfig
	SMTP     SMTPConfig
}

type AuthConfig struct {
	JWTSecret                string        `env:"JWT_SECRET, required"`
	AccessTokenTTL           time.Duration `env:"ACCESS_TOKEN_TTL,           default=30m"`
	VerificationTokenTTL     time.Duration `env:"VERIFICATION_TOKEN_TTL,     default=24h"`
	ResetTokenTTL            time.Duration `env:"RESET_TOKEN_TTL,            default=1h"`
	BcryptCost               int           `env:"BCRYPT_COST,                default=12"`
	FrontendURL              string        `env:"FRONTEND_URL,               default=http://localhost:3000"`
	RevealVerificationStatus bool          `env:"REVEAL_VERIFICATION_STATUS, default=false"`
}

type StoreConfig struct {
	Backend string        `env:"STORE,      default=postgres"`
	Timeout time.Duration `env:"DB_TIMEOUT, default=5s"`
}

type PostgresConfig struct {
	URL          string `env:"DATABASE_URL"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS, default=25"`
	Migrate      bool   `env:"DB_MIGRATE,        default=true"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=accounts"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

type MailConfig struct {
	Queue   string `env:"MAIL_QUEUE,   default=memory"`
	Workers int    `env:"MAIL_WORKERS, default=4"`
	Buffer  int    `env:"MAIL_BUFFER,  default=256"`
}

type SMTPConfig struct {
	Enabled  bool          `env:"SMTP_ENABLED,   default=false"`
	Host     string        `env:"SMTP_HOST"`
	Port     int           `env:"SMTP_PORT,      default=587"`
	User     string        `env:"SMTP_USER"`
	Password string        `env:"SMTP_PASSWORD"`
	From     string        `env:"SMTP_FROM"`
	FromName string        `env:"SMTP_FROM_NAME"`
	TLS      bool          `env:"SMTP_TLS,       default=false"`
	Timeout  time.Duration `env:"SMTP_TIMEOUT,   default=10s"`
}

// IsDevelopment reports whether the service runs in a local environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// Load reads configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration through l and validates it.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be blank"))
	}
	for name, ttl := range map[string]time.Duration{
		"ACCESS_TOKEN_TTL":       c.Auth.AccessTokenTTL,
		"VERIFICATION_TOKEN_TTL": c.Auth.VerificationTokenTTL,
		"RESET_TOKEN_TTL":        c.Auth.ResetTokenTTL,
	} {
		if ttl <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	switch c.Store.Backend {
	case StorePostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE=postgres"))
		}
	case StoreMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			errs = append(errs, errors.New("MONGO_URI and MONGO_DB are required when STORE=mongo"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE must be one of postgres, mongo, memory (got %q)", c.Store.Backend))
	}

	switch c.Mail.Queue {
	case MailQueueMemory:
	case MailQueueRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when MAIL_QUEUE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("MAIL_QUEUE must be one of memory, redis (got %q)", c.Mail.Queue))
	}

	if c.SMTP.Enabled && (c.SMTP.Host == "" || c.SMTP.From == "") {
		errs = append(errs, errors.New("SMTP_HOST and SMTP_FROM are required when SMTP_ENABLED=true"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
