package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	return LoadWith(context.Background(), envconfig.MapLookuper(env))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"JWT_SECRET":   "s3cret",
		"DATABASE_URL": "postgres://localhost/accounts",
	})
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 30*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.VerificationTokenTTL)
	assert.Equal(t, time.Hour, cfg.Auth.ResetTokenTTL)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.False(t, cfg.Auth.RevealVerificationStatus)
	assert.Equal(t, StorePostgres, cfg.Store.Backend)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.True(t, cfg.Postgres.Migrate)
	assert.Equal(t, MailQueueMemory, cfg.Mail.Queue)
	assert.Equal(t, 4, cfg.Mail.Workers)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.False(t, cfg.SMTP.Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"JWT_SECRET":                 "s3cret",
		"ENV":                        "production",
		"STORE":                      "mongo",
		"MONGO_URI":                  "mongodb://mongo:27017",
		"ACCESS_TOKEN_TTL":           "15m",
		"REVEAL_VERIFICATION_STATUS": "true",
		"MAIL_QUEUE":                 "redis",
		"REDIS_ADDR":                 "redis:6379",
		"SMTP_ENABLED":               "true",
		"SMTP_HOST":                  "smtp.example.com",
		"SMTP_FROM":                  "no-reply@example.com",
	})
	require.NoError(t, err)

	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, StoreMongo, cfg.Store.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.True(t, cfg.Auth.RevealVerificationStatus)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.True(t, cfg.SMTP.Enabled)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]struct {
		env  map[string]string
		want string
	}{
		"missing secret": {
			env:  map[string]string{"STORE": "memory"},
			want: "JWT_SECRET",
		},
		"postgres without url": {
			env:  map[string]string{"JWT_SECRET": "s"},
			want: "DATABASE_URL is required",
		},
		"unknown store": {
			env:  map[string]string{"JWT_SECRET": "s", "STORE": "sqlite"},
			want: "STORE must be one of",
		},
		"unknown queue": {
			env:  map[string]string{"JWT_SECRET": "s", "STORE": "memory", "MAIL_QUEUE": "kafka"},
			want: "MAIL_QUEUE must be one of",
		},
		"smtp without host": {
			env:  map[string]string{"JWT_SECRET": "s", "STORE": "memory", "SMTP_ENABLED": "true"},
			want: "SMTP_HOST and SMTP_FROM",
		},
		"non-positive ttl": {
			env:  map[string]string{"JWT_SECRET": "s", "STORE": "memory", "RESET_TOKEN_TTL": "0s"},
			want: "RESET_TOKEN_TTL must be positive",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := load(t, tc.env)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tc.want), "got %v", err)
		})
	}
}
