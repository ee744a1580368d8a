package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE_BACKEND", "PAYMENT_EXPIRY", "RETENTION_DAYS", "ALLOWED_ORIGINS", "CURRENCY"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, StorePostgres, cfg.StoreBackend)
	assert.Equal(t, 30*time.Minute, cfg.PaymentExpiry)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention())
	assert.Equal(t, "PHP", cfg.Currency)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, 5, cfg.ConfirmMaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.ConfirmLockout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("PAYMENT_EXPIRY", "45m")
	t.Setenv("RETENTION_DAYS", "7")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("MIGRATE_ON_START", "false")
	t.Setenv("WEBHOOK_RATE_LIMIT", "2.5")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, 45*time.Minute, cfg.PaymentExpiry)
	assert.Equal(t, 7, cfg.RetentionDays)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.False(t, cfg.MigrateOnStart)
	assert.Equal(t, 2.5, cfg.WebhookRateLimit)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("PAYMENT_EXPIRY", "soon")
	t.Setenv("RETENTION_DAYS", "thirty")

	cfg := Load()

	assert.Equal(t, 30*time.Minute, cfg.PaymentExpiry)
	assert.Equal(t, 30, cfg.RetentionDays)
}

func validConfig() *Config {
	return &Config{
		DatabaseURL:        "postgres://localhost/db",
		JWTSecret:          "secret",
		StoreBackend:       StorePostgres,
		PaymentProvider:    ProviderPayMongo,
		PayMongoSecretKey:  "sk_test_123",
		PaymentFlow:        "qrph",
		RetentionDays:      30,
		ConfirmMaxAttempts: 5,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"memory backend", func(c *Config) { c.StoreBackend = StoreMemory; c.DatabaseURL = "" }, ""},
		{"mock provider without key", func(c *Config) { c.PaymentProvider = ProviderMock; c.PayMongoSecretKey = "" }, ""},
		{"unknown backend", func(c *Config) { c.StoreBackend = "sqlite" }, "STORE_BACKEND"},
		{"paymongo without key", func(c *Config) { c.PayMongoSecretKey = "" }, "PAYMONGO_SECRET_KEY"},
		{"unknown provider", func(c *Config) { c.PaymentProvider = "stripe" }, "PAYMENT_PROVIDER"},
		{"unknown flow", func(c *Config) { c.PaymentFlow = "card" }, "PAYMENT_FLOW"},
		{"no retention", func(c *Config) { c.RetentionDays = 0 }, "RETENTION_DAYS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
