package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "test",
			Password: "test",
			Database: "test_db",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Payment: PaymentConfig{
			LockTTL: 30 * time.Second,
		},
		Reconciliation: ReconciliationConfig{AmountTolerance: "0.01", MatchWindow: 100},
		Worker: WorkerConfig{
			BatchSize: 10,
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"port too low", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too high", func(c *Config) { c.Server.Port = 99999 }, "server.port"},
		{"read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, "read_timeout"},
		{"write timeout", func(c *Config) { c.Server.WriteTimeout = 0 }, "write_timeout"},
		{"database host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"database port", func(c *Config) { c.Database.Port = 0 }, "database.port"},
		{"redis port", func(c *Config) { c.Redis.Port = 0 }, "redis.port"},
		{"lock ttl", func(c *Config) { c.Payment.LockTTL = 0 }, "payment.lock_ttl"},
		{"batch size", func(c *Config) { c.Worker.BatchSize = 0 }, "worker.batch_size"},
		{"tolerance not decimal", func(c *Config) { c.Reconciliation.AmountTolerance = "abc" }, "amount_tolerance"},
		{"tolerance negative", func(c *Config) { c.Reconciliation.AmountTolerance = "-1" }, "amount_tolerance"},
		{"match window", func(c *Config) { c.Reconciliation.MatchWindow = -1 }, "match_window"},
		{"mail without host", func(c *Config) { c.Mail = MailConfig{Enabled: true, From: "a@b.c"} }, "mail.host"},
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "jwt_secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)

	errStr := err.Error()
	assert.Contains(t, errStr, "server.port")
	assert.Contains(t, errStr, "read_timeout")
	assert.Contains(t, errStr, "write_timeout")
	assert.Contains(t, errStr, "database.host")
	assert.Contains(t, errStr, "database.port")
	assert.Contains(t, errStr, "redis.port")
	assert.Contains(t, errStr, "payment.lock_ttl")
	assert.Contains(t, errStr, "worker.batch_size")
}

func TestConfig_Validate_Production(t *testing.T) {
	cfg := validConfig()
	cfg.Environment = "production"
	cfg.Database.Password = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.password required in production")
	assert.Contains(t, err.Error(), "auth.jwt_secret required in production")
	assert.Contains(t, err.Error(), "redirect.success_url")

	cfg.Database.Password = "pw"
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.Redirect = RedirectConfig{SuccessURL: "https://shop/ok", FailureURL: "https://shop/fail"}
	assert.NoError(t, cfg.Validate())
}

func TestConfig_EnforcementDefaultsFollowEnvironment(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.IsProduction())
	assert.False(t, cfg.SignaturesEnforced())
	assert.False(t, cfg.AmountsEnforced())

	cfg.Environment = "Prod"
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.SignaturesEnforced())
	assert.True(t, cfg.AmountsEnforced())

	off := false
	cfg.Reconciliation.EnforceAmounts = &off
	assert.True(t, cfg.SignaturesEnforced())
	assert.False(t, cfg.AmountsEnforced())
}

func TestReconciliationConfig_Tolerance(t *testing.T) {
	c := ReconciliationConfig{AmountTolerance: "0.05"}
	assert.True(t, c.Tolerance().Equal(decimal.RequireFromString("0.05")))

	c.AmountTolerance = ""
	assert.True(t, c.Tolerance().Equal(decimal.RequireFromString("0.01")))
}

func TestRedirectConfig_ResultURL(t *testing.T) {
	c := RedirectConfig{SuccessURL: "https://{store}.shop.test/thanks", FailureURL: "https://{store}.shop.test/oops"}

	assert.Equal(t, "https://acme.shop.test/thanks", c.ResultURL(true, "acme"))
	assert.Equal(t, "https://acme.shop.test/oops", c.ResultURL(false, "acme"))
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "require"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=require", cfg.DatabaseDSN())
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "redis.example.com", Port: 6379}
	assert.Equal(t, "redis.example.com:6379", cfg.RedisAddr())
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("PAYMENTS_ENVIRONMENT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Reconciliation.MatchWindow)
	assert.Equal(t, 30*time.Minute, cfg.Checkout.PendingTTL)
	assert.Equal(t, "payments:detached", cfg.Worker.Stream)
	assert.Nil(t, cfg.Reconciliation.EnforceSignatures)
	assert.False(t, cfg.SignaturesEnforced())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PAYMENTS_ENVIRONMENT", "")
	t.Setenv("ENV", "production")
	t.Setenv("PAYMENTS_DATABASE_PASSWORD", "pw")
	t.Setenv("PAYMENTS_AUTH_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("PAYMENTS_REDIRECT_SUCCESS_URL", "https://{store}.shop/ok")
	t.Setenv("PAYMENTS_REDIRECT_FAILURE_URL", "https://{store}.shop/fail")
	t.Setenv("PAYMENTS_RECONCILIATION_ENFORCE_AMOUNTS", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "pw", cfg.Database.Password)
	assert.True(t, cfg.SignaturesEnforced())
	assert.False(t, cfg.AmountsEnforced())
}
