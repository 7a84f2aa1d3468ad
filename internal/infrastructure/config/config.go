package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Environment    string               `mapstructure:"environment"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Payment        PaymentConfig        `mapstructure:"payment"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Checkout       CheckoutConfig       `mapstructure:"checkout"`
	Redirect       RedirectConfig       `mapstructure:"redirect"`
	Webhook        WebhookConfig        `mapstructure:"webhook"`
	Mail           MailConfig           `mapstructure:"mail"`
	Worker         WorkerConfig         `mapstructure:"worker"`
	Observability  ObservabilityConfig  `mapstructure:"observability"`
	Auth           AuthConfig           `mapstructure:"auth"`
	InstanceID     string               `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

type PaymentConfig struct {
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	ProcessingTimeout time.Duration `mapstructure:"processing_timeout"`
}

// ReconciliationConfig controls the callback pipeline. The enforce switches
// default to the environment: enforced in production, warn-only elsewhere.
type ReconciliationConfig struct {
	EnforceSignatures *bool         `mapstructure:"enforce_signatures"`
	EnforceAmounts    *bool         `mapstructure:"enforce_amounts"`
	AmountTolerance   string        `mapstructure:"amount_tolerance"`
	MatchWindow       int           `mapstructure:"match_window"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
}

type CheckoutConfig struct {
	PendingTTL time.Duration `mapstructure:"pending_ttl"`
}

// RedirectConfig holds the customer-facing result pages. "{store}" is
// replaced with the store slug.
type RedirectConfig struct {
	SuccessURL string `mapstructure:"success_url"`
	FailureURL string `mapstructure:"failure_url"`
}

type WebhookConfig struct {
	MaxBodyBytes       int64 `mapstructure:"max_body_bytes"`
	RateLimitPerMinute int   `mapstructure:"rate_limit_per_minute"`
}

type MailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type WorkerConfig struct {
	BatchSize                  int64         `mapstructure:"batch_size"`
	BlockDuration              time.Duration `mapstructure:"block_duration"`
	OutboxPollInterval         time.Duration `mapstructure:"outbox_poll_interval"`
	ConsumerGroup              string        `mapstructure:"consumer_group"`
	Stream                     string        `mapstructure:"stream"`
	IdempotencyTTL             time.Duration `mapstructure:"idempotency_ttl"`
	IdempotencyCleanupInterval time.Duration `mapstructure:"idempotency_cleanup_interval"`
	ExpirySweepInterval        time.Duration `mapstructure:"expiry_sweep_interval"`
	ExpiryBatchSize            int           `mapstructure:"expiry_batch_size"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PAYMENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// ENV is the deployment-wide convention; PAYMENTS_ENVIRONMENT wins when both are set
	if err := v.BindEnv("environment", "PAYMENTS_ENVIRONMENT", "ENV"); err != nil {
		return nil, fmt.Errorf("bind environment: %w", err)
	}
	// optional switches have no default, so they must be bound to be unmarshaled
	for _, key := range []string{"reconciliation.enforce_signatures", "reconciliation.enforce_amounts"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/payments")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// IsProduction reports whether the service runs with production policies.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// SignaturesEnforced reports whether an invalid callback proof is rejected.
func (c *Config) SignaturesEnforced() bool {
	if c.Reconciliation.EnforceSignatures != nil {
		return *c.Reconciliation.EnforceSignatures
	}
	return c.IsProduction()
}

// AmountsEnforced reports whether an amount mismatch fails the charge.
func (c *Config) AmountsEnforced() bool {
	if c.Reconciliation.EnforceAmounts != nil {
		return *c.Reconciliation.EnforceAmounts
	}
	return c.IsProduction()
}

// Tolerance returns the accepted difference between expected and charged totals.
func (c *ReconciliationConfig) Tolerance() decimal.Decimal {
	d, err := decimal.NewFromString(c.AmountTolerance)
	if err != nil {
		return decimal.RequireFromString("0.01")
	}
	return d
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Payment.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("payment.lock_ttl must be positive"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}
	if c.Reconciliation.AmountTolerance != "" {
		if d, err := decimal.NewFromString(c.Reconciliation.AmountTolerance); err != nil || d.IsNegative() {
			errs = append(errs, fmt.Errorf("reconciliation.amount_tolerance must be a non-negative decimal"))
		}
	}
	if c.Reconciliation.MatchWindow < 0 {
		errs = append(errs, fmt.Errorf("reconciliation.match_window cannot be negative"))
	}
	if c.Checkout.PendingTTL < 0 {
		errs = append(errs, fmt.Errorf("checkout.pending_ttl cannot be negative"))
	}
	if c.Mail.Enabled && (c.Mail.Host == "" || c.Mail.From == "") {
		errs = append(errs, fmt.Errorf("mail.host and mail.from are required when mail is enabled"))
	}

	if c.IsProduction() {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("auth.jwt_secret required in production"))
		}
		if c.Redirect.SuccessURL == "" || c.Redirect.FailureURL == "" {
			errs = append(errs, fmt.Errorf("redirect.success_url and redirect.failure_url required in production"))
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "payments")
	v.SetDefault("database.database", "payments")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.password", "")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.outbox_poll_interval", "2s")
	v.SetDefault("worker.consumer_group", "detached-tasks")
	v.SetDefault("worker.stream", "payments:detached")
	v.SetDefault("worker.idempotency_ttl", "24h")
	v.SetDefault("worker.idempotency_cleanup_interval", "1h")
	v.SetDefault("worker.expiry_sweep_interval", "1m")
	v.SetDefault("worker.expiry_batch_size", 500)

	// Payment defaults
	v.SetDefault("payment.lock_ttl", "30s")
	v.SetDefault("payment.processing_timeout", "60s")

	// Reconciliation defaults
	v.SetDefault("reconciliation.amount_tolerance", "0.01")
	v.SetDefault("reconciliation.match_window", 100)
	v.SetDefault("reconciliation.lock_ttl", "10s")

	v.SetDefault("checkout.pending_ttl", "30m")

	v.SetDefault("redirect.success_url", "")
	v.SetDefault("redirect.failure_url", "")

	v.SetDefault("webhook.max_body_bytes", 1<<20)
	v.SetDefault("webhook.rate_limit_per_minute", 600)

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_expiry", "24h")

	v.SetDefault("instance_id", "payments-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ResultURL returns the customer page for a redirect outcome.
func (c *RedirectConfig) ResultURL(success bool, storeSlug string) string {
	u := c.FailureURL
	if success {
		u = c.SuccessURL
	}
	return strings.ReplaceAll(u, "{store}", storeSlug)
}
