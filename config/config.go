package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// HTTP service
	App AppConfig `mapstructure:"app"`

	// Client identifier policy
	Identity IdentityConfig `mapstructure:"identity"`

	// Outbound notifications
	Mail MailConfig `mapstructure:"mail"`

	// Public endpoint throttling
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// maxDefaultExpiryDays mirrors the longest link lifetime the issuer accepts.
const maxDefaultExpiryDays = 3650

type AppConfig struct {
	Env               string `mapstructure:"env"`
	Port              int    `mapstructure:"port"`
	PublicBaseURL     string `mapstructure:"public_base_url"`
	DefaultExpiryDays int    `mapstructure:"default_expiry_days"`
	AdminSecret       string `mapstructure:"admin_secret"`
	AllowOrigin       string `mapstructure:"allow_origin"`
	RunMigrations     bool   `mapstructure:"run_migrations"`
}

// IsProduction reports whether the service runs with production defaults.
func (c AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// Identity modes select the canonical client identifier stored on links and
// responses.
const (
	IdentityPassthrough = "passthrough"
	IdentityUUID        = "uuid"
	IdentityCode        = "code"
)

type IdentityConfig struct {
	Mode string `mapstructure:"mode"`
}

// Mail transports.
const (
	MailTransportLog     = "log"
	MailTransportNATS    = "nats"
	MailTransportWebhook = "webhook"
)

type MailConfig struct {
	Transport     string        `mapstructure:"transport"`
	From          string        `mapstructure:"from"`
	StudioAddress string        `mapstructure:"studio_address"`
	Subject       string        `mapstructure:"subject"`
	WebhookURL    string        `mapstructure:"webhook_url"`
	WebhookToken  string        `mapstructure:"webhook_token"`
	SendTimeout   time.Duration `mapstructure:"send_timeout"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
}

type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	MonitorPort int    `mapstructure:"monitor_port"`
}

type PrometheusConfig struct {
	Port int `mapstructure:"port"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Identity.Mode {
	case IdentityPassthrough, IdentityUUID, IdentityCode:
	default:
		return fmt.Errorf("config: unknown identity.mode %q", c.Identity.Mode)
	}

	switch c.Mail.Transport {
	case MailTransportLog, MailTransportNATS:
	case MailTransportWebhook:
		if c.Mail.WebhookURL == "" {
			return fmt.Errorf("config: mail.webhook_url is required for the webhook transport")
		}
	default:
		return fmt.Errorf("config: unknown mail.transport %q", c.Mail.Transport)
	}

	if c.App.DefaultExpiryDays < 1 || c.App.DefaultExpiryDays > maxDefaultExpiryDays {
		return fmt.Errorf("config: app.default_expiry_days must be between 1 and %d", maxDefaultExpiryDays)
	}
	if c.Mail.MaxAttempts < 1 {
		return fmt.Errorf("config: mail.max_attempts must be at least 1")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.public_base_url", "http://localhost:8080")
	v.SetDefault("app.default_expiry_days", 30)
	v.SetDefault("app.admin_secret", "")
	v.SetDefault("app.allow_origin", "")
	v.SetDefault("app.run_migrations", true)

	v.SetDefault("identity.mode", IdentityPassthrough)

	v.SetDefault("mail.transport", MailTransportLog)
	v.SetDefault("mail.from", "no-reply@localhost")
	v.SetDefault("mail.studio_address", "")
	v.SetDefault("mail.subject", "")
	v.SetDefault("mail.webhook_url", "")
	v.SetDefault("mail.webhook_token", "")
	v.SetDefault("mail.send_timeout", "10s")
	v.SetDefault("mail.retry_backoff", "2s")
	v.SetDefault("mail.max_attempts", 3)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.max_requests", 30)
	v.SetDefault("ratelimit.window", "1m")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_conns", 0)
	v.SetDefault("postgres.min_conns", 0)
	v.SetDefault("postgres.max_conn_lifetime", "")
	v.SetDefault("postgres.max_conn_idle_time", "")
	v.SetDefault("postgres.health_check_period", "")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.host", "localhost")
	v.SetDefault("nats.port", 4222)
	v.SetDefault("nats.user", "")
	v.SetDefault("nats.password", "")
	v.SetDefault("nats.monitor_port", 8222)

	v.SetDefault("prometheus.port", 9090)
}

func bindEnvVars(v *viper.Viper) {
	// Application
	v.BindEnv("app.env", "APP_ENV")
	v.BindEnv("app.port", "PORT")
	v.BindEnv("app.public_base_url", "PUBLIC_BASE_URL")
	v.BindEnv("app.admin_secret", "ADMIN_JWT_SECRET")
	v.BindEnv("app.allow_origin", "CORS_ALLOW_ORIGIN")
	v.BindEnv("identity.mode", "CLIENT_ID_MODE")
	v.BindEnv("mail.studio_address", "STUDIO_EMAIL")
	v.BindEnv("mail.from", "MAIL_FROM")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")
	v.BindEnv("nats.monitor_port", "NATS_MONITOR_PORT")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")
}
