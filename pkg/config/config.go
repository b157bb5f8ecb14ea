package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the backend reads.
	EnvPrefix = "FERREVIA"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Payment      PaymentConfig
	Cron         CronConfig
	Audit        AuditConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payment.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FERREVIA_APP_ENV" required:"true"`
	Port         string `envconfig:"FERREVIA_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"FERREVIA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FERREVIA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FERREVIA_DB_DSN"`
	Driver string `envconfig:"FERREVIA_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FERREVIA_DB_HOST"`
	Port     int    `envconfig:"FERREVIA_DB_PORT" default:"5432"`
	User     string `envconfig:"FERREVIA_DB_USER"`
	Password string `envconfig:"FERREVIA_DB_PASSWORD"`
	Name     string `envconfig:"FERREVIA_DB_NAME"`
	SSLMode  string `envconfig:"FERREVIA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FERREVIA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FERREVIA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FERREVIA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FERREVIA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either FERREVIA_DB_DSN or host/user/name must be set")
	}
	d.DSN = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"FERREVIA_REDIS_URL" required:"true"`
	Password     string        `envconfig:"FERREVIA_REDIS_PASSWORD"`
	DB           int           `envconfig:"FERREVIA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FERREVIA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FERREVIA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FERREVIA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FERREVIA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FERREVIA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PaymentConfig carries the external payment provider contract. The same
// shared secret signs the outbound handoff and verifies the inbound notify.
type PaymentConfig struct {
	Provider string `envconfig:"FERREVIA_PAYMENT_PROVIDER" default:"webpay"`
	// Currency for every attempt and handoff; the catalog prices in a
	// single settlement currency.
	Currency       string        `envconfig:"FERREVIA_PAYMENT_CURRENCY" default:"CLP"`
	MerchantID     string        `envconfig:"FERREVIA_PAYMENT_MERCHANT_ID" required:"true"`
	CommerceCode   string        `envconfig:"FERREVIA_PAYMENT_COMMERCE_CODE" required:"true"`
	SharedSecret   string        `envconfig:"FERREVIA_PAYMENT_SHARED_SECRET" required:"true"`
	ReturnURL      string        `envconfig:"FERREVIA_PAYMENT_RETURN_URL" required:"true"`
	NotifyURL      string        `envconfig:"FERREVIA_PAYMENT_NOTIFY_URL" required:"true"`
	StorefrontURL  string        `envconfig:"FERREVIA_PAYMENT_STOREFRONT_URL" required:"true"`
	NotifyDedupTTL time.Duration `envconfig:"FERREVIA_PAYMENT_NOTIFY_DEDUP_TTL" default:"24h"`
	// InitiatedTTL bounds how long an attempt may sit in initiated state
	// before the reconciliation sweep expires it.
	InitiatedTTL time.Duration `envconfig:"FERREVIA_PAYMENT_INITIATED_TTL" default:"2h"`
}

func (p PaymentConfig) validate() error {
	for name, raw := range map[string]string{
		"return url":     p.ReturnURL,
		"notify url":     p.NotifyURL,
		"storefront url": p.StorefrontURL,
	} {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("payment %s %q is not a valid URL: %w", name, raw, err)
		}
	}
	if strings.TrimSpace(p.SharedSecret) == "" {
		return fmt.Errorf("payment shared secret is required")
	}
	return nil
}

type CronConfig struct {
	Interval time.Duration `envconfig:"FERREVIA_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"FERREVIA_CRON_LOCK_TTL" default:"14m"`
	LockKey  string        `envconfig:"FERREVIA_CRON_LOCK_KEY" default:"cron:leader"`
}

type AuditConfig struct {
	BufferSize int `envconfig:"FERREVIA_AUDIT_BUFFER_SIZE" default:"256"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FERREVIA_AUTO_MIGRATE" default:"false"`
}
