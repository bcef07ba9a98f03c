package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	Storage     string `mapstructure:"STORAGE"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	AuthIssuer    string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience  string   `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL   string   `mapstructure:"AUTH_JWKS_URL"`
	JWTSigningKey string   `mapstructure:"JWT_SIGNING_KEY"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`

	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BookingTimeout time.Duration `mapstructure:"BOOKING_TIMEOUT"`

	ClinicTimezone     string `mapstructure:"CLINIC_TIMEZONE"`
	DefaultSlotMinutes int    `mapstructure:"DEFAULT_SLOT_MINUTES"`
	PatientMayCancel   bool   `mapstructure:"PATIENT_MAY_CANCEL"`
	DoctorMayCancel    bool   `mapstructure:"DOCTOR_MAY_CANCEL"`
	DoctorCacheSize    int    `mapstructure:"DOCTOR_CACHE_SIZE"`
	ReminderSchedule   string `mapstructure:"REMINDER_SCHEDULE"`

	NotifyWebhookURL    string `mapstructure:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookSecret string `mapstructure:"NOTIFY_WEBHOOK_SECRET"`
	NotifyQueueSize     int    `mapstructure:"NOTIFY_QUEUE_SIZE"`
	NotifyAMQPURL       string `mapstructure:"NOTIFY_AMQP_URL"`
	NotifyAMQPExchange  string `mapstructure:"NOTIFY_AMQP_EXCHANGE"`
}

var keys = []string{
	"PORT", "ENV", "STORAGE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "JWT_SIGNING_KEY", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BOOKING_TIMEOUT",
	"CLINIC_TIMEZONE", "DEFAULT_SLOT_MINUTES", "PATIENT_MAY_CANCEL", "DOCTOR_MAY_CANCEL",
	"DOCTOR_CACHE_SIZE", "REMINDER_SCHEDULE", "NOTIFY_WEBHOOK_URL", "NOTIFY_WEBHOOK_SECRET", "NOTIFY_QUEUE_SIZE",
	"NOTIFY_AMQP_URL", "NOTIFY_AMQP_EXCHANGE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORAGE", StoragePostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("BOOKING_TIMEOUT", "5s")
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("DEFAULT_SLOT_MINUTES", 30)
	v.SetDefault("PATIENT_MAY_CANCEL", true)
	v.SetDefault("DOCTOR_MAY_CANCEL", true)
	v.SetDefault("DOCTOR_CACHE_SIZE", 1024)
	v.SetDefault("REMINDER_SCHEDULE", "0 18 * * *")
	v.SetDefault("NOTIFY_QUEUE_SIZE", 256)
	v.SetDefault("NOTIFY_AMQP_EXCHANGE", "scheduler.events")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	if cfg.Storage == StoragePostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORAGE=%s", StoragePostgres)
	}

	if cfg.IsDev() {
		log.Warn().Msg("server is running in DEVELOPMENT mode: X-Dev-User/X-Dev-Role headers are trusted, do not use in production")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ClinicLocation resolves CLINIC_TIMEZONE. "Today" and past-slot filtering are
// evaluated in this zone.
func (c *Config) ClinicLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. Outside development a
// token verification source must be configured.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("STORAGE must be %q or %q, got %q", StorageMemory, StoragePostgres, c.Storage)
	}
	if c.Storage == StorageMemory && c.IsProduction() {
		return fmt.Errorf("STORAGE=%s is not allowed in production", StorageMemory)
	}

	if !c.IsDev() && c.JWTSigningKey == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("JWT_SIGNING_KEY or AUTH_JWKS_URL must be set when ENV=%q", c.Env)
	}

	if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("invalid pool bounds: DB_MIN_CONNS=%d DB_MAX_CONNS=%d", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.BookingTimeout <= 0 || c.BookingTimeout > c.RequestTimeout {
		return fmt.Errorf("BOOKING_TIMEOUT must be positive and not exceed REQUEST_TIMEOUT, got %s", c.BookingTimeout)
	}
	if c.DefaultSlotMinutes < 5 || c.DefaultSlotMinutes > 240 {
		return fmt.Errorf("DEFAULT_SLOT_MINUTES must be between 5 and 240, got %d", c.DefaultSlotMinutes)
	}
	if _, err := c.ClinicLocation(); err != nil {
		return err
	}
	if c.NotifyQueueSize < 1 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be positive, got %d", c.NotifyQueueSize)
	}
	if c.DoctorCacheSize < 0 {
		return fmt.Errorf("DOCTOR_CACHE_SIZE must not be negative, got %d", c.DoctorCacheSize)
	}
	if c.ReminderSchedule != "" {
		if _, err := cron.ParseStandard(c.ReminderSchedule); err != nil {
			return fmt.Errorf("REMINDER_SCHEDULE %q: %w", c.ReminderSchedule, err)
		}
	}
	if c.NotifyAMQPURL != "" && c.NotifyAMQPExchange == "" {
		return fmt.Errorf("NOTIFY_AMQP_EXCHANGE is required when NOTIFY_AMQP_URL is set")
	}
	if c.NotifyWebhookURL != "" && c.NotifyWebhookSecret == "" {
		return fmt.Errorf("NOTIFY_WEBHOOK_SECRET is required when NOTIFY_WEBHOOK_URL is set")
	}
	return nil
}
