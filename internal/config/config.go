package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env              string        `mapstructure:"ENV"`
	AdminPort        string        `mapstructure:"ADMIN_PORT"`
	BookingPort      string        `mapstructure:"BOOKING_PORT"`
	APIBaseURL       string        `mapstructure:"API_BASE_URL"`
	APITimeout       time.Duration `mapstructure:"API_TIMEOUT"`
	PublicBookingURL string        `mapstructure:"PUBLIC_BOOKING_URL"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	SessionCookie    string        `mapstructure:"SESSION_COOKIE"`
	SessionTTL       time.Duration `mapstructure:"SESSION_TTL"`
	SessionSweepSpec string        `mapstructure:"SESSION_SWEEP_SPEC"`
	CacheTTL         time.Duration `mapstructure:"CACHE_TTL"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	SMTPHost         string        `mapstructure:"SMTP_HOST"`
	SMTPPort         int           `mapstructure:"SMTP_PORT"`
	SMTPUser         string        `mapstructure:"SMTP_USER"`
	SMTPPass         string        `mapstructure:"SMTP_PASS"`
	MailFrom         string        `mapstructure:"MAIL_FROM"`
	SendGridAPIKey   string        `mapstructure:"SENDGRID_API_KEY"`
	LinkExpiresHours int           `mapstructure:"LINK_EXPIRES_HOURS"`
}

var keys = []string{
	"ENV",
	"ADMIN_PORT",
	"BOOKING_PORT",
	"API_BASE_URL",
	"API_TIMEOUT",
	"PUBLIC_BOOKING_URL",
	"CORS_ORIGINS",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"SESSION_COOKIE",
	"SESSION_TTL",
	"SESSION_SWEEP_SPEC",
	"CACHE_TTL",
	"REQUEST_TIMEOUT",
	"RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST",
	"SMTP_HOST",
	"SMTP_PORT",
	"SMTP_USER",
	"SMTP_PASS",
	"MAIL_FROM",
	"SENDGRID_API_KEY",
	"LINK_EXPIRES_HOURS",
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first without overriding variables that are
// already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("ADMIN_PORT", "8081")
	v.SetDefault("BOOKING_PORT", "8082")
	v.SetDefault("API_BASE_URL", "http://localhost:8008")
	v.SetDefault("API_TIMEOUT", "10s")
	v.SetDefault("PUBLIC_BOOKING_URL", "http://localhost:5174")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:5174")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("SESSION_COOKIE", "consult_session")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("SESSION_SWEEP_SPEC", "@every 5m")
	v.SetDefault("CACHE_TTL", "30s")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("LINK_EXPIRES_HOURS", 72)

	for _, k := range keys {
		v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = nil
	for _, o := range strings.Split(v.GetString("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	cfg.PublicBookingURL = strings.TrimRight(cfg.PublicBookingURL, "/")

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MailTransport names the configured mail transport: "sendgrid", "smtp" or
// "log" when neither is configured.
func (c *Config) MailTransport() string {
	switch {
	case c.SendGridAPIKey != "":
		return "sendgrid"
	case c.SMTPHost != "":
		return "smtp"
	}
	return "log"
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.AdminPort == "" || c.BookingPort == "" {
		return fmt.Errorf("ADMIN_PORT and BOOKING_PORT must be set")
	}
	if err := checkURL("API_BASE_URL", c.APIBaseURL); err != nil {
		return err
	}
	if err := checkURL("PUBLIC_BOOKING_URL", c.PublicBookingURL); err != nil {
		return err
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be positive, got %s", c.APITimeout)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.SendGridAPIKey != "" && c.MailFrom == "" {
		return fmt.Errorf("MAIL_FROM is required when SENDGRID_API_KEY is set")
	}
	if c.SMTPHost != "" && (c.SMTPPort <= 0 || c.SMTPPort > 65535) {
		return fmt.Errorf("SMTP_PORT must be a valid port, got %d", c.SMTPPort)
	}
	if c.IsProduction() && strings.HasPrefix(c.PublicBookingURL, "http://localhost") {
		return fmt.Errorf("PUBLIC_BOOKING_URL must be set in production")
	}
	return nil
}

func checkURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
	}
	return nil
}
