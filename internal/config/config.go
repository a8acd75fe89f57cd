// Package config loads server settings from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config is the full server configuration. Every field has an
// APEX_/SMTP_/TWILIO_/S3_/AI_ environment variable; unset optional
// sections disable the matching feature.
type Config struct {
	DataDir    string
	ListenAddr string
	LogLevel   string
	LogFormat  string

	PollInterval time.Duration // scheduled-send poll cadence

	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
		TLS      bool
		StartTLS bool
	}

	Twilio struct {
		AccountSID string
		AuthToken  string
		FromNumber string
		BaseURL    string
	}

	S3 struct {
		Bucket     string
		Region     string
		LinkExpiry time.Duration
	}

	AI struct {
		Provider string
		APIKey   string
		Model    string
		BaseURL  string
	}

	ChartSettleDelay time.Duration
}

// Load reads the environment. A .env file in the working directory is
// applied first without overriding real environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded .env file")
	}

	cfg := &Config{
		DataDir:          envOr("APEX_DATA_DIR", "/var/lib/apex-report"),
		ListenAddr:       envOr("APEX_LISTEN_ADDR", ":7710"),
		LogLevel:         envOr("APEX_LOG_LEVEL", "info"),
		LogFormat:        envOr("APEX_LOG_FORMAT", "auto"),
		PollInterval:     envDuration("APEX_SCHEDULE_POLL_INTERVAL", time.Minute),
		ChartSettleDelay: envDuration("APEX_CHART_SETTLE_DELAY", 500*time.Millisecond),
	}

	cfg.SMTP.Host = os.Getenv("SMTP_HOST")
	cfg.SMTP.Port = envInt("SMTP_PORT", 587)
	cfg.SMTP.Username = os.Getenv("SMTP_USERNAME")
	cfg.SMTP.Password = os.Getenv("SMTP_PASSWORD")
	cfg.SMTP.From = envOr("SMTP_FROM", "reports@apexsecurity.example")
	cfg.SMTP.TLS = envBool("SMTP_TLS", false)
	cfg.SMTP.StartTLS = envBool("SMTP_STARTTLS", true)

	cfg.Twilio.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.Twilio.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	cfg.Twilio.BaseURL = os.Getenv("TWILIO_BASE_URL")

	cfg.S3.Bucket = os.Getenv("S3_BUCKET")
	cfg.S3.Region = envOr("S3_REGION", "us-east-1")
	cfg.S3.LinkExpiry = envDuration("S3_LINK_EXPIRY", 7*24*time.Hour)

	cfg.AI.Provider = os.Getenv("AI_PROVIDER")
	cfg.AI.APIKey = os.Getenv("AI_API_KEY")
	cfg.AI.Model = os.Getenv("AI_MODEL")
	cfg.AI.BaseURL = os.Getenv("AI_BASE_URL")

	if cfg.SMTP.TLS && cfg.SMTP.StartTLS {
		return nil, fmt.Errorf("SMTP_TLS and SMTP_STARTTLS are mutually exclusive")
	}
	return cfg, nil
}

// EmailConfigured reports whether SMTP delivery can be enabled.
func (c *Config) EmailConfigured() bool { return c.SMTP.Host != "" }

// SMSConfigured reports whether SMS delivery can be enabled.
func (c *Config) SMSConfigured() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != ""
}

// S3Configured reports whether documents upload to S3 rather than the
// local store.
func (c *Config) S3Configured() bool { return c.S3.Bucket != "" }

// AIConfigured reports whether an enhancement provider is available.
func (c *Config) AIConfigured() bool { return c.AI.Provider != "" }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Ignoring non-numeric environment value")
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Ignoring non-boolean environment value")
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Ignoring unparseable duration")
		return fallback
	}
	return d
}
