package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/apex-report", cfg.DataDir)
	assert.Equal(t, ":7710", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.True(t, cfg.SMTP.StartTLS)
	assert.False(t, cfg.EmailConfigured())
	assert.False(t, cfg.SMSConfigured())
	assert.False(t, cfg.S3Configured())
	assert.False(t, cfg.AIConfigured())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APEX_DATA_DIR", "/tmp/apex-test")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "25")
	t.Setenv("SMTP_STARTTLS", "false")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("S3_BUCKET", "apex-reports")
	t.Setenv("AI_PROVIDER", "anthropic")
	t.Setenv("APEX_SCHEDULE_POLL_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/apex-test", cfg.DataDir)
	assert.Equal(t, 25, cfg.SMTP.Port)
	assert.True(t, cfg.EmailConfigured())
	assert.True(t, cfg.SMSConfigured())
	assert.True(t, cfg.S3Configured())
	assert.True(t, cfg.AIConfigured())
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
}

func TestLoadRejectsConflictingTLSModes(t *testing.T) {
	t.Setenv("SMTP_TLS", "true")
	t.Setenv("SMTP_STARTTLS", "true")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestEnvFallbacksOnBadValues(t *testing.T) {
	t.Setenv("SMTP_PORT", "not-a-number")
	t.Setenv("SMTP_TLS", "maybe")
	t.Setenv("APEX_SCHEDULE_POLL_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.False(t, cfg.SMTP.TLS)
	assert.Equal(t, time.Minute, cfg.PollInterval)
}
