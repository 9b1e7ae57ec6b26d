package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}.Host, cfg.Server.Host)
	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, EmailConfig{}, cfg.Email)
	assert.NotEqual(t, SMTPConfig{}, cfg.SMTP)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, SessionConfig{}, cfg.Session)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEmpty(t, cfg.Image.BaseImage)
	require.NoError(t, cfg.Validate())
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8000, cfg.HTTPPort)
	assert.Equal(t, 0, cfg.MetricsPort)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.AllowQueryAPIKey)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
}

func TestDefaultAgentConfig(t *testing.T) {
	cfg := DefaultAgentConfig()
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.InDelta(t, 0.7, cfg.Temperature, 0.001)
	assert.Equal(t, 200, cfg.MaxTokens)
	assert.Equal(t, 1, cfg.IntentThreshold)
	assert.Contains(t, cfg.EndKeywords, "that's all")
	assert.Len(t, cfg.EndKeywords, 9)
}

func TestDefaultEmailConfig(t *testing.T) {
	cfg := DefaultEmailConfig()
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, 300, cfg.MaxTokens)
	assert.Positive(t, cfg.CampaignConcurrency)
}

func TestDefaultSMTPConfig(t *testing.T) {
	cfg := DefaultSMTPConfig()
	assert.Equal(t, "smtp.gmail.com", cfg.Host)
	assert.Equal(t, 465, cfg.Port)
}

func TestDefaultImageConfig(t *testing.T) {
	cfg := DefaultImageConfig()
	assert.Len(t, cfg.Toolchains, 2)
	assert.Equal(t, []string{"go.mod", "go.sum"}, cfg.ManifestFiles)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "workflow:app", cfg.Entrypoint)
}

func TestDefaultSessionConfig(t *testing.T) {
	cfg := DefaultSessionConfig()
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, 24*time.Hour, cfg.TTL)
}
