package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DB_PATH", "GEMINI_API_KEY", "AGENT_TIMEOUT", "SESSION_RETENTION", "NATS_URL", "FRONTEND_URL"} {
		t.Setenv(k, "")
	}
	t.Setenv("PORT", "8080")
	t.Setenv("DB_PATH", "./data/discovery.db")
	t.Setenv("AGENT_TIMEOUT", "90s")
	t.Setenv("SESSION_RETENTION", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.Agents.Timeout)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
	assert.Equal(t, time.Duration(0), cfg.SessionRetention)
	assert.False(t, cfg.HasModel())
	assert.True(t, cfg.IsDevelopment())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/tmp/x.db")
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("AGENT_TIMEOUT", "45")
	t.Setenv("AGENT_MAX_ATTEMPTS", "5")
	t.Setenv("ENRICHMENT_WORKERS", "8")
	t.Setenv("SESSION_RETENTION", "720h")
	t.Setenv("METRICS_ENABLED", "off")
	t.Setenv("FRONTEND_URL", "https://discovery.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 45*time.Second, cfg.Agents.Timeout)
	assert.Equal(t, 5, cfg.Agents.MaxAttempts)
	assert.Equal(t, 8, cfg.Enrichment.Workers)
	assert.Equal(t, 720*time.Hour, cfg.SessionRetention)
	assert.False(t, cfg.MetricsEnabled)
	assert.True(t, cfg.HasModel())
	assert.False(t, cfg.IsDevelopment())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:         "8080",
			DBPath:       "x.db",
			Agents:       AgentConfig{Timeout: time.Second, MaxAttempts: 1, BackoffBase: time.Second},
			Enrichment:   EnrichmentConfig{Workers: 1, QueueSize: 1, Timeout: time.Second},
			RateLimit:    RateLimitConfig{Requests: 1, Window: time.Second},
			SSEKeepalive: time.Second,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"zero attempts", func(c *Config) { c.Agents.MaxAttempts = 0 }},
		{"zero workers", func(c *Config) { c.Enrichment.Workers = 0 }},
		{"negative retention", func(c *Config) { c.SessionRetention = -time.Hour }},
		{"key without model", func(c *Config) { c.Gemini.APIKey = "k" }},
	}

	base := valid()
	require.NoError(t, base.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
