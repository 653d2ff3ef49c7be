// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port             string
	FrontendURL      string
	DBPath           string
	TaxonomyPath     string        // empty uses the embedded taxonomy
	StaticDir        string        // built frontend; empty serves API only
	SessionRetention time.Duration // 0 keeps sessions forever
	Gemini           GeminiConfig
	Agents           AgentConfig
	Enrichment       EnrichmentConfig
	RateLimit        RateLimitConfig
	SSEKeepalive     time.Duration
	NATS             NATSConfig
	GRPCHealthAddr   string // empty disables the gRPC health server
	MetricsEnabled   bool
}

// GeminiConfig selects the generative model backend.
type GeminiConfig struct {
	APIKey         string // empty runs with the static enricher and agent fallbacks
	Model          string
	SynthesisModel string
}

// AgentConfig bounds every generation agent call.
type AgentConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
}

// EnrichmentConfig sizes the background enrichment pool.
type EnrichmentConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// RateLimitConfig limits report and chat requests per identity.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// NATSConfig enables operation events on a NATS server.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		FrontendURL:      getEnv("FRONTEND_URL", ""),
		DBPath:           getEnv("DB_PATH", "./data/discovery.db"),
		TaxonomyPath:     getEnv("TAXONOMY_FILE", ""),
		StaticDir:        getEnv("STATIC_DIR", ""),
		SessionRetention: getEnvDuration("SESSION_RETENTION", 0),
		Gemini: GeminiConfig{
			APIKey:         getEnv("GEMINI_API_KEY", ""),
			Model:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			SynthesisModel: getEnv("GEMINI_SYNTHESIS_MODEL", "gemini-2.5-pro"),
		},
		Agents: AgentConfig{
			Timeout:     getEnvDuration("AGENT_TIMEOUT", 90*time.Second),
			MaxAttempts: getEnvInt("AGENT_MAX_ATTEMPTS", 3),
			BackoffBase: getEnvDuration("AGENT_BACKOFF_BASE", time.Second),
		},
		Enrichment: EnrichmentConfig{
			Workers:   getEnvInt("ENRICHMENT_WORKERS", 4),
			QueueSize: getEnvInt("ENRICHMENT_QUEUE_SIZE", 64),
			Timeout:   getEnvDuration("ENRICHMENT_TIMEOUT", 60*time.Second),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		SSEKeepalive: getEnvDuration("SSE_KEEPALIVE", 15*time.Second),
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "discovery.operations"),
		},
		GRPCHealthAddr: getEnv("GRPC_HEALTH_ADDR", ""),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Gemini.APIKey != "" && (c.Gemini.Model == "" || c.Gemini.SynthesisModel == "") {
		return fmt.Errorf("GEMINI_MODEL and GEMINI_SYNTHESIS_MODEL cannot be empty")
	}
	if c.Agents.Timeout <= 0 {
		return fmt.Errorf("AGENT_TIMEOUT must be > 0")
	}
	if c.Agents.MaxAttempts <= 0 {
		return fmt.Errorf("AGENT_MAX_ATTEMPTS must be > 0")
	}
	if c.Agents.BackoffBase <= 0 {
		return fmt.Errorf("AGENT_BACKOFF_BASE must be > 0")
	}
	if c.Enrichment.Workers <= 0 {
		return fmt.Errorf("ENRICHMENT_WORKERS must be > 0")
	}
	if c.Enrichment.QueueSize <= 0 {
		return fmt.Errorf("ENRICHMENT_QUEUE_SIZE must be > 0")
	}
	if c.Enrichment.Timeout <= 0 {
		return fmt.Errorf("ENRICHMENT_TIMEOUT must be > 0")
	}
	if c.SessionRetention < 0 {
		return fmt.Errorf("SESSION_RETENTION cannot be negative")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.SSEKeepalive <= 0 {
		return fmt.Errorf("SSE_KEEPALIVE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// HasModel reports whether a model API key is configured.
func (c *Config) HasModel() bool { return c.Gemini.APIKey != "" }

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s") and bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
