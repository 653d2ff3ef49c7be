package llm

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig controls retries of transient generation errors.
type RetryConfig struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryConfig returns the retry defaults used by the server.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        15 * time.Second,
	}
}

// Retrying retries transient errors from the wrapped generator with
// exponential backoff. Fatal and unclassified errors return immediately.
type Retrying struct {
	next   Generator
	cfg    RetryConfig
	logger *slog.Logger
	// jitter is replaced in tests.
	jitter func(time.Duration) time.Duration
}

// NewRetrying wraps next.
func NewRetrying(next Generator, cfg RetryConfig, logger *slog.Logger) *Retrying {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{next: next, cfg: cfg, logger: logger, jitter: defaultJitter}
}

func (r *Retrying) Generate(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		out, err := r.next.Generate(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !IsTransient(err) || attempt == r.cfg.MaxAttempts {
			return "", err
		}

		backoff := r.backoff(attempt)
		r.logger.Debug("Generation failed, retrying",
			"agent", req.Agent,
			"attempt", attempt,
			"max_attempts", r.cfg.MaxAttempts,
			"backoff", backoff,
			"error", err)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	return "", lastErr
}

func (r *Retrying) backoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= r.cfg.BackoffMultiplier
	}
	d := time.Duration(float64(r.cfg.BackoffBase) * multiplier)
	if r.cfg.MaxBackoff > 0 && d > r.cfg.MaxBackoff {
		d = r.cfg.MaxBackoff
	}
	return r.jitter(d)
}

// defaultJitter spreads d by +/- 25%.
func defaultJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	j := float64(d) * 0.25 * (rand.Float64()*2 - 1)
	return d + time.Duration(j)
}
