// Package agents implements the single-purpose generation agents that each
// produce one typed section of a strategic report.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/strategic-discovery/internal/llm"
)

// DefaultTimeout bounds one agent call including retries.
const DefaultTimeout = 90 * time.Second

// Recorder receives one observation per agent call.
type Recorder interface {
	AgentResult(agent string, fallback bool, elapsed time.Duration)
}

// Result is the outcome of one agent call. Value is always usable; Fallback
// reports whether it is the agent's fixed substitute.
type Result[T any] struct {
	Value    T
	Fallback bool
}

// Spec describes what an agent asks for and what it returns on failure.
type Spec[I, T any] struct {
	Name   string
	System string
	Prompt func(in I) (string, error)
	// Fallback must return a fresh, fully populated value on every call.
	Fallback func(in I) T
	// Check validates and trims a decoded value. A non-nil error selects the fallback.
	Check func(v *T) error
	// Subject names the prospect in logs.
	Subject func(in I) string
}

type settings struct {
	model    string
	timeout  time.Duration
	logger   *slog.Logger
	recorder Recorder
}

// Option configures an agent.
type Option func(*settings)

func WithModel(model string) Option {
	return func(s *settings) { s.model = model }
}

func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *settings) { s.recorder = r }
}

// Agent asks the model for one JSON section and absorbs every failure into
// its fallback value.
type Agent[I, T any] struct {
	spec Spec[I, T]
	gen  llm.Generator
	settings
}

// New builds an agent from a spec.
func New[I, T any](gen llm.Generator, spec Spec[I, T], opts ...Option) *Agent[I, T] {
	s := settings{timeout: DefaultTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	return &Agent[I, T]{spec: spec, gen: gen, settings: s}
}

// Name returns the agent name.
func (a *Agent[I, T]) Name() string { return a.spec.Name }

// Fallback returns the agent's substitute value for in.
func (a *Agent[I, T]) Fallback(in I) T { return a.spec.Fallback(in) }

// Generate runs the agent. It never returns an error.
func (a *Agent[I, T]) Generate(ctx context.Context, in I) Result[T] {
	start := time.Now()
	v, err := a.try(ctx, in)
	elapsed := time.Since(start)

	if err != nil {
		subject := ""
		if a.spec.Subject != nil {
			subject = a.spec.Subject(in)
		}
		a.logger.Warn("Agent failed, using fallback",
			"agent", a.spec.Name,
			"company", subject,
			"elapsed", elapsed,
			"error", err)
		a.record(true, elapsed)
		return Result[T]{Value: a.spec.Fallback(in), Fallback: true}
	}

	a.record(false, elapsed)
	return Result[T]{Value: v}
}

func (a *Agent[I, T]) try(ctx context.Context, in I) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", a.spec.Name, r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	prompt, err := a.spec.Prompt(in)
	if err != nil {
		return v, fmt.Errorf("%s: build prompt: %w", a.spec.Name, err)
	}

	text, err := a.gen.Generate(ctx, llm.Request{
		Agent:             a.spec.Name,
		Model:             a.model,
		SystemInstruction: a.spec.System,
		Prompt:            prompt,
		JSON:              true,
	})
	if err != nil {
		return v, fmt.Errorf("%s: generate: %w", a.spec.Name, err)
	}

	v, err = llm.DecodeJSON[T](a.spec.Name, text)
	if err != nil {
		return v, err
	}
	if a.spec.Check != nil {
		if err := a.spec.Check(&v); err != nil {
			return v, fmt.Errorf("%s: schema: %w", a.spec.Name, err)
		}
	}
	return v, nil
}

func (a *Agent[I, T]) record(fallback bool, elapsed time.Duration) {
	if a.recorder != nil {
		a.recorder.AgentResult(a.spec.Name, fallback, elapsed)
	}
}
