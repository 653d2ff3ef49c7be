// Package llm wraps the generative model behind a small request/response interface.
package llm

import (
	"context"
	"errors"

	"github.com/ashureev/strategic-discovery/internal/domain"
)

// Request is a single prompt sent to a model.
type Request struct {
	// Agent names the caller for logs and metrics.
	Agent             string
	Model             string
	SystemInstruction string
	Prompt            string
	// JSON asks the model for an application/json response.
	JSON bool
	// Search enables web search grounding. Models generally cannot combine
	// it with JSON mode, so callers set one or the other.
	Search bool
}

// Generator produces text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ErrNoModel is returned by Offline.
var ErrNoModel = errors.New("no generative model configured")

// Offline fails every request fatally, so each agent serves its fallback.
var Offline Generator = GeneratorFunc(func(context.Context, Request) (string, error) {
	return "", NewFatalError(ErrNoModel)
})

// Chatter continues a multi-turn conversation.
type Chatter interface {
	Chat(ctx context.Context, model, system string, history []domain.ChatMessage, message string) (string, error)
}
