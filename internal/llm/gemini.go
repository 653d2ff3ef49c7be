package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ashureev/strategic-discovery/internal/domain"
	"google.golang.org/genai"
)

// Gemini generates content with the Google GenAI SDK.
type Gemini struct {
	client       *genai.Client
	defaultModel string
}

// NewGemini creates a client for the Gemini API.
func NewGemini(ctx context.Context, apiKey, defaultModel string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, defaultModel: defaultModel}, nil
}

func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = g.defaultModel
	}

	cfg := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if req.Search {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", classify(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", NewTransientError(fmt.Errorf("%s: empty response from %s", req.Agent, model))
	}
	return text, nil
}

// Chat sends message after replaying history as alternating user/model turns.
func (g *Gemini) Chat(ctx context.Context, model, system string, history []domain.ChatMessage, message string) (string, error) {
	if model == "" {
		model = g.defaultModel
	}
	contents := chatContents(history, message)

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", classify(err)
	}
	return resp.Text(), nil
}

// chatContents maps chat turns onto genai contents, ending with message as
// a user turn. Any role other than "model" is sent as the user.
func chatContents(history []domain.ChatMessage, message string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		var role genai.Role = genai.RoleUser
		if m.Role == "model" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}
	return append(contents, genai.NewContentFromText(message, genai.RoleUser))
}

// classify marks rate limits, server errors and deadlines as transient.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransientError(err)
	}
	if errors.Is(err, context.Canceled) {
		return NewFatalError(err)
	}

	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}

	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return NewTransientError(err)
	case code >= 400:
		return NewFatalError(err)
	}
	return NewTransientError(err)
}
