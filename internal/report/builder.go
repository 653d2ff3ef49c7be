package report

import (
	"log/slog"
	"time"

	"github.com/ashureev/strategic-discovery/internal/agents"
	"github.com/ashureev/strategic-discovery/internal/llm"
)

// Models names the model used for section agents and for synthesis.
type Models struct {
	Section   string
	Synthesis string
}

// NewDefault wires the five production section agents and the synthesis agent onto gen.
func NewDefault(gen llm.Generator, models Models, timeout time.Duration, logger *slog.Logger, rec agents.Recorder, obs Observer) *Orchestrator {
	common := []agents.Option{
		agents.WithModel(models.Section),
		agents.WithTimeout(timeout),
		agents.WithLogger(logger),
		agents.WithRecorder(rec),
	}
	sections := Sections{
		Market:      agents.NewMarketSizing(gen, common...),
		Competitors: agents.NewCompetitors(gen, common...),
		SWOT:        agents.NewSWOT(gen, common...),
		Roadmap:     agents.NewRoadmap(gen, common...),
		AITools:     agents.NewAITools(gen, common...),
	}
	synthesis := agents.NewSynthesis(gen,
		agents.WithModel(models.Synthesis),
		agents.WithTimeout(timeout),
		agents.WithLogger(logger),
		agents.WithRecorder(rec),
	)
	return New(sections, synthesis, WithLogger(logger), WithObserver(obs))
}
