// Package report assembles a strategic report from the section agents and the synthesis pass.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/strategic-discovery/internal/agents"
	"github.com/ashureev/strategic-discovery/internal/domain"
	"golang.org/x/sync/errgroup"
)

// SectionAgent produces one report section. *agents.Agent satisfies it.
type SectionAgent[T any] interface {
	Name() string
	Generate(ctx context.Context, p domain.ProspectProfile) agents.Result[T]
	Fallback(p domain.ProspectProfile) T
}

// SynthesisAgent produces the summary and scoring block.
type SynthesisAgent interface {
	Generate(ctx context.Context, in agents.SynthesisInput) agents.Result[domain.Synthesis]
}

// Observer is notified once per assembled report.
type Observer interface {
	ReportAssembled(elapsed time.Duration, fallbacks int)
}

// Sections groups the five independent section agents.
type Sections struct {
	Market      SectionAgent[domain.MarketSizing]
	Competitors SectionAgent[[]domain.Competitor]
	SWOT        SectionAgent[domain.SWOT]
	Roadmap     SectionAgent[domain.GrowthRoadmap]
	AITools     SectionAgent[[]domain.AITool]
}

// Partials are the five section results after the join.
type Partials struct {
	Market      agents.Result[domain.MarketSizing]
	Competitors agents.Result[[]domain.Competitor]
	SWOT        agents.Result[domain.SWOT]
	Roadmap     agents.Result[domain.GrowthRoadmap]
	AITools     agents.Result[[]domain.AITool]
}

// Fallbacks counts the sections that fell back.
func (p Partials) Fallbacks() int {
	n := 0
	for _, fb := range []bool{p.Market.Fallback, p.Competitors.Fallback, p.SWOT.Fallback, p.Roadmap.Fallback, p.AITools.Fallback} {
		if fb {
			n++
		}
	}
	return n
}

// Orchestrator runs the section agents concurrently and then the synthesis.
type Orchestrator struct {
	sections  Sections
	synthesis SynthesisAgent
	logger    *slog.Logger
	observer  Observer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// New creates an Orchestrator.
func New(sections Sections, synthesis SynthesisAgent, opts ...Option) *Orchestrator {
	o := &Orchestrator{sections: sections, synthesis: synthesis, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// AssembleReport always returns a fully populated report. Section and
// synthesis failures are absorbed into their fallbacks.
func (o *Orchestrator) AssembleReport(ctx context.Context, p domain.ProspectProfile) domain.StrategicReport {
	start := time.Now()

	parts := o.RunSections(ctx, p)

	in := agents.NewSynthesisInput(p, parts.Market.Value, parts.Competitors.Value, parts.SWOT.Value, parts.Roadmap.Value)
	synth := o.synthesis.Generate(ctx, in)

	report := domain.StrategicReport{
		MarketAnalysis: parts.Market.Value,
		Competitors:    parts.Competitors.Value,
		SWOT:           parts.SWOT.Value,
		GrowthRoadmap:  parts.Roadmap.Value,
		AITools:        parts.AITools.Value,
		Synthesis:      synth.Value,
	}
	report.Normalize()

	fallbacks := parts.Fallbacks()
	if synth.Fallback {
		fallbacks++
	}
	elapsed := time.Since(start)
	o.logger.Info("Report assembled",
		"company", p.CompanyName,
		"elapsed", elapsed,
		"fallbacks", fallbacks)
	if o.observer != nil {
		o.observer.ReportAssembled(elapsed, fallbacks)
	}
	return report
}

// RunSections starts all five section agents before waiting on any and
// returns once every one has settled.
func (o *Orchestrator) RunSections(ctx context.Context, p domain.ProspectProfile) Partials {
	var parts Partials
	var g errgroup.Group

	g.Go(func() error { parts.Market = settle(ctx, o.logger, o.sections.Market, p); return nil })
	g.Go(func() error { parts.Competitors = settle(ctx, o.logger, o.sections.Competitors, p); return nil })
	g.Go(func() error { parts.SWOT = settle(ctx, o.logger, o.sections.SWOT, p); return nil })
	g.Go(func() error { parts.Roadmap = settle(ctx, o.logger, o.sections.Roadmap, p); return nil })
	g.Go(func() error { parts.AITools = settle(ctx, o.logger, o.sections.AITools, p); return nil })

	// Slots never return errors; Wait is the join.
	_ = g.Wait()
	return parts
}

func settle[T any](ctx context.Context, logger *slog.Logger, a SectionAgent[T], p domain.ProspectProfile) (res agents.Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Section agent panicked, using fallback",
				"agent", a.Name(),
				"company", p.CompanyName,
				"error", fmt.Sprint(r))
			res = agents.Result[T]{Value: a.Fallback(p), Fallback: true}
		}
	}()
	return a.Generate(ctx, p)
}
