package report

import (
	"context"
	"errors"
	"math/rand/v2"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/strategic-discovery/internal/agents"
	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/ashureev/strategic-discovery/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var acme = domain.ProspectProfile{
	CompanyName: "Acme Corp",
	Industry:    "Software & SaaS",
	SubIndustry: "Enterprise",
	Niche:       "CRM & Sales",
}

func build(gen llm.Generator, opts ...agents.Option) *Orchestrator {
	sections := Sections{
		Market:      agents.NewMarketSizing(gen, opts...),
		Competitors: agents.NewCompetitors(gen, opts...),
		SWOT:        agents.NewSWOT(gen, opts...),
		Roadmap:     agents.NewRoadmap(gen, opts...),
		AITools:     agents.NewAITools(gen, opts...),
	}
	return New(sections, agents.NewSynthesis(gen, opts...))
}

func TestAssembleReportEndToEndWithCannedResponses(t *testing.T) {
	gen := llm.GeneratorFunc(func(_ context.Context, req llm.Request) (string, error) {
		return canned[req.Agent], nil
	})

	r := build(gen).AssembleReport(context.Background(), acme)

	assert.Equal(t, "$48B", r.MarketAnalysis.TAM)
	require.NotEmpty(t, r.Competitors)
	assert.Equal(t, "Salesforce", r.Competitors[0].Name)
	assert.Len(t, r.SWOT.Strengths, 5)
	assert.Equal(t, "0-90 days", r.GrowthRoadmap.QuickWins.Duration)
	assert.Len(t, r.AITools, 9)
	assert.Equal(t, "Acme Corp is well placed to win mid-market CRM deals.", r.ExecutiveSummary)
	assert.Equal(t, domain.Score(74), r.HealthScore)
	// Tier is always derived from the score, whatever the model said.
	assert.Equal(t, domain.LeadTierWarm, r.InternalDossier.LeadTier)
}

func TestAssembleReportFullyPopulatedWhenEverythingFails(t *testing.T) {
	gen := llm.GeneratorFunc(func(context.Context, llm.Request) (string, error) {
		return "", llm.NewFatalError(errors.New("service unavailable"))
	})

	r := build(gen).AssembleReport(context.Background(), acme)

	assertPopulated(t, reflect.ValueOf(r), "report")
	assert.Equal(t, agents.MarketSizingFallback(), r.MarketAnalysis)
	assert.Equal(t, agents.SynthesisFallback(), r.Synthesis)
	assertScoresBounded(t, r)
}

func TestAssembleReportSurvivesGarbage(t *testing.T) {
	gen := llm.GeneratorFunc(func(_ context.Context, req llm.Request) (string, error) {
		if req.Agent == agents.NameSynthesis {
			return `{"executiveSummary":"ok","healthScore":-20,"socialHealthScore":300,"websitePerformanceIndex":"77",
				"marketOpportunityScore":50.4,"financialHealth":"Strong","operationalEfficiency":"High",
				"internalDossier":{"leadScore":61,"opportunityAnalysis":{"quickWins":"a","strategic":"b"}}}`, nil
		}
		return "```json\n{ not json", nil
	})

	r := build(gen).AssembleReport(context.Background(), acme)
	assertPopulated(t, reflect.ValueOf(r), "report")
	assertScoresBounded(t, r)
	assert.Equal(t, domain.Score(0), r.HealthScore)
	assert.Equal(t, domain.Score(100), r.SocialHealthScore)
	assert.Equal(t, domain.Score(77), r.WebsitePerformanceIndex)
	assert.Equal(t, domain.LeadTierWarm, r.InternalDossier.LeadTier)
}

func TestFanOutRandomizedLatencyAndFailure(t *testing.T) {
	for round := 0; round < 20; round++ {
		seed := uint64(round + 1)
		rng := rand.New(rand.NewPCG(seed, seed*7))

		fail := make(map[string]bool, len(sectionNames))
		delay := make(map[string]time.Duration, len(sectionNames))
		for _, name := range sectionNames {
			fail[name] = rng.IntN(2) == 0
			delay[name] = time.Duration(1+rng.IntN(25)) * time.Millisecond
		}

		var (
			started    atomic.Int32
			settled    atomic.Int32
			allStarted = make(chan struct{})
			startOnce  sync.Once
			synthSaw   atomic.Int32
		)
		synthSaw.Store(-1)

		gen := llm.GeneratorFunc(func(ctx context.Context, req llm.Request) (string, error) {
			if req.Agent == agents.NameSynthesis {
				synthSaw.Store(settled.Load())
				return canned[req.Agent], nil
			}
			defer settled.Add(1)

			if started.Add(1) == int32(len(sectionNames)) {
				startOnce.Do(func() { close(allStarted) })
			}
			// Every slot must be issued before any of them completes.
			select {
			case <-allStarted:
			case <-time.After(2 * time.Second):
				return "", errors.New("agents were not started concurrently")
			}

			time.Sleep(delay[req.Agent])
			if fail[req.Agent] {
				return "", llm.NewFatalError(errors.New("stub failure"))
			}
			return canned[req.Agent], nil
		})

		o := build(gen)
		parts := o.RunSections(context.Background(), acme)
		assert.Equal(t, int32(len(sectionNames)), settled.Load(), "round %d: join returned early", round)

		assert.Equal(t, fail[agents.NameMarketSizing], parts.Market.Fallback, "round %d market", round)
		assert.Equal(t, fail[agents.NameCompetitors], parts.Competitors.Fallback, "round %d competitors", round)
		assert.Equal(t, fail[agents.NameSWOT], parts.SWOT.Fallback, "round %d swot", round)
		assert.Equal(t, fail[agents.NameRoadmap], parts.Roadmap.Fallback, "round %d roadmap", round)
		assert.Equal(t, fail[agents.NameAITools], parts.AITools.Fallback, "round %d tools", round)

		if fail[agents.NameMarketSizing] {
			assert.Equal(t, agents.MarketSizingFallback(), parts.Market.Value)
		}
		if fail[agents.NameCompetitors] {
			assert.Equal(t, agents.CompetitorsFallback(), parts.Competitors.Value)
		}
		if fail[agents.NameSWOT] {
			assert.Equal(t, agents.SWOTFallback(), parts.SWOT.Value)
		}
		if fail[agents.NameRoadmap] {
			assert.Equal(t, agents.RoadmapFallback(), parts.Roadmap.Value)
		}
		if fail[agents.NameAITools] {
			assert.Equal(t, agents.AIToolsFallback(), parts.AITools.Value)
		}

		// Synthesis only ever starts after the join.
		started.Store(0)
		settled.Store(0)
		allStarted = make(chan struct{})
		startOnce = sync.Once{}
		o.AssembleReport(context.Background(), acme)
		assert.Equal(t, int32(len(sectionNames)), synthSaw.Load(), "round %d: synthesis started before join", round)
	}
}

type panicky struct{}

func (panicky) Name() string { return "panicky" }
func (panicky) Generate(context.Context, domain.ProspectProfile) agents.Result[domain.SWOT] {
	panic("slot exploded")
}
func (panicky) Fallback(domain.ProspectProfile) domain.SWOT { return agents.SWOTFallback() }

func TestPanickingSectionIsIsolated(t *testing.T) {
	gen := llm.GeneratorFunc(func(_ context.Context, req llm.Request) (string, error) {
		return canned[req.Agent], nil
	})
	o := build(gen)
	o.sections.SWOT = panicky{}

	parts := o.RunSections(context.Background(), acme)
	assert.True(t, parts.SWOT.Fallback)
	assert.False(t, parts.Market.Fallback)
	assert.Equal(t, 1, parts.Fallbacks())
}

type countingObserver struct {
	calls     int
	fallbacks int
}

func (c *countingObserver) ReportAssembled(_ time.Duration, fallbacks int) {
	c.calls++
	c.fallbacks = fallbacks
}

func TestObserverSeesFallbackCount(t *testing.T) {
	gen := llm.GeneratorFunc(func(_ context.Context, req llm.Request) (string, error) {
		if req.Agent == agents.NameAITools || req.Agent == agents.NameSynthesis {
			return "", errors.New("nope")
		}
		return canned[req.Agent], nil
	})
	obs := &countingObserver{}
	o := NewDefault(gen, Models{Section: "a", Synthesis: "b"}, time.Second, nil, nil, obs)

	o.AssembleReport(context.Background(), acme)
	assert.Equal(t, 1, obs.calls)
	assert.Equal(t, 2, obs.fallbacks)
}

// assertPopulated walks v and fails on any empty string or nil slice/map/pointer.
func assertPopulated(t *testing.T, v reflect.Value, path string) {
	t.Helper()
	switch v.Kind() {
	case reflect.String:
		assert.NotEmpty(t, v.String(), "%s is empty", path)
	case reflect.Slice:
		if assert.False(t, v.IsNil(), "%s is nil", path) {
			for i := 0; i < v.Len(); i++ {
				assertPopulated(t, v.Index(i), path+"[]")
			}
		}
	case reflect.Map, reflect.Pointer, reflect.Interface:
		assert.False(t, v.IsNil(), "%s is nil", path)
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			assertPopulated(t, v.Field(i), path+"."+v.Type().Field(i).Name)
		}
	}
}

func assertScoresBounded(t *testing.T, r domain.StrategicReport) {
	t.Helper()
	for _, s := range []domain.Score{r.HealthScore, r.SocialHealthScore, r.WebsitePerformanceIndex, r.MarketOpportunityScore, r.InternalDossier.LeadScore} {
		assert.GreaterOrEqual(t, int(s), 0)
		assert.LessOrEqual(t, int(s), 100)
	}
}
