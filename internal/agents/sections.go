package agents

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/ashureev/strategic-discovery/internal/llm"
)

// Agent names, also used as metric labels.
const (
	NameMarketSizing = "market_sizing"
	NameCompetitors  = "competitive_analysis"
	NameSWOT         = "swot"
	NameRoadmap      = "growth_roadmap"
	NameAITools      = "ai_tools"
	NameSynthesis    = "synthesis"
	NameQuestions    = "questions"
	NameEnrichment   = "enrichment"
)

const (
	maxCompetitors  = 3
	maxSWOTItems    = 7
	maxAITools      = 12
	consultantVoice = "You are a senior strategy consultant preparing a client-facing discovery report. Respond with JSON only."
)

const profileHeader = `Company: {{.CompanyName}}
Industry: {{.Industry}} > {{orNA .SubIndustry}} > {{orNA .Niche}}
Location: {{orNA .Location}}
Currency: {{if .CurrencyCode}}{{.CurrencyCode}}{{else}}USD{{end}} (use it for all monetary values)
Language: {{if .Language}}{{.Language}}{{else}}en{{end}} (write all prose in this language)
`

var marketTemplate = mustTemplate(NameMarketSizing, profileHeader+`Target audience: {{orNA (index .MarketMetrics "targetAudience")}}
Geographic focus: {{orNA (index .MarketMetrics "geoFocus")}}

Task: estimate the Total Addressable Market (TAM), Serviceable Addressable Market (SAM)
and Serviceable Obtainable Market (SOM). Give formatted strings and numeric values on a
relative scale for charting. Estimate the CAGR.

Return JSON:
{
  "tam": "string ($10B)", "tamValue": number,
  "sam": "string ($2B)", "samValue": number,
  "som": "string ($100M)", "somValue": number,
  "cagr": "string (12%)",
  "marketOutlook": "short paragraph on market trends"
}
`)

var competitorTemplate = mustTemplate(NameCompetitors, profileHeader+`Known competitors: {{orNA (index .CompetitiveMetrics "topCompetitors")}}
Key differentiator: {{orNA (index .CompetitiveMetrics "keyDifferentiator")}}

Task: profile the 3 most relevant direct competitors.

Return a JSON array of exactly 3 objects:
[
  {
    "name": "string",
    "marketShareEstimate": "string",
    "strengths": ["string"],
    "weaknesses": ["string"],
    "pricingStrategy": "string",
    "differentiation": "string"
  }
]
`)

var swotTemplate = mustTemplate(NameSWOT, profileHeader+`Annual revenue: {{orNA (index .FinancialMetrics "annualRevenue")}}
Team size: {{orNA (index .OperationalMetrics "teamSize")}}
Market position: {{orNA (index .CompetitiveMetrics "marketPosition")}}

Task: produce a SWOT analysis with 5 to 7 items per quadrant. Every item carries one
concrete action recommendation.

Return JSON:
{
  "strengths": [{"text": "string", "actionItem": "string"}],
  "weaknesses": [{"text": "string", "actionItem": "string"}],
  "opportunities": [{"text": "string", "actionItem": "string"}],
  "threats": [{"text": "string", "actionItem": "string"}]
}
`)

var roadmapTemplate = mustTemplate(NameRoadmap, profileHeader+`Annual revenue: {{orNA (index .FinancialMetrics "annualRevenue")}}
Growth rate: {{orNA (index .FinancialMetrics "growthRateYoY")}}

Task: build a growth roadmap with three phases: quick wins (0-90 days), strategic
(180 days) and long term (12 months). Each phase names 3 to 5 initiatives with their
impact and states the expected outcome.

Return JSON:
{
  "quickWins": {"phaseName": "string", "duration": "0-90 days", "initiatives": [{"title": "string", "impact": "High|Medium|Low"}], "expectedOutcome": "string"},
  "strategic": {"phaseName": "string", "duration": "180 days", "initiatives": [], "expectedOutcome": "string"},
  "longTerm":  {"phaseName": "string", "duration": "12 months", "initiatives": [], "expectedOutcome": "string"}
}
`)

var toolsTemplate = mustTemplate(NameAITools, profileHeader+`Team size: {{orNA (index .OperationalMetrics "teamSize")}}
Website platform: {{orNA (index .WebsiteMetrics "platform")}}

Task: recommend 8 to 12 AI tools that would improve sales, marketing and operations
for this company.

Return a JSON array:
[
  {
    "category": "string",
    "name": "string",
    "description": "string",
    "roiEstimate": "string",
    "implementationTime": "string",
    "cost": "string"
  }
]
`)

// NewMarketSizing returns the TAM/SAM/SOM agent.
func NewMarketSizing(gen llm.Generator, opts ...Option) *Agent[domain.ProspectProfile, domain.MarketSizing] {
	return New(gen, Spec[domain.ProspectProfile, domain.MarketSizing]{
		Name:     NameMarketSizing,
		System:   consultantVoice,
		Prompt:   profilePrompt(marketTemplate),
		Fallback: func(domain.ProspectProfile) domain.MarketSizing { return MarketSizingFallback() },
		Check:    checkMarketSizing,
		Subject:  companyOf,
	}, opts...)
}

// MarketSizingFallback is used when the market sizing call fails.
func MarketSizingFallback() domain.MarketSizing {
	return domain.MarketSizing{
		TAM: "Unknown", TAMValue: 100,
		SAM: "Unknown", SAMValue: 50,
		SOM: "Unknown", SOMValue: 10,
		CAGR:          "N/A",
		MarketOutlook: "Market data unavailable.",
	}
}

func checkMarketSizing(m *domain.MarketSizing) error {
	if strings.TrimSpace(m.TAM) == "" || strings.TrimSpace(m.SAM) == "" || strings.TrimSpace(m.SOM) == "" {
		return errors.New("tam, sam and som are required")
	}
	if m.TAMValue < 0 || m.SAMValue < 0 || m.SOMValue < 0 {
		return errors.New("market values must not be negative")
	}
	if m.CAGR == "" {
		m.CAGR = "N/A"
	}
	return nil
}

// NewCompetitors returns the competitive analysis agent.
func NewCompetitors(gen llm.Generator, opts ...Option) *Agent[domain.ProspectProfile, []domain.Competitor] {
	return New(gen, Spec[domain.ProspectProfile, []domain.Competitor]{
		Name:     NameCompetitors,
		System:   consultantVoice,
		Prompt:   profilePrompt(competitorTemplate),
		Fallback: func(domain.ProspectProfile) []domain.Competitor { return CompetitorsFallback() },
		Check:    checkCompetitors,
		Subject:  companyOf,
	}, opts...)
}

// CompetitorsFallback is an empty, non-nil list.
func CompetitorsFallback() []domain.Competitor {
	return []domain.Competitor{}
}

func checkCompetitors(cs *[]domain.Competitor) error {
	if len(*cs) == 0 {
		return errors.New("no competitors returned")
	}
	if len(*cs) > maxCompetitors {
		*cs = (*cs)[:maxCompetitors]
	}
	for i := range *cs {
		c := &(*cs)[i]
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("competitor %d has no name", i)
		}
		if c.Strengths == nil {
			c.Strengths = []string{}
		}
		if c.Weaknesses == nil {
			c.Weaknesses = []string{}
		}
	}
	return nil
}

// NewSWOT returns the SWOT agent.
func NewSWOT(gen llm.Generator, opts ...Option) *Agent[domain.ProspectProfile, domain.SWOT] {
	return New(gen, Spec[domain.ProspectProfile, domain.SWOT]{
		Name:     NameSWOT,
		System:   consultantVoice,
		Prompt:   profilePrompt(swotTemplate),
		Fallback: func(domain.ProspectProfile) domain.SWOT { return SWOTFallback() },
		Check:    checkSWOT,
		Subject:  companyOf,
	}, opts...)
}

// SWOTFallback has four empty quadrants.
func SWOTFallback() domain.SWOT {
	return domain.SWOT{
		Strengths:     []domain.SWOTItem{},
		Weaknesses:    []domain.SWOTItem{},
		Opportunities: []domain.SWOTItem{},
		Threats:       []domain.SWOTItem{},
	}
}

func checkSWOT(s *domain.SWOT) error {
	total := 0
	for _, q := range []*[]domain.SWOTItem{&s.Strengths, &s.Weaknesses, &s.Opportunities, &s.Threats} {
		if *q == nil {
			*q = []domain.SWOTItem{}
		}
		if len(*q) > maxSWOTItems {
			*q = (*q)[:maxSWOTItems]
		}
		for _, item := range *q {
			if strings.TrimSpace(item.Text) == "" {
				return errors.New("swot item without text")
			}
		}
		total += len(*q)
	}
	if total == 0 {
		return errors.New("empty swot")
	}
	return nil
}

// NewRoadmap returns the growth roadmap agent.
func NewRoadmap(gen llm.Generator, opts ...Option) *Agent[domain.ProspectProfile, domain.GrowthRoadmap] {
	return New(gen, Spec[domain.ProspectProfile, domain.GrowthRoadmap]{
		Name:     NameRoadmap,
		System:   consultantVoice,
		Prompt:   profilePrompt(roadmapTemplate),
		Fallback: func(domain.ProspectProfile) domain.GrowthRoadmap { return RoadmapFallback() },
		Check:    checkRoadmap,
		Subject:  companyOf,
	}, opts...)
}

var roadmapPhases = [3]struct{ name, duration string }{
	{"Quick Wins", "0-90 days"},
	{"Strategic Growth", "180 days"},
	{"Long-Term Vision", "12 months"},
}

// RoadmapFallback has the three fixed phases without initiatives.
func RoadmapFallback() domain.GrowthRoadmap {
	phase := func(i int) domain.RoadmapPhase {
		return domain.RoadmapPhase{
			PhaseName:       roadmapPhases[i].name,
			Duration:        roadmapPhases[i].duration,
			Initiatives:     []domain.Initiative{},
			ExpectedOutcome: "To be defined in the strategy workshop.",
		}
	}
	return domain.GrowthRoadmap{QuickWins: phase(0), Strategic: phase(1), LongTerm: phase(2)}
}

func checkRoadmap(r *domain.GrowthRoadmap) error {
	for i, ph := range []*domain.RoadmapPhase{&r.QuickWins, &r.Strategic, &r.LongTerm} {
		if ph.PhaseName == "" {
			ph.PhaseName = roadmapPhases[i].name
		}
		if ph.Duration == "" {
			ph.Duration = roadmapPhases[i].duration
		}
		if ph.Initiatives == nil {
			ph.Initiatives = []domain.Initiative{}
		}
		if len(ph.Initiatives) == 0 && ph.ExpectedOutcome == "" {
			return fmt.Errorf("phase %q is empty", ph.PhaseName)
		}
	}
	return nil
}

// NewAITools returns the AI tool recommendation agent.
func NewAITools(gen llm.Generator, opts ...Option) *Agent[domain.ProspectProfile, []domain.AITool] {
	return New(gen, Spec[domain.ProspectProfile, []domain.AITool]{
		Name:     NameAITools,
		System:   consultantVoice,
		Prompt:   profilePrompt(toolsTemplate),
		Fallback: func(domain.ProspectProfile) []domain.AITool { return AIToolsFallback() },
		Check:    checkAITools,
		Subject:  companyOf,
	}, opts...)
}

// AIToolsFallback is an empty, non-nil list.
func AIToolsFallback() []domain.AITool {
	return []domain.AITool{}
}

func checkAITools(ts *[]domain.AITool) error {
	if len(*ts) == 0 {
		return errors.New("no tools returned")
	}
	if len(*ts) > maxAITools {
		*ts = (*ts)[:maxAITools]
	}
	for i, t := range *ts {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("tool %d has no name", i)
		}
	}
	return nil
}
