package agents

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/ashureev/strategic-discovery/internal/llm"
)

const maxRisks = 5

// SynthesisInput carries the company identity and the aggregate statistics
// of the five section results.
type SynthesisInput struct {
	Profile         domain.ProspectProfile
	Market          domain.MarketSizing
	CompetitorCount int
	StrengthCount   int
	QuickWinCount   int
}

// NewSynthesisInput derives the synthesis statistics from the section results.
func NewSynthesisInput(p domain.ProspectProfile, market domain.MarketSizing, competitors []domain.Competitor, swot domain.SWOT, roadmap domain.GrowthRoadmap) SynthesisInput {
	return SynthesisInput{
		Profile:         p,
		Market:          market,
		CompetitorCount: len(competitors),
		StrengthCount:   len(swot.Strengths),
		QuickWinCount:   len(roadmap.QuickWins.Initiatives),
	}
}

var synthesisTemplate = mustTemplate(NameSynthesis, `Synthesize an executive summary and scores for a consulting report.
Company: {{.Profile.CompanyName}}
Industry: {{.Profile.Industry}} > {{orNA .Profile.SubIndustry}} > {{orNA .Profile.Niche}}
Language: {{if .Profile.Language}}{{.Profile.Language}}{{else}}en{{end}}

Data points:
- TAM: {{.Market.TAM}}, SAM: {{.Market.SAM}}, SOM: {{.Market.SOM}}
- Competitors: {{.CompetitorCount}} identified
- SWOT: {{.StrengthCount}} strengths identified
- Roadmap: {{.QuickWinCount}} quick-win initiatives in the first 90 days

Task:
1. Write a powerful 3-4 sentence executive summary in the language above.
2. Score the company from 0 to 100 on overall health, social presence, website
   performance and market opportunity.
3. Rate financial health (Strong, Stable, At Risk) and operational efficiency (High, Medium, Low).
4. List 3 key strengths, 3 critical gaps and the top 5 risks with mitigation.
5. Fill the internal sales dossier.

Return JSON:
{
  "executiveSummary": "string",
  "healthScore": 75,
  "socialHealthScore": 60,
  "websitePerformanceIndex": 50,
  "marketOpportunityScore": 85,
  "financialHealth": "Stable",
  "operationalEfficiency": "Medium",
  "keyStrengths": ["string"],
  "criticalGaps": ["string"],
  "risks": [{"riskName": "string", "severity": "High|Medium|Low", "mitigation": "string"}],
  "internalDossier": {
    "leadScore": 80,
    "dealSizeEstimate": "$25k",
    "riskFactors": ["string"],
    "opportunityAnalysis": {"quickWins": "string", "strategic": "string"},
    "salesTalkingPoints": ["string"]
  }
}
`)

// NewSynthesis returns the synthesis agent. Its fallback replaces the whole block.
func NewSynthesis(gen llm.Generator, opts ...Option) *Agent[SynthesisInput, domain.Synthesis] {
	return New(gen, Spec[SynthesisInput, domain.Synthesis]{
		Name:     NameSynthesis,
		System:   consultantVoice,
		Prompt:   func(in SynthesisInput) (string, error) { return render(synthesisTemplate, in) },
		Fallback: func(SynthesisInput) domain.Synthesis { return SynthesisFallback() },
		Check:    checkSynthesis,
		Subject:  func(in SynthesisInput) string { return in.Profile.CompanyName },
	}, opts...)
}

// SynthesisFallback is the complete substitute synthesis block.
func SynthesisFallback() domain.Synthesis {
	return domain.Synthesis{
		ExecutiveSummary:        "Analysis pending...",
		HealthScore:             50,
		SocialHealthScore:       50,
		WebsitePerformanceIndex: 50,
		MarketOpportunityScore:  50,
		FinancialHealth:         "Stable",
		OperationalEfficiency:   "Medium",
		KeyStrengths:            []string{},
		CriticalGaps:            []string{},
		Risks:                   []domain.Risk{},
		InternalDossier: domain.InternalDossier{
			LeadScore:        50,
			LeadTier:         domain.LeadTierFor(50),
			DealSizeEstimate: "$10k",
			RiskFactors:      []string{},
			OpportunityAnalysis: domain.OpportunityAnalysis{
				QuickWins: "Review after discovery call.",
				Strategic: "Review after discovery call.",
			},
			SalesTalkingPoints: []string{},
		},
	}
}

var (
	financialHealthValues = []string{"Strong", "Stable", "At Risk"}
	efficiencyValues      = []string{"High", "Medium", "Low"}
	severityValues        = []string{"High", "Medium", "Low"}
)

func oneOf(v string, allowed []string) (string, bool) {
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(v), a) {
			return a, true
		}
	}
	return v, false
}

func checkSynthesis(s *domain.Synthesis) error {
	if strings.TrimSpace(s.ExecutiveSummary) == "" {
		return errors.New("executive summary is required")
	}

	var ok bool
	if s.FinancialHealth, ok = oneOf(s.FinancialHealth, financialHealthValues); !ok {
		return fmt.Errorf("financialHealth %q", s.FinancialHealth)
	}
	if s.OperationalEfficiency, ok = oneOf(s.OperationalEfficiency, efficiencyValues); !ok {
		return fmt.Errorf("operationalEfficiency %q", s.OperationalEfficiency)
	}

	if len(s.Risks) > maxRisks {
		s.Risks = s.Risks[:maxRisks]
	}
	for i := range s.Risks {
		sev, ok := oneOf(s.Risks[i].Severity, severityValues)
		if !ok {
			sev = "Medium"
		}
		s.Risks[i].Severity = sev
	}

	if s.KeyStrengths == nil {
		s.KeyStrengths = []string{}
	}
	if s.CriticalGaps == nil {
		s.CriticalGaps = []string{}
	}
	if s.Risks == nil {
		s.Risks = []domain.Risk{}
	}
	d := &s.InternalDossier
	d.LeadTier = domain.LeadTierFor(d.LeadScore)
	if d.DealSizeEstimate == "" {
		d.DealSizeEstimate = "TBD"
	}
	if d.RiskFactors == nil {
		d.RiskFactors = []string{}
	}
	if d.SalesTalkingPoints == nil {
		d.SalesTalkingPoints = []string{}
	}
	return nil
}
