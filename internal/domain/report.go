package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Score is an integer in [0, 100]. Decoding rounds fractional values and
// clamps anything out of range.
type Score int

// ClampScore rounds v and bounds it to [0, 100].
func ClampScore(v float64) Score {
	if math.IsNaN(v) {
		return 0
	}
	r := math.Round(v)
	switch {
	case r < 0:
		return 0
	case r > 100:
		return 100
	}
	return Score(r)
}

// UnmarshalJSON accepts numbers and numeric strings.
func (s *Score) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		var str string
		if strErr := json.Unmarshal(b, &str); strErr != nil {
			return fmt.Errorf("score: %w", err)
		}
		n, err = strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("score %q: %w", str, err)
		}
	}
	*s = ClampScore(n)
	return nil
}

// LeadTier buckets a lead score.
type LeadTier string

const (
	LeadTierHot  LeadTier = "HOT"
	LeadTierWarm LeadTier = "WARM"
	LeadTierCool LeadTier = "COOL"
	LeadTierCold LeadTier = "COLD"
)

// LeadTierFor maps a lead score to its tier: >80 HOT, >60 WARM, >40 COOL, otherwise COLD.
func LeadTierFor(score Score) LeadTier {
	switch {
	case score > 80:
		return LeadTierHot
	case score > 60:
		return LeadTierWarm
	case score > 40:
		return LeadTierCool
	default:
		return LeadTierCold
	}
}

// MarketSizing holds TAM/SAM/SOM figures.
type MarketSizing struct {
	TAM           string  `json:"tam"`
	TAMValue      float64 `json:"tamValue"`
	SAM           string  `json:"sam"`
	SAMValue      float64 `json:"samValue"`
	SOM           string  `json:"som"`
	SOMValue      float64 `json:"somValue"`
	CAGR          string  `json:"cagr"`
	MarketOutlook string  `json:"marketOutlook"`
}

type Competitor struct {
	Name                string   `json:"name"`
	MarketShareEstimate string   `json:"marketShareEstimate"`
	Strengths           []string `json:"strengths"`
	Weaknesses          []string `json:"weaknesses"`
	PricingStrategy     string   `json:"pricingStrategy"`
	Differentiation     string   `json:"differentiation"`
}

type SWOTItem struct {
	Text       string `json:"text"`
	ActionItem string `json:"actionItem"`
}

type SWOT struct {
	Strengths     []SWOTItem `json:"strengths"`
	Weaknesses    []SWOTItem `json:"weaknesses"`
	Opportunities []SWOTItem `json:"opportunities"`
	Threats       []SWOTItem `json:"threats"`
}

type Initiative struct {
	Title  string `json:"title"`
	Impact string `json:"impact"`
}

type RoadmapPhase struct {
	PhaseName       string       `json:"phaseName"`
	Duration        string       `json:"duration"`
	Initiatives     []Initiative `json:"initiatives"`
	ExpectedOutcome string       `json:"expectedOutcome"`
}

// GrowthRoadmap spans 90 days, 180 days and 12 months.
type GrowthRoadmap struct {
	QuickWins RoadmapPhase `json:"quickWins"`
	Strategic RoadmapPhase `json:"strategic"`
	LongTerm  RoadmapPhase `json:"longTerm"`
}

type AITool struct {
	Category           string `json:"category"`
	Name               string `json:"name"`
	Description        string `json:"description"`
	ROIEstimate        string `json:"roiEstimate"`
	ImplementationTime string `json:"implementationTime"`
	Cost               string `json:"cost"`
}

type Risk struct {
	RiskName   string `json:"riskName"`
	Severity   string `json:"severity"`
	Mitigation string `json:"mitigation"`
}

type OpportunityAnalysis struct {
	QuickWins string `json:"quickWins"`
	Strategic string `json:"strategic"`
}

// InternalDossier is the sales-facing part of the synthesis. It is stored
// with the report but not meant for the prospect.
type InternalDossier struct {
	LeadScore           Score               `json:"leadScore"`
	LeadTier            LeadTier            `json:"leadTier"`
	DealSizeEstimate    string              `json:"dealSizeEstimate"`
	RiskFactors         []string            `json:"riskFactors"`
	OpportunityAnalysis OpportunityAnalysis `json:"opportunityAnalysis"`
	SalesTalkingPoints  []string            `json:"salesTalkingPoints"`
}

// Synthesis is the cross-cutting block produced after all section agents finish.
type Synthesis struct {
	ExecutiveSummary        string          `json:"executiveSummary"`
	HealthScore             Score           `json:"healthScore"`
	SocialHealthScore       Score           `json:"socialHealthScore"`
	WebsitePerformanceIndex Score           `json:"websitePerformanceIndex"`
	MarketOpportunityScore  Score           `json:"marketOpportunityScore"`
	FinancialHealth         string          `json:"financialHealth"`
	OperationalEfficiency   string          `json:"operationalEfficiency"`
	KeyStrengths            []string        `json:"keyStrengths"`
	CriticalGaps            []string        `json:"criticalGaps"`
	Risks                   []Risk          `json:"risks"`
	InternalDossier         InternalDossier `json:"internalDossier"`
}

// StrategicReport is the merged output of the five section agents and the synthesis.
type StrategicReport struct {
	MarketAnalysis MarketSizing  `json:"marketAnalysis"`
	Competitors    []Competitor  `json:"competitors"`
	SWOT           SWOT          `json:"swot"`
	GrowthRoadmap  GrowthRoadmap `json:"growthRoadmap"`
	AITools        []AITool      `json:"aiTools"`
	Synthesis
}

// Normalize enforces the report invariants: lead tier derived from lead
// score and no nil collections.
func (r *StrategicReport) Normalize() {
	r.InternalDossier.LeadTier = LeadTierFor(r.InternalDossier.LeadScore)
	if r.Competitors == nil {
		r.Competitors = []Competitor{}
	}
	for i := range r.Competitors {
		r.Competitors[i].Strengths = nonNil(r.Competitors[i].Strengths)
		r.Competitors[i].Weaknesses = nonNil(r.Competitors[i].Weaknesses)
	}
	if r.AITools == nil {
		r.AITools = []AITool{}
	}
	r.SWOT.Strengths = nonNilItems(r.SWOT.Strengths)
	r.SWOT.Weaknesses = nonNilItems(r.SWOT.Weaknesses)
	r.SWOT.Opportunities = nonNilItems(r.SWOT.Opportunities)
	r.SWOT.Threats = nonNilItems(r.SWOT.Threats)
	for _, ph := range []*RoadmapPhase{&r.GrowthRoadmap.QuickWins, &r.GrowthRoadmap.Strategic, &r.GrowthRoadmap.LongTerm} {
		if ph.Initiatives == nil {
			ph.Initiatives = []Initiative{}
		}
	}
	r.KeyStrengths = nonNil(r.KeyStrengths)
	r.CriticalGaps = nonNil(r.CriticalGaps)
	if r.Risks == nil {
		r.Risks = []Risk{}
	}
	r.InternalDossier.RiskFactors = nonNil(r.InternalDossier.RiskFactors)
	r.InternalDossier.SalesTalkingPoints = nonNil(r.InternalDossier.SalesTalkingPoints)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilItems(s []SWOTItem) []SWOTItem {
	if s == nil {
		return []SWOTItem{}
	}
	return s
}
