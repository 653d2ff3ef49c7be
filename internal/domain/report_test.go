package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadTierFor(t *testing.T) {
	tests := []struct {
		score Score
		want  LeadTier
	}{
		{0, LeadTierCold},
		{40, LeadTierCold},
		{41, LeadTierCool},
		{60, LeadTierCool},
		{61, LeadTierWarm},
		{80, LeadTierWarm},
		{81, LeadTierHot},
		{100, LeadTierHot},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LeadTierFor(tt.score), "score %d", tt.score)
	}
}

func TestScoreUnmarshalClampsAndRounds(t *testing.T) {
	tests := []struct {
		in   string
		want Score
	}{
		{`72`, 72},
		{`72.6`, 73},
		{`-5`, 0},
		{`140`, 100},
		{`"88"`, 88},
	}
	for _, tt := range tests {
		var s Score
		require.NoError(t, json.Unmarshal([]byte(tt.in), &s), tt.in)
		assert.Equal(t, tt.want, s, tt.in)
	}

	var s Score
	assert.Error(t, json.Unmarshal([]byte(`"high"`), &s))
}

func TestSynthesisScoresAreBoundedAfterDecode(t *testing.T) {
	raw := `{"executiveSummary":"x","healthScore":250,"socialHealthScore":-3,
		"websitePerformanceIndex":99.5,"marketOpportunityScore":50,
		"internalDossier":{"leadScore":1000,"leadTier":"COLD"}}`

	var r StrategicReport
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	r.Normalize()

	assert.Equal(t, Score(100), r.HealthScore)
	assert.Equal(t, Score(0), r.SocialHealthScore)
	assert.Equal(t, Score(100), r.WebsitePerformanceIndex)
	assert.Equal(t, Score(100), r.InternalDossier.LeadScore)
	assert.Equal(t, LeadTierHot, r.InternalDossier.LeadTier)
}

func TestNormalizeReplacesNilCollections(t *testing.T) {
	var r StrategicReport
	r.Normalize()

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "null")
}

func TestStrategicReportRoundTrip(t *testing.T) {
	in := StrategicReport{
		MarketAnalysis: MarketSizing{TAM: "$4.2B", TAMValue: 4200, SAM: "$800M", SAMValue: 800, SOM: "$40M", SOMValue: 40, CAGR: "11%", MarketOutlook: "Growing"},
		Competitors: []Competitor{{
			Name: "Rival", MarketShareEstimate: "12%", Strengths: []string{"brand"}, Weaknesses: []string{"price"},
			PricingStrategy: "premium", Differentiation: "support",
		}},
		SWOT: SWOT{
			Strengths:     []SWOTItem{{Text: "team", ActionItem: "hire"}},
			Weaknesses:    []SWOTItem{},
			Opportunities: []SWOTItem{{Text: "AI", ActionItem: "pilot"}},
			Threats:       []SWOTItem{},
		},
		GrowthRoadmap: GrowthRoadmap{
			QuickWins: RoadmapPhase{PhaseName: "Quick Wins", Duration: "0-90 days", Initiatives: []Initiative{{Title: "SEO", Impact: "High"}}, ExpectedOutcome: "leads"},
			Strategic: RoadmapPhase{PhaseName: "Strategic", Duration: "180 days", Initiatives: []Initiative{}, ExpectedOutcome: "scale"},
			LongTerm:  RoadmapPhase{PhaseName: "Long Term", Duration: "12 months", Initiatives: []Initiative{}, ExpectedOutcome: "lead"},
		},
		AITools: []AITool{{Category: "Sales", Name: "Tool", Description: "d", ROIEstimate: "3x", ImplementationTime: "2w", Cost: "$"}},
		Synthesis: Synthesis{
			ExecutiveSummary: "summary", HealthScore: 70, SocialHealthScore: 40, WebsitePerformanceIndex: 55, MarketOpportunityScore: 81,
			FinancialHealth: "Stable", OperationalEfficiency: "Medium",
			KeyStrengths: []string{"a"}, CriticalGaps: []string{"b"},
			Risks: []Risk{{RiskName: "churn", Severity: "High", Mitigation: "retain"}},
			InternalDossier: InternalDossier{
				LeadScore: 72, LeadTier: LeadTierWarm, DealSizeEstimate: "$25k",
				RiskFactors:         []string{"budget"},
				OpportunityAnalysis: OpportunityAnalysis{QuickWins: "q", Strategic: "s"},
				SalesTalkingPoints:  []string{"p"},
			},
		},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out StrategicReport
	require.NoError(t, json.Unmarshal(data, &out))
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestChoicesAcceptsStringOrArray(t *testing.T) {
	var a Answer
	require.NoError(t, json.Unmarshal([]byte(`{"questionId":"q1","answer":"B2B"}`), &a))
	assert.Equal(t, Choices{"B2B"}, a.Answer)

	require.NoError(t, json.Unmarshal([]byte(`{"questionId":"q1","answer":["A","B"]}`), &a))
	assert.Equal(t, Choices{"A", "B"}, a.Answer)
}
