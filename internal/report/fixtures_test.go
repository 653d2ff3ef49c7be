package report

import (
	"testing"

	"github.com/ashureev/strategic-discovery/internal/agents"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// The genai client's opencensus dependency starts a stats worker at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

var sectionNames = []string{
	agents.NameMarketSizing,
	agents.NameCompetitors,
	agents.NameSWOT,
	agents.NameRoadmap,
	agents.NameAITools,
}

var canned = map[string]string{
	agents.NameMarketSizing: `{"tam":"$48B","tamValue":100,"sam":"$6B","samValue":12.5,"som":"$120M","somValue":0.25,"cagr":"13.2%","marketOutlook":"CRM spend keeps growing."}`,
	agents.NameCompetitors: "```json\n" + `[
		{"name":"Salesforce","marketShareEstimate":"23%","strengths":["ecosystem"],"weaknesses":["cost"],"pricingStrategy":"premium","differentiation":"platform"},
		{"name":"HubSpot","marketShareEstimate":"6%","strengths":["inbound"],"weaknesses":["enterprise depth"],"pricingStrategy":"freemium","differentiation":"ease of use"},
		{"name":"Pipedrive","marketShareEstimate":"2%","strengths":["simplicity"],"weaknesses":["reporting"],"pricingStrategy":"low","differentiation":"pipeline UX"}
	]` + "\n```",
	agents.NameSWOT: `{
		"strengths":[{"text":"Founder-led sales","actionItem":"Document playbook"},{"text":"Sticky product","actionItem":"Publish case studies"},{"text":"Low churn","actionItem":"Launch referral plan"},{"text":"Fast shipping","actionItem":"Public changelog"},{"text":"Niche focus","actionItem":"Own the category"}],
		"weaknesses":[{"text":"Thin marketing","actionItem":"Hire content lead"}],
		"opportunities":[{"text":"AI assistants","actionItem":"Ship copilot"}],
		"threats":[{"text":"Incumbent bundling","actionItem":"Integrate deeply"}]
	}`,
	agents.NameRoadmap: `{
		"quickWins":{"phaseName":"Quick Wins","duration":"0-90 days","initiatives":[{"title":"Fix onboarding","impact":"High"},{"title":"Pricing page","impact":"Medium"}],"expectedOutcome":"+15% trial conversion"},
		"strategic":{"phaseName":"Strategic","duration":"180 days","initiatives":[{"title":"Partner channel","impact":"High"}],"expectedOutcome":"New pipeline source"},
		"longTerm":{"phaseName":"Long Term","duration":"12 months","initiatives":[{"title":"EU expansion","impact":"High"}],"expectedOutcome":"30% revenue abroad"}
	}`,
	agents.NameAITools: `[
		{"category":"Sales","name":"Gong","description":"call intelligence","roiEstimate":"3x","implementationTime":"2 weeks","cost":"$$"},
		{"category":"Sales","name":"Clay","description":"enrichment","roiEstimate":"2x","implementationTime":"1 week","cost":"$"},
		{"category":"Marketing","name":"Jasper","description":"copy","roiEstimate":"2x","implementationTime":"1 day","cost":"$"},
		{"category":"Support","name":"Intercom Fin","description":"support bot","roiEstimate":"4x","implementationTime":"2 weeks","cost":"$$"},
		{"category":"Ops","name":"Zapier AI","description":"automation","roiEstimate":"2x","implementationTime":"1 week","cost":"$"},
		{"category":"Analytics","name":"Mixpanel Spark","description":"analytics","roiEstimate":"2x","implementationTime":"1 week","cost":"$$"},
		{"category":"Sales","name":"Lavender","description":"email coach","roiEstimate":"2x","implementationTime":"1 day","cost":"$"},
		{"category":"Ops","name":"Notion AI","description":"docs","roiEstimate":"1.5x","implementationTime":"1 day","cost":"$"},
		{"category":"Marketing","name":"Surfer","description":"SEO","roiEstimate":"2x","implementationTime":"1 week","cost":"$"}
	]`,
	agents.NameSynthesis: `{
		"executiveSummary":"Acme Corp is well placed to win mid-market CRM deals.",
		"healthScore":74,"socialHealthScore":58,"websitePerformanceIndex":63,"marketOpportunityScore":82,
		"financialHealth":"Stable","operationalEfficiency":"Medium",
		"keyStrengths":["product","team","niche"],"criticalGaps":["marketing","partners","pricing"],
		"risks":[{"riskName":"Bundling","severity":"High","mitigation":"Integrations"}],
		"internalDossier":{"leadScore":72,"leadTier":"HOT","dealSizeEstimate":"$40k","riskFactors":["budget timing"],
			"opportunityAnalysis":{"quickWins":"onboarding","strategic":"partners"},"salesTalkingPoints":["CRM consolidation"]}
	}`,
}
