package report

import (
	"strings"

	"github.com/ashureev/strategic-discovery/internal/domain"
)

// LeadScore rates a submitted prospect from the qualification answers and
// a few profile signals. The result is capped at 100.
func LeadScore(p domain.ProspectProfile) domain.Score {
	score := 50

	rev := p.FinancialMetrics.Get("annualRevenue")
	switch {
	case strings.Contains(rev, "$10M"), strings.Contains(rev, "$50M"):
		score += 20
	case strings.Contains(rev, "$5M"):
		score += 15
	case strings.Contains(rev, "$1M"):
		score += 10
	}

	switch strings.ToLower(p.Qualification.IsDecisionMaker) {
	case "yes":
		score += 15
	case "shared":
		score += 5
	}

	switch p.Qualification.DesiredTimeline {
	case "ASAP":
		score += 20
	case "0-3 months":
		score += 10
	}

	switch readiness := p.Qualification.InvestmentReadiness; {
	case strings.Contains(readiness, "Budget"):
		score += 20
	case strings.Contains(readiness, "Ready"):
		score += 10
	}

	if strings.Contains(p.SocialMetrics.Get("contentStrategy"), "Active") {
		score += 5
	}

	team := p.OperationalMetrics.Get("teamSize")
	if strings.Contains(team, "51") || strings.Contains(team, "200") {
		score += 10
	}

	return domain.ClampScore(float64(score))
}
