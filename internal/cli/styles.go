package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorPrimary = lipgloss.Color("#7aa2f7")
	colorSuccess = lipgloss.Color("#9ece6a")
	colorWarning = lipgloss.Color("#e0af68")
	colorError   = lipgloss.Color("#f7768e")
	colorMuted   = lipgloss.Color("#565f89")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	headingStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Underline(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	stageStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
)

func tierStyle(t domain.LeadTier) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch t {
	case domain.LeadTierHot:
		return s.Foreground(colorError)
	case domain.LeadTierWarm:
		return s.Foreground(colorWarning)
	case domain.LeadTierCool:
		return s.Foreground(colorSuccess)
	}
	return s.Foreground(colorMuted)
}

func field(label, value string) string {
	return labelStyle.Render(label+":") + " " + value
}

func bullets(items []string) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString("  • " + it + "\n")
	}
	return b.String()
}

// renderReport writes the prospect-facing summary of a report.
func renderReport(w io.Writer, p domain.ProspectProfile, r domain.StrategicReport, score domain.Score) {
	header := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(p.CompanyName),
		field("Industry", strings.Join(nonEmpty(p.Industry, p.SubIndustry, p.Niche), " > ")),
		field("Health score", fmt.Sprintf("%d", r.HealthScore)),
		field("Market opportunity", fmt.Sprintf("%d", r.MarketOpportunityScore)),
	)
	fmt.Fprintln(w, panelStyle.Render(header))

	fmt.Fprintln(w, headingStyle.Render("Executive summary"))
	fmt.Fprintln(w, r.ExecutiveSummary)
	fmt.Fprintln(w)

	if len(r.KeyStrengths) > 0 {
		fmt.Fprintln(w, headingStyle.Render("Key strengths"))
		fmt.Fprint(w, bullets(r.KeyStrengths))
	}
	if len(r.CriticalGaps) > 0 {
		fmt.Fprintln(w, headingStyle.Render("Critical gaps"))
		fmt.Fprint(w, bullets(r.CriticalGaps))
	}
	if qw := r.GrowthRoadmap.QuickWins.Initiatives; len(qw) > 0 {
		fmt.Fprintln(w, headingStyle.Render("Quick wins"))
		names := make([]string, len(qw))
		for i, in := range qw {
			names[i] = in.Title
		}
		fmt.Fprint(w, bullets(names))
	}
	fmt.Fprintln(w)
	renderLead(w, score, domain.LeadTierFor(score))
}

func renderLead(w io.Writer, score domain.Score, tier domain.LeadTier) {
	fmt.Fprintln(w, field("Lead", fmt.Sprintf("%d %s", score, tierStyle(tier).Render(string(tier)))))
}

func nonEmpty(parts ...string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
