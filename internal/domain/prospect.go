package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Metrics is a named group of free-form estimates, e.g. "annualRevenue" -> "$2M".
type Metrics map[string]string

// Get returns the value for key, or "" when the group or key is missing.
func (m Metrics) Get(key string) string {
	if m == nil {
		return ""
	}
	return m[key]
}

// Choices holds the selected option labels. It decodes from either a single
// string or an array of strings.
type Choices []string

func (c *Choices) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*c = Choices{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("answer: %w", err)
	}
	*c = many
	return nil
}

// Answer is one response to a diagnostic question.
type Answer struct {
	QuestionID   string  `json:"questionId"`
	QuestionText string  `json:"questionText"`
	Answer       Choices `json:"answer"`
	Category     string  `json:"category"`
}

// Qualification captures the buying-signal fields used for lead scoring.
type Qualification struct {
	IsDecisionMaker     string   `json:"isDecisionMaker,omitempty"`
	DecisionStyle       string   `json:"decisionStyle,omitempty"`
	RiskPosture         string   `json:"riskPosture,omitempty"`
	TriggerEvent        string   `json:"triggerEvent,omitempty"`
	DesiredTimeline     string   `json:"desiredTimeline,omitempty"`
	InvestmentReadiness string   `json:"investmentReadiness,omitempty"`
	HelpType            []string `json:"helpType,omitempty"`
}

// ProspectProfile is everything collected about a prospect before report generation.
// Agents receive it by value and never modify it.
type ProspectProfile struct {
	FounderName  string `json:"founderName"`
	Title        string `json:"title"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	CompanyName  string `json:"companyName"`
	Location     string `json:"location"`
	Language     string `json:"language"`
	CountryCode  string `json:"countryCode"`
	CurrencyCode string `json:"currencyCode"`

	Industry    string `json:"industry"`
	SubIndustry string `json:"subIndustry,omitempty"`
	Niche       string `json:"niche,omitempty"`

	SocialMetrics      Metrics `json:"socialMetrics,omitempty"`
	WebsiteMetrics     Metrics `json:"websiteMetrics,omitempty"`
	CompetitiveMetrics Metrics `json:"competitiveMetrics,omitempty"`
	MarketMetrics      Metrics `json:"marketMetrics,omitempty"`
	FinancialMetrics   Metrics `json:"financialMetrics,omitempty"`
	OperationalMetrics Metrics `json:"operationalMetrics,omitempty"`

	DynamicAnswers []Answer         `json:"dynamicAnswers,omitempty"`
	Qualification  Qualification    `json:"qualification"`
	Enrichment     *EnrichedCompany `json:"enrichment,omitempty"`
}

// Validate checks the fields every downstream step depends on.
// Taxonomy consistency is checked separately against the taxonomy tree.
func (p ProspectProfile) Validate() error {
	if strings.TrimSpace(p.CompanyName) == "" {
		return fmt.Errorf("%w: companyName is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.Industry) == "" {
		return fmt.Errorf("%w: industry is required", ErrInvalidInput)
	}
	if p.Niche != "" && p.SubIndustry == "" {
		return fmt.Errorf("%w: niche requires subIndustry", ErrInvalidInput)
	}
	return nil
}

// LanguageOrDefault returns the profile language, defaulting to English.
func (p ProspectProfile) LanguageOrDefault() string {
	if p.Language == "" {
		return "en"
	}
	return p.Language
}

// ApplyEnrichment fills empty identity fields from an enrichment result and
// attaches the payload. Fields the prospect typed in take precedence.
func (p ProspectProfile) ApplyEnrichment(e EnrichedCompany) ProspectProfile {
	if p.CompanyName == "" {
		p.CompanyName = e.CompanyName
	}
	if p.Location == "" {
		p.Location = e.Location
	}
	if p.WebsiteMetrics.Get("url") == "" && e.Website != "" {
		wm := Metrics{}
		for k, v := range p.WebsiteMetrics {
			wm[k] = v
		}
		wm["url"] = e.Website
		p.WebsiteMetrics = wm
	}
	if p.OperationalMetrics.Get("teamSize") == "" && e.EmployeeCount != "" {
		om := Metrics{}
		for k, v := range p.OperationalMetrics {
			om[k] = v
		}
		om["teamSize"] = e.EmployeeCount
		p.OperationalMetrics = om
	}
	enriched := e
	p.Enrichment = &enriched
	return p
}
