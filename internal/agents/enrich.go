package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/ashureev/strategic-discovery/internal/llm"
)

// Enricher looks a company up from a name, URL or handle. Unlike the report
// agents it reports failure, so the enrichment operation can be marked failed.
type Enricher interface {
	Enrich(ctx context.Context, in domain.OperationInput) (domain.EnrichedCompany, error)
}

// ErrCompanyNotFound is returned when research produced no usable profile.
var ErrCompanyNotFound = errors.New("company not found")

var enrichTemplate = mustTemplate(NameEnrichment, `Input to analyze: "{{.CompanyIdentifier}}"

Task:
1. Search the web for this company across its website, LinkedIn, Instagram, Facebook,
   X (Twitter), TikTok and YouTube.
2. Look for business registry data where available (e.g. Crunchbase).
3. Estimate metrics when exact numbers are not found and mark confidence LOW.

Return strictly valid JSON without markdown. Language: {{if .Language}}{{.Language}}{{else}}en{{end}}.
{
  "companyName": "string",
  "industry": "string",
  "location": "string",
  "employeeCount": "string (e.g. 11-50)",
  "estimatedRevenue": "string (e.g. $1M-$5M)",
  "website": "string",
  "description": "one sentence",
  "techStack": ["string"],
  "socialPresence": {
    "linkedin": {"url": "string", "followers": "string", "active": true}
  },
  "confidence": {"basicInfo": "HIGH|MEDIUM|LOW", "social": "HIGH|MEDIUM|LOW"},
  "sourcesFound": ["string"]
}
`)

// CompanyEnricher researches a company with search grounding.
type CompanyEnricher struct {
	gen llm.Generator
	settings
}

// NewCompanyEnricher builds an enricher on top of gen.
func NewCompanyEnricher(gen llm.Generator, opts ...Option) *CompanyEnricher {
	s := settings{timeout: DefaultTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	return &CompanyEnricher{gen: gen, settings: s}
}

func (e *CompanyEnricher) Enrich(ctx context.Context, in domain.OperationInput) (domain.EnrichedCompany, error) {
	start := time.Now()
	out, err := e.enrich(ctx, in)
	if e.recorder != nil {
		e.recorder.AgentResult(NameEnrichment, err != nil, time.Since(start))
	}
	if err != nil {
		e.logger.Warn("Enrichment failed", "company", in.CompanyIdentifier, "error", err)
	}
	return out, err
}

func (e *CompanyEnricher) enrich(ctx context.Context, in domain.OperationInput) (domain.EnrichedCompany, error) {
	if strings.TrimSpace(in.CompanyIdentifier) == "" {
		return domain.EnrichedCompany{}, fmt.Errorf("%w: company identifier is required", domain.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt, err := render(enrichTemplate, in)
	if err != nil {
		return domain.EnrichedCompany{}, fmt.Errorf("build prompt: %w", err)
	}
	text, err := e.gen.Generate(ctx, llm.Request{
		Agent:             NameEnrichment,
		Model:             e.model,
		SystemInstruction: "You are a market research assistant that verifies company facts from public sources.",
		Prompt:            prompt,
		Search:            true,
	})
	if err != nil {
		return domain.EnrichedCompany{}, err
	}

	company, err := llm.DecodeJSON[domain.EnrichedCompany](NameEnrichment, text)
	if err != nil {
		return domain.EnrichedCompany{}, err
	}
	if strings.TrimSpace(company.CompanyName) == "" {
		return domain.EnrichedCompany{}, ErrCompanyNotFound
	}
	if company.SocialPresence == nil {
		company.SocialPresence = map[string]domain.SocialAccount{}
	}
	if company.SourcesFound == nil {
		company.SourcesFound = []string{}
	}
	return company, nil
}

// StaticEnricher returns canned data after Delay. It stands in for the
// research call when no model API key is configured.
type StaticEnricher struct {
	Delay time.Duration
}

func (s StaticEnricher) Enrich(ctx context.Context, in domain.OperationInput) (domain.EnrichedCompany, error) {
	name := strings.TrimSpace(in.CompanyIdentifier)
	if name == "" {
		return domain.EnrichedCompany{}, fmt.Errorf("%w: company identifier is required", domain.ErrInvalidInput)
	}
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return domain.EnrichedCompany{}, ctx.Err()
		case <-t.C:
		}
	}

	slug := strings.ToLower(strings.Join(strings.Fields(name), ""))
	return domain.EnrichedCompany{
		CompanyName:      name,
		Industry:         "Technology",
		Location:         "San Francisco, CA",
		EmployeeCount:    "50-200",
		EstimatedRevenue: "$5M - $10M",
		Website:          "https://" + slug + ".com",
		Description:      name + " is a technology company focused on innovative solutions for modern businesses.",
		TechStack:        []string{"React", "Node.js", "AWS", "PostgreSQL"},
		SocialPresence: map[string]domain.SocialAccount{
			"linkedin":  {URL: "https://linkedin.com/company/" + slug, Followers: "2,500", Active: true},
			"twitter":   {URL: "https://twitter.com/" + slug, Followers: "1,200", Active: true},
			"instagram": {URL: "https://instagram.com/" + slug, Followers: "800", Active: false},
		},
		Confidence:   domain.Confidence{BasicInfo: "HIGH", Social: "MEDIUM"},
		SourcesFound: []string{"LinkedIn", "Company Website", "Crunchbase"},
	}, nil
}
