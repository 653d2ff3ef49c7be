package agents

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/ashureev/strategic-discovery/internal/llm"
)

const maxQuestions = 10

// QuestionInput selects the niche the diagnostic questions are tailored to.
type QuestionInput struct {
	CompanyName string `json:"companyName"`
	Industry    string `json:"industry"`
	SubIndustry string `json:"subIndustry"`
	Niche       string `json:"niche"`
	Language    string `json:"language"`
}

var questionTemplate = mustTemplate(NameQuestions, `Context:
Assessing company "{{.CompanyName}}".
Industry: {{.Industry}} > {{orNA .SubIndustry}} > {{orNA .Niche}}.

Task: generate 8 to 10 objective multiple choice questions that diagnose the
company's strategic maturity. All question texts, options and descriptions must be
written in {{if .Language}}{{.Language}}{{else}}en{{end}}.

Constraints:
- 4 or 5 options per question, ranging from low to high maturity.
- Each option has a short description.
- "type" is "single" or "multiple" depending on the question.
- "category" is one of Strategy, Operations, Sales, Tech.

Return a JSON array:
[
  {
    "id": "q1",
    "text": "string",
    "type": "single",
    "options": [{"id": "o1", "label": "string", "description": "string"}],
    "context": "why we are asking",
    "category": "Strategy"
  }
]
`)

// NewQuestions returns the diagnostic question agent.
func NewQuestions(gen llm.Generator, opts ...Option) *Agent[QuestionInput, []domain.Question] {
	return New(gen, Spec[QuestionInput, []domain.Question]{
		Name:     NameQuestions,
		System:   "You are a strategic management consultant. Respond with JSON only.",
		Prompt:   func(in QuestionInput) (string, error) { return render(questionTemplate, in) },
		Fallback: func(QuestionInput) []domain.Question { return QuestionsFallback() },
		Check:    checkQuestions,
		Subject:  func(in QuestionInput) string { return in.CompanyName },
	}, opts...)
}

// QuestionsFallback is a single revenue-model question.
func QuestionsFallback() []domain.Question {
	return []domain.Question{{
		ID:   "fallback_1",
		Text: "What is your primary revenue model?",
		Type: domain.QuestionSingle,
		Options: []domain.Option{
			{ID: "f1", Label: "One-time Sales", Description: "Transactional revenue"},
			{ID: "f2", Label: "Subscription", Description: "Recurring revenue (ARR/MRR)"},
			{ID: "f3", Label: "Service Retainer", Description: "Contract based service"},
		},
		Context:  "Understanding revenue quality.",
		Category: "Strategy",
	}}
}

func checkQuestions(qs *[]domain.Question) error {
	if len(*qs) == 0 {
		return errors.New("no questions returned")
	}
	if len(*qs) > maxQuestions {
		*qs = (*qs)[:maxQuestions]
	}
	seen := make(map[string]bool, len(*qs))
	for i := range *qs {
		q := &(*qs)[i]
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("question %d has no text", i)
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("question %d has %d options", i, len(q.Options))
		}
		if q.ID == "" || seen[q.ID] {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		seen[q.ID] = true
		if q.Type != domain.QuestionMultiple {
			q.Type = domain.QuestionSingle
		}
	}
	return nil
}
