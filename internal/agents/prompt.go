package agents

import (
	"strings"
	"text/template"

	"github.com/ashureev/strategic-discovery/internal/domain"
)

var funcs = template.FuncMap{
	"orNA": func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "N/A"
		}
		return s
	},
	"join": strings.Join,
}

func mustTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(funcs).Parse(text))
}

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func profilePrompt(t *template.Template) func(domain.ProspectProfile) (string, error) {
	return func(p domain.ProspectProfile) (string, error) {
		return render(t, p)
	}
}

func companyOf(p domain.ProspectProfile) string { return p.CompanyName }

// ChatInstruction is the system instruction for the consultant chat.
const ChatInstruction = "You are a helpful, concise business consultant assistant. Keep answers brief and actionable."
