package domain

// SocialAccount is one social channel found during enrichment.
type SocialAccount struct {
	URL       string `json:"url,omitempty"`
	Followers string `json:"followers"`
	Active    bool   `json:"active"`
}

// Confidence levels are HIGH, MEDIUM or LOW.
type Confidence struct {
	BasicInfo string `json:"basicInfo"`
	Social    string `json:"social"`
}

// EnrichedCompany is the payload of a completed enrichment operation.
type EnrichedCompany struct {
	CompanyName      string                   `json:"companyName"`
	Industry         string                   `json:"industry"`
	Location         string                   `json:"location"`
	EmployeeCount    string                   `json:"employeeCount"`
	EstimatedRevenue string                   `json:"estimatedRevenue"`
	Website          string                   `json:"website"`
	Description      string                   `json:"description"`
	TechStack        []string                 `json:"techStack,omitempty"`
	SocialPresence   map[string]SocialAccount `json:"socialPresence"`
	Confidence       Confidence               `json:"confidence"`
	SourcesFound     []string                 `json:"sourcesFound"`
}

// Option is one choice of a multiple-choice question.
type Option struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// QuestionType is "single" or "multiple".
type QuestionType string

const (
	QuestionSingle   QuestionType = "single"
	QuestionMultiple QuestionType = "multiple"
)

// Question is an AI-generated diagnostic question.
type Question struct {
	ID       string       `json:"id"`
	Text     string       `json:"text"`
	Type     QuestionType `json:"type"`
	Options  []Option     `json:"options"`
	Context  string       `json:"context"`
	Category string       `json:"category"`
}

// ChatMessage is one turn of the consultant chat. Role is "user" or "model".
type ChatMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}
