package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	fencePattern         = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)\\s*```")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

var errNoJSON = errors.New("no JSON value in response")

// ExtractJSON returns the JSON object or array contained in a model response.
// It strips markdown code fences, text around the value and trailing commas.
func ExtractJSON(content string) string {
	s := strings.TrimSpace(content)
	if m := fencePattern.FindStringSubmatch(s); len(m) > 1 {
		s = strings.TrimSpace(m[1])
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return trailingCommaPattern.ReplaceAllString(s[start:end+1], "$1")
}

// DecodeJSON extracts and decodes a model response into T. Failures are
// reported as *ParseError carrying the raw text.
func DecodeJSON[T any](agent, content string) (T, error) {
	var out T
	raw := ExtractJSON(content)
	if raw == "" {
		return out, &ParseError{Agent: agent, Raw: content, Err: errNoJSON}
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, &ParseError{Agent: agent, Raw: content, Err: err}
	}
	return out, nil
}
