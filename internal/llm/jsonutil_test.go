package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no lang", "```\n[1,2]\n```", `[1,2]`},
		{"surrounding prose", "Here you go:\n{\"a\":1}\nThanks!", `{"a":1}`},
		{"trailing comma", `{"a":[1,2,],}`, `{"a":[1,2]}`},
		{"array of objects", `[{"a":1},{"a":2}]`, `[{"a":1},{"a":2}]`},
		{"no json", "sorry, I cannot help", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestDecodeJSONReturnsParseError(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	got, err := DecodeJSON[payload]("market", "```json\n{\"name\":\"Acme\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)

	_, err = DecodeJSON[payload]("market", "not json at all")
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "market", perr.Agent)

	_, err = DecodeJSON[payload]("market", `{"name": 12}`)
	require.ErrorAs(t, err, &perr)
}

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")
	assert.True(t, IsTransient(NewTransientError(base)))
	assert.False(t, IsFatal(NewTransientError(base)))
	assert.True(t, IsFatal(NewFatalError(base)))
	assert.ErrorIs(t, NewFatalError(base), base)
	assert.False(t, IsTransient(base))
}
