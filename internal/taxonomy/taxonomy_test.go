package taxonomy

import (
	"strings"
	"testing"

	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTreeContainsKnownPath(t *testing.T) {
	tree := Default()
	assert.Contains(t, tree.Industries(), "Software & SaaS")

	subs, ok := tree.SubIndustries("Software & SaaS")
	require.True(t, ok)
	assert.Contains(t, subs, "Enterprise")

	niches, ok := tree.Niches("Software & SaaS", "Enterprise")
	require.True(t, ok)
	assert.Contains(t, niches, "CRM & Sales")

	assert.NoError(t, tree.Validate("Software & SaaS", "Enterprise", "CRM & Sales"))
}

func TestValidateRejectsInconsistentPaths(t *testing.T) {
	tree := Default()

	tests := []struct {
		name                 string
		industry, sub, niche string
	}{
		{"unknown industry", "Time Travel", "", ""},
		{"sub from other industry", "Software & SaaS", "Commercial Aviation", ""},
		{"niche without sub", "Software & SaaS", "", "CRM & Sales"},
		{"niche from other sub", "Software & SaaS", "Enterprise", "Air Traffic Management"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tree.Validate(tt.industry, tt.sub, tt.niche)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestValidateAllowsPartialSelection(t *testing.T) {
	tree := Default()
	assert.NoError(t, tree.Validate("Software & SaaS", "", ""))
	assert.NoError(t, tree.Validate("Software & SaaS", "Enterprise", ""))
}

func TestParseRejectsDuplicatesAndEmpty(t *testing.T) {
	_, err := Parse(strings.NewReader("industries: []\n"))
	assert.Error(t, err)

	_, err = Parse(strings.NewReader(`
industries:
  - name: A
  - name: A
`))
	assert.Error(t, err)
}

func TestUnknownLookups(t *testing.T) {
	tree := Default()
	_, ok := tree.SubIndustries("Nope")
	assert.False(t, ok)
	_, ok = tree.Niches("Software & SaaS", "Nope")
	assert.False(t, ok)
}
