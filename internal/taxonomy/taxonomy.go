// Package taxonomy exposes the industry > sub-industry > niche tree.
package taxonomy

import (
	_ "embed"
	"fmt"
	"io"
	"sync"

	"github.com/ashureev/strategic-discovery/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed taxonomy.yaml
var defaultYAML []byte

// SubIndustry is the second level of the tree.
type SubIndustry struct {
	Name   string   `yaml:"name" json:"name"`
	Niches []string `yaml:"niches" json:"niches"`
}

// Industry is the top level of the tree.
type Industry struct {
	Name          string        `yaml:"name" json:"name"`
	SubIndustries []SubIndustry `yaml:"subIndustries" json:"subIndustries"`
}

// Tree is a parsed taxonomy. It is read-only after construction.
type Tree struct {
	industries []Industry
	index      map[string]map[string]map[string]struct{}
}

type document struct {
	Industries []Industry `yaml:"industries"`
}

// Parse reads a taxonomy document.
func Parse(r io.Reader) (*Tree, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}
	if len(doc.Industries) == 0 {
		return nil, fmt.Errorf("taxonomy has no industries")
	}

	t := &Tree{
		industries: doc.Industries,
		index:      make(map[string]map[string]map[string]struct{}, len(doc.Industries)),
	}
	for _, ind := range doc.Industries {
		if _, dup := t.index[ind.Name]; dup {
			return nil, fmt.Errorf("duplicate industry %q", ind.Name)
		}
		subs := make(map[string]map[string]struct{}, len(ind.SubIndustries))
		for _, sub := range ind.SubIndustries {
			niches := make(map[string]struct{}, len(sub.Niches))
			for _, n := range sub.Niches {
				niches[n] = struct{}{}
			}
			subs[sub.Name] = niches
		}
		t.index[ind.Name] = subs
	}
	return t, nil
}

var (
	defaultOnce sync.Once
	defaultTree *Tree
)

// Default returns the embedded taxonomy.
func Default() *Tree {
	defaultOnce.Do(func() {
		t, err := parseBytes(defaultYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded taxonomy: %v", err))
		}
		defaultTree = t
	})
	return defaultTree
}

// Industries returns the top-level industry names in document order.
func (t *Tree) Industries() []string {
	out := make([]string, 0, len(t.industries))
	for _, ind := range t.industries {
		out = append(out, ind.Name)
	}
	return out
}

// SubIndustries returns the sub-industries of industry, or false if it is unknown.
func (t *Tree) SubIndustries(industry string) ([]string, bool) {
	for _, ind := range t.industries {
		if ind.Name != industry {
			continue
		}
		out := make([]string, 0, len(ind.SubIndustries))
		for _, sub := range ind.SubIndustries {
			out = append(out, sub.Name)
		}
		return out, true
	}
	return nil, false
}

// Niches returns the niches under industry > subIndustry, or false if either is unknown.
func (t *Tree) Niches(industry, subIndustry string) ([]string, bool) {
	for _, ind := range t.industries {
		if ind.Name != industry {
			continue
		}
		for _, sub := range ind.SubIndustries {
			if sub.Name == subIndustry {
				return append([]string(nil), sub.Niches...), true
			}
		}
	}
	return nil, false
}

// Validate checks that the selection is a path in the tree. Empty trailing
// levels are allowed; a niche without a sub-industry is not.
func (t *Tree) Validate(industry, subIndustry, niche string) error {
	subs, ok := t.index[industry]
	if !ok {
		return fmt.Errorf("%w: unknown industry %q", domain.ErrInvalidInput, industry)
	}
	if subIndustry == "" {
		if niche != "" {
			return fmt.Errorf("%w: niche %q without sub-industry", domain.ErrInvalidInput, niche)
		}
		return nil
	}
	niches, ok := subs[subIndustry]
	if !ok {
		return fmt.Errorf("%w: %q is not a sub-industry of %q", domain.ErrInvalidInput, subIndustry, industry)
	}
	if niche == "" {
		return nil
	}
	if _, ok := niches[niche]; !ok {
		return fmt.Errorf("%w: %q is not a niche of %q > %q", domain.ErrInvalidInput, niche, industry, subIndustry)
	}
	return nil
}

// ValidateProfile checks the taxonomy fields of a prospect profile.
func (t *Tree) ValidateProfile(p domain.ProspectProfile) error {
	return t.Validate(p.Industry, p.SubIndustry, p.Niche)
}
