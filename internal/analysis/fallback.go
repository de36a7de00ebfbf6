package analysis

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed fallback.yaml
var fallbackYAML []byte

// FallbackTable is the static niche-keyed peer suggestion table used when
// candidate sourcing via the completion service fails. Lookup is ordered:
// the first niche keyword contained in the subject's niche wins.
type FallbackTable struct {
	Niches []fallbackEntry `yaml:"niches"`
	Def    []string        `yaml:"default"`
}

type fallbackEntry struct {
	Keyword string   `yaml:"keyword"`
	Handles []string `yaml:"handles"`
}

// DefaultFallbackTable parses the embedded suggestion table. The table ships
// with the binary, so a parse failure is a programming error.
func DefaultFallbackTable() *FallbackTable {
	var t FallbackTable
	if err := yaml.Unmarshal(fallbackYAML, &t); err != nil {
		panic("analysis: bad embedded fallback table: " + err.Error())
	}
	return &t
}

// Suggest returns up to 10 candidate handles for the given niche, with
// excluded handles (lower-cased) filtered out. It never fails; an unknown
// niche gets the default list.
func (t *FallbackTable) Suggest(niche string, excluded map[string]struct{}) []string {
	nicheLower := strings.ToLower(niche)

	for _, entry := range t.Niches {
		if strings.Contains(nicheLower, entry.Keyword) {
			return filterExcluded(entry.Handles, excluded)
		}
	}
	return filterExcluded(t.Def, excluded)
}

func filterExcluded(handles []string, excluded map[string]struct{}) []string {
	out := make([]string, 0, len(handles))
	for _, h := range handles {
		if _, skip := excluded[strings.ToLower(h)]; skip {
			continue
		}
		out = append(out, h)
		if len(out) == 10 {
			break
		}
	}
	return out
}
