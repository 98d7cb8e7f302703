package services

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/codyseavey/cardprice/internal/models"
)

// minGroupMatchScore is the lowest keyword score accepted as a group match
const minGroupMatchScore = 0.5

// substringBonus rewards one normalized name containing the other
const substringBonus = 0.2

//go:embed data/set_aliases.yaml
var defaultAliasYAML []byte

type aliasFile struct {
	Aliases []struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
	} `yaml:"aliases"`
}

// SetMatcher maps free-text set names to secondary-provider groups
type SetMatcher struct {
	aliases map[string]string // normalized catalog name -> normalized group name
}

// GroupMatch is one scored group candidate
type GroupMatch struct {
	Group models.Group
	Score float64
}

// NewSetMatcher builds a matcher from the embedded alias table
func NewSetMatcher() (*SetMatcher, error) {
	return NewSetMatcherFromYAML(defaultAliasYAML)
}

// NewSetMatcherFromYAML builds a matcher from an alias table document
func NewSetMatcherFromYAML(doc []byte) (*SetMatcher, error) {
	var f aliasFile
	if err := yaml.Unmarshal(doc, &f); err != nil {
		return nil, fmt.Errorf("failed to parse set aliases: %w", err)
	}
	m := &SetMatcher{aliases: make(map[string]string, len(f.Aliases))}
	for _, a := range f.Aliases {
		from, to := normalizeText(a.From), normalizeText(a.To)
		if from == "" || to == "" {
			return nil, fmt.Errorf("set alias %q -> %q has an empty side", a.From, a.To)
		}
		m.aliases[from] = to
	}
	return m, nil
}

// MatchAll returns every group scoring at or above the threshold, best first.
// Alias hits rank above exact matches, which rank above keyword matches.
func (m *SetMatcher) MatchAll(setName string, groups []models.Group) []GroupMatch {
	hint := normalizeText(setName)
	if hint == "" {
		return nil
	}
	alias := m.aliases[hint]
	hintWords := keywords(setName)

	var out []GroupMatch
	for _, g := range groups {
		name := normalizeText(g.Name)
		var score float64
		switch {
		case alias != "" && name == alias:
			score = 3
		case name == hint:
			score = 2
		default:
			score = overlapScore(hint, hintWords, name, keywords(g.Name))
		}
		if score >= minGroupMatchScore {
			out = append(out, GroupMatch{Group: g, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// overlapScore averages the keyword coverage in both directions and adds a
// bonus when one name contains the other.
func overlapScore(hint string, hintWords []string, candidate string, candWords []string) float64 {
	if len(hintWords) == 0 || len(candWords) == 0 {
		return 0
	}
	candSet := keywordSet(candWords)
	shared := 0
	for _, w := range hintWords {
		if candSet[w] {
			shared++
		}
	}
	score := (float64(shared)/float64(len(hintWords)) + float64(shared)/float64(len(candWords))) / 2
	if strings.Contains(candidate, hint) || strings.Contains(hint, candidate) {
		score += substringBonus
	}
	return score
}
