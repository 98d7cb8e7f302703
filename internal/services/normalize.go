package services

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	yearPattern     = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	setCodePattern  = regexp.MustCompile(`^[a-z0-9]{2,6}$`)
	collectorPrefix = regexp.MustCompile(`^(\d+)(.*)$`)

	// Words that carry no set identity in scraped hints
	noiseWords = map[string]bool{
		"mtg": true, "magic": true, "gathering": true, "tcg": true,
		"edition": true, "series": true, "collection": true, "expansion": true,
		"booster": true, "singles": true, "cards": true, "card": true, "set": true,
	}

	// Bucket qualifiers appended to set names by marketplaces
	qualifierWords = map[string]bool{
		"extras": true, "extra": true, "special": true, "tokens": true,
		"token": true, "promos": true, "promo": true,
	}

	stopWords = map[string]bool{
		"the": true, "of": true, "and": true, "a": true, "an": true, "in": true,
		"on": true, "for": true, "to": true, "from": true, "with": true, "by": true,
		"at": true, "vs": true, "mtg": true, "magic": true, "gathering": true,
	}

	// Markers that a "Commander X" hint names a product rather than a set
	subProductWords = []string{"deck", "decks", "precon", "precons", "kit", "bundle", "box", "commander"}
)

// foldDiacritics strips combining marks ("Lórien" -> "Lorien")
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// normalizeText lowercases, drops punctuation and collapses whitespace
func normalizeText(s string) string {
	s = strings.ToLower(foldDiacritics(s))
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, "’", "")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// deepNormalize additionally drops noise words, years and a leading "catalog"
func deepNormalize(s string) string {
	s = yearPattern.ReplaceAllString(normalizeText(s), " ")
	words := strings.Fields(s)
	if len(words) > 0 && words[0] == "catalog" {
		words = words[1:]
	}
	kept := words[:0]
	for _, w := range words {
		if !noiseWords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// stripQualifiers removes bucket qualifiers from a normalized string
func stripQualifiers(normalized string) string {
	words := strings.Fields(normalized)
	kept := words[:0]
	for _, w := range words {
		if !qualifierWords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// keywords returns the significant words of s, de-duplicated, in order
func keywords(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.Fields(normalizeText(s)) {
		if stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func keywordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// reorderCommander turns "Commander Streets of New Capenna" into
// "streets of new capenna commander". Returns "" when no reorder applies.
func reorderCommander(hint string) string {
	n := normalizeText(hint)
	rest, ok := strings.CutPrefix(n, "commander ")
	if !ok || rest == "" {
		return ""
	}
	for _, w := range strings.Fields(rest) {
		for _, marker := range subProductWords {
			if w == marker {
				return ""
			}
		}
	}
	if strings.Trim(rest, "0123456789 ") == "" {
		return ""
	}
	return rest + " commander"
}

// hintBucket classifies the marketplace bucket a hint points at
type hintBucket int

const (
	bucketNone hintBucket = iota
	bucketExtras
	bucketPromos
)

func bucketOf(hint string) hintBucket {
	words := strings.Fields(normalizeText(hint))
	for _, w := range words {
		if w == "promos" || w == "promo" {
			return bucketPromos
		}
	}
	for _, w := range words {
		if w == "extras" || w == "extra" || w == "special" {
			return bucketExtras
		}
	}
	return bucketNone
}

// setCodeTokens returns short alphanumeric tokens of a hint that could be set codes
func setCodeTokens(hint string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(normalizeText(hint)) {
		if setCodePattern.MatchString(w) && !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// compareCollectorNumbers orders "9" < "10" < "10a" < "11"
func compareCollectorNumbers(a, b string) int {
	ma := collectorPrefix.FindStringSubmatch(a)
	mb := collectorPrefix.FindStringSubmatch(b)
	switch {
	case ma != nil && mb != nil:
		na, nb := strings.TrimLeft(ma[1], "0"), strings.TrimLeft(mb[1], "0")
		if len(na) != len(nb) {
			if len(na) < len(nb) {
				return -1
			}
			return 1
		}
		if c := strings.Compare(na, nb); c != 0 {
			return c
		}
		return strings.Compare(ma[2], mb[2])
	case ma != nil:
		return -1
	case mb != nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
