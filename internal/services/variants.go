package services

import (
	"regexp"
	"sort"
	"strings"

	"github.com/codyseavey/cardprice/internal/models"
)

var (
	// collector numbers like "12a" or "250s" mark promo and alternate slots
	promoNumberSuffix = regexp.MustCompile(`\d+[a-z]+$`)

	specialFrameEffects = map[string]bool{
		"showcase":       true,
		"extendedart":    true,
		"inverted":       true,
		"etched":         true,
		"shatteredglass": true,
	}
)

// variantEntry is one addressable variant of a printing. A printing sold in
// both etched and non-etched finishes yields two entries.
type variantEntry struct {
	card    models.Card
	etched  bool
	promo   bool
	special bool
}

// variantBuckets groups the printings of one set for variant selection
type variantBuckets struct {
	all    []variantEntry
	base   *variantEntry
	extras []variantEntry
	promos []variantEntry
}

func isPromoPrinting(c models.Card) bool {
	return c.Promo || promoNumberSuffix.MatchString(strings.ToLower(c.CollectorNumber))
}

func isSpecialPrinting(c models.Card) bool {
	if c.BorderColor == "borderless" {
		return true
	}
	for _, fx := range c.FrameEffects {
		if specialFrameEffects[fx] {
			return true
		}
	}
	return false
}

// expandVariants classifies a printing, splitting mixed etched finishes
// into a regular entry and a synthetic etched entry.
func expandVariants(c models.Card) []variantEntry {
	promo := isPromoPrinting(c)
	regular := variantEntry{card: c, promo: promo, special: isSpecialPrinting(c)}

	hasOther := c.HasFinish(models.FinishNonfoil) || c.HasFinish(models.FinishFoil)
	if !c.HasFinish(models.FinishEtched) || !hasOther {
		return []variantEntry{regular}
	}

	regularCard := c
	regularCard.Finishes = nil
	for _, f := range c.Finishes {
		if f != models.FinishEtched {
			regularCard.Finishes = append(regularCard.Finishes, f)
		}
	}
	regular.card = regularCard

	etchedCard := c
	etchedCard.Finishes = []models.Finish{models.FinishEtched}
	if c.TCGPlayerEtchedID != 0 {
		etchedCard.TCGPlayerID = c.TCGPlayerEtchedID
	}
	return []variantEntry{
		regular,
		{card: etchedCard, etched: true, promo: promo, special: true},
	}
}

// bucketVariants sorts the printings of one set by collector number and
// splits them into base, extras and promos.
func bucketVariants(cards []models.Card) variantBuckets {
	var b variantBuckets
	for _, c := range cards {
		b.all = append(b.all, expandVariants(c)...)
	}
	sort.SliceStable(b.all, func(i, j int) bool {
		if c := compareCollectorNumbers(b.all[i].card.CollectorNumber, b.all[j].card.CollectorNumber); c != 0 {
			return c < 0
		}
		return !b.all[i].etched && b.all[j].etched
	})

	baseIdx := -1
	for i, v := range b.all {
		if !v.promo && !v.special {
			baseIdx = i
			break
		}
	}
	if baseIdx >= 0 {
		base := b.all[baseIdx]
		b.base = &base
	}
	for i, v := range b.all {
		switch {
		case v.promo:
			b.promos = append(b.promos, v)
		case i != baseIdx:
			b.extras = append(b.extras, v)
		}
	}
	return b
}

// pickIndex returns the 1-based index into entries, clamped to the list.
// Zero selects the first entry.
func pickIndex(entries []variantEntry, index int) models.Card {
	i := index - 1
	if i < 0 {
		i = 0
	}
	if i >= len(entries) {
		i = len(entries) - 1
	}
	return entries[i].card
}

// selectVariant applies the bucket preference order. The bool is false when
// no entry fits and the caller should use its own fallback.
func selectVariant(b variantBuckets, bucket hintBucket, index int) (models.Card, bool) {
	switch {
	case bucket == bucketPromos && len(b.promos) > 0:
		return pickIndex(b.promos, index), true
	case bucket == bucketExtras && len(b.extras) > 0:
		return pickIndex(b.extras, index), true
	case bucket == bucketNone && index > 0 && len(b.all) > 0:
		return pickIndex(b.all, index), true
	case b.base != nil:
		return b.base.card, true
	default:
		return models.Card{}, false
	}
}
