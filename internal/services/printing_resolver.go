package services

import (
	"context"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/codyseavey/cardprice/internal/cache"
	"github.com/codyseavey/cardprice/internal/metrics"
	"github.com/codyseavey/cardprice/internal/models"
)

// Set-name match scores, highest wins
const (
	scoreExact       = 1000
	scoreQualifier   = 900
	scoreDeep        = 850
	scoreSubstring   = 500
	scoreSmallSubset = 200
	scoreKeywordBase = 100
	scoreKeywordSpan = 300

	minSubstringLen     = 4
	minKeywordOverlap   = 2
	minKeywordRatio     = 0.5
	maxSmallSetKeywords = 3
)

const (
	matchExact     = "exact"
	matchQualifier = "qualifier"
	matchDeep      = "deep"
	matchSubstring = "substring"
	matchKeyword   = "keyword"
	matchSetCode   = "set_code"
	matchNone      = "none"
)

type matchCandidate struct {
	card      models.Card
	score     float64
	matchType string
}

// PrintingResolver picks the printing of a card that a free-text set hint
// most likely refers to.
type PrintingResolver struct {
	scryfall  *ScryfallService
	printings *cache.Cache[[]models.Card]
	logger    zerolog.Logger
}

// NewPrintingResolver creates a resolver. Printing lists are cached by card name.
func NewPrintingResolver(scryfall *ScryfallService, printings *cache.Cache[[]models.Card], logger zerolog.Logger) *PrintingResolver {
	return &PrintingResolver{
		scryfall:  scryfall,
		printings: printings,
		logger:    logger.With().Str("component", "printing_resolver").Logger(),
	}
}

// Printings returns every paper printing of cardName, newest first
func (r *PrintingResolver) Printings(ctx context.Context, cardName string) ([]models.Card, error) {
	key := strings.ToLower(strings.TrimSpace(cardName))
	if cards, ok := r.printings.Get(key); ok {
		return cards, nil
	}
	cards, err := r.scryfall.SearchCardPrintings(ctx, cardName)
	if err != nil {
		return nil, err
	}
	r.printings.Put(key, cards)
	return cards, nil
}

// Summaries returns the compact printing list for the printing browser
func (r *PrintingResolver) Summaries(ctx context.Context, cardName string) ([]models.PrintingSummary, error) {
	cards, err := r.Printings(ctx, cardName)
	if err != nil {
		return nil, err
	}
	out := make([]models.PrintingSummary, 0, len(cards))
	for _, c := range cards {
		out = append(out, c.Summary())
	}
	return out, nil
}

// Resolve selects the printing of cardName that setHint points at.
// Returns nil, nil when no printing can be selected with confidence.
func (r *PrintingResolver) Resolve(ctx context.Context, cardName, setHint string, variantIndex int) (*models.Card, error) {
	cards, err := r.Printings(ctx, cardName)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 || strings.TrimSpace(setHint) == "" {
		return nil, nil
	}

	picked, matchType := selectPrinting(cards, setHint, variantIndex)
	metrics.PrintingMatchesTotal.WithLabelValues(matchType).Inc()
	if picked == nil {
		r.logger.Debug().Str("card", cardName).Str("hint", setHint).Msg("no printing matched set hint")
		return nil, nil
	}
	r.logger.Debug().
		Str("card", cardName).
		Str("hint", setHint).
		Str("set", picked.SetCode).
		Str("number", picked.CollectorNumber).
		Str("match", matchType).
		Msg("resolved printing")
	return picked, nil
}

// selectPrinting runs the scoring, tie-break and variant selection over a
// fetched printing list.
func selectPrinting(cards []models.Card, setHint string, variantIndex int) (*models.Card, string) {
	reordered := reorderCommander(setHint)

	var scored []matchCandidate
	for _, c := range cards {
		score, mt := scoreSetName(setHint, c.SetName)
		if reordered != "" {
			if s2, mt2 := scoreSetName(reordered, c.SetName); s2 > score {
				score, mt = s2, mt2
			}
		}
		if score > 0 {
			scored = append(scored, matchCandidate{card: c, score: score, matchType: mt})
		}
	}

	bucket := bucketOf(setHint)
	if len(scored) == 0 {
		return matchBySetCode(cards, setHint, bucket, variantIndex)
	}

	best := scored[0].score
	for _, m := range scored[1:] {
		if m.score > best {
			best = m.score
		}
	}
	var tied []matchCandidate
	for _, m := range scored {
		if m.score == best {
			tied = append(tied, m)
		}
	}
	if len(tied) > 1 {
		tied = narrowByPurchaseLink(tied, setHint)
	}

	first := tied[0]
	var sameSet []models.Card
	for _, m := range tied {
		if m.card.SetCode == first.card.SetCode {
			sameSet = append(sameSet, m.card)
		}
	}
	if card, ok := selectVariant(bucketVariants(sameSet), bucket, variantIndex); ok {
		return &card, first.matchType
	}
	card := first.card
	return &card, first.matchType
}

// scoreSetName scores one candidate set name against the hint
func scoreSetName(hint, setName string) (float64, string) {
	hn, cn := normalizeText(hint), normalizeText(setName)
	if hn == "" || cn == "" {
		return 0, matchNone
	}
	if hn == cn {
		return scoreExact, matchExact
	}
	if hq, cq := stripQualifiers(hn), stripQualifiers(cn); hq != "" && hq == cq {
		return scoreQualifier, matchQualifier
	}

	hd, cd := deepNormalize(hint), deepNormalize(setName)
	if hd != "" && hd == cd {
		return scoreDeep, matchDeep
	}
	if len(hd) >= minSubstringLen && len(cd) >= minSubstringLen &&
		(strings.Contains(hd, cd) || strings.Contains(cd, hd)) {
		return scoreSubstring, matchSubstring
	}

	hk, ck := keywords(hd), keywords(cd)
	if len(hk) == 0 || len(ck) == 0 {
		return 0, matchNone
	}
	candSet, hintSet := keywordSet(ck), keywordSet(hk)

	var score float64
	overlap := 0
	for _, w := range hk {
		if candSet[w] {
			overlap++
		}
	}
	ratio := float64(overlap) / float64(len(hk))
	if overlap >= minKeywordOverlap && ratio >= minKeywordRatio {
		score = scoreKeywordBase + scoreKeywordSpan*ratio
	}

	if len(ck) <= maxSmallSetKeywords {
		contained := true
		for _, w := range ck {
			if !hintSet[w] {
				contained = false
				break
			}
		}
		if contained && score < scoreSmallSubset {
			score = scoreSmallSubset
		}
	}
	if score == 0 {
		return 0, matchNone
	}
	return score, matchKeyword
}

// narrowByPurchaseLink keeps the tied candidates whose purchase link mentions
// every hint keyword missing from the matched set name. The subset is used
// only when it is non-empty and smaller than the input.
func narrowByPurchaseLink(tied []matchCandidate, setHint string) []matchCandidate {
	setWords := keywordSet(keywords(tied[0].card.SetName))
	var missing []string
	for _, w := range keywords(setHint) {
		if !setWords[w] {
			missing = append(missing, w)
		}
	}
	if len(missing) == 0 {
		return tied
	}

	var subset []matchCandidate
	for _, m := range tied {
		link := m.card.PurchaseURL
		if decoded, err := url.QueryUnescape(link); err == nil {
			link = decoded
		}
		link = strings.ToLower(link)
		all := true
		for _, w := range missing {
			if !strings.Contains(link, w) {
				all = false
				break
			}
		}
		if all {
			subset = append(subset, m)
		}
	}
	if len(subset) > 0 && len(subset) < len(tied) {
		return subset
	}
	return tied
}

// matchBySetCode is the last resort when no set name scored: short tokens
// of the hint are compared with set codes.
func matchBySetCode(cards []models.Card, setHint string, bucket hintBucket, variantIndex int) (*models.Card, string) {
	for _, token := range setCodeTokens(setHint) {
		var inSet []models.Card
		for _, c := range cards {
			if strings.EqualFold(c.SetCode, token) {
				inSet = append(inSet, c)
			}
		}
		if len(inSet) == 0 {
			continue
		}
		if card, ok := selectVariant(bucketVariants(inSet), bucket, variantIndex); ok {
			return &card, matchSetCode
		}
		card := inSet[0]
		return &card, matchSetCode
	}
	return nil, matchNone
}
