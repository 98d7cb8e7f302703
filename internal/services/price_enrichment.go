package services

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/codyseavey/cardprice/internal/metrics"
	"github.com/codyseavey/cardprice/internal/models"
)

// Enrichment paths, used as metric labels
const (
	enrichOverride   = "override"
	enrichProductID  = "product_id"
	enrichAnyGroup   = "product_id_any_group"
	enrichIDFallback = "product_id_name"
	enrichByName     = "name_variant"
	enrichNone       = "none"
)

var parenthetical = regexp.MustCompile(`\s*\([^)]*\)`)

// PriceEnrichmentService attaches secondary-provider prices to resolved cards
type PriceEnrichmentService struct {
	tcgcsv  *TCGCSVService
	matcher *SetMatcher
	logger  zerolog.Logger
}

// NewPriceEnrichmentService creates a new enrichment service
func NewPriceEnrichmentService(tcgcsv *TCGCSVService, matcher *SetMatcher, logger zerolog.Logger) *PriceEnrichmentService {
	return &PriceEnrichmentService{
		tcgcsv:  tcgcsv,
		matcher: matcher,
		logger:  logger.With().Str("component", "price_enrichment").Logger(),
	}
}

// Enrich returns the card, possibly with secondary display metadata, and its
// price block. overrideID is a product id the primary provider did not
// recognise; setHints are extra set names to match groups against.
// Secondary lookups that fail leave the primary prices in place.
func (s *PriceEnrichmentService) Enrich(ctx context.Context, card models.Card, overrideID int, setHints ...string) (models.Card, models.PriceBlock) {
	block := models.NewPriceBlock(card)

	groups := s.tcgcsv.Groups(ctx)
	if len(groups) == 0 {
		metrics.EnrichmentTotal.WithLabelValues(enrichNone, string(block.Source)).Inc()
		return card, block
	}
	ranked := s.rankGroups(groups, append([]string{card.SetName}, setHints...))
	if len(ranked) == 0 {
		s.logger.Debug().Str("set", card.SetName).Msg("no secondary group matched")
		metrics.EnrichmentTotal.WithLabelValues(enrichNone, string(block.Source)).Inc()
		return card, block
	}

	path := enrichNone
	switch {
	case overrideID != 0 && s.enrichOverride(ctx, &card, &block, overrideID, ranked):
		path = enrichOverride
	case card.TCGPlayerID != 0:
		path = s.enrichByProductID(ctx, card, &block, ranked)
	default:
		if table, ok := s.tcgcsv.GroupTable(ctx, ranked[0]); ok {
			if p, found := findProductByName(table, card, variantKeywords(card)); found {
				block.ApplySecondary(table.Prices[p.ID])
				path = enrichByName
			}
		}
	}

	metrics.EnrichmentTotal.WithLabelValues(path, string(block.Source)).Inc()
	s.logger.Debug().
		Str("card", card.Name).
		Str("path", path).
		Str("source", string(block.Source)).
		Msg("enriched card prices")
	return card, block
}

// rankGroups merges the matched groups of every hint, best first, without duplicates
func (s *PriceEnrichmentService) rankGroups(groups []models.Group, hints []string) []models.Group {
	seen := make(map[int]bool)
	var out []models.Group
	for _, hint := range hints {
		if strings.TrimSpace(hint) == "" {
			continue
		}
		for _, m := range s.matcher.MatchAll(hint, groups) {
			if !seen[m.Group.ID] {
				seen[m.Group.ID] = true
				out = append(out, m.Group)
			}
		}
	}
	return out
}

// enrichOverride searches every matched group for the override product and
// takes its display metadata along with its prices.
func (s *PriceEnrichmentService) enrichOverride(ctx context.Context, card *models.Card, block *models.PriceBlock, productID int, groups []models.Group) bool {
	for _, g := range groups {
		table, ok := s.tcgcsv.GroupTable(ctx, g)
		if !ok {
			continue
		}
		product, ok := table.Product(productID)
		if !ok {
			continue
		}
		*card = card.WithDisplay(product.Name, table.GroupName, product.Number, product.ImageURL)
		block.ApplySecondary(table.Prices[productID])
		return true
	}
	s.logger.Debug().Int("product_id", productID).Msg("override product not found in matched groups")
	return false
}

// enrichByProductID looks the card's own product id up in the best group,
// then in every matched group, and only then falls back to a name match in
// the best group.
func (s *PriceEnrichmentService) enrichByProductID(ctx context.Context, card models.Card, block *models.PriceBlock, groups []models.Group) string {
	best, bestOK := s.tcgcsv.GroupTable(ctx, groups[0])
	if bestOK && hasProduct(best, card.TCGPlayerID) {
		block.ApplySecondary(best.Prices[card.TCGPlayerID])
		return enrichProductID
	}
	for _, g := range groups[1:] {
		table, ok := s.tcgcsv.GroupTable(ctx, g)
		if ok && hasProduct(table, card.TCGPlayerID) {
			block.ApplySecondary(table.Prices[card.TCGPlayerID])
			return enrichAnyGroup
		}
	}
	if bestOK {
		if p, found := findProductByName(best, card, variantKeywords(card)); found {
			block.ApplySecondary(best.Prices[p.ID])
			return enrichIDFallback
		}
	}
	return enrichNone
}

func hasProduct(table models.GroupTable, id int) bool {
	if _, ok := table.Prices[id]; ok {
		return true
	}
	_, ok := table.Product(id)
	return ok
}

// variantKeywords derives the product-name words TCGplayer uses for a
// printing's treatment.
func variantKeywords(card models.Card) []string {
	var out []string
	if card.BorderColor == "borderless" {
		out = append(out, "borderless")
	}
	for _, fx := range card.FrameEffects {
		switch fx {
		case "showcase":
			out = append(out, "showcase")
		case "extendedart":
			out = append(out, "extended art")
		case "shatteredglass":
			out = append(out, "shattered glass")
		}
	}
	if len(card.Finishes) == 1 && card.Finishes[0] == models.FinishEtched {
		out = append(out, "etched")
	}
	return out
}

// findProductByName matches products whose name, without parentheticals,
// equals the card name. A product with the same collector number wins,
// then one naming every variant keyword, then one with no parenthetical.
func findProductByName(table models.GroupTable, card models.Card, variant []string) (models.Product, bool) {
	full, front := normalizeText(card.Name), normalizeText(card.FrontFaceName())

	var candidates []models.Product
	for _, p := range table.Products {
		base := normalizeText(parenthetical.ReplaceAllString(p.Name, ""))
		if base != "" && (base == full || base == front) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return models.Product{}, false
	}

	if card.CollectorNumber != "" {
		for _, p := range candidates {
			if p.Number != "" && strings.EqualFold(strings.TrimLeft(p.Number, "0"), strings.TrimLeft(card.CollectorNumber, "0")) {
				return p, true
			}
		}
	}

	if len(variant) > 0 {
		for _, p := range candidates {
			name := normalizeText(p.Name)
			all := true
			for _, kw := range variant {
				if !strings.Contains(name, kw) {
					all = false
					break
				}
			}
			if all {
				return p, true
			}
		}
	}

	for _, p := range candidates {
		if !strings.Contains(p.Name, "(") {
			return p, true
		}
	}
	return candidates[0], true
}
