package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/codyseavey/cardprice/internal/cache"
	"github.com/codyseavey/cardprice/internal/metrics"
	"github.com/codyseavey/cardprice/internal/models"
)

var (
	// ErrNotFound is returned when no printing matches the request
	ErrNotFound = errors.New("card not found")
	// ErrStale is returned when a newer lookup superseded this one
	ErrStale = errors.New("lookup superseded by a newer request")
)

// LookupService dispatches lookup requests to the matching strategy, caches
// each strategy's outcome and hands found cards to price enrichment.
type LookupService struct {
	scryfall    *ScryfallService
	resolver    *PrintingResolver
	enrichment  *PriceEnrichmentService
	generations *GenerationController
	results     *cache.Cache[models.LookupResult]
	logger      zerolog.Logger
}

// NewLookupService creates a new dispatcher
func NewLookupService(
	scryfall *ScryfallService,
	resolver *PrintingResolver,
	enrichment *PriceEnrichmentService,
	generations *GenerationController,
	results *cache.Cache[models.LookupResult],
	logger zerolog.Logger,
) *LookupService {
	return &LookupService{
		scryfall:    scryfall,
		resolver:    resolver,
		enrichment:  enrichment,
		generations: generations,
		results:     results,
		logger:      logger.With().Str("component", "lookup").Logger(),
	}
}

// Lookup decodes a wire message, starts a generation and resolves it
func (s *LookupService) Lookup(ctx context.Context, msg models.LookupMessage) (*models.ResolvedCard, error) {
	req, err := models.DecodeLookup(msg)
	if err != nil {
		return nil, err
	}
	gen := s.generations.Begin(msg.Refinement)
	return s.Resolve(ctx, req, gen)
}

// Resolve runs one request under generation gen. It returns ErrStale when
// gen is superseded before the result is published, and ErrNotFound when no
// card matches.
func (s *LookupService) Resolve(ctx context.Context, req models.LookupRequest, gen uint64) (*models.ResolvedCard, error) {
	start := time.Now()
	strategy := req.Strategy()
	logger := s.logger.With().Str("strategy", strategy).Uint64("generation", gen).Logger()
	defer func() {
		metrics.LookupDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
	}()

	result, err := s.resolveCached(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrFlushed) && !s.generations.Current(gen):
			metrics.LookupsTotal.WithLabelValues(strategy, "stale").Inc()
			return nil, ErrStale
		case ctx.Err() != nil:
			return nil, ctx.Err()
		}
		logger.Warn().Err(err).Msg("lookup failed upstream")
		metrics.LookupsTotal.WithLabelValues(strategy, "not_found").Inc()
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if !result.Found {
		metrics.LookupsTotal.WithLabelValues(strategy, "not_found").Inc()
		return nil, ErrNotFound
	}

	if !s.generations.Current(gen) {
		logger.Debug().Msg("skipping enrichment for superseded lookup")
		metrics.LookupsTotal.WithLabelValues(strategy, "stale").Inc()
		return nil, ErrStale
	}
	card, prices := s.enrichment.Enrich(ctx, result.Card, overrideProductID(req, result), enrichmentHints(req)...)
	if !s.generations.Current(gen) {
		metrics.LookupsTotal.WithLabelValues(strategy, "stale").Inc()
		return nil, ErrStale
	}

	metrics.LookupsTotal.WithLabelValues(strategy, "found").Inc()
	logger.Debug().
		Str("card", card.Name).
		Str("set", card.SetCode).
		Str("number", card.CollectorNumber).
		Str("source", string(prices.Source)).
		Msg("lookup resolved")
	return models.NewResolvedCard(card, prices, result.Strategy), nil
}

// resolveCached serves a request from the result cache or runs its strategy.
// Definite outcomes are cached, found or not; upstream errors are not.
func (s *LookupService) resolveCached(ctx context.Context, req models.LookupRequest) (models.LookupResult, error) {
	key := req.CacheKey()
	if result, ok := s.results.Get(key); ok {
		metrics.LookupsTotal.WithLabelValues(req.Strategy(), "cached").Inc()
		return result, nil
	}

	result, cacheable, err := s.runStrategy(ctx, req)
	if err != nil {
		return models.LookupResult{}, err
	}
	if cacheable {
		s.results.Put(key, result)
	}
	return result, nil
}

func (s *LookupService) runStrategy(ctx context.Context, req models.LookupRequest) (models.LookupResult, bool, error) {
	switch r := req.(type) {
	case models.ByScryfallID:
		card, err := s.scryfall.GetCardByID(ctx, r.ID)
		return found(card, r.Strategy()), true, err
	case models.ByProductID:
		return s.byProductID(ctx, r)
	case models.BySetNumber:
		card, err := s.scryfall.GetCardBySetAndNumber(ctx, r.SetCode, r.CollectorNumber)
		return found(card, r.Strategy()), true, err
	case models.BySetName:
		card, err := s.bySetName(ctx, r)
		return found(card, r.Strategy()), true, err
	case models.ByName:
		return s.byName(ctx, r)
	default:
		return models.LookupResult{}, false, models.ErrInvalidRequest
	}
}

// byProductID looks the product id up directly and falls back to a name
// lookup with the same set hint, keeping the id as an enrichment override.
func (s *LookupService) byProductID(ctx context.Context, r models.ByProductID) (models.LookupResult, bool, error) {
	card, err := s.scryfall.GetCardByTCGPlayerID(ctx, r.ProductID)
	if err != nil {
		return models.LookupResult{}, false, err
	}
	if card != nil {
		return found(card, r.Strategy()), true, nil
	}
	if r.FallbackName == "" {
		return models.LookupResult{Strategy: r.Strategy()}, true, nil
	}

	s.logger.Debug().Int("product_id", r.ProductID).Str("name", r.FallbackName).Msg("product id unknown, falling back to name")
	result, cacheable, err := s.byName(ctx, models.ByName{
		Name:         r.FallbackName,
		SetHint:      r.SetHint,
		VariantIndex: r.VariantIndex,
	})
	if err != nil {
		return models.LookupResult{}, false, err
	}
	if result.Found {
		result.OverrideProductID = r.ProductID
	}
	result.Strategy = r.Strategy()
	return result, cacheable, nil
}

// bySetName tries a fuzzy match inside the set, two widening searches, then
// an unconstrained fuzzy match.
func (s *LookupService) bySetName(ctx context.Context, r models.BySetName) (*models.Card, error) {
	card, err := s.scryfall.GetCardNamed(ctx, r.Name, r.SetCode)
	if err != nil || card != nil {
		return card, err
	}

	setCode := strings.ToLower(r.SetCode)
	safeName := strings.ReplaceAll(r.Name, "\"", "\\\"")
	queries := []string{
		fmt.Sprintf(`!"%s" set:%s`, safeName, setCode),
		fmt.Sprintf(`%s set:%s`, r.Name, setCode),
	}
	for _, q := range queries {
		card, err = s.scryfall.SearchFirst(ctx, q)
		if err != nil || card != nil {
			return card, err
		}
	}
	return s.scryfall.GetCardNamed(ctx, r.Name, "")
}

// byName fuzzy-matches the name, then narrows to the printing the set hint
// points at. A resolver failure keeps the fuzzy match but is not cached.
func (s *LookupService) byName(ctx context.Context, r models.ByName) (models.LookupResult, bool, error) {
	card, err := s.scryfall.GetCardNamed(ctx, r.Name, "")
	if err != nil {
		return models.LookupResult{}, false, err
	}
	if card == nil {
		return models.LookupResult{Strategy: r.Strategy()}, true, nil
	}

	result := found(card, r.Strategy())
	if r.SetHint == "" {
		return result, true, nil
	}

	printing, err := s.resolver.Resolve(ctx, card.Name, r.SetHint, r.VariantIndex)
	switch {
	case err != nil && (errors.Is(err, ErrFlushed) || ctx.Err() != nil):
		return models.LookupResult{}, false, err
	case err != nil:
		s.logger.Warn().Err(err).Str("card", card.Name).Msg("printing resolution failed, keeping fuzzy match")
		return result, false, nil
	}
	if printing != nil {
		result.Card = *printing
	}
	return result, true, nil
}

func found(card *models.Card, strategy string) models.LookupResult {
	if card == nil {
		return models.LookupResult{Strategy: strategy}
	}
	return models.LookupResult{Found: true, Card: *card, Strategy: strategy}
}

// overrideProductID returns the secondary product a found card should be
// priced from. A name request's own secondary id is applied after the cache
// read since it is not part of the cached catalog outcome.
func overrideProductID(req models.LookupRequest, result models.LookupResult) int {
	if r, ok := req.(models.ByName); ok && r.SecondaryProductID != 0 {
		return r.SecondaryProductID
	}
	return result.OverrideProductID
}

// enrichmentHints returns the set names a request carries beyond the card's own
func enrichmentHints(req models.LookupRequest) []string {
	var hint string
	switch r := req.(type) {
	case models.ByName:
		hint = r.SetHint
	case models.ByProductID:
		hint = r.SetHint
	}
	if hint == "" {
		return nil
	}
	return []string{hint}
}
