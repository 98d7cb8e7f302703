package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codyseavey/cardprice/internal/models"
)

func solRingCatalog() *fakeScryfall {
	sf := newFakeScryfall()
	legends := sfCard("cmr-472", "Sol Ring", "cmr", "Commander Legends", "472")
	legends.TCGPlayerID = 100
	masters := sfCard("2xm-270", "Sol Ring", "2xm", "Double Masters", "270")
	masters.TCGPlayerID = 200

	sf.byID["cmr-472"] = legends
	sf.byProduct[100] = legends
	sf.bySlot["cmr/472"] = legends
	sf.named["sol ring"] = masters
	sf.named["sol ring|cmr"] = legends
	sf.printings["sol ring"] = []scryfallCard{masters, legends}
	return sf
}

func TestLookupStrategies(t *testing.T) {
	tests := []struct {
		name     string
		msg      models.LookupMessage
		wantSet  string
		strategy string
	}{
		{"scryfall id", models.LookupMessage{ScryfallID: "cmr-472"}, "cmr", models.StrategyScryfallID},
		{"product id", models.LookupMessage{TCGPlayerID: 100}, "cmr", models.StrategyProductID},
		{"set and number", models.LookupMessage{SetCode: "CMR", CollectorNumber: "472"}, "cmr", models.StrategySetNumber},
		{"set and name", models.LookupMessage{SetCode: "cmr", CardName: "Sol Ring"}, "cmr", models.StrategySetName},
		{"name", models.LookupMessage{CardName: "Sol Ring"}, "2xm", models.StrategyName},
		{"name with hint", models.LookupMessage{CardName: "Sol Ring", SetHint: "Commander Legends"}, "cmr", models.StrategyName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stack := newTestStack(t, solRingCatalog(), commanderLegendsTCGCSV())
			card, err := stack.lookup.Lookup(context.Background(), tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSet, card.SetCode)
			assert.Equal(t, tt.strategy, card.Strategy)
		})
	}
}

func TestLookupIsIdempotentAndCached(t *testing.T) {
	sf := solRingCatalog()
	tc := commanderLegendsTCGCSV()
	stack := newTestStack(t, sf, tc)
	ctx := context.Background()
	msg := models.LookupMessage{CardName: "Sol Ring", SetHint: "Commander Legends"}

	first, err := stack.lookup.Lookup(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, models.PriceSourceSecondary, first.Prices.Source)
	sfCalls, tcCalls := sf.requests.Load(), tc.requests.Load()

	second, err := stack.lookup.Lookup(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, sfCalls, sf.requests.Load(), "repeat lookup must not reach the catalog")
	assert.Equal(t, tcCalls, tc.requests.Load(), "repeat lookup must not reach the price provider")

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestLookupProductIDFallsBackToName(t *testing.T) {
	sf := newFakeScryfall()
	legends := sfCard("cmr-472", "Sol Ring", "cmr", "Commander Legends", "472")
	legends.TCGPlayerID = 100
	sf.named["sol ring"] = legends
	stack := newTestStack(t, sf, commanderLegendsTCGCSV())

	card, err := stack.lookup.Lookup(context.Background(), models.LookupMessage{TCGPlayerID: 999, CardName: "Sol Ring"})
	require.NoError(t, err)
	assert.Equal(t, models.StrategyProductID, card.Strategy)
	assert.Equal(t, "Sol Ring (Retro Frame)", card.Name)
	assert.Equal(t, "700", card.CollectorNumber)
	assert.Equal(t, models.PriceSourceSecondary, card.Prices.Source)
	require.NotNil(t, card.Prices.TCGNormal.Market)
	assert.Equal(t, 4.75, *card.Prices.TCGNormal.Market)
}

func TestLookupProductIDFallbackUsesSetHint(t *testing.T) {
	// The fuzzy name match lands in Double Masters, the scraped product
	// lives in the Commander Legends group.
	stack := newTestStack(t, solRingCatalog(), commanderLegendsTCGCSV())

	card, err := stack.lookup.Lookup(context.Background(), models.LookupMessage{
		TCGPlayerID: 999,
		CardName:    "Sol Ring",
		SetHint:     "Commander Legends",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StrategyProductID, card.Strategy)
	assert.Equal(t, "Sol Ring (Retro Frame)", card.Name)
	assert.Equal(t, "Commander Legends", card.SetName)
	assert.Equal(t, models.PriceSourceSecondary, card.Prices.Source)
	require.NotNil(t, card.Prices.TCGNormal.Market)
	assert.Equal(t, 4.75, *card.Prices.TCGNormal.Market)
}

func TestLookupProductIDWithoutNameIsNotFound(t *testing.T) {
	stack := newTestStack(t, newFakeScryfall(), commanderLegendsTCGCSV())
	_, err := stack.lookup.Lookup(context.Background(), models.LookupMessage{TCGPlayerID: 999})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupSecondaryProductOverride(t *testing.T) {
	stack := newTestStack(t, solRingCatalog(), commanderLegendsTCGCSV())
	card, err := stack.lookup.Lookup(context.Background(), models.LookupMessage{
		CardName:           "Sol Ring",
		SetHint:            "Commander Legends",
		SecondaryProductID: 999,
	})
	require.NoError(t, err)
	assert.Equal(t, "Sol Ring (Retro Frame)", card.Name)
}

func TestLookupSecondaryProductDoesNotLeakThroughCache(t *testing.T) {
	sf := solRingCatalog()
	stack := newTestStack(t, sf, commanderLegendsTCGCSV())
	ctx := context.Background()
	msg := models.LookupMessage{CardName: "Sol Ring", SetHint: "Commander Legends", SecondaryProductID: 999}

	first, err := stack.lookup.Lookup(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, "Sol Ring (Retro Frame)", first.Name)
	calls := sf.requests.Load()

	msg.SecondaryProductID = 0
	second, err := stack.lookup.Lookup(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, "Sol Ring", second.Name)
	assert.Equal(t, "472", second.CollectorNumber)
	require.NotNil(t, second.Prices.TCGNormal.Market)
	assert.Equal(t, 1.25, *second.Prices.TCGNormal.Market)
	assert.Equal(t, calls, sf.requests.Load(), "catalog outcome is shared between both requests")
}

func TestLookupCarriesDisplayPrices(t *testing.T) {
	stack := newTestStack(t, solRingCatalog(), commanderLegendsTCGCSV())
	card, err := stack.lookup.Lookup(context.Background(), models.LookupMessage{CardName: "Sol Ring", SetHint: "Commander Legends"})
	require.NoError(t, err)

	require.NotNil(t, card.DisplayPrice)
	require.NotNil(t, card.DisplayFoilPrice)
	assert.Equal(t, 1.25, *card.DisplayPrice)
	assert.Equal(t, 6.5, *card.DisplayFoilPrice)
}

func TestLookupNotFoundIsCached(t *testing.T) {
	sf := newFakeScryfall()
	stack := newTestStack(t, sf, commanderLegendsTCGCSV())
	ctx := context.Background()
	msg := models.LookupMessage{CardName: "Nonexistent Card"}

	_, err := stack.lookup.Lookup(ctx, msg)
	require.ErrorIs(t, err, ErrNotFound)
	calls := sf.requests.Load()

	_, err = stack.lookup.Lookup(ctx, msg)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, calls, sf.requests.Load())
}

func TestLookupUpstreamFailureIsNotCached(t *testing.T) {
	sf := solRingCatalog()
	sf.status = http.StatusServiceUnavailable
	stack := newTestStack(t, sf, commanderLegendsTCGCSV())
	ctx := context.Background()
	msg := models.LookupMessage{ScryfallID: "cmr-472"}

	_, err := stack.lookup.Lookup(ctx, msg)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, stack.results.Len())

	sf.mu.Lock()
	sf.status = 0
	sf.mu.Unlock()

	card, err := stack.lookup.Lookup(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, "cmr", card.SetCode)
}

func TestLookupInvalidRequest(t *testing.T) {
	stack := newTestStack(t, newFakeScryfall(), commanderLegendsTCGCSV())
	_, err := stack.lookup.Lookup(context.Background(), models.LookupMessage{SetHint: "Commander Legends"})
	assert.True(t, errors.Is(err, models.ErrInvalidRequest))
	assert.Zero(t, stack.generations.Latest(), "invalid requests do not start a generation")
}

func TestResolveSupersededGenerationIsStale(t *testing.T) {
	stack := newTestStack(t, solRingCatalog(), commanderLegendsTCGCSV())
	ctx := context.Background()

	gen := stack.generations.Begin(false)
	stack.generations.Begin(false)

	_, err := stack.lookup.Resolve(ctx, models.ByScryfallID{ID: "cmr-472"}, gen)
	assert.ErrorIs(t, err, ErrStale)

	// The strategy outcome was still cached for the next caller
	card, err := stack.lookup.Resolve(ctx, models.ByScryfallID{ID: "cmr-472"}, stack.generations.Latest())
	require.NoError(t, err)
	assert.Equal(t, "cmr", card.SetCode)
}

func TestLookupSupersededWhileInFlightSkipsEnrichment(t *testing.T) {
	sf := solRingCatalog()
	arrived := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	sf.onRequest = func(r *http.Request) {
		if r.URL.Path == "/cards/cmr-472" {
			once.Do(func() { close(arrived) })
			<-release
		}
	}
	tc := commanderLegendsTCGCSV()
	stack := newTestStack(t, sf, tc)
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		_, err := stack.lookup.Lookup(ctx, models.LookupMessage{ScryfallID: "cmr-472"})
		first <- err
	}()
	<-arrived
	firstGen := stack.generations.Latest()

	second := make(chan error, 1)
	go func() {
		_, err := stack.lookup.Lookup(ctx, models.LookupMessage{ScryfallID: "missing"})
		second <- err
	}()
	require.Eventually(t, func() bool { return stack.generations.Latest() > firstGen }, time.Second, time.Millisecond)

	close(release)
	assert.ErrorIs(t, <-first, ErrStale)
	assert.ErrorIs(t, <-second, ErrNotFound)
	assert.Zero(t, tc.requests.Load(), "superseded lookup must not reach the price provider")

	// The catalog answer itself was kept for the next request
	_, ok := stack.results.Get(models.ByScryfallID{ID: "cmr-472"}.CacheKey())
	assert.True(t, ok)
}

func TestRefinementJoinsCurrentGeneration(t *testing.T) {
	stack := newTestStack(t, solRingCatalog(), commanderLegendsTCGCSV())

	gen := stack.generations.Begin(false)
	assert.Equal(t, gen, stack.generations.Begin(true))
	assert.True(t, stack.generations.Current(gen))

	_, err := stack.lookup.Lookup(context.Background(), models.LookupMessage{CardName: "Sol Ring", Refinement: true})
	require.NoError(t, err)
	assert.Equal(t, gen, stack.generations.Latest())
}
