package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codyseavey/cardprice/internal/models"
)

func commanderLegendsTCGCSV() *fakeTCGCSV {
	return &fakeTCGCSV{
		groups: []tcgcsvGroup{
			{GroupID: 10, Name: "Commander Legends"},
			{GroupID: 11, Name: "Commander Legends: Extras"},
			{GroupID: 12, Name: "Double Masters"},
		},
		products: map[int][]tcgcsvProduct{
			10: {
				product(100, "Sol Ring", "472"),
				product(101, "Arcane Signet", "297"),
				product(999, "Sol Ring (Retro Frame)", "700"),
			},
			11: {
				product(300, "Command Tower (Borderless)", "361"),
			},
		},
		prices: map[int][]tcgcsvPrice{
			10: {
				marketPrice(100, "Normal", 1.25),
				marketPrice(100, "Foil", 6.5),
				{ProductID: 101, SubTypeName: "Normal"},
				marketPrice(999, "Normal", 4.75),
			},
			11: {
				marketPrice(300, "Foil", 12),
			},
		},
	}
}

func legendsCard(id int) models.Card {
	c := convertToCard(sfCard("cmr-472", "Sol Ring", "cmr", "Commander Legends", "472"))
	c.TCGPlayerID = id
	return c
}

func TestEnrichByProductID(t *testing.T) {
	stack := newTestStack(t, newFakeScryfall(), commanderLegendsTCGCSV())

	card, block := stack.enrichment.Enrich(context.Background(), legendsCard(100), 0)
	assert.Equal(t, models.PriceSourceSecondary, block.Source)
	require.NotNil(t, block.TCGNormal.Market)
	assert.Equal(t, 1.25, *block.TCGNormal.Market)
	require.NotNil(t, block.TCGFoil.Market)
	assert.Equal(t, 6.5, *block.TCGFoil.Market)
	require.NotNil(t, block.USD, "primary prices are kept alongside")
	assert.Equal(t, 1.0, *block.USD)
	assert.Equal(t, "Sol Ring", card.Name)
}

func TestEnrichSearchesEveryMatchedGroup(t *testing.T) {
	stack := newTestStack(t, newFakeScryfall(), commanderLegendsTCGCSV())

	card := legendsCard(300)
	card.Name = "Command Tower"
	_, block := stack.enrichment.Enrich(context.Background(), card, 0)
	assert.Equal(t, models.PriceSourceSecondary, block.Source)
	require.NotNil(t, block.TCGFoil.Market)
	assert.Equal(t, 12.0, *block.TCGFoil.Market)
}

func TestEnrichNoListings(t *testing.T) {
	stack := newTestStack(t, newFakeScryfall(), commanderLegendsTCGCSV())

	card := legendsCard(101)
	card.Name = "Arcane Signet"
	_, block := stack.enrichment.Enrich(context.Background(), card, 0)
	assert.Equal(t, models.PriceSourceSecondaryNoListings, block.Source)
	assert.True(t, block.TCGNormal.IsEmpty())
}

func TestEnrichOverrideTakesDisplayMetadata(t *testing.T) {
	stack := newTestStack(t, newFakeScryfall(), commanderLegendsTCGCSV())

	card, block := stack.enrichment.Enrich(context.Background(), legendsCard(100), 999)
	assert.Equal(t, models.PriceSourceSecondary, block.Source)
	require.NotNil(t, block.TCGNormal.Market)
	assert.Equal(t, 4.75, *block.TCGNormal.Market)
	assert.Equal(t, "Sol Ring (Retro Frame)", card.Name)
	assert.Equal(t, "700", card.CollectorNumber)
	assert.Equal(t, "https://img.example/999.jpg", card.ImageURL)
	assert.Equal(t, "Commander Legends", card.SetName)
}

func TestEnrichUnknownOverrideFallsThrough(t *testing.T) {
	stack := newTestStack(t, newFakeScryfall(), commanderLegendsTCGCSV())

	card, block := stack.enrichment.Enrich(context.Background(), legendsCard(100), 123456)
	assert.Equal(t, models.PriceSourceSecondary, block.Source)
	assert.Equal(t, 1.25, *block.TCGNormal.Market)
	assert.Equal(t, "Sol Ring", card.Name)
}

func TestEnrichSetHintWidensGroups(t *testing.T) {
	stack := newTestStack(t, newFakeScryfall(), commanderLegendsTCGCSV())

	// The catalog set name matches nothing; the scraped hint does
	card := legendsCard(100)
	card.SetName = "Some Renamed Set"
	_, block := stack.enrichment.Enrich(context.Background(), card, 0, "Commander Legends")
	assert.Equal(t, models.PriceSourceSecondary, block.Source)
}

func TestEnrichByNameWithoutProductID(t *testing.T) {
	stack := newTestStack(t, newFakeScryfall(), commanderLegendsTCGCSV())

	card := legendsCard(0)
	card.CollectorNumber = ""
	_, block := stack.enrichment.Enrich(context.Background(), card, 0)
	assert.Equal(t, models.PriceSourceSecondary, block.Source)
	assert.Equal(t, 1.25, *block.TCGNormal.Market, "plain product preferred over the parenthetical one")
}

func TestEnrichDegradesWhenProviderFails(t *testing.T) {
	tc := commanderLegendsTCGCSV()
	tc.failing = true
	stack := newTestStack(t, newFakeScryfall(), tc)

	_, block := stack.enrichment.Enrich(context.Background(), legendsCard(100), 0)
	assert.Equal(t, models.PriceSourcePrimary, block.Source)
	require.NotNil(t, block.USD)
	assert.True(t, block.TCGNormal.IsEmpty())
}

func TestEnrichCachesGroupTables(t *testing.T) {
	tc := commanderLegendsTCGCSV()
	stack := newTestStack(t, newFakeScryfall(), tc)
	ctx := context.Background()

	stack.enrichment.Enrich(ctx, legendsCard(100), 0)
	first := tc.requests.Load()
	stack.enrichment.Enrich(ctx, legendsCard(100), 0)
	assert.Equal(t, first, tc.requests.Load())
}

func TestFindProductByName(t *testing.T) {
	table := models.GroupTable{Products: []models.Product{
		{ID: 1, Name: "Sol Ring (Showcase)", Number: "5"},
		{ID: 2, Name: "Sol Ring", Number: "1"},
		{ID: 3, Name: "Sol Ring (Borderless)", Number: "9"},
		{ID: 4, Name: "Sol Ring (Foil Etched)", Number: "12"},
		{ID: 5, Name: "Delver of Secrets", Number: "51"},
	}}

	tests := []struct {
		name string
		card models.Card
		want int
	}{
		{"collector number wins", models.Card{Name: "Sol Ring", CollectorNumber: "009"}, 3},
		{"variant keyword", models.Card{Name: "Sol Ring", BorderColor: "borderless"}, 3},
		{"etched only finish", models.Card{Name: "Sol Ring", Finishes: []models.Finish{models.FinishEtched}}, 4},
		{"plain name preferred", models.Card{Name: "Sol Ring"}, 2},
		{"front face of a double-faced card", models.Card{Name: "Delver of Secrets // Insectile Aberration"}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := findProductByName(table, tt.card, variantKeywords(tt.card))
			require.True(t, ok)
			assert.Equal(t, tt.want, p.ID)
		})
	}

	_, ok := findProductByName(table, models.Card{Name: "Mana Crypt"}, nil)
	assert.False(t, ok)
}

func TestVariantKeywords(t *testing.T) {
	card := models.Card{
		BorderColor:  "borderless",
		FrameEffects: []string{"extendedart", "legendary"},
		Finishes:     []models.Finish{models.FinishNonfoil, models.FinishEtched},
	}
	assert.Equal(t, []string{"borderless", "extended art"}, variantKeywords(card))
}
