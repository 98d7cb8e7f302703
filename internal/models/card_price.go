package models

import "time"

// PriceSource tags which provider the displayed prices come from
type PriceSource string

const (
	PriceSourcePrimary             PriceSource = "primary"
	PriceSourceSecondary           PriceSource = "secondary"
	PriceSourceSecondaryNoListings PriceSource = "secondary-no-listings"
)

// PriceQuad is one row of secondary-provider market data. Nil means the
// provider reported no value.
type PriceQuad struct {
	Low    *float64 `json:"low"`
	Mid    *float64 `json:"mid"`
	High   *float64 `json:"high"`
	Market *float64 `json:"market"`
}

// IsEmpty returns true when every field of the quad is nil
func (q PriceQuad) IsEmpty() bool {
	return q.Low == nil && q.Mid == nil && q.High == nil && q.Market == nil
}

// Best returns the most representative value: market, then mid, then low.
func (q PriceQuad) Best() *float64 {
	switch {
	case q.Market != nil:
		return q.Market
	case q.Mid != nil:
		return q.Mid
	default:
		return q.Low
	}
}

// ProductPrices holds the nonfoil and foil quads for one secondary product
type ProductPrices struct {
	Normal PriceQuad `json:"normal"`
	Foil   PriceQuad `json:"foil"`
}

// IsEmpty reports a product that exists but has no active listings
func (p ProductPrices) IsEmpty() bool {
	return p.Normal.IsEmpty() && p.Foil.IsEmpty()
}

// PriceBlock is the mutable price section attached to a resolved card.
// Primary fields are filled from the catalog record; secondary fields start
// nil and are filled by price enrichment.
type PriceBlock struct {
	USD       *float64    `json:"usd"`
	USDFoil   *float64    `json:"usd_foil"`
	USDEtched *float64    `json:"usd_etched"`
	TCGNormal PriceQuad   `json:"tcg_normal"`
	TCGFoil   PriceQuad   `json:"tcg_foil"`
	Source    PriceSource `json:"source"`
}

// NewPriceBlock seeds a block with the card's primary-provider baseline
func NewPriceBlock(card Card) PriceBlock {
	return PriceBlock{
		USD:       card.PriceUSD,
		USDFoil:   card.PriceUSDFoil,
		USDEtched: card.PriceUSDEtched,
		Source:    PriceSourcePrimary,
	}
}

// ApplySecondary copies secondary prices onto the block and retags it
func (b *PriceBlock) ApplySecondary(p ProductPrices) {
	b.TCGNormal = p.Normal
	b.TCGFoil = p.Foil
	if p.IsEmpty() {
		b.Source = PriceSourceSecondaryNoListings
		return
	}
	b.Source = PriceSourceSecondary
}

// DisplayPrice returns the price the UI should show. Secondary data wins
// whenever it carries any value.
func (b PriceBlock) DisplayPrice(foil bool) *float64 {
	quad, primary := b.TCGNormal, b.USD
	if foil {
		quad, primary = b.TCGFoil, b.USDFoil
		if primary == nil {
			primary = b.USDEtched
		}
	}
	if b.Source == PriceSourceSecondary {
		if v := quad.Best(); v != nil {
			return v
		}
	}
	return primary
}

// ResolvedCard is the response payload for a successful lookup
type ResolvedCard struct {
	Card
	Prices           PriceBlock `json:"prices"`
	DisplayPrice     *float64   `json:"display_price"`
	DisplayFoilPrice *float64   `json:"display_price_foil"`
	Strategy         string     `json:"strategy"`
}

// NewResolvedCard builds the response for a card and its final price block
func NewResolvedCard(card Card, prices PriceBlock, strategy string) *ResolvedCard {
	return &ResolvedCard{
		Card:             card,
		Prices:           prices,
		DisplayPrice:     prices.DisplayPrice(false),
		DisplayFoilPrice: prices.DisplayPrice(true),
		Strategy:         strategy,
	}
}

// Group is one secondary-provider set group
type Group struct {
	ID           int    `json:"group_id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
	PublishedOn  string `json:"published_on"`
}

// Product is one secondary-provider catalog entry
type Product struct {
	ID        int    `json:"product_id"`
	Name      string `json:"name"`
	CleanName string `json:"clean_name"`
	ImageURL  string `json:"image_url"`
	URL       string `json:"url"`
	Number    string `json:"number"`
}

// GroupTable is the cached product and price table for one group
type GroupTable struct {
	GroupID   int                   `json:"group_id"`
	GroupName string                `json:"group_name"`
	Timestamp time.Time             `json:"timestamp"`
	Prices    map[int]ProductPrices `json:"prices"`
	Products  []Product             `json:"products"`
}

// Product returns the product with the given id
func (t GroupTable) Product(id int) (Product, bool) {
	for _, p := range t.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
