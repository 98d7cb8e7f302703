package models

import "strings"

// Finish is one of the physical finishes a printing is sold in.
type Finish string

const (
	FinishNonfoil Finish = "nonfoil"
	FinishFoil    Finish = "foil"
	FinishEtched  Finish = "etched"
)

// Card is the canonical record of one printing as reported by the primary
// catalog provider. It is built once by the provider client and treated as
// immutable afterwards; WithDisplay returns a modified copy.
type Card struct {
	ScryfallID      string   `json:"id"`
	Name            string   `json:"name"`
	SetName         string   `json:"set_name"`
	SetCode         string   `json:"set_code"`
	CollectorNumber string   `json:"collector_number"`
	Rarity          string   `json:"rarity"`
	TypeLine        string   `json:"type_line"`
	OracleText      string   `json:"oracle_text"`
	ColorIdentity   []string `json:"color_identity"`
	ImageURL        string   `json:"image_url"`
	Finishes        []Finish `json:"finishes"`
	FrameEffects    []string `json:"frame_effects,omitempty"`
	BorderColor     string   `json:"border_color"`
	TCGPlayerID     int      `json:"tcgplayer_id,omitempty"`

	// Resolver inputs carried from the provider payload
	TCGPlayerEtchedID int    `json:"tcgplayer_etched_id,omitempty"`
	Promo             bool   `json:"promo"`
	Digital           bool   `json:"digital"`
	ReleasedAt        string `json:"released_at"`
	PurchaseURL       string `json:"purchase_url,omitempty"`

	// Baseline prices from the primary provider. Hidden from API responses,
	// which carry them in the price block, but kept in cache snapshots.
	PriceUSD       *float64 `json:"-" msgpack:"price_usd"`
	PriceUSDFoil   *float64 `json:"-" msgpack:"price_usd_foil"`
	PriceUSDEtched *float64 `json:"-" msgpack:"price_usd_etched"`
}

// HasFinish reports whether the printing is sold in the given finish.
func (c Card) HasFinish(f Finish) bool {
	for _, have := range c.Finishes {
		if have == f {
			return true
		}
	}
	return false
}

// WithDisplay returns a copy of the card with its display fields replaced.
// Empty arguments leave the corresponding field unchanged.
func (c Card) WithDisplay(name, setName, number, imageURL string) Card {
	if name != "" {
		c.Name = name
	}
	if setName != "" {
		c.SetName = setName
	}
	if number != "" {
		c.CollectorNumber = number
	}
	if imageURL != "" {
		c.ImageURL = imageURL
	}
	return c
}

// FrontFaceName returns the first face of a multi-faced card name
// ("Delver of Secrets // Insectile Aberration" -> "Delver of Secrets").
func (c Card) FrontFaceName() string {
	if i := strings.Index(c.Name, " // "); i >= 0 {
		return c.Name[:i]
	}
	return c.Name
}

// PrintingSummary is the compact record returned to the printing browser.
type PrintingSummary struct {
	SetCode         string `json:"set_code"`
	SetName         string `json:"set_name"`
	CollectorNumber string `json:"collector_number"`
	Rarity          string `json:"rarity"`
	ImageURL        string `json:"image_url"`
}

// Summary converts a card into its compact printing-browser form.
func (c Card) Summary() PrintingSummary {
	return PrintingSummary{
		SetCode:         c.SetCode,
		SetName:         c.SetName,
		CollectorNumber: c.CollectorNumber,
		Rarity:          c.Rarity,
		ImageURL:        c.ImageURL,
	}
}

// LookupResult is the cached outcome of one lookup strategy. Failures are
// cached too so repeated misses stay off the network.
type LookupResult struct {
	Found             bool   `json:"found"`
	Card              Card   `json:"card"`
	OverrideProductID int    `json:"override_product_id,omitempty"`
	Strategy          string `json:"strategy"`
}
