package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest is returned when a lookup message carries no usable identifier
var ErrInvalidRequest = errors.New("lookup request has no usable identifier")

// LookupMessage is the inbound wire form of a lookup. Several fields may be
// set at once; DecodeLookup picks exactly one shape by fixed precedence.
type LookupMessage struct {
	ScryfallID         string `json:"scryfall_id"`
	TCGPlayerID        int    `json:"tcgplayer_id"`
	SetCode            string `json:"set_code"`
	CollectorNumber    string `json:"collector_number"`
	CardName           string `json:"card_name"`
	SetHint            string `json:"set_hint"`
	VariantIndex       int    `json:"variant_index"`
	SecondaryProductID int    `json:"secondary_product_id"`
	// Refinement marks a follow-up request (e.g. picking another variant of
	// the same card) that must not supersede the lookup in progress.
	Refinement bool `json:"refinement"`
}

// Strategy names, also used as metric labels and cache key prefixes
const (
	StrategyScryfallID = "scryfall_id"
	StrategyProductID  = "product_id"
	StrategySetNumber  = "set_number"
	StrategySetName    = "set_name"
	StrategyName       = "name"
)

// LookupRequest is one of ByScryfallID, ByProductID, BySetNumber, BySetName
// or ByName.
type LookupRequest interface {
	Strategy() string
	CacheKey() string
	isLookupRequest()
}

// ByScryfallID looks a printing up by the primary provider's own id
type ByScryfallID struct {
	ID string
}

// ByProductID looks a printing up by its TCGplayer product id. When the
// primary provider does not know the id, FallbackName, SetHint and
// VariantIndex drive a name lookup instead.
type ByProductID struct {
	ProductID    int
	FallbackName string
	SetHint      string
	VariantIndex int
}

// BySetNumber looks up one collector slot
type BySetNumber struct {
	SetCode         string
	CollectorNumber string
}

// BySetName fuzzy-matches a name inside one set
type BySetName struct {
	SetCode string
	Name    string
}

// ByName fuzzy-matches a free-text name, optionally narrowed by a set hint
// and a 1-based variant index. SecondaryProductID only steers enrichment and
// is not part of the cache key.
type ByName struct {
	Name               string
	SetHint            string
	VariantIndex       int
	SecondaryProductID int
}

func (ByScryfallID) Strategy() string { return StrategyScryfallID }
func (ByProductID) Strategy() string  { return StrategyProductID }
func (BySetNumber) Strategy() string  { return StrategySetNumber }
func (BySetName) Strategy() string    { return StrategySetName }
func (ByName) Strategy() string       { return StrategyName }

func (r ByScryfallID) CacheKey() string {
	return "id:" + strings.ToLower(r.ID)
}

func (r ByProductID) CacheKey() string {
	return fmt.Sprintf("tcg:%d|name:%s|hint:%s|v:%d", r.ProductID, strings.ToLower(r.FallbackName), strings.ToLower(r.SetHint), r.VariantIndex)
}

func (r BySetNumber) CacheKey() string {
	return "setnum:" + strings.ToLower(r.SetCode) + ":" + strings.ToLower(r.CollectorNumber)
}

func (r BySetName) CacheKey() string {
	return "setname:" + strings.ToLower(r.SetCode) + ":" + strings.ToLower(r.Name)
}

func (r ByName) CacheKey() string {
	return fmt.Sprintf("name:%s|hint:%s|v:%d", strings.ToLower(r.Name), strings.ToLower(r.SetHint), r.VariantIndex)
}

func (ByScryfallID) isLookupRequest() {}
func (ByProductID) isLookupRequest()  {}
func (BySetNumber) isLookupRequest()  {}
func (BySetName) isLookupRequest()    {}
func (ByName) isLookupRequest()       {}

// DecodeLookup converts a wire message into exactly one request shape.
// Precedence: scryfall id, product id, set+number, set+name, name.
func DecodeLookup(msg LookupMessage) (LookupRequest, error) {
	name := strings.TrimSpace(msg.CardName)
	setCode := strings.TrimSpace(msg.SetCode)
	hint := strings.TrimSpace(msg.SetHint)
	idx := max(msg.VariantIndex, 0)

	switch {
	case strings.TrimSpace(msg.ScryfallID) != "":
		return ByScryfallID{ID: strings.TrimSpace(msg.ScryfallID)}, nil
	case msg.TCGPlayerID > 0:
		return ByProductID{ProductID: msg.TCGPlayerID, FallbackName: name, SetHint: hint, VariantIndex: idx}, nil
	case setCode != "" && strings.TrimSpace(msg.CollectorNumber) != "":
		return BySetNumber{SetCode: setCode, CollectorNumber: strings.TrimSpace(msg.CollectorNumber)}, nil
	case setCode != "" && name != "":
		return BySetName{SetCode: setCode, Name: name}, nil
	case name != "":
		return ByName{
			Name:               name,
			SetHint:            hint,
			VariantIndex:       idx,
			SecondaryProductID: msg.SecondaryProductID,
		}, nil
	default:
		return nil, ErrInvalidRequest
	}
}
