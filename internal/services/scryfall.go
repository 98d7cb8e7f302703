package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/codyseavey/cardprice/internal/models"
)

const (
	scryfallBaseURL = "https://api.scryfall.com"

	// defaultMaxPrintingPages bounds pagination for cards with hundreds of printings
	defaultMaxPrintingPages = 5
)

// ScryfallService is the primary catalog client. Every call goes through the
// shared RequestQueue.
type ScryfallService struct {
	queue    *RequestQueue
	baseURL  string
	maxPages int
	logger   zerolog.Logger
}

// NewScryfallService creates a client. An empty baseURL uses the public API.
func NewScryfallService(queue *RequestQueue, baseURL string, maxPages int, logger zerolog.Logger) *ScryfallService {
	if baseURL == "" {
		baseURL = scryfallBaseURL
	}
	if maxPages <= 0 {
		maxPages = defaultMaxPrintingPages
	}
	return &ScryfallService{
		queue:    queue,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxPages: maxPages,
		logger:   logger.With().Str("component", "scryfall").Logger(),
	}
}

type scryfallSearchResponse struct {
	Data       []scryfallCard `json:"data"`
	Object     string         `json:"object"`
	TotalCards int            `json:"total_cards"`
	HasMore    bool           `json:"has_more"`
	NextPage   string         `json:"next_page"`
}

type scryfallCard struct {
	ImageURIs     *scryfallImages   `json:"image_uris"`
	CardFaces     []scryfallFace    `json:"card_faces"`
	Prices        scryfallPrices    `json:"prices"`
	PurchaseURIs  map[string]string `json:"purchase_uris"`
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	SetName       string            `json:"set_name"`
	Set           string            `json:"set"`
	CollectorNum  string            `json:"collector_number"`
	Rarity        string            `json:"rarity"`
	TypeLine      string            `json:"type_line"`
	OracleText    string            `json:"oracle_text"`
	ColorIdentity []string          `json:"color_identity"`

	// Variant info for printing selection
	Finishes          []string `json:"finishes"`
	FrameEffects      []string `json:"frame_effects"`
	BorderColor       string   `json:"border_color"`
	Promo             bool     `json:"promo"`
	Digital           bool     `json:"digital"`
	ReleasedAt        string   `json:"released_at"`
	TCGPlayerID       int      `json:"tcgplayer_id"`
	TCGPlayerEtchedID int      `json:"tcgplayer_etched_id"`
}

type scryfallImages struct {
	Small  string `json:"small"`
	Normal string `json:"normal"`
	Large  string `json:"large"`
}

type scryfallFace struct {
	ImageURIs  *scryfallImages `json:"image_uris"`
	TypeLine   string          `json:"type_line"`
	OracleText string          `json:"oracle_text"`
}

type scryfallPrices struct {
	USD       string `json:"usd"`
	USDFoil   string `json:"usd_foil"`
	USDEtched string `json:"usd_etched"`
}

// GetCardByID retrieves a printing by its Scryfall id.
// Returns nil, nil if the card is not found.
func (s *ScryfallService) GetCardByID(ctx context.Context, id string) (*models.Card, error) {
	return s.getCard(ctx, fmt.Sprintf("%s/cards/%s", s.baseURL, url.PathEscape(id)))
}

// GetCardByTCGPlayerID retrieves a printing by its TCGplayer product id
func (s *ScryfallService) GetCardByTCGPlayerID(ctx context.Context, productID int) (*models.Card, error) {
	return s.getCard(ctx, fmt.Sprintf("%s/cards/tcgplayer/%d", s.baseURL, productID))
}

// GetCardBySetAndNumber retrieves a specific card by set code and collector number
// Uses Scryfall's exact lookup: GET /cards/:set/:number
func (s *ScryfallService) GetCardBySetAndNumber(ctx context.Context, setCode, number string) (*models.Card, error) {
	// Scryfall expects path params, so we must PathEscape.
	setEscaped := url.PathEscape(strings.ToLower(setCode))
	numberEscaped := url.PathEscape(number)
	return s.getCard(ctx, fmt.Sprintf("%s/cards/%s/%s", s.baseURL, setEscaped, numberEscaped))
}

// GetCardNamed runs a fuzzy name lookup, optionally constrained to one set
func (s *ScryfallService) GetCardNamed(ctx context.Context, name, setCode string) (*models.Card, error) {
	params := url.Values{}
	params.Set("fuzzy", name)
	if setCode != "" {
		params.Set("set", strings.ToLower(setCode))
	}
	return s.getCard(ctx, fmt.Sprintf("%s/cards/named?%s", s.baseURL, params.Encode()))
}

// SearchFirst returns the first paper printing matching a search query
func (s *ScryfallService) SearchFirst(ctx context.Context, query string) (*models.Card, error) {
	page, err := s.searchPage(ctx, s.searchURL(query))
	if err != nil || page == nil {
		return nil, err
	}
	for _, sc := range page.Data {
		if sc.Digital {
			continue
		}
		card := convertToCard(sc)
		return &card, nil
	}
	return nil, nil
}

// SearchCardPrintings returns every paper printing of a card by exact name.
// Uses Scryfall's unique:prints and follows next_page up to the page bound.
func (s *ScryfallService) SearchCardPrintings(ctx context.Context, cardName string) ([]models.Card, error) {
	// Escape quotes for Scryfall query syntax.
	safeName := strings.ReplaceAll(cardName, "\"", "\\\"")
	next := s.searchURL(fmt.Sprintf(`!"%s" unique:prints`, safeName))

	var cards []models.Card
	for page := 0; page < s.maxPages && next != ""; page++ {
		resp, err := s.searchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			break
		}
		for _, sc := range resp.Data {
			if sc.Digital {
				continue
			}
			cards = append(cards, convertToCard(sc))
		}
		next = ""
		if resp.HasMore {
			next = resp.NextPage
		}
	}
	return cards, nil
}

func (s *ScryfallService) searchURL(query string) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("order", "released")
	params.Set("dir", "desc")
	return fmt.Sprintf("%s/cards/search?%s", s.baseURL, params.Encode())
}

func (s *ScryfallService) searchPage(ctx context.Context, reqURL string) (*scryfallSearchResponse, error) {
	body, err := s.queue.Enqueue(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to search scryfall: %w", err)
	}
	if body == nil {
		return nil, nil
	}
	var searchResp scryfallSearchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode scryfall response: %w", err)
	}
	return &searchResp, nil
}

func (s *ScryfallService) getCard(ctx context.Context, reqURL string) (*models.Card, error) {
	body, err := s.queue.Enqueue(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get card from scryfall: %w", err)
	}
	if body == nil {
		return nil, nil
	}
	var sc scryfallCard
	if err := json.Unmarshal(body, &sc); err != nil {
		return nil, fmt.Errorf("failed to decode scryfall response: %w", err)
	}
	card := convertToCard(sc)
	return &card, nil
}

func convertToCard(sc scryfallCard) models.Card {
	var imageURL string
	if sc.ImageURIs != nil {
		imageURL = sc.ImageURIs.Normal
	} else if len(sc.CardFaces) > 0 && sc.CardFaces[0].ImageURIs != nil {
		imageURL = sc.CardFaces[0].ImageURIs.Normal
	}

	typeLine, oracle := sc.TypeLine, sc.OracleText
	if len(sc.CardFaces) > 1 {
		var types, texts []string
		for _, f := range sc.CardFaces {
			types = append(types, f.TypeLine)
			texts = append(texts, f.OracleText)
		}
		if typeLine == "" {
			typeLine = strings.Join(types, " // ")
		}
		if oracle == "" {
			oracle = strings.Join(texts, "\n//\n")
		}
	}

	finishes := make([]models.Finish, 0, len(sc.Finishes))
	for _, f := range sc.Finishes {
		finishes = append(finishes, models.Finish(f))
	}

	return models.Card{
		ScryfallID:        sc.ID,
		Name:              sc.Name,
		SetName:           sc.SetName,
		SetCode:           sc.Set,
		CollectorNumber:   sc.CollectorNum,
		Rarity:            sc.Rarity,
		TypeLine:          typeLine,
		OracleText:        oracle,
		ColorIdentity:     sc.ColorIdentity,
		ImageURL:          imageURL,
		Finishes:          finishes,
		FrameEffects:      sc.FrameEffects,
		BorderColor:       sc.BorderColor,
		TCGPlayerID:       sc.TCGPlayerID,
		TCGPlayerEtchedID: sc.TCGPlayerEtchedID,
		Promo:             sc.Promo,
		Digital:           sc.Digital,
		ReleasedAt:        sc.ReleasedAt,
		PurchaseURL:       sc.PurchaseURIs["tcgplayer"],
		PriceUSD:          parsePrice(sc.Prices.USD),
		PriceUSDFoil:      parsePrice(sc.Prices.USDFoil),
		PriceUSDEtched:    parsePrice(sc.Prices.USDEtched),
	}
}

func parsePrice(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
