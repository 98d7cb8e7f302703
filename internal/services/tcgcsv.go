package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/codyseavey/cardprice/internal/cache"
	"github.com/codyseavey/cardprice/internal/metrics"
	"github.com/codyseavey/cardprice/internal/models"
)

const (
	tcgcsvBaseURL = "https://tcgcsv.com"

	// tcgcsvMagicCategory is TCGplayer's category id for Magic: The Gathering
	tcgcsvMagicCategory = 1

	groupListTTL = 4 * time.Hour
	groupListKey = "groups"

	sharedFetchTimeout = 30 * time.Second
)

// sharedFetchContext detaches a singleflight fetch from the caller that
// happened to start it, so every joined caller gets the same outcome.
func sharedFetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
}

// TCGCSVService reads TCGplayer groups, products and prices from a TCGCSV
// mirror. Calls bypass the request queue; failures degrade to "no data".
type TCGCSVService struct {
	client   *http.Client
	baseURL  string
	category int
	groups   *cache.Cache[[]models.Group]
	tables   *cache.Cache[models.GroupTable]
	flight   singleflight.Group
	logger   zerolog.Logger
}

// NewTCGCSVService creates a client backed by the given price-group cache
func NewTCGCSVService(client *http.Client, baseURL string, category int, tables *cache.Cache[models.GroupTable], logger zerolog.Logger) (*TCGCSVService, error) {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if baseURL == "" {
		baseURL = tcgcsvBaseURL
	}
	if category <= 0 {
		category = tcgcsvMagicCategory
	}
	groups, err := cache.New[[]models.Group]("group_list", groupListTTL, 1)
	if err != nil {
		return nil, err
	}
	return &TCGCSVService{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		category: category,
		groups:   groups,
		tables:   tables,
		logger:   logger.With().Str("component", "tcgcsv").Logger(),
	}, nil
}

type tcgcsvResponse[T any] struct {
	Success    bool     `json:"success"`
	Errors     []string `json:"errors"`
	TotalItems int      `json:"totalItems"`
	Results    []T      `json:"results"`
}

type tcgcsvGroup struct {
	GroupID      int    `json:"groupId"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
	PublishedOn  string `json:"publishedOn"`
}

type tcgcsvProduct struct {
	ProductID    int    `json:"productId"`
	Name         string `json:"name"`
	CleanName    string `json:"cleanName"`
	ImageURL     string `json:"imageUrl"`
	URL          string `json:"url"`
	ExtendedData []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"extendedData"`
}

type tcgcsvPrice struct {
	ProductID   int      `json:"productId"`
	LowPrice    *float64 `json:"lowPrice"`
	MidPrice    *float64 `json:"midPrice"`
	HighPrice   *float64 `json:"highPrice"`
	MarketPrice *float64 `json:"marketPrice"`
	SubTypeName string   `json:"subTypeName"`
}

// Groups returns every group in the category. Returns nil when the provider
// cannot be reached.
func (s *TCGCSVService) Groups(ctx context.Context) []models.Group {
	if groups, ok := s.groups.Get(groupListKey); ok {
		return groups
	}
	v, err, _ := s.flight.Do(groupListKey, func() (any, error) {
		fetchCtx, cancel := sharedFetchContext(ctx)
		defer cancel()
		var resp tcgcsvResponse[tcgcsvGroup]
		if err := s.getJSON(fetchCtx, "groups", fmt.Sprintf("%s/tcgplayer/%d/groups", s.baseURL, s.category), &resp); err != nil {
			return nil, err
		}
		groups := make([]models.Group, 0, len(resp.Results))
		for _, g := range resp.Results {
			groups = append(groups, models.Group{
				ID:           g.GroupID,
				Name:         g.Name,
				Abbreviation: g.Abbreviation,
				PublishedOn:  g.PublishedOn,
			})
		}
		s.groups.Put(groupListKey, groups)
		return groups, nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to fetch group list")
		return nil
	}
	return v.([]models.Group)
}

// GroupTable returns the product and price table for one group, fetching it
// when not cached. The bool is false when the table could not be loaded.
func (s *TCGCSVService) GroupTable(ctx context.Context, group models.Group) (models.GroupTable, bool) {
	key := strconv.Itoa(group.ID)
	if table, ok := s.tables.Get(key); ok {
		return table, true
	}
	v, err, _ := s.flight.Do("table:"+key, func() (any, error) {
		fetchCtx, cancel := sharedFetchContext(ctx)
		defer cancel()
		table, err := s.fetchGroupTable(fetchCtx, group)
		if err != nil {
			return nil, err
		}
		s.tables.Put(key, table)
		return table, nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Int("group_id", group.ID).Msg("failed to fetch group table")
		return models.GroupTable{}, false
	}
	return v.(models.GroupTable), true
}

func (s *TCGCSVService) fetchGroupTable(ctx context.Context, group models.Group) (models.GroupTable, error) {
	var products tcgcsvResponse[tcgcsvProduct]
	var prices tcgcsvResponse[tcgcsvPrice]

	base := fmt.Sprintf("%s/tcgplayer/%d/%d", s.baseURL, s.category, group.ID)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.getJSON(gctx, "products", base+"/products", &products)
	})
	g.Go(func() error {
		return s.getJSON(gctx, "prices", base+"/prices", &prices)
	})
	if err := g.Wait(); err != nil {
		return models.GroupTable{}, err
	}

	table := models.GroupTable{
		GroupID:   group.ID,
		GroupName: group.Name,
		Timestamp: time.Now(),
		Prices:    make(map[int]models.ProductPrices, len(prices.Results)),
		Products:  make([]models.Product, 0, len(products.Results)),
	}
	for _, p := range products.Results {
		product := models.Product{
			ID:        p.ProductID,
			Name:      p.Name,
			CleanName: p.CleanName,
			ImageURL:  p.ImageURL,
			URL:       p.URL,
		}
		for _, ext := range p.ExtendedData {
			if ext.Name == "Number" {
				product.Number = ext.Value
				break
			}
		}
		table.Products = append(table.Products, product)
	}
	for _, row := range prices.Results {
		quad := models.PriceQuad{
			Low:    row.LowPrice,
			Mid:    row.MidPrice,
			High:   row.HighPrice,
			Market: row.MarketPrice,
		}
		entry := table.Prices[row.ProductID]
		if strings.EqualFold(row.SubTypeName, "Foil") {
			entry.Foil = quad
		} else {
			entry.Normal = quad
		}
		table.Prices[row.ProductID] = entry
	}

	s.logger.Debug().
		Int("group_id", group.ID).
		Int("products", len(table.Products)).
		Int("prices", len(table.Prices)).
		Msg("loaded group table")
	return table, nil
}

func (s *TCGCSVService) getJSON(ctx context.Context, endpoint, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.SecondaryRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("failed to fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.SecondaryRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("tcgcsv %s returned status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.SecondaryRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("failed to decode %s: %w", endpoint, err)
	}
	metrics.SecondaryRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	return nil
}
