package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/codyseavey/cardprice/internal/cache"
	"github.com/codyseavey/cardprice/internal/metrics"
)

const (
	exchangeRateURL = "https://open.er-api.com/v6/latest/USD"
	exchangeRateTTL = 24 * time.Hour
	rateTableKey    = "USD"
)

// ErrUnknownCurrency is returned for a currency code missing from the rate table
var ErrUnknownCurrency = errors.New("unknown currency")

// Used when the rate source cannot be reached. USD based.
var fallbackRates = map[string]float64{
	"USD": 1,
	"EUR": 0.92,
	"GBP": 0.79,
	"CAD": 1.36,
	"AUD": 1.52,
	"NZD": 1.66,
	"JPY": 149.5,
	"CHF": 0.88,
	"SEK": 10.6,
	"NOK": 10.7,
	"DKK": 6.87,
	"PLN": 3.98,
	"CZK": 23.1,
	"BRL": 5.05,
	"MXN": 17.1,
	"SGD": 1.35,
	"HKD": 7.82,
	"CNY": 7.24,
	"KRW": 1340,
	"INR": 83.2,
}

// RateQuote is one USD conversion rate and where it came from
type RateQuote struct {
	Currency string  `json:"currency"`
	Rate     float64 `json:"rate"`
	Source   string  `json:"source"` // "live", "cached" or "fallback"
}

// ExchangeRateService converts USD prices into the user's currency
type ExchangeRateService struct {
	client *http.Client
	url    string
	rates  *cache.Cache[map[string]float64]
	flight singleflight.Group
	logger zerolog.Logger
}

// NewExchangeRateService creates a service. An empty url uses the public endpoint.
func NewExchangeRateService(client *http.Client, url string, logger zerolog.Logger) (*ExchangeRateService, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if url == "" {
		url = exchangeRateURL
	}
	rates, err := cache.New[map[string]float64]("exchange_rates", exchangeRateTTL, 1)
	if err != nil {
		return nil, err
	}
	return &ExchangeRateService{
		client: client,
		url:    url,
		rates:  rates,
		logger: logger.With().Str("component", "exchange_rates").Logger(),
	}, nil
}

type exchangeRateResponse struct {
	Result string             `json:"result"`
	Base   string             `json:"base_code"`
	Rates  map[string]float64 `json:"rates"`
}

// Rate returns the USD to currency conversion rate
func (s *ExchangeRateService) Rate(ctx context.Context, currency string) (RateQuote, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		return RateQuote{}, fmt.Errorf("%w: empty code", ErrUnknownCurrency)
	}

	table, source := s.table(ctx)
	rate, ok := table[code]
	if !ok && source != "fallback" {
		rate, ok = fallbackRates[code]
		source = "fallback"
	}
	if !ok {
		return RateQuote{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	metrics.ExchangeRateLookupsTotal.WithLabelValues(source).Inc()
	return RateQuote{Currency: code, Rate: rate, Source: source}, nil
}

func (s *ExchangeRateService) table(ctx context.Context) (map[string]float64, string) {
	if rates, ok := s.rates.Get(rateTableKey); ok {
		return rates, "cached"
	}
	v, err, _ := s.flight.Do(rateTableKey, func() (any, error) {
		fetchCtx, cancel := sharedFetchContext(ctx)
		defer cancel()
		rates, err := s.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		s.rates.Put(rateTableKey, rates)
		return rates, nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("exchange rate source unavailable, using fallback table")
		return fallbackRates, "fallback"
	}
	return v.(map[string]float64), "live"
}

func (s *ExchangeRateService) fetch(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exchange rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange rate source returned status %d", resp.StatusCode)
	}
	var body exchangeRateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode exchange rates: %w", err)
	}
	if body.Result != "success" || len(body.Rates) == 0 {
		return nil, fmt.Errorf("exchange rate source returned result %q", body.Result)
	}
	return body.Rates, nil
}
