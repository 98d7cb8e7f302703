package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/codyseavey/cardprice/internal/cache"
	"github.com/codyseavey/cardprice/internal/models"
)

// fakeScryfall serves catalog fixtures keyed by the shape of the request
type fakeScryfall struct {
	mu        sync.Mutex
	byID      map[string]scryfallCard
	byProduct map[int]scryfallCard
	bySlot    map[string]scryfallCard // "set/number"
	named     map[string]scryfallCard // lowercased fuzzy name, optionally "|set"
	printings map[string][]scryfallCard
	status    int // forced status for every request when non-zero
	onRequest func(*http.Request)

	requests atomic.Int64
	paths    []string
}

func newFakeScryfall() *fakeScryfall {
	return &fakeScryfall{
		byID:      make(map[string]scryfallCard),
		byProduct: make(map[int]scryfallCard),
		bySlot:    make(map[string]scryfallCard),
		named:     make(map[string]scryfallCard),
		printings: make(map[string][]scryfallCard),
	}
}

func (f *fakeScryfall) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	if f.onRequest != nil {
		f.onRequest(r)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.URL.RequestURI())

	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/cards/")
	q := r.URL.Query()
	switch {
	case path == "named":
		key := strings.ToLower(q.Get("fuzzy"))
		if set := q.Get("set"); set != "" {
			key += "|" + set
		}
		writeFixture(w, f.named, key)
	case path == "search":
		query := q.Get("q")
		name, ok := strings.CutPrefix(query, `!"`)
		if ok {
			name, _, _ = strings.Cut(name, `"`)
		}
		cards := f.printings[strings.ToLower(name)]
		if strings.Contains(query, "set:") {
			cards = nil
		}
		if len(cards) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(scryfallSearchResponse{Object: "list", Data: cards, TotalCards: len(cards)})
	case strings.HasPrefix(path, "tcgplayer/"):
		id, _ := strconv.Atoi(strings.TrimPrefix(path, "tcgplayer/"))
		writeFixture(w, f.byProduct, id)
	case strings.Contains(path, "/"):
		writeFixture(w, f.bySlot, path)
	default:
		writeFixture(w, f.byID, path)
	}
}

func writeFixture[K comparable](w http.ResponseWriter, m map[K]scryfallCard, key K) {
	card, ok := m[key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(card)
}

// fakeTCGCSV serves groups, products and prices for category 1
type fakeTCGCSV struct {
	groups   []tcgcsvGroup
	products map[int][]tcgcsvProduct
	prices   map[int][]tcgcsvPrice
	failing  bool

	requests atomic.Int64
}

func (f *fakeTCGCSV) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	if f.failing {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 3 && parts[2] == "groups":
		_ = json.NewEncoder(w).Encode(tcgcsvResponse[tcgcsvGroup]{Success: true, Results: f.groups})
	case len(parts) == 4 && parts[3] == "products":
		id, _ := strconv.Atoi(parts[2])
		_ = json.NewEncoder(w).Encode(tcgcsvResponse[tcgcsvProduct]{Success: true, Results: f.products[id]})
	case len(parts) == 4 && parts[3] == "prices":
		id, _ := strconv.Atoi(parts[2])
		_ = json.NewEncoder(w).Encode(tcgcsvResponse[tcgcsvPrice]{Success: true, Results: f.prices[id]})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func product(id int, name, number string) tcgcsvProduct {
	p := tcgcsvProduct{ProductID: id, Name: name, ImageURL: "https://img.example/" + strconv.Itoa(id) + ".jpg"}
	if number != "" {
		p.ExtendedData = append(p.ExtendedData, struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		}{Name: "Number", Value: number})
	}
	return p
}

func marketPrice(id int, subType string, market float64) tcgcsvPrice {
	return tcgcsvPrice{ProductID: id, SubTypeName: subType, MarketPrice: &market}
}

func sfCard(id, name, set, setName, number string) scryfallCard {
	return scryfallCard{
		ID:           id,
		Name:         name,
		Set:          set,
		SetName:      setName,
		CollectorNum: number,
		Rarity:       "uncommon",
		Finishes:     []string{"nonfoil", "foil"},
		BorderColor:  "black",
		ImageURIs:    &scryfallImages{Normal: "https://cards.example/" + id + ".jpg"},
		Prices:       scryfallPrices{USD: "1.00", USDFoil: "3.00"},
	}
}

func testQueueConfig() QueueConfig {
	return QueueConfig{MinInterval: time.Millisecond, MaxRetries: 1, RetryBackoff: time.Millisecond}
}

// startQueue runs a queue against srv until the test ends
func startQueue(t *testing.T, cfg QueueConfig, reporter FailureReporter) *RequestQueue {
	t.Helper()
	q := NewRequestQueue(nil, cfg, reporter, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return q
}

type testStack struct {
	scryfall    *fakeScryfall
	tcgcsv      *fakeTCGCSV
	queue       *RequestQueue
	resolver    *PrintingResolver
	enrichment  *PriceEnrichmentService
	generations *GenerationController
	results     *cache.Cache[models.LookupResult]
	lookup      *LookupService
}

func newTestStack(t *testing.T, sf *fakeScryfall, tc *fakeTCGCSV) *testStack {
	t.Helper()
	sfSrv := httptest.NewServer(sf)
	t.Cleanup(sfSrv.Close)
	tcSrv := httptest.NewServer(tc)
	t.Cleanup(tcSrv.Close)

	logger := zerolog.Nop()
	queue := startQueue(t, testQueueConfig(), nil)
	scryfall := NewScryfallService(queue, sfSrv.URL, 2, logger)

	printings, err := cache.New[[]models.Card]("printings", time.Minute, 100)
	require.NoError(t, err)
	tables, err := cache.New[models.GroupTable]("price_groups", time.Minute, 100)
	require.NoError(t, err)
	results, err := cache.New[models.LookupResult]("results", time.Minute, 100)
	require.NoError(t, err)

	tcgcsv, err := NewTCGCSVService(nil, tcSrv.URL, 1, tables, logger)
	require.NoError(t, err)
	matcher, err := NewSetMatcher()
	require.NoError(t, err)

	resolver := NewPrintingResolver(scryfall, printings, logger)
	enrichment := NewPriceEnrichmentService(tcgcsv, matcher, logger)
	generations := NewGenerationController(queue)
	return &testStack{
		scryfall:    sf,
		tcgcsv:      tc,
		queue:       queue,
		resolver:    resolver,
		enrichment:  enrichment,
		generations: generations,
		results:     results,
		lookup:      NewLookupService(scryfall, resolver, enrichment, generations, results, logger),
	}
}
