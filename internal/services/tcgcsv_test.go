package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codyseavey/cardprice/internal/cache"
	"github.com/codyseavey/cardprice/internal/models"
)

func newTestTCGCSV(t *testing.T, fake *fakeTCGCSV) *TCGCSVService {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	tables, err := cache.New[models.GroupTable]("price_groups", time.Minute, 10)
	require.NoError(t, err)
	svc, err := NewTCGCSVService(srv.Client(), srv.URL, 0, tables, zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func TestTCGCSVGroupTable(t *testing.T) {
	svc := newTestTCGCSV(t, commanderLegendsTCGCSV())
	ctx := context.Background()

	groups := svc.Groups(ctx)
	require.Len(t, groups, 3)
	assert.Equal(t, "Commander Legends", groups[0].Name)

	table, ok := svc.GroupTable(ctx, groups[0])
	require.True(t, ok)
	assert.Equal(t, "Commander Legends", table.GroupName)

	p, ok := table.Product(100)
	require.True(t, ok)
	assert.Equal(t, "472", p.Number)

	prices := table.Prices[100]
	require.NotNil(t, prices.Normal.Market)
	require.NotNil(t, prices.Foil.Market)
	assert.Equal(t, 1.25, *prices.Normal.Market)
	assert.Equal(t, 6.5, *prices.Foil.Market)
}

func TestTCGCSVCachesGroupTables(t *testing.T) {
	fake := commanderLegendsTCGCSV()
	svc := newTestTCGCSV(t, fake)
	ctx := context.Background()
	group := models.Group{ID: 10, Name: "Commander Legends"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := svc.GroupTable(ctx, group)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	fetched := fake.requests.Load()
	assert.GreaterOrEqual(t, fetched, int64(2))

	_, ok := svc.GroupTable(ctx, group)
	assert.True(t, ok)
	assert.Equal(t, fetched, fake.requests.Load())
}

func TestTCGCSVFailureMeansNoData(t *testing.T) {
	fake := commanderLegendsTCGCSV()
	fake.failing = true
	svc := newTestTCGCSV(t, fake)

	assert.Nil(t, svc.Groups(context.Background()))
	_, ok := svc.GroupTable(context.Background(), models.Group{ID: 10})
	assert.False(t, ok)
}

func TestTCGCSVSharedFetchOutlivesCallerCancel(t *testing.T) {
	fake := commanderLegendsTCGCSV()
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case arrived <- struct{}{}:
		default:
		}
		<-release
		fake.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	tables, err := cache.New[models.GroupTable]("price_groups", time.Minute, 10)
	require.NoError(t, err)
	svc, err := NewTCGCSVService(srv.Client(), srv.URL, 0, tables, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan []models.Group, 1)
	go func() { got <- svc.Groups(ctx) }()

	<-arrived
	cancel()
	close(release)

	groups := <-got
	assert.Len(t, groups, 3, "cancelling the first caller must not abort the shared fetch")
	assert.Len(t, svc.Groups(context.Background()), 3)
}
