// Package app wires configuration, stores, caches and services into a
// running resolver shared by the server and the one-off CLI commands.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/codyseavey/cardprice/internal/api"
	"github.com/codyseavey/cardprice/internal/cache"
	"github.com/codyseavey/cardprice/internal/config"
	"github.com/codyseavey/cardprice/internal/database"
	"github.com/codyseavey/cardprice/internal/models"
	"github.com/codyseavey/cardprice/internal/services"
)

// Cache names, also the snapshot keys in the store
const (
	ResultCacheName   = "results"
	PrintingCacheName = "printings"
	GroupCacheName    = "price_groups"
)

// App holds every long-lived component
type App struct {
	Config config.Config
	Logger zerolog.Logger

	Store     database.SnapshotStore
	Results   *cache.Cache[models.LookupResult]
	Printings *cache.Cache[[]models.Card]
	Groups    *cache.Cache[models.GroupTable]

	Failures    *services.LogReporter
	Queue       *services.RequestQueue
	Generations *services.GenerationController
	Scryfall    *services.ScryfallService
	TCGCSV      *services.TCGCSVService
	Resolver    *services.PrintingResolver
	Enrichment  *services.PriceEnrichmentService
	Lookup      *services.LookupService
	Rates       *services.ExchangeRateService
	Status      *services.StatusService
	Persistence *services.CachePersistenceService

	wg sync.WaitGroup
}

// New builds the component graph. The store is opened but nothing runs
// until Start.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	store, err := database.Open(ctx, database.Config{
		Driver:         cfg.Store.Driver,
		SQLitePath:     cfg.Store.SQLitePath,
		ValkeyAddress:  cfg.Store.Valkey.Address,
		ValkeyUsername: cfg.Store.Valkey.Username,
		ValkeyPassword: cfg.Store.Valkey.Password,
		ValkeyDB:       cfg.Store.Valkey.DB,
		ValkeyPrefix:   cfg.Store.Valkey.Prefix,
		PostgresDSN:    cfg.Store.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}

	a, err := newWithStore(cfg, logger, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

func newWithStore(cfg config.Config, logger zerolog.Logger, store database.SnapshotStore) (*App, error) {
	results, err := cache.New[models.LookupResult](ResultCacheName, cfg.Cache.ResultTTL, cfg.Cache.ResultMax)
	if err != nil {
		return nil, err
	}
	printings, err := cache.New[[]models.Card](PrintingCacheName, cfg.Cache.PrintingTTL, cfg.Cache.PrintingMax)
	if err != nil {
		return nil, err
	}
	groups, err := cache.New[models.GroupTable](GroupCacheName, cfg.Cache.GroupTTL, cfg.Cache.GroupMax)
	if err != nil {
		return nil, err
	}

	matcher, err := services.NewSetMatcher()
	if err != nil {
		return nil, err
	}

	failures := services.NewLogReporter(logger, cfg.Diagnostics.Enabled)
	queue := services.NewRequestQueue(
		&http.Client{Timeout: cfg.Scryfall.Timeout},
		services.QueueConfig{
			MinInterval:  cfg.Scryfall.MinInterval,
			MaxRetries:   cfg.Scryfall.MaxRetries,
			RetryBackoff: cfg.Scryfall.RetryBackoff,
			UserAgent:    cfg.Scryfall.UserAgent,
		},
		failures,
		logger,
	)
	generations := services.NewGenerationController(queue)
	scryfall := services.NewScryfallService(queue, cfg.Scryfall.BaseURL, cfg.Scryfall.MaxPages, logger)
	tcgcsv, err := services.NewTCGCSVService(&http.Client{Timeout: cfg.TCGCSV.Timeout}, cfg.TCGCSV.BaseURL, cfg.TCGCSV.Category, groups, logger)
	if err != nil {
		return nil, err
	}
	resolver := services.NewPrintingResolver(scryfall, printings, logger)
	enrichment := services.NewPriceEnrichmentService(tcgcsv, matcher, logger)
	rates, err := services.NewExchangeRateService(nil, cfg.Rates.URL, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:      cfg,
		Logger:      logger,
		Store:       store,
		Results:     results,
		Printings:   printings,
		Groups:      groups,
		Failures:    failures,
		Queue:       queue,
		Generations: generations,
		Scryfall:    scryfall,
		TCGCSV:      tcgcsv,
		Resolver:    resolver,
		Enrichment:  enrichment,
		Lookup:      services.NewLookupService(scryfall, resolver, enrichment, generations, results, logger),
		Rates:       rates,
		Status:      services.NewStatusService(queue, generations, failures, results, printings, groups),
		Persistence: services.NewCachePersistenceService(store, cfg.Cache.FlushInterval, logger, results, printings, groups),
	}, nil
}

// Start restores cached state and runs the queue worker and the snapshot
// flusher until ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	a.Persistence.LoadAll(ctx)

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.Queue.Run(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.Persistence.Start(ctx)
	}()
}

// Router returns the HTTP handler for the API
func (a *App) Router() *gin.Engine {
	return api.SetupRouter(api.Services{
		Lookup:   a.Lookup,
		Resolver: a.Resolver,
		Rates:    a.Rates,
		Status:   a.Status,
	}, a.Config.Server.CORSOrigins, a.Logger)
}

// Close waits for background work started by Start to finish (the context
// passed to Start must already be cancelled) and closes the store.
func (a *App) Close() error {
	a.wg.Wait()
	if err := a.Store.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot store: %w", err)
	}
	return nil
}
