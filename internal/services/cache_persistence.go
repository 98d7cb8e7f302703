package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/codyseavey/cardprice/internal/database"
	"github.com/codyseavey/cardprice/internal/metrics"
)

// DefaultFlushInterval is how often dirty caches are written out
const DefaultFlushInterval = 60 * time.Second

// Snapshotter is a cache that can be written to and restored from a store
type Snapshotter interface {
	Name() string
	MarshalSnapshot() ([]byte, bool, error)
	UnmarshalSnapshot(payload []byte) (int, error)
	MarkDirty()
}

// CachePersistenceService restores caches at startup and periodically
// writes the ones that changed.
type CachePersistenceService struct {
	mu       sync.Mutex
	store    database.SnapshotStore
	caches   []Snapshotter
	interval time.Duration
	logger   zerolog.Logger
}

// NewCachePersistenceService creates a persistence service for caches
func NewCachePersistenceService(store database.SnapshotStore, interval time.Duration, logger zerolog.Logger, caches ...Snapshotter) *CachePersistenceService {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &CachePersistenceService{
		store:    store,
		caches:   caches,
		interval: interval,
		logger:   logger.With().Str("component", "cache_persistence").Logger(),
	}
}

// LoadAll restores every registered cache. Missing or unreadable snapshots
// leave that cache empty.
func (s *CachePersistenceService) LoadAll(ctx context.Context) {
	for _, c := range s.caches {
		payload, err := s.store.Load(ctx, c.Name())
		if errors.Is(err, database.ErrSnapshotNotFound) {
			continue
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("cache", c.Name()).Msg("failed to load cache snapshot")
			continue
		}
		kept, err := c.UnmarshalSnapshot(payload)
		if err != nil {
			s.logger.Warn().Err(err).Str("cache", c.Name()).Msg("discarding unreadable cache snapshot")
			continue
		}
		s.logger.Info().Str("cache", c.Name()).Int("entries", kept).Msg("restored cache snapshot")
	}
}

// Start flushes dirty caches on a ticker until ctx is cancelled, then
// performs a final flush.
func (s *CachePersistenceService) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("Cache persistence started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Cache persistence stopping...")
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			s.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

// Flush writes every dirty cache and returns how many were saved
func (s *CachePersistenceService) Flush(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := 0
	for _, c := range s.caches {
		payload, dirty, err := c.MarshalSnapshot()
		if err != nil {
			s.logger.Warn().Err(err).Str("cache", c.Name()).Msg("failed to encode cache snapshot")
			metrics.CacheSnapshotsTotal.WithLabelValues(c.Name(), "failed").Inc()
			continue
		}
		if !dirty {
			continue
		}
		if err := s.store.Save(ctx, c.Name(), payload); err != nil {
			c.MarkDirty()
			s.logger.Warn().Err(err).Str("cache", c.Name()).Msg("failed to save cache snapshot")
			metrics.CacheSnapshotsTotal.WithLabelValues(c.Name(), "failed").Inc()
			continue
		}
		metrics.CacheSnapshotsTotal.WithLabelValues(c.Name(), "saved").Inc()
		saved++
	}
	if saved > 0 {
		s.logger.Debug().Int("caches", saved).Msg("flushed cache snapshots")
	}
	return saved
}
