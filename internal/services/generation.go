package services

import (
	"sync"
	"sync/atomic"

	"github.com/codyseavey/cardprice/internal/metrics"
)

// pendingFlusher is the part of the request queue the controller drives
type pendingFlusher interface {
	FlushPending() int
}

// GenerationController tracks the most recent user-triggered lookup. A new
// lookup bumps the generation and drops queued work left by older ones;
// resolutions compare their captured generation before publishing.
type GenerationController struct {
	current atomic.Uint64
	queue   pendingFlusher

	// held across bump and flush so no lookup joins the new generation
	// before the old queue is cleared
	mu sync.Mutex
}

// NewGenerationController creates a controller flushing the given queue
func NewGenerationController(queue pendingFlusher) *GenerationController {
	return &GenerationController{queue: queue}
}

// Begin starts a lookup and returns its generation. Refinements join the
// current generation without flushing.
func (g *GenerationController) Begin(refinement bool) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if refinement {
		return g.current.Load()
	}
	gen := g.current.Add(1)
	metrics.GenerationCurrent.Set(float64(gen))
	if g.queue != nil {
		g.queue.FlushPending()
	}
	return gen
}

// Current reports whether gen is still the latest generation
func (g *GenerationController) Current(gen uint64) bool {
	return g.current.Load() == gen
}

// Latest returns the latest generation
func (g *GenerationController) Latest() uint64 {
	return g.current.Load()
}
