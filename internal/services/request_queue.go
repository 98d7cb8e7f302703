package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/codyseavey/cardprice/internal/metrics"
)

var (
	// ErrFlushed is returned to callers whose request was discarded before dispatch
	ErrFlushed = errors.New("request flushed before dispatch")
	// ErrUpstreamUnavailable is returned once the retry budget is exhausted
	ErrUpstreamUnavailable = errors.New("upstream provider unavailable")
)

// QueueConfig controls pacing and retries for the primary provider
type QueueConfig struct {
	MinInterval  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	UserAgent    string
}

// DefaultQueueConfig keeps the queue at or under 10 requests per second
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MinInterval:  100 * time.Millisecond,
		MaxRetries:   2,
		RetryBackoff: 500 * time.Millisecond,
		UserAgent:    "cardprice/1.0",
	}
}

type queueResult struct {
	body []byte
	err  error
}

type queuedRequest struct {
	url  string
	done chan queueResult
}

// RequestQueue serializes every call to the primary provider. Requests are
// dispatched FIFO behind a global minimum interval, identical URLs share one
// call, and undispatched requests can be flushed when a newer lookup starts.
type RequestQueue struct {
	client   *http.Client
	limiter  *rate.Limiter
	group    singleflight.Group
	cfg      QueueConfig
	reporter FailureReporter
	logger   zerolog.Logger

	mu      sync.Mutex
	pending []*queuedRequest
	wake    chan struct{}
}

// NewRequestQueue creates a queue. Call Run to start dispatching.
func NewRequestQueue(client *http.Client, cfg QueueConfig, reporter FailureReporter, logger zerolog.Logger) *RequestQueue {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultQueueConfig().MinInterval
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if reporter == nil {
		reporter = noopReporter{}
	}
	return &RequestQueue{
		client:   client,
		limiter:  rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		cfg:      cfg,
		reporter: reporter,
		logger:   logger.With().Str("component", "request_queue").Logger(),
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue fetches url through the queue. A nil body with a nil error means
// the provider does not have the resource.
func (q *RequestQueue) Enqueue(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	ch := q.group.DoChan(url, func() (any, error) {
		req := q.push(url)
		res := <-req.done
		return res.body, res.err
	})

	select {
	case res := <-ch:
		metrics.QueueRequestDuration.Observe(time.Since(start).Seconds())
		if res.Shared {
			metrics.QueueDedupTotal.Inc()
		}
		body, _ := res.Val.([]byte)
		return body, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FlushPending resolves every request that has not been dispatched yet with
// ErrFlushed. The request currently on the wire is not affected.
func (q *RequestQueue) FlushPending() int {
	q.mu.Lock()
	flushed := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, req := range flushed {
		q.group.Forget(req.url)
		req.done <- queueResult{err: ErrFlushed}
	}
	if len(flushed) > 0 {
		metrics.QueueFlushedTotal.Add(float64(len(flushed)))
		metrics.QueueDepth.Set(0)
		q.logger.Debug().Int("flushed", len(flushed)).Msg("flushed pending requests")
	}
	return len(flushed)
}

// Pending returns the number of requests waiting for dispatch
func (q *RequestQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run dispatches queued requests until ctx is cancelled
func (q *RequestQueue) Run(ctx context.Context) {
	q.logger.Info().Dur("min_interval", q.cfg.MinInterval).Int("max_retries", q.cfg.MaxRetries).Msg("request queue started")
	for {
		req := q.next(ctx)
		if req == nil {
			q.drain(ctx.Err())
			q.logger.Info().Msg("request queue stopping...")
			return
		}
		body, err := q.dispatch(ctx, req.url)
		req.done <- queueResult{body: body, err: err}
	}
}

func (q *RequestQueue) push(url string) *queuedRequest {
	req := &queuedRequest{url: url, done: make(chan queueResult, 1)}
	q.mu.Lock()
	q.pending = append(q.pending, req)
	metrics.QueueDepth.Set(float64(len(q.pending)))
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return req
}

func (q *RequestQueue) next(ctx context.Context) *queuedRequest {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			req := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			metrics.QueueDepth.Set(float64(len(q.pending)))
			q.mu.Unlock()
			return req
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil
		}
	}
}

func (q *RequestQueue) drain(err error) {
	q.mu.Lock()
	left := q.pending
	q.pending = nil
	q.mu.Unlock()
	for _, req := range left {
		req.done <- queueResult{err: err}
	}
}

// dispatch performs one request with the retry policy: 429/5xx/transport
// errors retry with linear backoff, other 4xx resolve to not found.
func (q *RequestQueue) dispatch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= q.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.QueueDispatchesTotal.WithLabelValues("retry").Inc()
			if err := sleepContext(ctx, time.Duration(attempt)*q.cfg.RetryBackoff); err != nil {
				return nil, err
			}
		}
		if err := q.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, status, err := q.fetch(ctx, url)
		switch {
		case err != nil:
			lastErr = err
		case status >= 200 && status < 300:
			metrics.QueueDispatchesTotal.WithLabelValues("ok").Inc()
			return body, nil
		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = fmt.Errorf("status %d", status)
		default:
			metrics.QueueDispatchesTotal.WithLabelValues("not_found").Inc()
			return nil, nil
		}
		q.logger.Debug().Str("url", url).Int("attempt", attempt+1).Err(lastErr).Msg("transient upstream failure")
	}

	metrics.QueueDispatchesTotal.WithLabelValues("unavailable").Inc()
	q.reporter.ReportFailure(url, lastErr)
	return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, lastErr)
}

func (q *RequestQueue) fetch(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if q.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", q.cfg.UserAgent)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
