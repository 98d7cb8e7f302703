package services

import (
	"sync"

	"github.com/rs/zerolog"
)

// FailureReporter receives upstream failures that survived the retry budget
type FailureReporter interface {
	ReportFailure(url string, err error)
}

type noopReporter struct{}

func (noopReporter) ReportFailure(string, error) {}

// LogReporter writes upstream failures to the log when diagnostics are
// enabled and keeps the most recent ones for the status endpoint.
type LogReporter struct {
	logger  zerolog.Logger
	enabled bool

	mu     sync.Mutex
	recent []FailureRecord
	limit  int
}

// FailureRecord is one reported upstream failure
type FailureRecord struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// NewLogReporter creates a reporter. When enabled is false reports are dropped.
func NewLogReporter(logger zerolog.Logger, enabled bool) *LogReporter {
	return &LogReporter{
		logger:  logger.With().Str("component", "diagnostics").Logger(),
		enabled: enabled,
		limit:   20,
	}
}

func (r *LogReporter) ReportFailure(url string, err error) {
	if !r.enabled {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.logger.Warn().Str("url", url).Str("error", msg).Msg("upstream request failed after retries")

	r.mu.Lock()
	defer r.mu.Unlock()
	r.recent = append(r.recent, FailureRecord{URL: url, Error: msg})
	if len(r.recent) > r.limit {
		r.recent = r.recent[len(r.recent)-r.limit:]
	}
}

// Recent returns a copy of the most recent failures, oldest first
func (r *LogReporter) Recent() []FailureRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FailureRecord, len(r.recent))
	copy(out, r.recent)
	return out
}
