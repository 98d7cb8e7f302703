package services

// sizedCache is the part of a cache the status report reads
type sizedCache interface {
	Name() string
	Len() int
}

// Status is a point-in-time view of the resolver's shared state
type Status struct {
	Generation     uint64          `json:"generation"`
	QueueDepth     int             `json:"queue_depth"`
	CacheEntries   map[string]int  `json:"cache_entries"`
	RecentFailures []FailureRecord `json:"recent_failures"`
}

// StatusService assembles the status report
type StatusService struct {
	queue       *RequestQueue
	generations *GenerationController
	failures    *LogReporter
	caches      []sizedCache
}

// NewStatusService creates a status reporter over the given components
func NewStatusService(queue *RequestQueue, generations *GenerationController, failures *LogReporter, caches ...sizedCache) *StatusService {
	return &StatusService{
		queue:       queue,
		generations: generations,
		failures:    failures,
		caches:      caches,
	}
}

func (s *StatusService) Status() Status {
	st := Status{
		Generation:     s.generations.Latest(),
		QueueDepth:     s.queue.Pending(),
		CacheEntries:   make(map[string]int, len(s.caches)),
		RecentFailures: []FailureRecord{},
	}
	for _, c := range s.caches {
		st.CacheEntries[c.Name()] = c.Len()
	}
	if s.failures != nil {
		st.RecentFailures = s.failures.Recent()
	}
	return st
}
