package decision

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReasoningTrace keeps the context of one LLM answer so later feedback can
// extract a heuristic from it or adjust the heuristic that suggested it.
type ReasoningTrace struct {
	EventID              string
	ResponseID           string
	Source               string
	Context              string
	Response             string
	MatchedHeuristicID   string
	PredictedSuccess     float64
	PredictionConfidence float64
	CreatedAt            time.Time
}

// traceStore holds live reasoning traces in memory. Traces expire after the
// retention window; expiry is enforced on lookup, and a full sweep runs
// whenever the store grows past the cleanup threshold.
type traceStore struct {
	mu        sync.Mutex
	traces    map[string]ReasoningTrace
	retention time.Duration
	threshold int
}

func newTraceStore(retention time.Duration, threshold int) *traceStore {
	if threshold < 1 {
		threshold = 100
	}
	return &traceStore{
		traces:    make(map[string]ReasoningTrace),
		retention: retention,
		threshold: threshold,
	}
}

// put stores a trace under a fresh response ID and returns it. Growth past
// the threshold triggers an expiry sweep.
func (s *traceStore) put(trace ReasoningTrace) string {
	trace.ResponseID = uuid.New().String()
	trace.CreatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces[trace.ResponseID] = trace
	if len(s.traces) > s.threshold {
		s.sweepLocked()
	}
	return trace.ResponseID
}

// get returns a live trace. Expired traces are dropped and reported missing.
func (s *traceStore) get(responseID string) (ReasoningTrace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trace, ok := s.traces[responseID]
	if !ok {
		return ReasoningTrace{}, false
	}
	if s.expired(trace, time.Now()) {
		delete(s.traces, responseID)
		return ReasoningTrace{}, false
	}
	return trace, true
}

// delete removes a trace, typically after successful extraction.
func (s *traceStore) delete(responseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.traces, responseID)
}

// sweep drops expired traces and returns how many were removed.
func (s *traceStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

func (s *traceStore) sweepLocked() int {
	now := time.Now()
	removed := 0
	for id, trace := range s.traces {
		if s.expired(trace, now) {
			delete(s.traces, id)
			removed++
		}
	}
	return removed
}

func (s *traceStore) expired(trace ReasoningTrace, now time.Time) bool {
	return s.retention > 0 && now.Sub(trace.CreatedAt) > s.retention
}

func (s *traceStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.traces)
}
