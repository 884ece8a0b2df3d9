package search

import (
	"sync"
	"sync/atomic"
)

// Search is a single outstanding FileSearch query plus the results
// gathered for it so far. The Coordinator holds a map keyed by query
// string; Token is derived deterministically from Query so inbound
// FileSearchResponse frames can be correlated back without a round-trip
// lookup table of their own.
//
// results is guarded by mu rather than exposed directly: the Coordinator's
// routing goroutine appends to it (AddResult) while a caller holding the
// *Search from client.Search/LookupSearch may read it from any other
// goroutine at any time.
type Search struct {
	Token uint32
	Query string

	mu      sync.RWMutex
	results []SearchResult

	cancelled int32
}

// New starts a search for query, deriving its token via Token(query).
func New(query string) *Search {
	return &Search{
		Token: Token(query),
		Query: query,
	}
}

// AddResult appends a result once it is known to belong to this search
// (the caller is expected to have matched on Token already).
func (s *Search) AddResult(r SearchResult) {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
}

// Results returns a copy of the results gathered so far, safe to read
// while AddResult runs concurrently on the Coordinator's goroutine.
func (s *Search) Results() []SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SearchResult, len(s.results))
	copy(out, s.results)
	return out
}

// Cancel marks the search as no longer wanted; IsCancelled reports the
// flag. The Coordinator does not consult it, so results for a cancelled
// search are still appended.
func (s *Search) Cancel() {
	atomic.StoreInt32(&s.cancelled, 1)
}

func (s *Search) IsCancelled() bool {
	return atomic.LoadInt32(&s.cancelled) != 0
}
