// Package market holds the latest known observation per symbol.
//
// The store has a single writer (the ingestion path) and any number of
// readers (status handlers, dashboards). Writes publish a fresh immutable map
// through an atomic pointer, so readers never take the writer's lock and a
// slow reader cannot stall ingestion.
package market

import (
	"maps"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/tickerwatch/internal/domain"
)

// Store maps symbol to latest observation. Entries are never removed;
// staleness is visible through Observation.ObservedAt.
type Store struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[map[string]domain.Observation]
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{}
	empty := map[string]domain.Observation{}
	s.current.Store(&empty)
	return s
}

// Upsert replaces the entry for obs.Symbol.
func (s *Store) Upsert(obs domain.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := *s.current.Load()
	next := make(map[string]domain.Observation, len(prev)+1)
	maps.Copy(next, prev)
	next[obs.Symbol] = obs
	s.current.Store(&next)
}

// Snapshot returns a point-in-time copy that the caller may keep or modify.
func (s *Store) Snapshot() map[string]domain.Observation {
	return maps.Clone(*s.current.Load())
}

// Get returns the latest observation for symbol.
func (s *Store) Get(symbol string) (domain.Observation, bool) {
	obs, ok := (*s.current.Load())[symbol]
	return obs, ok
}

// Len returns the number of symbols seen so far.
func (s *Store) Len() int {
	return len(*s.current.Load())
}

// Sorted returns the snapshot as a slice ordered by symbol.
func (s *Store) Sorted() []domain.Observation {
	snap := *s.current.Load()
	out := make([]domain.Observation, 0, len(snap))
	for _, obs := range snap {
		out = append(out, obs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
