package collector

import (
	"sync"
	"sync/atomic"

	"github.com/ariaops/aria-exporter/internal/models"
)

// Store holds the latest published snapshot and the cumulative
// per-subsystem error counts. The snapshot is replaced wholesale with an
// atomic pointer swap, so readers always see either the previous complete
// snapshot or the new one, never a mix.
type Store struct {
	snap atomic.Pointer[models.MetricSnapshot]

	mu         sync.Mutex
	cumulative map[string]int
}

// NewStore creates an empty store. Latest returns nil until the first
// Publish.
func NewStore() *Store {
	return &Store{
		cumulative: map[string]int{
			models.SubsystemResources:    0,
			models.SubsystemStats:        0,
			models.SubsystemAlerts:       0,
			models.SubsystemSupermetrics: 0,
		},
	}
}

// Publish replaces the current snapshot and folds the cycle's error counts
// into the cumulative totals. The snapshot must not be mutated afterwards.
func (s *Store) Publish(snap *models.MetricSnapshot) {
	s.mu.Lock()
	for subsystem, n := range snap.ScrapeErrors {
		s.cumulative[subsystem] += n
	}
	s.mu.Unlock()

	s.snap.Store(snap)
}

// Latest returns the most recent snapshot, or nil before the first cycle
// completes.
func (s *Store) Latest() *models.MetricSnapshot {
	return s.snap.Load()
}

// ErrorTotals returns a copy of the cumulative per-subsystem error counts.
// Every subsystem is always present so the counter rows are stable from
// process start.
func (s *Store) ErrorTotals() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.cumulative))
	for k, v := range s.cumulative {
		out[k] = v
	}
	return out
}
