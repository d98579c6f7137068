package extract

import "sync"

// Stats counts which cascade strategy ultimately served each extraction,
// keyed by shape. A run where anything past the first couple of strategies
// fires regularly is a signal the analyzer prompt needs attention.
type Stats struct {
	mu        sync.Mutex
	successes map[string]map[Strategy]int
}

func newStats() *Stats {
	return &Stats{successes: make(map[string]map[Strategy]int)}
}

func (s *Stats) recordSuccess(shape string, strategy Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byStrategy, ok := s.successes[shape]
	if !ok {
		byStrategy = make(map[Strategy]int)
		s.successes[shape] = byStrategy
	}
	byStrategy[strategy]++
}

// StatsSnapshot is a point-in-time copy safe to marshal into run manifests.
type StatsSnapshot struct {
	Successes map[string]map[Strategy]int `json:"successes_by_shape"`
	Total     int                         `json:"total"`
}

func (s *Stats) snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{Successes: make(map[string]map[Strategy]int, len(s.successes))}
	for shape, byStrategy := range s.successes {
		cp := make(map[Strategy]int, len(byStrategy))
		for strat, n := range byStrategy {
			cp[strat] = n
			snap.Total += n
		}
		snap.Successes[shape] = cp
	}
	return snap
}
