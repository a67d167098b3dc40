package batch

import (
	"sync"
	"time"
)

// Stats tracks task counts and durations for a pool.
type Stats struct {
	mu        sync.RWMutex
	succeeded int64
	failed    int64
	total     time.Duration
	min       time.Duration
	max       time.Duration
}

// NewStats returns empty statistics.
func NewStats() *Stats { return &Stats{} }

func (s *Stats) recordSuccess(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.succeeded++
	s.observe(d)
}

func (s *Stats) recordFailure(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
	s.observe(d)
}

func (s *Stats) observe(d time.Duration) {
	s.total += d
	if s.succeeded+s.failed == 1 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Processed   int64
	Succeeded   int64
	Failed      int64
	MinDuration time.Duration
	MaxDuration time.Duration
	AvgDuration time.Duration
}

// Snapshot copies the current values.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.succeeded + s.failed
	snap := Snapshot{
		Processed:   n,
		Succeeded:   s.succeeded,
		Failed:      s.failed,
		MinDuration: s.min,
		MaxDuration: s.max,
	}
	if n > 0 {
		snap.AvgDuration = s.total / time.Duration(n)
	}
	return snap
}

// SuccessRate returns the share of succeeded tasks as a percentage.
func (s Snapshot) SuccessRate() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Processed) * 100
}
