package pipeline

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterSet hands out one token bucket per authenticated principal, so one
// noisy caller can't starve another's quota. A non-positive rate disables
// limiting entirely.
type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newLimiterSet(r rate.Limit, burst int) *limiterSet {
	return &limiterSet{limiters: make(map[string]*rate.Limiter), r: r, burst: burst}
}

func (s *limiterSet) allow(principal string) bool {
	if s.r <= 0 {
		return true
	}
	s.mu.Lock()
	l, ok := s.limiters[principal]
	if !ok {
		l = rate.NewLimiter(s.r, s.burst)
		s.limiters[principal] = l
	}
	s.mu.Unlock()
	return l.Allow()
}
