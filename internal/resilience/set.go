package resilience

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Set hands out one breaker per target, all sharing the same thresholds.
type Set struct {
	mu          sync.Mutex
	byTarget    map[string]*Breaker
	minRequests int
	ratio       float64
	openFor     time.Duration
	logger      *zerolog.Logger
}

func NewSet(minRequests int, failureRatio float64, openFor time.Duration) *Set {
	return &Set{
		byTarget:    map[string]*Breaker{},
		minRequests: minRequests,
		ratio:       failureRatio,
		openFor:     openFor,
	}
}

// WithLogger applies to breakers created after the call.
func (s *Set) WithLogger(logger zerolog.Logger) *Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = &logger
	return s
}

// Get returns the breaker for target, creating it on first use.
func (s *Set) Get(target string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byTarget[target]
	if ok {
		return b
	}
	b = NewBreaker(s.minRequests, s.ratio, s.openFor).WithTarget(target)
	if s.logger != nil {
		b.WithLogger(*s.logger)
	}
	s.byTarget[target] = b
	return b
}
