package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned while a breaker refuses calls.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is a breaker state. Its numeric value is exported on the state gauge.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

var stateNames = [...]string{Closed: "closed", Open: "open", HalfOpen: "half_open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Breaker trips when the failure ratio over the current window reaches the
// threshold, then lets a single probe through after the cool-off.
type Breaker struct {
	mu      sync.Mutex
	state   State
	window  tally
	since   time.Time
	min     int
	ratio   float64
	coolOff time.Duration
	target  string
	logger  zerolog.Logger
	now     func() time.Time
}

type tally struct{ ok, failed int }

func (t tally) total() int { return t.ok + t.failed }

// halve keeps the window bounded while preserving the ratio.
func (t tally) halve() tally {
	return tally{ok: (t.ok + 1) / 2, failed: (t.failed + 1) / 2}
}

// NewBreaker returns a closed breaker. Non-positive arguments fall back to
// one request, a ratio of 0.5 and a 30s cool-off; ratios above 1 are capped.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	b := &Breaker{
		min:     max(minRequests, 1),
		ratio:   failureRatio,
		coolOff: openFor,
		target:  "default",
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	switch {
	case b.ratio <= 0:
		b.ratio = 0.5
	case b.ratio > 1:
		b.ratio = 1
	}
	if b.coolOff <= 0 {
		b.coolOff = 30 * time.Second
	}
	return b
}

// WithTarget labels the breaker's metrics and logs, e.g. a gateway id.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t := strings.TrimSpace(target); t != "" {
		b.target = t
	}
	BreakerState.WithLabelValues(b.target).Set(float64(b.state))
	return b
}

// WithLogger sets the fallback logger for transitions. A logger on the
// context wins.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// WithClock replaces time.Now.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. An open breaker whose cool-off
// has passed moves to half-open and admits the caller as its probe.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return true
	}
	if b.now().Sub(b.since) < b.coolOff {
		return false
	}
	b.moveLocked(ctx, HalfOpen)
	return true
}

// Report feeds the outcome of an admitted call back into the breaker.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
		return
	}

	if success {
		b.window.ok++
	} else {
		b.window.failed++
	}
	n := b.window.total()
	if n < b.min {
		return
	}
	if float64(b.window.failed)/float64(n) >= b.ratio {
		b.moveLocked(ctx, Open)
		return
	}
	if n > 2*b.min {
		b.window = b.window.halve()
	}
}

// Do runs fn under the breaker. Errors caused by the caller's own context
// ending are returned without being counted.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if !b.Allow(ctx) {
		return ErrOpenCircuit
	}
	err := fn(ctx)
	if err != nil && ctx.Err() != nil {
		return err
	}
	b.Report(ctx, err == nil)
	return err
}

func (b *Breaker) moveLocked(ctx context.Context, next State) {
	prev := b.state
	b.state = next
	b.window = tally{}
	b.since = b.now()
	BreakerState.WithLabelValues(b.target).Set(float64(next))
	if prev == next {
		return
	}
	BreakerTransitions.WithLabelValues(b.target, prev.String(), next.String()).Inc()
	if next == Open {
		BreakerOpenedTotal.WithLabelValues(b.target).Inc()
	}

	logger := b.logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}
	evt := logger.Info().Str("target", b.target).Str("from_state", prev.String()).Str("to_state", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}
