package resilience

import (
	"math/rand"
	"time"
)

// Backoff doubles base for every attempt after the first. jitterPct spreads
// the result uniformly by that fraction in both directions.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << max(attempt-1, 0)
	if jitterPct <= 0 {
		return d
	}
	spread := float64(d) * jitterPct
	return d + time.Duration((2*rand.Float64()-1)*spread)
}
