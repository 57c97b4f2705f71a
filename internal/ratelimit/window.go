package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one attempt.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Window is a sliding window limiter backed by Redis sorted sets. A zero
// Max or Window, or a nil client, allows everything.
type Window struct {
	Client *redis.Client
	Prefix string
	Window time.Duration
	Max    int
	Now    func() time.Time
}

func (w Window) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Allow records an attempt for key and reports whether it is within the limit.
// Rejected attempts still count against the window.
func (w Window) Allow(ctx context.Context, key string) (Decision, error) {
	now := w.now()
	if w.Client == nil || w.Max <= 0 || w.Window <= 0 {
		return Decision{Allowed: true, Remaining: w.Max, ResetAt: now}, nil
	}

	redisKey := w.Prefix + ":ratelimit:" + key
	cutoff := float64(now.Add(-w.Window).UnixNano())

	pipe := w.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%f", cutoff))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	card := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, w.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("ratelimit: %w", err)
	}

	current := int(card.Val())
	remaining := w.Max - current
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: current <= w.Max, Remaining: remaining, ResetAt: now.Add(w.Window)}, nil
}
