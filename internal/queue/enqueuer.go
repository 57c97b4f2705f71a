package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	errNoRedis     = errors.New("queue: redis client not configured")
	errInvalidKind = errors.New("queue: task kind must be lowercase [a-z0-9._:-]")
)

// Enqueuer adds tasks to per-kind sorted sets scored by due time.
type Enqueuer struct {
	R           *redis.Client
	Prefix      string
	DedupTTL    time.Duration
	MaxAttempts int
	Now         func() time.Time
}

func (e Enqueuer) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Enqueue schedules t. A task carrying an idempotency key is accepted once
// until it completes, dead-letters or the dedup window lapses; repeats
// return nil.
func (e Enqueuer) Enqueue(ctx context.Context, t Task) error {
	if e.R == nil {
		return errNoRedis
	}
	if !validKind.MatchString(t.Kind) {
		return fmt.Errorf("%w: %q", errInvalidKind, t.Kind)
	}
	env := envelope{
		Kind:        t.Kind,
		Key:         t.IdempotencyKey,
		Payload:     t.Payload,
		MaxAttempts: firstPositive(t.MaxAttempts, e.MaxAttempts, DefaultMaxAttempts),
		DueAt:       e.now().Add(t.Delay).UnixMilli(),
	}
	keys := keysFor(e.Prefix, t.Kind)

	if env.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		fresh, err := e.R.SetNX(ctx, keys.dedup(env.Key), "1", ttl).Result()
		if err != nil {
			return fmt.Errorf("queue: dedup %s: %w", t.Kind, err)
		}
		if !fresh {
			return nil
		}
	}
	if err := e.R.ZAdd(ctx, keys.ready(), redis.Z{Score: float64(env.DueAt), Member: env.encode()}).Err(); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", t.Kind, err)
	}
	return nil
}

// Depth counts queued tasks of a kind, due or not. Running tasks are excluded.
func (e Enqueuer) Depth(ctx context.Context, kind string) (int64, error) {
	if e.R == nil {
		return 0, errNoRedis
	}
	return e.R.ZCard(ctx, keysFor(e.Prefix, kind).ready()).Result()
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
