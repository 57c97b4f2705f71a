package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-engine/internal/resilience"
)

// DefaultTTL bounds how long a crashed holder can block others.
const DefaultTTL = 30 * time.Second

// unlockScript deletes the key only while it still carries our token.
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Locker serialises writes per cart and per order with SET NX leases.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	Prefix       string
}

// CartKey is the lock key guarding mutations of a cart.
func (l Locker) CartKey(cartID uuid.UUID) string {
	return l.key("cart", cartID)
}

// OrderKey is the lock key guarding writes to an order.
func (l Locker) OrderKey(orderID uuid.UUID) string {
	return l.key("order", orderID)
}

func (l Locker) key(kind string, id uuid.UUID) string {
	prefix := strings.TrimSpace(l.Prefix)
	if prefix == "" {
		prefix = "toko"
	}
	return prefix + ":lock:" + kind + ":" + id.String()
}

// WithLock runs fn while holding key, waiting until it is free or ctx ends.
// The lease lasts ttl; fn should finish well inside it.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token, err := l.acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer l.unlock(context.WithoutCancel(ctx), key, token)
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	base := l.RetryBackoff
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	token := uuid.NewString()
	for attempt := 1; ; attempt++ {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		wait := min(resilience.Backoff(base, attempt, 0.2), 8*base)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

func (l Locker) unlock(ctx context.Context, key, token string) {
	n, err := unlockScript.Run(ctx, l.R, []string{key}, token).Int()
	switch {
	case err != nil:
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("lock_release_failed")
	case n == 0:
		zerolog.Ctx(ctx).Warn().Str("key", key).Msg("lock_expired_before_release")
	}
}
