package checkout

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NumberGenerator allocates order numbers of the form RC-YYYYMMDD-NNNN.
type NumberGenerator interface {
	Next(ctx context.Context, now time.Time) (string, error)
}

// FormatNumber renders an order number for the day and sequence.
func FormatNumber(now time.Time, n int64) string {
	return fmt.Sprintf("RC-%s-%04d", now.UTC().Format("20060102"), n%10000)
}

// RandomNumbers picks NNNN uniformly at random.
type RandomNumbers struct{}

// Next returns a random number for the day.
func (RandomNumbers) Next(_ context.Context, now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("checkout: order number: %w", err)
	}
	return FormatNumber(now, n.Int64()), nil
}

// SequenceNumbers counts orders per day in Redis. The counter key expires
// after two days.
type SequenceNumbers struct {
	R      *redis.Client
	Prefix string
}

func (s SequenceNumbers) key(now time.Time) string {
	prefix := strings.TrimSpace(s.Prefix)
	if prefix == "" {
		prefix = "toko"
	}
	return prefix + ":order_seq:" + now.UTC().Format("20060102")
}

// Next increments the day's counter.
func (s SequenceNumbers) Next(ctx context.Context, now time.Time) (string, error) {
	if s.R == nil {
		return "", fmt.Errorf("checkout: order sequence: redis client not configured")
	}
	key := s.key(now)
	pipe := s.R.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("checkout: order sequence: %w", err)
	}
	return FormatNumber(now, incr.Val()), nil
}
