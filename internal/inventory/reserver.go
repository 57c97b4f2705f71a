package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrReservationFailed is returned when a hold cannot be placed.
var ErrReservationFailed = errors.New("inventory: insufficient stock to reserve")

// ReservationLine is one stock unit request inside a hold. StockID is the
// variation id when the variation manages its own stock, else the product id.
type ReservationLine struct {
	StockID  uuid.UUID
	Quantity int
}

// Reserver persists stock holds for orders awaiting payment.
type Reserver interface {
	TryReserve(ctx context.Context, orderID uuid.UUID, lines []ReservationLine) error
	Release(ctx context.Context, orderID uuid.UUID) error
	Commit(ctx context.Context, orderID uuid.UUID) error
}

// KEYS[1] hold hash, KEYS[2..] stock hashes. ARGV[1] hold ttl ms, ARGV[2..] quantities.
// Returns 1 on success, -n when stock key n (1-based) is short.
var reserveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 1
end
for i = 2, #KEYS do
  local available = tonumber(redis.call('HGET', KEYS[i], 'available') or '0')
  local reserved = tonumber(redis.call('HGET', KEYS[i], 'reserved') or '0')
  if available - reserved < tonumber(ARGV[i]) then
    return -(i - 1)
  end
end
for i = 2, #KEYS do
  redis.call('HINCRBY', KEYS[i], 'reserved', ARGV[i])
  redis.call('HINCRBY', KEYS[1], KEYS[i], ARGV[i])
end
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return 1
`)

// KEYS[1] hold hash. ARGV[1] "1" to also deduct available (commit).
var settleScript = redis.NewScript(`
local items = redis.call('HGETALL', KEYS[1])
if #items == 0 then
  return 0
end
for i = 1, #items, 2 do
  local qty = tonumber(items[i + 1])
  local left = redis.call('HINCRBY', items[i], 'reserved', -qty)
  if left < 0 then
    redis.call('HSET', items[i], 'reserved', 0)
  end
  if ARGV[1] == '1' then
    redis.call('HINCRBY', items[i], 'available', -qty)
  end
end
redis.call('DEL', KEYS[1])
return 1
`)

// RedisReserver keeps stock counters in Redis hashes with "available" and
// "reserved" fields and places per-order holds atomically.
type RedisReserver struct {
	R      *redis.Client
	Prefix string
	Hold   time.Duration
}

// SetStock initialises or overwrites the available count for a stock id.
func (r RedisReserver) SetStock(ctx context.Context, stockID uuid.UUID, available int) error {
	if r.R == nil {
		return errors.New("inventory: redis client not configured")
	}
	return r.R.HSet(ctx, r.stockKey(stockID), "available", available).Err()
}

// Levels returns the available and reserved counters.
func (r RedisReserver) Levels(ctx context.Context, stockID uuid.UUID) (available, reserved int, err error) {
	if r.R == nil {
		return 0, 0, errors.New("inventory: redis client not configured")
	}
	vals, err := r.R.HGetAll(ctx, r.stockKey(stockID)).Result()
	if err != nil {
		return 0, 0, err
	}
	available, _ = strconv.Atoi(vals["available"])
	reserved, _ = strconv.Atoi(vals["reserved"])
	return available, reserved, nil
}

// TryReserve places a hold for every line or none. Re-reserving an order that
// already holds stock is a no-op.
func (r RedisReserver) TryReserve(ctx context.Context, orderID uuid.UUID, lines []ReservationLine) error {
	if r.R == nil {
		return errors.New("inventory: redis client not configured")
	}
	merged := mergeLines(lines)
	if len(merged) == 0 {
		return nil
	}
	keys := make([]string, 0, len(merged)+1)
	args := make([]any, 0, len(merged)+1)
	keys = append(keys, r.holdKey(orderID))
	args = append(args, r.holdTTL().Milliseconds())
	for _, line := range merged {
		keys = append(keys, r.stockKey(line.StockID))
		args = append(args, line.Quantity)
	}
	res, err := reserveScript.Run(ctx, r.R, keys, args...).Int64()
	if err != nil {
		return fmt.Errorf("inventory: reserve: %w", err)
	}
	if res < 0 {
		short := merged[-res-1]
		return fmt.Errorf("%w: %s", ErrReservationFailed, short.StockID)
	}
	return nil
}

// Release returns held units to the pool. Releasing an unknown hold is a no-op.
func (r RedisReserver) Release(ctx context.Context, orderID uuid.UUID) error {
	return r.settle(ctx, orderID, false)
}

// Commit converts a hold into a permanent deduction.
func (r RedisReserver) Commit(ctx context.Context, orderID uuid.UUID) error {
	return r.settle(ctx, orderID, true)
}

func (r RedisReserver) settle(ctx context.Context, orderID uuid.UUID, commit bool) error {
	if r.R == nil {
		return errors.New("inventory: redis client not configured")
	}
	flag := "0"
	if commit {
		flag = "1"
	}
	if err := settleScript.Run(ctx, r.R, []string{r.holdKey(orderID)}, flag).Err(); err != nil {
		return fmt.Errorf("inventory: settle hold: %w", err)
	}
	return nil
}

// holdTTL outlives the scheduled release task.
func (r RedisReserver) holdTTL() time.Duration {
	hold := r.Hold
	if hold <= 0 {
		hold = time.Hour
	}
	return 2 * hold
}

func (r RedisReserver) stockKey(id uuid.UUID) string {
	if r.Prefix == "" {
		return fmt.Sprintf("inventory:%s", id)
	}
	return fmt.Sprintf("%s:inventory:%s", r.Prefix, id)
}

func (r RedisReserver) holdKey(orderID uuid.UUID) string {
	if r.Prefix == "" {
		return fmt.Sprintf("inventory:hold:%s", orderID)
	}
	return fmt.Sprintf("%s:inventory:hold:%s", r.Prefix, orderID)
}

func mergeLines(lines []ReservationLine) []ReservationLine {
	index := make(map[uuid.UUID]int, len(lines))
	out := make([]ReservationLine, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		if i, ok := index[line.StockID]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[line.StockID] = len(out)
		out = append(out, line)
	}
	return out
}
