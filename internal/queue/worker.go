package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-engine/internal/resilience"
)

// claimScript moves the earliest due member from the ready set to the
// in-flight set, scored by its visibility deadline.
var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', '0', '1')
if #due == 0 then
  return false
end
redis.call('ZREM', KEYS[1], due[1])
redis.call('ZADD', KEYS[2], ARGV[2], due[1])
return due[1]
`)

// Worker runs Handler for every task of Kind. A task whose visibility
// deadline passes without an outcome is handed out again.
type Worker struct {
	R                 *redis.Client
	Prefix            string
	Kind              string
	Concurrency       int
	VisibilityTimeout time.Duration
	// SoftDeadline bounds a single handler invocation. Defaults to the
	// visibility timeout.
	SoftDeadline time.Duration
	// HeartbeatInterval extends the visibility deadline of running tasks.
	// Zero disables heartbeats.
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	Handler           func(context.Context, Task) error
	RetryBase         time.Duration
	RetryJitter       float64
	// Store receives exhausted tasks. Without one they are pushed to a Redis list.
	Store  Store
	Logger *zerolog.Logger
}

type workerSettings struct {
	keys       keyspace
	slots      int
	visibility time.Duration
	soft       time.Duration
	poll       time.Duration
	retryBase  time.Duration
}

func (w Worker) settings() (workerSettings, error) {
	switch {
	case w.R == nil:
		return workerSettings{}, errNoRedis
	case w.Handler == nil:
		return workerSettings{}, errors.New("queue: worker handler not configured")
	case !validKind.MatchString(w.Kind):
		return workerSettings{}, fmt.Errorf("%w: %q", errInvalidKind, w.Kind)
	}
	s := workerSettings{
		keys:       keysFor(w.Prefix, w.Kind),
		slots:      max(w.Concurrency, 1),
		visibility: w.VisibilityTimeout,
		soft:       w.SoftDeadline,
		poll:       w.PollInterval,
		retryBase:  w.RetryBase,
	}
	if s.visibility <= 0 {
		s.visibility = 30 * time.Second
	}
	if s.soft <= 0 || s.soft > s.visibility {
		s.soft = s.visibility
	}
	if s.poll <= 0 {
		s.poll = 50 * time.Millisecond
	}
	if s.retryBase <= 0 {
		s.retryBase = 200 * time.Millisecond
	}
	return s, nil
}

func (w Worker) log() *zerolog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

// Run claims and processes tasks until ctx ends, then waits for running
// handlers. It returns an error only for configuration or Redis failures.
func (w Worker) Run(ctx context.Context) error {
	s, err := w.settings()
	if err != nil {
		return err
	}
	slots := make(chan struct{}, s.slots)
	var wg sync.WaitGroup
	defer wg.Wait()

	reap := time.NewTicker(time.Second)
	defer reap.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case slots <- struct{}{}:
		}
		select {
		case <-reap.C:
			w.reap(ctx, s.keys)
		default:
		}

		raw, err := w.claim(ctx, s)
		if err != nil {
			<-slots
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, redis.Nil) {
				idle(ctx, s.poll)
				continue
			}
			return fmt.Errorf("queue: claim %s: %w", w.Kind, err)
		}
		env, err := decode(raw)
		if err != nil {
			w.log().Warn().Err(err).Str("kind", w.Kind).Msg("queue_message_corrupt")
			_ = w.R.ZRem(ctx, s.keys.inflight(), raw).Err()
			<-slots
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			w.process(ctx, s, raw, env)
		}()
	}
}

func (w Worker) claim(ctx context.Context, s workerSettings) (string, error) {
	now := time.Now()
	return claimScript.Run(ctx, w.R,
		[]string{s.keys.ready(), s.keys.inflight()},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(now.Add(s.visibility).UnixMilli(), 10),
	).Text()
}

func (w Worker) process(ctx context.Context, s workerSettings, raw string, env envelope) {
	env.Deliveries++
	jobCtx, cancel := context.WithTimeout(ctx, s.soft)
	stop := w.heartbeat(jobCtx, s.keys.inflight(), raw, s.visibility)
	err := w.invoke(jobCtx, env.task())
	stop()
	cancel()

	// Settlement must survive shutdown of the parent context.
	bg := context.WithoutCancel(ctx)
	removed, rerr := w.R.ZRem(bg, s.keys.inflight(), raw).Result()
	if rerr == nil && removed == 0 {
		w.log().Warn().Str("kind", env.Kind).Int("attempt", env.Deliveries).Msg("queue_task_reclaimed")
		return
	}
	switch {
	case err == nil:
		QueueProcessedTotal.WithLabelValues(env.Kind, "success").Inc()
		w.release(bg, s.keys, env)
	case env.exhausted():
		w.deadLetter(bg, s.keys, env, err.Error())
	default:
		w.retry(bg, s, env, err)
	}
}

func (w Worker) invoke(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: handler panic: %v", r)
		}
	}()
	return w.Handler(ctx, t)
}

// heartbeat pushes the visibility deadline of raw forward until stopped.
func (w Worker) heartbeat(ctx context.Context, inflight, raw string, visibility time.Duration) func() {
	if w.HeartbeatInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(w.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				_ = w.R.ZAddXX(ctx, inflight, redis.Z{Score: millis(now.Add(visibility)), Member: raw}).Err()
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (w Worker) retry(ctx context.Context, s workerSettings, env envelope, cause error) {
	QueueProcessedTotal.WithLabelValues(env.Kind, "retry").Inc()
	delay := resilience.Backoff(s.retryBase, env.Deliveries, w.RetryJitter)
	env.DueAt = time.Now().Add(delay).UnixMilli()
	w.log().Debug().Err(cause).Str("kind", env.Kind).Int("attempt", env.Deliveries).Dur("delay", delay).Msg("queue_task_retry")
	if err := w.R.ZAdd(ctx, s.keys.ready(), redis.Z{Score: float64(env.DueAt), Member: env.encode()}).Err(); err != nil {
		w.log().Error().Err(err).Str("kind", env.Kind).Msg("queue_retry_failed")
	}
}

func (w Worker) deadLetter(ctx context.Context, keys keyspace, env envelope, reason string) {
	QueueProcessedTotal.WithLabelValues(env.Kind, "dlq").Inc()
	logger := w.log()
	defer w.release(ctx, keys, env)
	if w.Store != nil {
		id, err := w.Store.Insert(ctx, DLQEntry{
			Kind:           env.Kind,
			IdempotencyKey: env.Key,
			Payload:        env.Payload,
			Attempts:       env.Deliveries,
			LastError:      &reason,
		})
		if err == nil {
			logger.Warn().Str("kind", env.Kind).Str("dlq_id", id.String()).Int("attempts", env.Deliveries).Str("error", reason).Msg("queue_task_dead_lettered")
			return
		}
		logger.Error().Err(err).Str("kind", env.Kind).Msg("queue_dlq_insert_failed")
	}
	if err := w.R.LPush(ctx, keys.dead(), env.encode()).Err(); err != nil {
		logger.Error().Err(err).Str("kind", env.Kind).Msg("queue_dead_list_push_failed")
	}
}

// release frees the idempotency key so the same work can be enqueued again.
func (w Worker) release(ctx context.Context, keys keyspace, env envelope) {
	if env.Key != "" {
		_ = w.R.Del(ctx, keys.dedup(env.Key)).Err()
	}
}

// reap returns in-flight tasks whose deadline passed to the ready set, or
// dead-letters them when that delivery was their last.
func (w Worker) reap(ctx context.Context, keys keyspace) {
	now := time.Now()
	expired, err := w.R.ZRangeByScore(ctx, keys.inflight(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			w.log().Warn().Err(err).Str("kind", w.Kind).Msg("queue_reap_failed")
		}
		return
	}
	for _, raw := range expired {
		if n, err := w.R.ZRem(ctx, keys.inflight(), raw).Result(); err != nil || n == 0 {
			continue
		}
		env, err := decode(raw)
		if err != nil {
			continue
		}
		env.Deliveries++
		if env.exhausted() {
			w.deadLetter(ctx, keys, env, "visibility timeout expired")
			continue
		}
		env.DueAt = now.UnixMilli()
		w.log().Debug().Str("kind", env.Kind).Int("attempt", env.Deliveries).Msg("queue_task_visibility_expired")
		_ = w.R.ZAdd(ctx, keys.ready(), redis.Z{Score: float64(env.DueAt), Member: env.encode()}).Err()
	}
	if depth, err := w.R.ZCard(ctx, keys.ready()).Result(); err == nil {
		QueueDepth.WithLabelValues(w.Kind).Set(float64(depth))
	}
}

func idle(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
