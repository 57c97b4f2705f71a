package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-engine/internal/health"
)

type stores struct{ db, redis error }

func (s stores) PingDB(context.Context, time.Duration) error    { return s.db }
func (s stores) PingRedis(context.Context, time.Duration) error { return s.redis }

type withBroker struct {
	stores
	kafka error
}

func (b withBroker) PingKafka(context.Context, time.Duration) error { return b.kafka }

func ready(t *testing.T, h health.Handler) (int, health.Report) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var rep health.Report
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	}
	return rec.Code, rep
}

func TestReady(t *testing.T) {
	cases := []struct {
		name    string
		checker health.Checker
		code    int
		checks  map[string]string
	}{
		{"all up", stores{}, http.StatusOK, map[string]string{"db": "ok", "redis": "ok"}},
		{"db down", stores{db: errors.New("db down")}, http.StatusServiceUnavailable, map[string]string{"db": "db down", "redis": "ok"}},
		{"broker down", withBroker{kafka: errors.New("no brokers reachable")}, http.StatusServiceUnavailable,
			map[string]string{"db": "ok", "redis": "ok", "kafka": "no brokers reachable"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, rep := ready(t, health.Handler{Checker: tc.checker, DBTimeout: 10 * time.Millisecond})
			require.Equal(t, tc.code, code)
			require.Equal(t, tc.checks, rep.Checks)
		})
	}

	code, _ := ready(t, health.Handler{})
	require.Equal(t, http.StatusServiceUnavailable, code)
}

func TestDrainingFailsReadinessButNotLiveness(t *testing.T) {
	health.SetReady(false)
	t.Cleanup(func() { health.SetReady(true) })

	h := health.Handler{Checker: stores{}}
	code, _ := ready(t, h)
	require.Equal(t, http.StatusServiceUnavailable, code)

	rec := httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestProbes(t *testing.T) {
	ctx := context.Background()
	empty := health.Probes{}
	require.Error(t, empty.PingDB(ctx, time.Millisecond))
	require.Error(t, empty.PingRedis(ctx, time.Millisecond))
	require.NoError(t, empty.PingKafka(ctx, time.Millisecond), "no brokers configured")

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, health.Probes{Redis: client}.PingRedis(ctx, time.Second))

	unreachable := health.Probes{KafkaBrokers: []string{"127.0.0.1:1"}}
	require.Error(t, unreachable.PingKafka(ctx, 200*time.Millisecond))
}
