package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady flips the readiness gate; the engine clears it when draining.
func SetReady(v bool) {
	ready.Store(v)
}

// Checker pings the stores every deployment needs.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// KafkaChecker is implemented by checkers that also probe the event broker.
type KafkaChecker interface {
	PingKafka(ctx context.Context, timeout time.Duration) error
}

// Handler serves the liveness and readiness probes.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
	KafkaTimeout time.Duration
}

// Report is the readiness body. Checks maps a dependency to "ok" or the
// error it returned.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type dependency struct {
	name    string
	ping    func(context.Context, time.Duration) error
	timeout time.Duration
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func (h Handler) dependencies() []dependency {
	deps := []dependency{
		{"db", h.Checker.PingDB, orDefault(h.DBTimeout, 500*time.Millisecond)},
		{"redis", h.Checker.PingRedis, orDefault(h.RedisTimeout, 300*time.Millisecond)},
	}
	if kc, ok := h.Checker.(KafkaChecker); ok {
		deps = append(deps, dependency{"kafka", kc.PingKafka, orDefault(h.KafkaTimeout, time.Second)})
	}
	return deps
}

// Live answers as long as the process serves HTTP.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// Ready pings every dependency in parallel and answers 503 unless all pass
// and the process is not draining.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	switch {
	case h.Checker == nil:
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	case !ready.Load():
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	deps := h.dependencies()
	results := make([]string, len(deps))
	var wg sync.WaitGroup
	for i, d := range deps {
		i, d := i, d
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = "ok"
			if err := d.ping(r.Context(), d.timeout); err != nil {
				results[i] = err.Error()
			}
		}()
	}
	wg.Wait()

	rep := Report{Status: "ok", Checks: make(map[string]string, len(deps))}
	code := http.StatusOK
	for i, d := range deps {
		rep.Checks[d.name] = results[i]
		if results[i] != "ok" {
			rep.Status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rep)
}
