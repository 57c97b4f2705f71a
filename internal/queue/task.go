package queue

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// DefaultMaxAttempts applies when neither the task nor the enqueuer sets a limit.
const DefaultMaxAttempts = 10

// Task is a unit of background work. Kind selects the worker; Payload is
// opaque to the queue.
type Task struct {
	Kind           string
	Payload        []byte
	IdempotencyKey string
	MaxAttempts    int
	Delay          time.Duration
	// Attempt is 1 on the first delivery.
	Attempt int
}

var validKind = regexp.MustCompile(`^[a-z0-9][a-z0-9._:-]*$`)

// envelope is the sorted-set member. Deliveries counts handler runs that
// have already started.
type envelope struct {
	Kind        string `json:"kind"`
	Key         string `json:"key,omitempty"`
	Payload     []byte `json:"payload"`
	Deliveries  int    `json:"deliveries"`
	MaxAttempts int    `json:"max_attempts"`
	DueAt       int64  `json:"due_at"`
}

func (e envelope) encode() string {
	raw, _ := json.Marshal(e)
	return string(raw)
}

func decode(raw string) (envelope, error) {
	var e envelope
	err := json.Unmarshal([]byte(raw), &e)
	return e, err
}

func (e envelope) exhausted() bool {
	return e.MaxAttempts > 0 && e.Deliveries >= e.MaxAttempts
}

func (e envelope) task() Task {
	return Task{
		Kind:           e.Kind,
		Payload:        e.Payload,
		IdempotencyKey: e.Key,
		MaxAttempts:    e.MaxAttempts,
		Attempt:        e.Deliveries,
	}
}

// keyspace names the Redis keys of one kind. Scores are Unix milliseconds.
type keyspace struct {
	prefix string
	kind   string
}

func keysFor(prefix, kind string) keyspace {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "toko"
	}
	return keyspace{prefix: prefix, kind: kind}
}

func (k keyspace) ready() string    { return k.prefix + ":queue:" + k.kind }
func (k keyspace) inflight() string { return k.prefix + ":queue:" + k.kind + ":inflight" }
func (k keyspace) dead() string     { return k.prefix + ":queue:" + k.kind + ":dead" }
func (k keyspace) dedup(key string) string {
	return k.prefix + ":queue:" + k.kind + ":dedup:" + key
}

func millis(t time.Time) float64 { return float64(t.UnixMilli()) }
