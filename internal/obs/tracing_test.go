package obs_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/noah-isme/toko-engine/internal/obs"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestInitTracerExporters(t *testing.T) {
	ctx := context.Background()
	shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{ServiceName: "toko-engine"})
	require.NoError(t, err)
	require.NoError(t, shutdown(ctx))

	_, err = obs.InitTracer(ctx, obs.TracingConfig{Exporter: "jaeger"})
	require.ErrorContains(t, err, "jaeger")
}

func TestEndSpanRecordsFailure(t *testing.T) {
	rec := recordSpans(t)
	_, fine := obs.Tracer("checkout").Start(context.Background(), "checkout.create_order")
	obs.EndSpan(fine, nil)
	_, failed := obs.Tracer("checkout").Start(context.Background(), "checkout.create_order")
	obs.EndSpan(failed, errors.New("out of stock"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, codes.Unset, spans[0].Status().Code)
	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.Equal(t, "out of stock", spans[1].Status().Description)
	require.Equal(t, "toko-engine/checkout", spans[1].InstrumentationScope().Name)
}

func TestPGXTracerSpansAndSlowLog(t *testing.T) {
	rec := recordSpans(t)
	var buf bytes.Buffer
	tracer := obs.PGXTracer{Slow: time.Nanosecond, Logger: zerolog.New(&buf)}

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "insert into orders\n  (id, number)\n  values ($1, $2)"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("INSERT 0 1")})

	spans := rec.Ended()
	require.Len(t, spans, 1)
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	require.Equal(t, "INSERT", attrs["db.operation"].AsString())
	require.Equal(t, "insert into orders (id, number) values ($1, $2)", attrs["db.statement"].AsString())
	require.Equal(t, int64(1), attrs["db.rows_affected"].AsInt64())
	require.Contains(t, buf.String(), `"message":"slow_query"`)
	require.Contains(t, buf.String(), `"trace_id"`)

	tracer.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{})
	require.Len(t, rec.Ended(), 1, "an end without a start is ignored")
}
