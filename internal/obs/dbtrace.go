package obs

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxStatementLen = 300

type queryKey struct{}

type queryTrace struct {
	span  trace.Span
	sql   string
	start time.Time
}

// PGXTracer is a pgx.QueryTracer opening one span per statement. Statements
// slower than Slow are also logged at warn level.
type PGXTracer struct {
	Slow   time.Duration
	Logger zerolog.Logger
}

func (t PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	sql := statement(data.SQL)
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement", sql),
	}
	if op, _, _ := strings.Cut(sql, " "); op != "" {
		attrs = append(attrs, attribute.String("db.operation", strings.ToUpper(op)))
	}
	ctx, span := Tracer("db").Start(ctx, "pgx.query", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
	return context.WithValue(ctx, queryKey{}, queryTrace{span: span, sql: sql, start: time.Now()})
}

func (t PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	q, ok := ctx.Value(queryKey{}).(queryTrace)
	if !ok {
		return
	}
	q.span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	EndSpan(q.span, data.Err)
	if elapsed := time.Since(q.start); t.Slow > 0 && elapsed >= t.Slow {
		TraceFields(ctx, t.Logger.Warn()).
			Float64("duration_ms", DurationMillis(elapsed)).
			Str("statement", q.sql).
			Msg("slow_query")
	}
}

// statement collapses whitespace so multi-line SQL reads on one line.
func statement(sql string) string {
	s := strings.Join(strings.Fields(sql), " ")
	if len(s) > maxStatementLen {
		return s[:maxStatementLen] + "..."
	}
	return s
}
