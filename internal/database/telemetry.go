package database

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"

	"github.com/acoplu/borsa-aslani/internal/telemetry"
)

// TracedPool wraps a DatabasePool and records one storage span per call.
type TracedPool struct {
	pool   DatabasePool
	tracer trace.Tracer
}

// NewTracedPool traces pool on the global storage tracer.
func NewTracedPool(pool DatabasePool) *TracedPool {
	return NewTracedPoolWith(pool, telemetry.GetStorageTracer())
}

// NewTracedPoolWith traces pool on tracer.
func NewTracedPoolWith(pool DatabasePool, tracer trace.Tracer) *TracedPool {
	return &TracedPool{pool: pool, tracer: tracer}
}

func (p *TracedPool) start(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	ctx, span := telemetry.StartSpan(ctx, p.tracer, "postgres."+op)
	telemetry.SetSpanAttributes(span,
		telemetry.StringAttribute("db.system", "postgresql"),
		telemetry.StringAttribute("db.operation", statementVerb(sql)),
	)
	return ctx, span
}

// QueryRow traces the call only; the row error surfaces on Scan.
func (p *TracedPool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctx, span := p.start(ctx, "query_row", sql)
	defer span.End()
	return p.pool.QueryRow(ctx, sql, args...)
}

func (p *TracedPool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ctx, span := p.start(ctx, "exec", sql)
	defer span.End()

	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		telemetry.RecordError(span, err)
		return tag, err
	}
	telemetry.SetSpanAttributes(span, telemetry.Int64Attribute("db.rows_affected", tag.RowsAffected()))
	return tag, nil
}

func (p *TracedPool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, span := p.start(ctx, "query", sql)
	defer span.End()

	rows, err := p.pool.Query(ctx, sql, args...)
	telemetry.RecordError(span, err)
	return rows, err
}

// statementVerb returns the leading SQL keyword, e.g. SELECT.
func statementVerb(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
