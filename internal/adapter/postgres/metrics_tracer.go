package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/metrics"
)

// MetricsTracer records query duration and errors for every statement the
// pool runs, labelled by statement kind.
type MetricsTracer struct {
	metrics *metrics.PostgresMetrics
	clock   clockwork.Clock
}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

type queryContextKey struct{}

type queryContext struct {
	start time.Time
	kind  string
}

func NewMetricsTracer(m *metrics.PostgresMetrics, clock clockwork.Clock) *MetricsTracer {
	return &MetricsTracer{metrics: m, clock: clock}
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{
		start: t.clock.Now(),
		kind:  statementKind(data.SQL),
	})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}

	t.metrics.QueryDuration.WithLabelValues(qctx.kind).Observe(t.clock.Since(qctx.start).Seconds())
	if data.Err != nil {
		t.metrics.QueryErrors.WithLabelValues(qctx.kind).Inc()
	}
}

// statementKind returns the leading SQL keyword, upper-cased, so labels stay
// low-cardinality.
func statementKind(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	kind := strings.ToUpper(fields[0])
	if len(kind) > 20 {
		kind = kind[:20]
	}
	return kind
}
