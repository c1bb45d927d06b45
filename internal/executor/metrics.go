package executor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for query execution. A nil *Metrics
// records nothing.
type Metrics struct {
	queries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	pages    prometheus.Counter
	rows     prometheus.Counter
	shapes   *prometheus.CounterVec
}

// NewMetrics creates execution metrics and registers them with reg.
// It returns nil when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphsql_queries_total",
			Help: "Queries executed, by table kind and outcome",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "graphsql_query_duration_seconds",
			Help:    "Wall time from first page request to last row",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graphsql_pages_total",
			Help: "Command batches submitted to the backend",
		}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graphsql_rows_total",
			Help: "Rows yielded to callers",
		}),
		shapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphsql_connection_shapes_total",
			Help: "Connection query shapes chosen, by case",
		}, []string{"case"}),
	}
	reg.MustRegister(m.queries, m.duration, m.pages, m.rows, m.shapes)
	return m
}

func (m *Metrics) observeQuery(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(kind, outcome).Inc()
	m.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) observePage() {
	if m != nil {
		m.pages.Inc()
	}
}

func (m *Metrics) observeRows(n int) {
	if m != nil {
		m.rows.Add(float64(n))
	}
}

func (m *Metrics) observeShape(c string) {
	if m != nil {
		m.shapes.WithLabelValues(c).Inc()
	}
}
