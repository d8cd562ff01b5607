package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the graph gateway.
type Metrics struct {
	QueryDuration   *prometheus.HistogramVec
	QueriesRejected prometheus.Counter
	QueryTimeouts   prometheus.Counter
	ClaimsImported  prometheus.Counter
}

// New registers the graph metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sdc_graph_operation_duration_seconds",
			Help:    "Duration of graph store operations by operation name",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		QueriesRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "sdc_graph_queries_rejected_total",
			Help: "Total number of ad-hoc queries rejected as mutating",
		}),
		QueryTimeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "sdc_graph_query_timeouts_total",
			Help: "Total number of ad-hoc queries aborted by the transaction timeout",
		}),
		ClaimsImported: f.NewCounter(prometheus.CounterOpts{
			Name: "sdc_graph_triples_imported_total",
			Help: "Total number of triples loaded into the graph",
		}),
	}
}

// ObserveOperation records the duration of a graph operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementRejected() {
	m.QueriesRejected.Inc()
}

func (m *Metrics) IncrementTimeouts() {
	m.QueryTimeouts.Inc()
}

// AddImported records triples reported as loaded by the importer.
func (m *Metrics) AddImported(n int64) {
	if n > 0 {
		m.ClaimsImported.Add(float64(n))
	}
}
