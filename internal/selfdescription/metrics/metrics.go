package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the self-description lifecycle.
type Metrics struct {
	Stored           prometheus.Counter
	Deleted          prometheus.Counter
	Transitions      *prometheus.CounterVec
	Failures         *prometheus.CounterVec
	SweepExamined    prometheus.Counter
	SweepExpired     prometheus.Counter
	SweepRaced       prometheus.Counter
	SweepDuration    prometheus.Histogram
	PublishFailures  prometheus.Counter
	OperationLatency *prometheus.HistogramVec
}

// New registers the lifecycle metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Stored: f.NewCounter(prometheus.CounterOpts{
			Name: "sdc_self_descriptions_stored_total",
			Help: "Total number of self-descriptions accepted",
		}),
		Deleted: f.NewCounter(prometheus.CounterOpts{
			Name: "sdc_self_descriptions_deleted_total",
			Help: "Total number of self-descriptions deleted",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sdc_status_transitions_total",
			Help: "Status transitions by target status",
		}, []string{"status"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sdc_operation_failures_total",
			Help: "Failed lifecycle operations by operation and error code",
		}, []string{"operation", "code"}),
		SweepExamined: f.NewCounter(prometheus.CounterOpts{
			Name: "sdc_sweep_examined_total",
			Help: "Expired records examined by the expiry sweep",
		}),
		SweepExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "sdc_sweep_expired_total",
			Help: "Records moved to EOL by the expiry sweep",
		}),
		SweepRaced: f.NewCounter(prometheus.CounterOpts{
			Name: "sdc_sweep_raced_total",
			Help: "Records the sweep skipped because another writer changed them first",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sdc_sweep_duration_seconds",
			Help:    "Duration of one expiry sweep",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "sdc_event_publish_failures_total",
			Help: "Lifecycle events that could not be published",
		}),
		OperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sdc_operation_duration_seconds",
			Help:    "Duration of lifecycle operations",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementStored() {
	m.Stored.Inc()
}

func (m *Metrics) IncrementDeleted() {
	m.Deleted.Inc()
}

func (m *Metrics) IncrementTransition(status string) {
	m.Transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementFailure(operation, code string) {
	m.Failures.WithLabelValues(operation, code).Inc()
}

// ObserveSweep records the outcome of one sweep.
func (m *Metrics) ObserveSweep(examined, expired, raced int, start time.Time) {
	m.SweepExamined.Add(float64(examined))
	m.SweepExpired.Add(float64(expired))
	m.SweepRaced.Add(float64(raced))
	m.SweepDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementPublishFailures() {
	m.PublishFailures.Inc()
}

// ObserveOperation records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
