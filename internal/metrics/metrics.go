package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
	OutcomeCacheHit = "cache_hit"
)

// Metrics provides observability for the userdata store.  Each instance
// owns its registry so tests can build as many as they like.
type Metrics struct {
	registry         *prometheus.Registry
	Operations       *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
	RecordsCreated   prometheus.Counter
	Throttled        *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered, including
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "userdata_operations_total",
			Help: "Userdata operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "userdata_operation_duration_seconds",
			Help:    "Duration of userdata operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		RecordsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "userdata_records_created_total",
			Help: "Total number of userdata records created",
		}),
		Throttled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "userdata_requests_throttled_total",
			Help: "Requests rejected by the rate limiter, by route",
		}, []string{"route"}),
	}
}

// Observe records one operation.  Call with time.Now() taken at the start
// of the operation.  Safe on a nil receiver.
func (m *Metrics) Observe(operation, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
	m.OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// IncrementRecordsCreated records a successful create.
func (m *Metrics) IncrementRecordsCreated() {
	if m == nil {
		return
	}
	m.RecordsCreated.Inc()
}

// IncrementThrottled records a request rejected by the rate limiter.
func (m *Metrics) IncrementThrottled(route string) {
	if m == nil {
		return
	}
	m.Throttled.WithLabelValues(route).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
