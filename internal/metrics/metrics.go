package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	ProbeRequests *prometheus.CounterVec
	ProbeLatency  *prometheus.HistogramVec
	Resolutions   *prometheus.CounterVec
	StoreOps      *prometheus.CounterVec
	StoreLatency  *prometheus.HistogramVec
	RegistryState *prometheus.GaugeVec
	Accounts      prometheus.Gauge
	Errors        *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = newMetrics(namespace)
		prometheus.MustRegister(metricsInstance.collectors()...)
	})
	return metricsInstance
}

// NewUnregistered builds a fresh set of collectors that is not attached to the
// default registry. Tests use it to inspect values in isolation.
func NewUnregistered(namespace string) *Metrics {
	return newMetrics(namespace)
}

func newMetrics(namespace string) *Metrics {
	return &Metrics{
		ProbeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_probe_requests_total",
			Help:      "Identity probe attempts by stage and outcome.",
		}, []string{"stage", "outcome"}),
		ProbeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "identity_probe_duration_seconds",
			Help:      "Latency distribution for upstream identity probes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "status"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_resolutions_total",
			Help:      "Finished username resolutions by result kind.",
		}, []string{"kind"}),
		StoreOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Account store operations by backend, operation and status.",
		}, []string{"backend", "op", "status"}),
		StoreLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Latency distribution for account store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "op"}),
		RegistryState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_state",
			Help:      "1 for the current account registry state, 0 otherwise.",
		}, []string{"state"}),
		Accounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accounts",
			Help:      "Accounts currently held by the registry.",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total errors grouped by component.",
		}, []string{"component"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ProbeRequests,
		m.ProbeLatency,
		m.Resolutions,
		m.StoreOps,
		m.StoreLatency,
		m.RegistryState,
		m.Accounts,
		m.Errors,
	}
}
