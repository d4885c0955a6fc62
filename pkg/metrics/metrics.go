package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iddaa-lens/jobscheduler/pkg/engine"
)

const namespace = "jobscheduler"

// Fire kinds used as the "kind" label of the fires counter
const (
	KindScheduled = "scheduled"
	KindManual    = "manual"
	KindMisfired  = "misfired"
)

// Metrics holds the scheduler collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	fires     *prometheus.CounterVec
	failures  *prometheus.CounterVec
	misfires  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	lifecycle *prometheus.CounterVec
}

// New creates the collectors and registers them together with the Go and
// process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fires_total",
			Help:      "Number of job fires handed to a worker.",
		}, []string{"job", "kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fire_failures_total",
			Help:      "Number of job fires that returned an error.",
		}, []string{"job"}),
		misfires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "misfires_total",
			Help:      "Number of fire times detected as missed.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fire_duration_seconds",
			Help:      "Duration of job fires.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"job"}),
		lifecycle: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_operations_total",
			Help:      "Number of lifecycle operations by outcome.",
		}, []string{"job", "op", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fires,
		m.failures,
		m.misfires,
		m.duration,
		m.lifecycle,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveLifecycle counts one lifecycle operation of a job
func (m *Metrics) ObserveLifecycle(job, op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.lifecycle.WithLabelValues(job, op, result).Inc()
}

// Listener returns an engine listener recording fires of the job
func (m *Metrics) Listener(job string) engine.Listener {
	return engine.Listener{
		Name: "metrics",
		OnFire: func(_ context.Context, f engine.Fire) {
			m.fires.WithLabelValues(job, fireKind(f)).Inc()
		},
		OnComplete: func(_ context.Context, f engine.Fire, err error) {
			m.duration.WithLabelValues(job).Observe(time.Since(f.FiredAt).Seconds())
			if err != nil {
				m.failures.WithLabelValues(job).Inc()
			}
		},
		OnMisfire: func(_ context.Context, _ engine.Misfire) {
			m.misfires.WithLabelValues(job).Inc()
		},
	}
}

func fireKind(f engine.Fire) string {
	switch {
	case f.Manual:
		return KindManual
	case f.Misfired:
		return KindMisfired
	default:
		return KindScheduled
	}
}
