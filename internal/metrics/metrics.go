// Package metrics defines the Prometheus collectors of the service.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Hermetic-Labs/hermetic-fhe/internal/errs"
	"github.com/Hermetic-Labs/hermetic-fhe/internal/registry"
)

const namespace = "fhe"

// Metrics holds the service collectors.
type Metrics struct {
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	evaluations  *prometheus.CounterVec
	computeBusy  prometheus.Gauge
	computeWait  prometheus.Histogram
	jobs         *prometheus.CounterVec

	registerer prometheus.Registerer
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) *Metrics {
	m := Metrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Number of service calls by method and result code",
			},
			[]string{"method", "code"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "call_duration_seconds",
				Help:      "Duration of service calls",
				Buckets:   prometheus.ExponentialBucketsRange(0.001, 120, 14),
			},
			[]string{"method"},
		),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Number of homomorphic evaluations by operation and result code",
			},
			[]string{"operation", "code"},
		),
		computeBusy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "compute_slots_busy",
				Help:      "Number of compute slots running cryptographic work",
			},
		),
		computeWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compute_wait_seconds",
				Help:      "Time spent waiting for a compute slot",
				Buckets:   prometheus.ExponentialBucketsRange(0.0001, 30, 12),
			},
		),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Number of asynchronous jobs by final status",
			},
			[]string{"status"},
		),
		registerer: registerer,
	}

	registerer.MustRegister(m.calls)
	registerer.MustRegister(m.callDuration)
	registerer.MustRegister(m.evaluations)
	registerer.MustRegister(m.computeBusy)
	registerer.MustRegister(m.computeWait)
	registerer.MustRegister(m.jobs)

	return &m
}

func code(err error) string {
	if err == nil {
		return "OK"
	}
	return errs.CodeOf(err).String()
}

// ObserveCall records one service call.
func (m *Metrics) ObserveCall(method string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(method, code(err)).Inc()
	m.callDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveEvaluation records one evaluation of operation.
func (m *Metrics) ObserveEvaluation(operation string, err error) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(operation, code(err)).Inc()
}

// ComputeAcquired records a slot acquisition after waiting d.
func (m *Metrics) ComputeAcquired(d time.Duration) {
	if m == nil {
		return
	}
	m.computeWait.Observe(d.Seconds())
	m.computeBusy.Inc()
}

func (m *Metrics) ComputeReleased() {
	if m == nil {
		return
	}
	m.computeBusy.Dec()
}

// JobFinished records a job reaching a terminal status.
func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(status).Inc()
}

// WatchRegistry exports the object counts of r as gauges.
func (m *Metrics) WatchRegistry(r *registry.Registry) {
	if m == nil {
		return
	}
	for _, kind := range registry.Kinds() {
		m.registerer.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "registry_objects",
				Help:        "Number of objects in the handle registry",
				ConstLabels: prometheus.Labels{"kind": kind.String()},
			},
			func() float64 { return float64(r.Count(kind)) },
		))
	}
}
