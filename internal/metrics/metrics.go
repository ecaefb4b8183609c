// Package metrics exposes limiter decisions as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SmitUplenchwar2687/quota/internal/limiter"
)

const (
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"

	OperationConsume = "consume"
	OperationCheck   = "check"
)

// Metrics holds the limiter collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	decisions *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

// New creates the collectors and registers them with a fresh registry,
// together with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quota_decisions_total",
				Help: "Total number of limiter calls by outcome",
			},
			[]string{"algorithm", "operation", "outcome"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quota_decision_duration_seconds",
				Help:    "Duration of limiter calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16), // 10µs to ~330ms
			},
			[]string{"algorithm", "operation"},
		),
	}
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Observe records one limiter call.
func (m *Metrics) Observe(alg limiter.Algorithm, operation string, err error, took time.Duration) {
	m.decisions.WithLabelValues(string(alg), operation, Outcome(err)).Inc()
	m.latency.WithLabelValues(string(alg), operation).Observe(took.Seconds())
}

// Outcome classifies a limiter error.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeAllowed
	case errors.Is(err, limiter.ErrQuotaExceeded):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

// Instrument wraps lim so every call is recorded in m.
func Instrument(lim limiter.Limiter, m *Metrics) limiter.Limiter {
	return &instrumented{Limiter: lim, m: m}
}

type instrumented struct {
	limiter.Limiter
	m *Metrics
}

func (i *instrumented) Consume(ctx context.Context, id string, opts ...limiter.ConsumeOption) (limiter.Result, error) {
	start := time.Now()
	r, err := i.Limiter.Consume(ctx, id, opts...)
	i.m.Observe(i.Algorithm(), OperationConsume, err, time.Since(start))
	return r, err
}

func (i *instrumented) Check(ctx context.Context, id string, opts ...limiter.ConsumeOption) (limiter.Result, error) {
	start := time.Now()
	r, err := i.Limiter.Check(ctx, id, opts...)
	i.m.Observe(i.Algorithm(), OperationCheck, err, time.Since(start))
	return r, err
}
