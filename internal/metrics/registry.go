// Package metrics exposes pipeline and source metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Step results
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Registry holds every collector the tool reports
type Registry struct {
	reg *prometheus.Registry

	// Pipeline step metrics
	StepDuration *prometheus.HistogramVec
	Steps        *prometheus.CounterVec
	ActiveRuns   prometheus.Gauge

	// Remote source metrics
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CircuitState    *prometheus.GaugeVec

	// Screening results
	Flagged         *prometheus.CounterVec
	FacilitiesTotal prometheus.Gauge
}

// NewRegistry creates a registry with all collectors registered
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "daycarewatch_step_duration_seconds",
				Help:    "Duration of pipeline steps",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"step", "result"},
		),

		Steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daycarewatch_steps_total",
				Help: "Pipeline steps executed by step and result",
			},
			[]string{"step", "result"},
		),

		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "daycarewatch_active_runs",
				Help: "Pipeline runs in progress",
			},
		),

		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daycarewatch_http_requests_total",
				Help: "Requests to remote sources by source and outcome",
			},
			[]string{"source", "outcome"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "daycarewatch_http_request_duration_seconds",
				Help:    "Latency of requests to remote sources",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),

		CircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "daycarewatch_circuit_state",
				Help: "Circuit breaker state per source (0=closed, 1=half-open, 2=open)",
			},
			[]string{"source"},
		),

		Flagged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "daycarewatch_facilities_flagged_total",
				Help: "Facilities flagged by indicator",
			},
			[]string{"indicator"},
		),

		FacilitiesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "daycarewatch_facilities_loaded",
				Help: "Facilities loaded from the registry in the last step",
			},
		),
	}

	r.reg.MustRegister(
		r.StepDuration,
		r.Steps,
		r.ActiveRuns,
		r.Requests,
		r.RequestDuration,
		r.CircuitState,
		r.Flagged,
		r.FacilitiesTotal,
	)
	return r
}

// Gatherer exposes the underlying registry, mostly for tests
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// StepTimer tracks execution time for a pipeline step
type StepTimer struct {
	metrics *Registry
	step    string
	start   time.Time
}

// StartStep begins timing a pipeline step
func (r *Registry) StartStep(step string) *StepTimer {
	return &StepTimer{metrics: r, step: step, start: time.Now()}
}

// Stop records the step duration under result
func (st *StepTimer) Stop(result string) time.Duration {
	d := time.Since(st.start)
	st.metrics.StepDuration.WithLabelValues(st.step, result).Observe(d.Seconds())
	st.metrics.Steps.WithLabelValues(st.step, result).Inc()

	log.Debug().
		Str("step", st.step).
		Str("result", result).
		Dur("duration", d).
		Msg("Pipeline step completed")
	return d
}

// ObserveRequest records one request to a remote source
func (r *Registry) ObserveRequest(source, outcome string, d time.Duration) {
	r.Requests.WithLabelValues(source, outcome).Inc()
	r.RequestDuration.WithLabelValues(source).Observe(d.Seconds())
}

// BreakerChanged tracks breaker transitions
func (r *Registry) BreakerChanged(source string, _, to gobreaker.State) {
	r.CircuitState.WithLabelValues(source).Set(stateValue(to))
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// RecordFlags adds per-indicator counts from one screening run
func (r *Registry) RecordFlags(counts map[string]int) {
	for indicator, n := range counts {
		r.Flagged.WithLabelValues(indicator).Add(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
