// Package metrics counts orchestration activity in a private Prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker state gauge values.
const (
	BreakerClosed   = 0
	BreakerOpen     = 1
	BreakerHalfOpen = 2
)

// Metrics holds the collectors for one process.
//
// Metrics:
//   - agentline_intents_total{intent}
//   - agentline_stage_events_total{stage,action}
//   - agentline_phase_transitions_total{from,to}
//   - agentline_gate_evaluations_total{checkpoint,verdict}
//   - agentline_gate_rejections_total{checkpoint}
//   - agentline_breaker_state{checkpoint}
//   - agentline_deviations_total{type}
//   - agentline_pipeline_progress_percent
type Metrics struct {
	Registry *prometheus.Registry

	IntentsTotal          *prometheus.CounterVec
	StageEventsTotal      *prometheus.CounterVec
	PhaseTransitionsTotal *prometheus.CounterVec
	GateEvaluationsTotal  *prometheus.CounterVec
	GateRejectionsTotal   *prometheus.CounterVec
	BreakerState          *prometheus.GaugeVec
	DeviationsTotal       *prometheus.CounterVec
	Progress              prometheus.Gauge
}

// New registers every collector in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		IntentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentline_intents_total",
			Help: "Routed requests by classified intent",
		}, []string{"intent"}),
		StageEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentline_stage_events_total",
			Help: "Stage lifecycle events",
		}, []string{"stage", "action"}),
		PhaseTransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentline_phase_transitions_total",
			Help: "Phase changes, forward or reset",
		}, []string{"from", "to"}),
		GateEvaluationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentline_gate_evaluations_total",
			Help: "Gate verdicts",
		}, []string{"checkpoint", "verdict"}),
		GateRejectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentline_gate_rejections_total",
			Help: "Gate evaluations refused by an open circuit breaker",
		}, []string{"checkpoint"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentline_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"checkpoint"}),
		DeviationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentline_deviations_total",
			Help: "Applied deviations by type",
		}, []string{"type"}),
		Progress: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentline_pipeline_progress_percent",
			Help: "Share of applicable stages completed or skipped",
		}),
	}
}

// SetBreakerState records a breaker state by name (CLOSED, OPEN, HALF_OPEN).
func (m *Metrics) SetBreakerState(checkpoint, state string) {
	v := BreakerClosed
	switch state {
	case "OPEN":
		v = BreakerOpen
	case "HALF_OPEN":
		v = BreakerHalfOpen
	}
	m.BreakerState.WithLabelValues(checkpoint).Set(float64(v))
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
