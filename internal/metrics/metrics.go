// Package metrics exposes Prometheus metrics for remediation runs.
//
// Metrics observes the orchestrator as an engine.Hook and the provider
// router through its retry and response callbacks. Handler serves the
// registry on /metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ChamsBouzaiene/aipair/internal/engine"
)

const (
	metricsNamespace = "aipair"
	runSubsystem     = "run"
	providerSubsys   = "provider"
)

// Metrics holds every collector. All methods are safe for concurrent use.
type Metrics struct {
	// RunsTotal counts finished runs. Labels: outcome
	RunsTotal *prometheus.CounterVec

	// CyclesTotal counts finished cycles. Labels: model, result
	CyclesTotal *prometheus.CounterVec

	// CycleDurationSeconds measures one generate/apply/build/test cycle.
	// Labels: result
	CycleDurationSeconds *prometheus.HistogramVec

	// CyclesPerRun is the number of cycles a run needed.
	CyclesPerRun prometheus.Histogram

	// EscalationsTotal counts switches to the escalation model.
	EscalationsTotal prometheus.Counter

	// ActiveRuns is 1 while a run is in flight.
	ActiveRuns prometheus.Gauge

	// ProviderRetriesTotal counts transient provider retries. Labels: model
	ProviderRetriesTotal *prometheus.CounterVec

	// TokensTotal counts tokens. Labels: model, direction (input, output)
	TokensTotal *prometheus.CounterVec

	// DroppedEventsTotal counts observer events dropped on a full channel.
	// Labels: kind
	DroppedEventsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: runSubsystem,
			Name:      "runs_total",
			Help:      "Finished remediation runs by outcome",
		}, []string{"outcome"}),
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: runSubsystem,
			Name:      "cycles_total",
			Help:      "Finished cycles by model and result",
		}, []string{"model", "result"}),
		CycleDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: runSubsystem,
			Name:      "cycle_duration_seconds",
			Help:      "Cycle duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34m
		}, []string{"result"}),
		CyclesPerRun: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: runSubsystem,
			Name:      "cycles_per_run",
			Help:      "Cycles executed per run, across escalation",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 20},
		}),
		EscalationsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: runSubsystem,
			Name:      "escalations_total",
			Help:      "Switches to the escalation model",
		}),
		ActiveRuns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: runSubsystem,
			Name:      "active",
			Help:      "Runs currently in flight",
		}),
		ProviderRetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: providerSubsys,
			Name:      "retries_total",
			Help:      "Transient provider failures that were retried",
		}, []string{"model"}),
		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: providerSubsys,
			Name:      "tokens_total",
			Help:      "Tokens used by model and direction",
		}, []string{"model", "direction"}),
		DroppedEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: runSubsystem,
			Name:      "dropped_events_total",
			Help:      "Observer events dropped because the channel was full",
		}, []string{"kind"}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordProviderRetry is a providers.WithRetryCallback target.
func (m *Metrics) RecordProviderRetry(model string) {
	m.ProviderRetriesTotal.WithLabelValues(model).Inc()
}

// RecordTokens adds one completion's token usage.
func (m *Metrics) RecordTokens(model string, input, output int) {
	if input > 0 {
		m.TokensTotal.WithLabelValues(model, "input").Add(float64(input))
	}
	if output > 0 {
		m.TokensTotal.WithLabelValues(model, "output").Add(float64(output))
	}
}

// RecordDroppedEvent is an engine.ChannelHook Dropped target.
func (m *Metrics) RecordDroppedEvent(kind string) {
	m.DroppedEventsTotal.WithLabelValues(kind).Inc()
}

// Hook returns an engine.Hook feeding m.
func (m *Metrics) Hook() engine.Hook {
	return runHook{m: m}
}

type runHook struct {
	engine.NopHook
	m *Metrics
}

func (h runHook) OnRunStart(context.Context, string, engine.CycleState) {
	h.m.ActiveRuns.Inc()
}

func (h runHook) OnCycleEnd(_ context.Context, rec engine.CycleRecord, _ engine.CycleArtifacts, _ engine.CycleState) {
	h.m.CyclesTotal.WithLabelValues(rec.Model, string(rec.Result)).Inc()
	if d := rec.EndedAt.Sub(rec.StartedAt); d >= 0 {
		h.m.CycleDurationSeconds.WithLabelValues(string(rec.Result)).Observe(d.Seconds())
	}
}

func (h runHook) OnEscalation(context.Context, string, string) {
	h.m.EscalationsTotal.Inc()
}

func (h runHook) OnDone(_ context.Context, rep engine.Report) {
	h.m.ActiveRuns.Dec()
	h.m.RunsTotal.WithLabelValues(string(rep.Outcome)).Inc()
	h.m.CyclesPerRun.Observe(float64(rep.TotalCycles))
}
