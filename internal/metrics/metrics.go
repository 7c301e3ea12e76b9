// Package metrics exposes the Prometheus instruments for the insights
// pipeline. A single Registry is created at startup and threaded into
// the components that record to it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for the engine.
type Registry struct {
	StageDuration *prometheus.HistogramVec

	RunsTotal   *prometheus.CounterVec
	ActiveRuns  prometheus.Gauge
	KPIsSkipped *prometheus.CounterVec

	AnomaliesTotal       *prometheus.CounterVec
	RecommendationsTotal *prometheus.CounterVec
	BriefingItems        prometheus.Histogram

	EnrichmentCalls    *prometheus.CounterVec
	EnrichmentFailures prometheus.Counter

	ModelRefits    *prometheus.CounterVec
	FeedbackEvents *prometheus.CounterVec
}

// NewRegistry creates and registers all engine metrics on reg. Pass
// prometheus.DefaultRegisterer outside tests.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insights_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage", "result"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insights_runs_total",
				Help: "Total tenant runs by outcome",
			},
			[]string{"status"},
		),
		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "insights_active_runs",
				Help: "Number of tenant runs currently in flight",
			},
		),
		KPIsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insights_kpis_skipped_total",
				Help: "KPIs skipped during a run by reason",
			},
			[]string{"reason"},
		),
		AnomaliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insights_anomalies_total",
				Help: "Anomalies detected by severity",
			},
			[]string{"severity"},
		),
		RecommendationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insights_recommendations_total",
				Help: "Recommendations produced by source stage",
			},
			[]string{"source"},
		),
		BriefingItems: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "insights_briefing_items",
				Help:    "Items included per generated briefing",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7},
			},
		),
		EnrichmentCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insights_enrichment_calls_total",
				Help: "Enrichment attempts by outcome",
			},
			[]string{"outcome"},
		),
		EnrichmentFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "insights_enrichment_failures_total",
				Help: "Enrichment calls that fell back to the template text",
			},
		),
		ModelRefits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insights_model_refits_total",
				Help: "Seasonal model refits by trigger",
			},
			[]string{"trigger"},
		),
		FeedbackEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insights_feedback_events_total",
				Help: "Feedback events received by action",
			},
			[]string{"action"},
		),
	}

	reg.MustRegister(
		r.StageDuration,
		r.RunsTotal,
		r.ActiveRuns,
		r.KPIsSkipped,
		r.AnomaliesTotal,
		r.RecommendationsTotal,
		r.BriefingItems,
		r.EnrichmentCalls,
		r.EnrichmentFailures,
		r.ModelRefits,
		r.FeedbackEvents,
	)
	return r
}

// StageTimer times one pipeline stage.
type StageTimer struct {
	reg   *Registry
	stage string
	start time.Time
}

// StartStage begins timing a pipeline stage.
func (r *Registry) StartStage(stage string) *StageTimer {
	return &StageTimer{reg: r, stage: stage, start: time.Now()}
}

// Stop records the stage duration with the given result label.
func (t *StageTimer) Stop(result string) {
	t.reg.StageDuration.WithLabelValues(t.stage, result).Observe(time.Since(t.start).Seconds())
}

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler { return promhttp.Handler() }
