// Package metrics provides the centralized Prometheus metrics registry for the control plane.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	OutcomesRecordedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tradeguard",
		Name:      "outcomes_recorded_total",
		Help:      "Total number of trade outcomes recorded in the ledger",
	})
	RecommendationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeguard",
		Name:      "recommendations_total",
		Help:      "Total number of parameter recommendations by verdict",
	}, []string{"verdict"})
	ThresholdsDerivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tradeguard",
		Name:      "excursion_thresholds_derived_total",
		Help:      "Total number of excursion thresholds derived",
	})
	PromotionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeguard",
		Name:      "promotions_total",
		Help:      "Total number of promotion lifecycle transitions by state",
	}, []string{"state"})
	HaltSignalsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tradeguard",
		Name:      "halt_signals_total",
		Help:      "Total number of catastrophic halt signals raised",
	})
	SnapshotsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tradeguard",
		Name:      "snapshots_total",
		Help:      "Total number of artifact snapshots taken",
	})
	CanaryEvaluationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tradeguard",
		Name:      "canary_evaluations_total",
		Help:      "Total number of canary evaluation passes",
	})
)

// Gauge metrics
var (
	AutoPromotionGate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tradeguard",
		Name:      "auto_promotion_gate",
		Help:      "Auto-promotion gate state (1 armed, 0 cleared)",
	})
	CanarySessionActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tradeguard",
		Name:      "canary_session_active",
		Help:      "Whether a canary session is currently observing (1 or 0)",
	})
	LedgerSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tradeguard",
		Name:      "ledger_size",
		Help:      "Total number of records in the outcome ledger",
	})
	CohortConfidenceLevel = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tradeguard",
		Name:      "cohort_confidence_level",
		Help:      "Confidence tier per cohort (0 insufficient through 3 high)",
	}, []string{"cohort"})
)

// Histogram metrics
var (
	LearningCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tradeguard",
		Name:      "learning_cycle_duration_seconds",
		Help:      "Duration of one learning cycle in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	RestoreDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tradeguard",
		Name:      "restore_duration_seconds",
		Help:      "Duration of snapshot restore operations in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(OutcomesRecordedTotal)
		registry.MustRegister(RecommendationsTotal)
		registry.MustRegister(ThresholdsDerivedTotal)
		registry.MustRegister(PromotionsTotal)
		registry.MustRegister(HaltSignalsTotal)
		registry.MustRegister(SnapshotsTotal)
		registry.MustRegister(CanaryEvaluationsTotal)

		registry.MustRegister(AutoPromotionGate)
		registry.MustRegister(CanarySessionActive)
		registry.MustRegister(LedgerSize)
		registry.MustRegister(CohortConfidenceLevel)

		registry.MustRegister(LearningCycleDuration)
		registry.MustRegister(RestoreDuration)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordOutcome records one ledger write.
func RecordOutcome() {
	OutcomesRecordedTotal.Inc()
}

// RecordRecommendation records an optimizer verdict.
func RecordRecommendation(verdict string) {
	RecommendationsTotal.WithLabelValues(verdict).Inc()
}

// RecordThresholdDerived records a derived excursion threshold.
func RecordThresholdDerived() {
	ThresholdsDerivedTotal.Inc()
}

// RecordPromotionState records a promotion lifecycle transition.
func RecordPromotionState(state string) {
	PromotionsTotal.WithLabelValues(state).Inc()
}

// RecordHaltSignal records a catastrophic halt.
func RecordHaltSignal() {
	HaltSignalsTotal.Inc()
}

// RecordSnapshot records a snapshot taken.
func RecordSnapshot() {
	SnapshotsTotal.Inc()
}

// RecordCanaryEvaluation records one canary evaluation pass.
func RecordCanaryEvaluation() {
	CanaryEvaluationsTotal.Inc()
}

// UpdateGate updates the auto-promotion gate gauge.
func UpdateGate(enabled bool) {
	if enabled {
		AutoPromotionGate.Set(1)
		return
	}
	AutoPromotionGate.Set(0)
}

// UpdateCanaryActive updates the active-session gauge.
func UpdateCanaryActive(active bool) {
	if active {
		CanarySessionActive.Set(1)
		return
	}
	CanarySessionActive.Set(0)
}

// UpdateLedgerSize updates the ledger size gauge.
func UpdateLedgerSize(size int) {
	LedgerSize.Set(float64(size))
}

// UpdateCohortConfidence updates the per-cohort confidence tier gauge.
func UpdateCohortConfidence(cohort string, level int) {
	CohortConfidenceLevel.WithLabelValues(cohort).Set(float64(level))
}

// RecordLearningCycle records the duration of one learning cycle.
func RecordLearningCycle(durationSeconds float64) {
	LearningCycleDuration.Observe(durationSeconds)
}

// RecordRestoreDuration records the duration of a snapshot restore.
func RecordRestoreDuration(durationSeconds float64) {
	RestoreDuration.Observe(durationSeconds)
}
