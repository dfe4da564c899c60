// Package service contains the orchestration layer that ties the ledger,
// the statistical analyzers and the promotion lifecycle together.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/tradeguard/internal/canary"
	"github.com/yourusername/tradeguard/internal/excursion"
	"github.com/yourusername/tradeguard/internal/ledger"
	"github.com/yourusername/tradeguard/internal/logger"
	"github.com/yourusername/tradeguard/internal/metrics"
	"github.com/yourusername/tradeguard/internal/models"
	"github.com/yourusername/tradeguard/internal/optimizer"
	"github.com/yourusername/tradeguard/internal/promotion"
	"github.com/yourusername/tradeguard/internal/stats"
)

// LearningCycleService runs the periodic learning passes: per-cohort
// excursion thresholds, parameter recommendations, and the canary
// evaluation that commits or reverts in-flight promotions.
type LearningCycleService struct {
	outcomes   ledger.OutcomeLedger
	estimator  *stats.Estimator
	analyzer   *excursion.Analyzer
	optimizer  *optimizer.Optimizer
	controller *promotion.Controller
	gate       *promotion.Gate
	audit      *logger.AuditLogger
	logger     *logrus.Logger
	autoApply  bool

	mu         sync.RWMutex
	thresholds map[string]*models.ExcursionThreshold
	lastCycle  time.Time
}

// NewLearningCycleService creates the orchestrator. With autoApply false the
// service still produces recommendations but never promotes them.
func NewLearningCycleService(
	outcomes ledger.OutcomeLedger,
	estimator *stats.Estimator,
	analyzer *excursion.Analyzer,
	opt *optimizer.Optimizer,
	controller *promotion.Controller,
	gate *promotion.Gate,
	audit *logger.AuditLogger,
	log *logrus.Logger,
	autoApply bool,
) *LearningCycleService {
	return &LearningCycleService{
		outcomes:   outcomes,
		estimator:  estimator,
		analyzer:   analyzer,
		optimizer:  opt,
		controller: controller,
		gate:       gate,
		audit:      audit,
		logger:     log,
		autoApply:  autoApply,
		thresholds: make(map[string]*models.ExcursionThreshold),
	}
}

// RunLearningCycle runs one full learning pass over every known cohort.
// Per-cohort failures are logged and skipped; one bad cohort never blocks
// the rest of the cycle.
func (s *LearningCycleService) RunLearningCycle(ctx context.Context) error {
	started := time.Now()

	cohorts, err := s.outcomes.Cohorts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list cohorts: %w", err)
	}

	for _, cohort := range cohorts {
		s.refreshThreshold(ctx, cohort)
		s.recommendForCohort(ctx, cohort)
	}

	s.updateGauges(ctx)

	s.mu.Lock()
	s.lastCycle = time.Now()
	s.mu.Unlock()

	elapsed := time.Since(started)
	metrics.RecordLearningCycle(elapsed.Seconds())
	s.logger.WithFields(logrus.Fields{
		"cohorts":  len(cohorts),
		"duration": elapsed.String(),
	}).Info("Learning cycle completed")

	return nil
}

// RunEvaluationCycle runs one canary evaluation pass
func (s *LearningCycleService) RunEvaluationCycle(ctx context.Context) error {
	result, err := s.controller.EvaluateCanary(ctx)
	if err != nil {
		return fmt.Errorf("failed to evaluate canary: %w", err)
	}
	if result != nil {
		metrics.RecordCanaryEvaluation()
		switch result.Decision {
		case canary.DecisionRollback:
			metrics.RecordPromotionState(string(models.PromotionRolledBack))
			if result.Catastrophic {
				metrics.RecordHaltSignal()
			}
		case canary.DecisionComplete:
			metrics.RecordPromotionState(string(models.PromotionCompleted))
		}
	}

	s.updateGauges(ctx)
	return nil
}

// Thresholds returns the most recently derived excursion thresholds
func (s *LearningCycleService) Thresholds() []*models.ExcursionThreshold {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ExcursionThreshold, 0, len(s.thresholds))
	for _, t := range s.thresholds {
		out = append(out, t)
	}
	return out
}

// LastCycle returns when the last learning cycle finished
func (s *LearningCycleService) LastCycle() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCycle
}

// GateEnabled reports the auto-promotion gate state
func (s *LearningCycleService) GateEnabled() bool {
	return s.gate.Enabled()
}

// CanaryActive reports whether a canary session is observing
func (s *LearningCycleService) CanaryActive() bool {
	return s.controller.CanaryActive()
}

func (s *LearningCycleService) refreshThreshold(ctx context.Context, cohort models.CohortKey) {
	threshold, err := s.analyzer.ComputeThreshold(ctx, cohort)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"cohort": cohort.String(),
			"reason": err.Error(),
		}).Debug("No excursion threshold for cohort")
		return
	}

	s.mu.Lock()
	s.thresholds[cohort.String()] = threshold
	s.mu.Unlock()

	metrics.RecordThresholdDerived()
	s.audit.LogThresholdDerived(*threshold)
}

func (s *LearningCycleService) recommendForCohort(ctx context.Context, cohort models.CohortKey) {
	history, err := s.outcomes.Query(ctx, cohort, 0)
	if err != nil {
		s.logger.WithError(err).WithField("cohort", cohort.String()).Warn("Failed to load cohort history")
		return
	}
	if len(history) == 0 {
		return
	}

	metrics.UpdateCohortConfidence(cohort.String(), int(s.estimator.Level(len(history))))

	current, ok := s.controller.Current().Value(cohort)
	if !ok {
		// Before any promotion the live value is whatever the execution
		// layer last traded with.
		current = history[len(history)-1].ParameterValue
	}

	candidates := distinctParameterValues(history)
	rec, err := s.optimizer.Recommend(ctx, cohort, current, candidates)
	if err != nil {
		s.logger.WithError(err).WithField("cohort", cohort.String()).Warn("Recommendation failed")
		return
	}

	if !rec.Apply {
		metrics.RecordRecommendation("refused")
		return
	}
	metrics.RecordRecommendation("actionable")

	if !s.autoApply {
		s.logger.WithFields(logrus.Fields{
			"cohort":        cohort.String(),
			"candidate":     rec.CandidateValue,
			"justification": rec.Justification,
		}).Info("Actionable recommendation held, auto-apply disabled")
		return
	}

	if _, err := s.controller.PromoteParameter(ctx, rec); err != nil {
		// Busy or gated states are expected; the recommendation will
		// come around again next cycle.
		s.logger.WithFields(logrus.Fields{
			"cohort": cohort.String(),
			"reason": err.Error(),
		}).Info("Promotion deferred")
		return
	}
	metrics.RecordPromotionState(string(models.PromotionStarted))
}

func (s *LearningCycleService) updateGauges(ctx context.Context) {
	metrics.UpdateGate(s.gate.Enabled())
	metrics.UpdateCanaryActive(s.controller.CanaryActive())

	if size, err := s.outcomes.Size(ctx); err == nil {
		metrics.UpdateLedgerSize(size)
	}
}

func distinctParameterValues(outcomes []*models.TradeOutcome) []float64 {
	seen := make(map[float64]struct{}, 4)
	values := make([]float64, 0, 4)
	for _, o := range outcomes {
		if _, ok := seen[o.ParameterValue]; ok {
			continue
		}
		seen[o.ParameterValue] = struct{}{}
		values = append(values, o.ParameterValue)
	}
	return values
}
