// Package optimizer proposes confidence-gated parameter changes from
// ledger history.
package optimizer

import (
	"context"
	"fmt"
	"math"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/tradeguard/internal/ledger"
	"github.com/yourusername/tradeguard/internal/models"
	"github.com/yourusername/tradeguard/internal/stats"
)

// valueMatchEpsilon tolerates float drift between a configured candidate
// and the parameter value recorded at trade entry.
const valueMatchEpsilon = 1e-9

// Config defines the optimizer's decision gates
type Config struct {
	ImprovementMargin float64       `json:"improvement_margin"` // relative, e.g. 0.10
	CacheTTL          time.Duration `json:"cache_ttl"`
}

// DefaultConfig returns the illustrative default gates
func DefaultConfig() Config {
	return Config{
		ImprovementMargin: 0.10,
		CacheTTL:          5 * time.Minute,
	}
}

// Optimizer evaluates candidate parameter values against the history of a
// cohort. Recommendations are always reproducible from the full ledger.
type Optimizer struct {
	cfg       Config
	ledger    ledger.OutcomeLedger
	estimator *stats.Estimator
	metrics   *cache.Cache
	logger    *logrus.Logger
}

// NewOptimizer creates a new parameter optimizer
func NewOptimizer(cfg Config, outcomeLedger ledger.OutcomeLedger, estimator *stats.Estimator, logger *logrus.Logger) *Optimizer {
	return &Optimizer{
		cfg:       cfg,
		ledger:    outcomeLedger,
		estimator: estimator,
		metrics:   cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		logger:    logger,
	}
}

// Recommend computes the average realized P&L historically associated with
// each candidate value, selects the best, and recommends applying it only
// if the best beats the current value by more than the margin AND its
// sample is at least Medium confidence. Below Medium the verdict is an
// explicit "insufficient data, do not apply".
func (o *Optimizer) Recommend(ctx context.Context, cohort models.CohortKey, currentValue float64, candidates []float64) (*models.ParameterRecommendation, error) {
	outcomes, err := o.ledger.Query(ctx, cohort, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to query cohort history: %w", err)
	}

	currentMetrics := o.describeValue(cohort, currentValue, outcomes)

	bestValue := currentValue
	bestMetrics := currentMetrics
	for _, candidate := range candidates {
		if math.Abs(candidate-currentValue) < valueMatchEpsilon {
			continue
		}
		m := o.describeValue(cohort, candidate, outcomes)
		if m.SampleSize == 0 {
			continue
		}
		if m.Mean > bestMetrics.Mean || bestMetrics.SampleSize == 0 {
			bestValue = candidate
			bestMetrics = m
		}
	}

	rec := &models.ParameterRecommendation{
		Cohort:              cohort,
		CurrentValue:        currentValue,
		CandidateValue:      bestValue,
		CurrentMean:         currentMetrics.Mean,
		CandidateMean:       bestMetrics.Mean,
		CurrentConfidence:   currentMetrics,
		CandidateConfidence: bestMetrics,
		GeneratedAt:         time.Now(),
	}

	if bestValue == currentValue {
		rec.Justification = fmt.Sprintf(
			"no candidate outperforms the current value %.4f (mean %.4f, %s)",
			currentValue, currentMetrics.Mean, currentMetrics.IntervalString())
		o.logRecommendation(rec)
		return rec, nil
	}

	if bestMetrics.Level < models.ConfidenceMedium {
		// Hard invariant: below Medium confidence the optimizer refuses
		// rather than silently defaulting.
		rec.Justification = fmt.Sprintf(
			"insufficient data, do not apply: candidate %.4f has %s",
			bestValue, bestMetrics.IntervalString())
		o.logRecommendation(rec)
		return rec, nil
	}

	improvement := relativeImprovement(currentMetrics.Mean, bestMetrics.Mean)
	if improvement <= o.cfg.ImprovementMargin {
		rec.Justification = fmt.Sprintf(
			"improvement %.1f%% does not clear the %.1f%% margin: candidate %.4f mean %.4f vs current %.4f mean %.4f, %s",
			improvement*100, o.cfg.ImprovementMargin*100,
			bestValue, bestMetrics.Mean, currentValue, currentMetrics.Mean,
			bestMetrics.IntervalString())
		o.logRecommendation(rec)
		return rec, nil
	}

	rec.Apply = true
	rec.Justification = fmt.Sprintf(
		"candidate %.4f mean %.4f beats current %.4f mean %.4f by %.1f%% at %s",
		bestValue, bestMetrics.Mean, currentValue, currentMetrics.Mean,
		improvement*100, bestMetrics.IntervalString())
	o.logRecommendation(rec)
	return rec, nil
}

// describeValue computes (or retrieves from the TTL cache) the confidence
// metrics of the P&L sample recorded under one parameter value.
func (o *Optimizer) describeValue(cohort models.CohortKey, value float64, outcomes []*models.TradeOutcome) models.ConfidenceMetrics {
	key := fmt.Sprintf("%s|%.10f|%d", cohort.String(), value, len(outcomes))
	if cached, ok := o.metrics.Get(key); ok {
		return cached.(models.ConfidenceMetrics)
	}

	sample := make([]float64, 0, len(outcomes))
	for _, out := range outcomes {
		if math.Abs(out.ParameterValue-value) < valueMatchEpsilon {
			sample = append(sample, out.RealizedPnL.InexactFloat64())
		}
	}
	m := o.estimator.Describe(sample)
	o.metrics.Set(key, m, cache.DefaultExpiration)
	return m
}

func (o *Optimizer) logRecommendation(rec *models.ParameterRecommendation) {
	o.logger.WithFields(logrus.Fields{
		"cohort":          rec.Cohort.String(),
		"current_value":   rec.CurrentValue,
		"candidate_value": rec.CandidateValue,
		"current_mean":    rec.CurrentMean,
		"candidate_mean":  rec.CandidateMean,
		"apply":           rec.Apply,
		"justification":   rec.Justification,
	}).Info("Parameter recommendation generated")
}

// relativeImprovement measures how far the candidate mean exceeds the
// current mean, relative to the current mean's magnitude. A flat current
// mean counts as improved only by a strictly positive candidate.
func relativeImprovement(current, candidate float64) float64 {
	if math.Abs(current) < valueMatchEpsilon {
		if candidate > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return (candidate - current) / math.Abs(current)
}
