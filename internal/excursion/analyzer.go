// Package excursion predicts stop-outs from early adverse-excursion
// trajectories, producing early-exit thresholds for live trades.
package excursion

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/tradeguard/internal/ledger"
	"github.com/yourusername/tradeguard/internal/models"
	"github.com/yourusername/tradeguard/internal/stats"
)

// Config defines the bucketing and the double gate every threshold must
// pass before it is surfaced to callers.
type Config struct {
	Checkpoint      time.Duration `json:"checkpoint"`        // elapsed time after entry, e.g. 2m
	BucketEdges     []float64     `json:"bucket_edges"`      // lower bounds in price ticks, ascending
	StopOutFloor    float64       `json:"stop_out_floor"`    // minimum stop-out rate, e.g. 0.70
	SampleSizeFloor int           `json:"sample_size_floor"` // minimum bucket sample, e.g. 20
}

// DefaultConfig returns the illustrative default gates
func DefaultConfig() Config {
	return Config{
		Checkpoint:      2 * time.Minute,
		BucketEdges:     []float64{0, 2, 4, 6, 8},
		StopOutFloor:    0.70,
		SampleSizeFloor: 20,
	}
}

// bucket accumulates stop-out counts for one excursion magnitude range
type bucket struct {
	lowerBound float64
	total      int
	stopOuts   int
}

func (b *bucket) rate() float64 {
	if b.total == 0 {
		return 0
	}
	return float64(b.stopOuts) / float64(b.total)
}

// Analyzer derives excursion thresholds from ledger history
type Analyzer struct {
	cfg       Config
	ledger    ledger.OutcomeLedger
	estimator *stats.Estimator
	logger    *logrus.Logger
}

// NewAnalyzer creates a new excursion correlation analyzer
func NewAnalyzer(cfg Config, outcomeLedger ledger.OutcomeLedger, estimator *stats.Estimator, logger *logrus.Logger) *Analyzer {
	return &Analyzer{
		cfg:       cfg,
		ledger:    outcomeLedger,
		estimator: estimator,
		logger:    logger,
	}
}

// ComputeThreshold buckets the cohort's history by adverse excursion at the
// configured checkpoint and returns the lowest bucket lower bound whose
// stop-out rate AND sample size both meet their floors. Both floors are
// independent; a high rate on a thin bucket is never surfaced.
func (a *Analyzer) ComputeThreshold(ctx context.Context, cohort models.CohortKey) (*models.ExcursionThreshold, error) {
	outcomes, err := a.ledger.Query(ctx, cohort, 0)
	if err != nil {
		return nil, err
	}

	if a.estimator.Level(len(outcomes)) == models.ConfidenceInsufficient {
		a.logger.WithFields(logrus.Fields{
			"cohort":      cohort.String(),
			"sample_size": len(outcomes),
		}).Debug("Cohort too small for excursion analysis")
		return nil, models.ErrInsufficientData
	}

	buckets := a.bucketize(outcomes)

	for _, b := range buckets {
		if b.total == 0 {
			continue
		}
		rate := b.rate()
		if rate < a.cfg.StopOutFloor {
			continue
		}
		if b.total < a.cfg.SampleSizeFloor {
			a.logger.WithFields(logrus.Fields{
				"cohort":        cohort.String(),
				"lower_bound":   b.lowerBound,
				"stop_out_rate": rate,
				"sample_size":   b.total,
				"sample_floor":  a.cfg.SampleSizeFloor,
			}).Debug("Bucket rate qualifies but sample floor not met")
			continue
		}

		threshold := &models.ExcursionThreshold{
			Cohort:             cohort,
			Checkpoint:         a.cfg.Checkpoint,
			Magnitude:          b.lowerBound,
			StopOutProbability: rate,
			SampleSize:         b.total,
		}
		a.logger.WithFields(logrus.Fields{
			"cohort":        cohort.String(),
			"checkpoint":    a.cfg.Checkpoint,
			"magnitude":     threshold.Magnitude,
			"stop_out_rate": rate,
			"sample_size":   b.total,
		}).Info("Excursion early-exit threshold derived")
		return threshold, nil
	}

	return nil, models.ErrNoThreshold
}

// ShouldFlag reports whether a live trade's excursion at the checkpoint has
// reached an established threshold.
func (a *Analyzer) ShouldFlag(threshold *models.ExcursionThreshold, observedMagnitude float64) bool {
	if threshold == nil {
		return false
	}
	return observedMagnitude >= threshold.Magnitude
}

// bucketize assigns each outcome to the bucket covering its excursion at
// the checkpoint. Trades with no snapshot by the checkpoint are skipped;
// their early trajectory is unknown.
func (a *Analyzer) bucketize(outcomes []*models.TradeOutcome) []*bucket {
	buckets := make([]*bucket, len(a.cfg.BucketEdges))
	for i, edge := range a.cfg.BucketEdges {
		buckets[i] = &bucket{lowerBound: edge}
	}

	for _, o := range outcomes {
		magnitude, ok := o.ExcursionAt(a.cfg.Checkpoint)
		if !ok {
			continue
		}
		idx := a.bucketIndex(magnitude)
		if idx < 0 {
			continue
		}
		buckets[idx].total++
		if o.IsStopOut() {
			buckets[idx].stopOuts++
		}
	}
	return buckets
}

// bucketIndex returns the index of the bucket whose range contains the
// magnitude; the last bucket is unbounded above.
func (a *Analyzer) bucketIndex(magnitude float64) int {
	idx := -1
	for i, edge := range a.cfg.BucketEdges {
		if magnitude >= edge {
			idx = i
		}
	}
	return idx
}
