// Package ledger provides the append-only store of trade outcomes that all
// statistics and canary decisions are computed from.
package ledger

import (
	"context"
	"time"

	"github.com/yourusername/tradeguard/internal/models"
)

// OutcomeLedger is an append-only store of trade outcomes queryable by
// cohort. Records are never mutated or deleted, so statistics are always
// reproducible from raw history.
type OutcomeLedger interface {
	// Record appends an outcome. The record is immutable once written.
	Record(ctx context.Context, outcome *models.TradeOutcome) error

	// Query returns all records matching the cohort within an optional
	// recency window (zero means full history), in insertion order.
	Query(ctx context.Context, cohort models.CohortKey, window time.Duration) ([]*models.TradeOutcome, error)

	// Size returns the total number of records in the ledger.
	Size(ctx context.Context) (int, error)

	// Cohorts returns every cohort that has at least one record.
	Cohorts(ctx context.Context) ([]models.CohortKey, error)
}

// PnLSample extracts realized P&L values as floats for the estimator
func PnLSample(outcomes []*models.TradeOutcome) []float64 {
	sample := make([]float64, 0, len(outcomes))
	for _, o := range outcomes {
		sample = append(sample, o.RealizedPnL.InexactFloat64())
	}
	return sample
}
