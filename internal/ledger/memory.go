package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/tradeguard/internal/models"
)

// MemoryLedger is the in-process outcome ledger. Appends from the
// trade-completion path and reads from the evaluation cycle run
// concurrently; the append-only slices mean no reader ever holds a lock
// across a mutation.
type MemoryLedger struct {
	mu      sync.RWMutex
	cohorts map[string][]*models.TradeOutcome
	keys    map[string]models.CohortKey
	total   int
	logger  *logrus.Logger
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger(logger *logrus.Logger) *MemoryLedger {
	return &MemoryLedger{
		cohorts: make(map[string][]*models.TradeOutcome),
		keys:    make(map[string]models.CohortKey),
		logger:  logger,
	}
}

// Record appends an outcome to its cohort slice
func (l *MemoryLedger) Record(ctx context.Context, outcome *models.TradeOutcome) error {
	key := outcome.Cohort.String()

	l.mu.Lock()
	l.cohorts[key] = append(l.cohorts[key], outcome)
	l.keys[key] = outcome.Cohort
	l.total++
	total := l.total
	l.mu.Unlock()

	l.logger.WithFields(logrus.Fields{
		"cohort":      key,
		"pnl":         outcome.RealizedPnL.String(),
		"exit_reason": outcome.ExitReason,
		"canary":      outcome.Canary,
		"ledger_size": total,
	}).Debug("Trade outcome recorded")

	return nil
}

// Query returns matching records in insertion order. The returned slice is
// a copy; callers may not rely on it reflecting later appends.
func (l *MemoryLedger) Query(ctx context.Context, cohort models.CohortKey, window time.Duration) ([]*models.TradeOutcome, error) {
	l.mu.RLock()
	records := l.cohorts[cohort.String()]
	l.mu.RUnlock()

	if window <= 0 {
		out := make([]*models.TradeOutcome, len(records))
		copy(out, records)
		return out, nil
	}

	cutoff := time.Now().Add(-window)
	out := make([]*models.TradeOutcome, 0, len(records))
	for _, r := range records {
		if !r.Timestamp.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Size returns the total record count across all cohorts
func (l *MemoryLedger) Size(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total, nil
}

// Cohorts returns every cohort with at least one record
func (l *MemoryLedger) Cohorts(ctx context.Context) ([]models.CohortKey, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.CohortKey, 0, len(l.keys))
	for _, key := range l.keys {
		out = append(out, key)
	}
	return out, nil
}
