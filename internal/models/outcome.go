package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExitReason describes how a trade was closed
type ExitReason string

const (
	// ExitStopLoss means the trade was stopped out at its hard stop
	ExitStopLoss ExitReason = "stop_loss"
	// ExitTarget means the trade reached its profit target
	ExitTarget ExitReason = "target"
	// ExitTimeout means the trade was closed by a time-based exit
	ExitTimeout ExitReason = "timeout"
	// ExitManual means the trade was closed by operator intervention
	ExitManual ExitReason = "manual"
	// ExitEarlyWarning means the trade was closed by the excursion early-exit signal
	ExitEarlyWarning ExitReason = "early_warning"
)

// CohortKey identifies a slice of trade history sharing strategy, regime and session
type CohortKey struct {
	StrategyID string `json:"strategy_id"`
	Regime     string `json:"regime"`
	Session    string `json:"session"`
}

// String returns a stable string form used for cache and query keys
func (k CohortKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.StrategyID, k.Regime, k.Session)
}

// ExcursionPoint is a single adverse-excursion snapshot captured during a trade
type ExcursionPoint struct {
	Elapsed   time.Duration `json:"elapsed"`
	Magnitude float64       `json:"magnitude"` // price ticks against the position
}

// TradeOutcome records a single closed trade. Immutable once written;
// the ledger never edits a record in place.
type TradeOutcome struct {
	ID             uuid.UUID        `json:"id"`
	Cohort         CohortKey        `json:"cohort"`
	ParameterValue float64          `json:"parameter_value"` // value in effect at entry
	RealizedPnL    decimal.Decimal  `json:"realized_pnl"`
	Excursions     []ExcursionPoint `json:"excursions"`
	Duration       time.Duration    `json:"duration"`
	ExitReason     ExitReason       `json:"exit_reason"`
	Canary         bool             `json:"canary"`
	Timestamp      time.Time        `json:"timestamp"`
}

// IsWin reports whether the trade closed with positive P&L
func (o *TradeOutcome) IsWin() bool {
	return o.RealizedPnL.IsPositive()
}

// IsStopOut reports whether the trade was closed at its hard stop
func (o *TradeOutcome) IsStopOut() bool {
	return o.ExitReason == ExitStopLoss
}

// ExcursionAt returns the worst adverse excursion observed at or before the
// given checkpoint, and whether any snapshot existed by then.
func (o *TradeOutcome) ExcursionAt(checkpoint time.Duration) (float64, bool) {
	worst := 0.0
	found := false
	for _, p := range o.Excursions {
		if p.Elapsed > checkpoint {
			break
		}
		found = true
		if p.Magnitude > worst {
			worst = p.Magnitude
		}
	}
	return worst, found
}
