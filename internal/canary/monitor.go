// Package canary runs the post-promotion observation window and decides
// whether a promoted change is kept or rolled back.
package canary

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/tradeguard/internal/models"
)

// Status represents the state of a canary session
type Status int

const (
	// StatusActive means the session is observing canary-tagged trades
	StatusActive Status = iota
	// StatusCompleted means the observation window passed without a trigger
	StatusCompleted
	// StatusRolledBack means a degradation trigger or catastrophic override fired
	StatusRolledBack
)

// String returns string representation of the session status
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusCompleted:
		return "COMPLETED"
	case StatusRolledBack:
		return "ROLLED_BACK"
	default:
		return "UNKNOWN"
	}
}

// Config defines the observation gate, the degradation triggers and the
// catastrophic override floors. All values are configuration data; the
// defaults are illustrative only.
type Config struct {
	MinTrades                int           `json:"min_trades"`
	MinElapsed               time.Duration `json:"min_elapsed"`
	ObservationWindow        time.Duration `json:"observation_window"`
	WinRateDropTrigger       float64       `json:"win_rate_drop_trigger"` // relative, e.g. 0.20
	DrawdownFloor            float64       `json:"drawdown_floor"`        // absolute dollars
	SharpeDropTrigger        float64       `json:"sharpe_drop_trigger"`   // relative, e.g. 0.30
	CatastrophicWinRateFloor float64       `json:"catastrophic_win_rate_floor"`
	CatastrophicDrawdown     float64       `json:"catastrophic_drawdown"` // absolute dollars
}

// DefaultConfig returns the illustrative default thresholds
func DefaultConfig() Config {
	return Config{
		MinTrades:                10,
		MinElapsed:               2 * time.Hour,
		ObservationWindow:        24 * time.Hour,
		WinRateDropTrigger:       0.20,
		DrawdownFloor:            500,
		SharpeDropTrigger:        0.30,
		CatastrophicWinRateFloor: 0.25,
		CatastrophicDrawdown:     2000,
	}
}

// Session is one post-promotion observation window. Exactly one session
// may be active at a time.
type Session struct {
	ID         uuid.UUID              `json:"id"`
	Cohort     models.CohortKey       `json:"cohort"`
	SnapshotID string                 `json:"snapshot_id"`
	StartedAt  time.Time              `json:"started_at"`
	Baseline   models.BaselineMetrics `json:"baseline"`
	Outcomes   []*models.TradeOutcome `json:"outcomes"`
	Status     Status                 `json:"status"`
}

// Decision is the verdict of one evaluation pass
type Decision int

const (
	// DecisionNone means the session stays active
	DecisionNone Decision = iota
	// DecisionRollback means a trigger fired and the promotion must be reverted
	DecisionRollback
	// DecisionComplete means the observation window passed clean
	DecisionComplete
)

// Result carries the verdict and the metrics it was based on
type Result struct {
	Decision     Decision
	Catastrophic bool
	Trigger      string
	Reason       string
	Observed     models.BaselineMetrics
}

// Monitor owns the canary session state machine. All transitions happen
// under its lock; Start is a single check-and-set, never a read-then-write
// race.
type Monitor struct {
	cfg     Config
	mu      sync.Mutex
	session *Session
	logger  *logrus.Logger
}

// NewMonitor creates an inactive canary monitor
func NewMonitor(cfg Config, logger *logrus.Logger) *Monitor {
	return &Monitor{cfg: cfg, logger: logger}
}

// Start opens a new session for the given cohort against the given
// baseline. Rejected without altering the existing session if one is
// already active.
func (m *Monitor) Start(cohort models.CohortKey, baseline models.BaselineMetrics, snapshotID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && m.session.Status == StatusActive {
		return nil, models.ErrSessionActive
	}

	m.session = &Session{
		ID:         uuid.New(),
		Cohort:     cohort,
		SnapshotID: snapshotID,
		StartedAt:  time.Now(),
		Baseline:   baseline,
		Status:     StatusActive,
	}

	m.logger.WithFields(logrus.Fields{
		"session_id":        m.session.ID,
		"cohort":            cohort.String(),
		"snapshot_id":       snapshotID,
		"baseline_win_rate": baseline.WinRate,
		"baseline_sharpe":   baseline.SharpeRatio,
	}).Info("Canary session started")

	return m.session, nil
}

// RecordOutcome appends a canary-tagged outcome to the active session.
// Non-canary outcomes are ignored; pre-promotion history never mixes into
// canary metrics.
func (m *Monitor) RecordOutcome(outcome *models.TradeOutcome) error {
	if !outcome.Canary {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || m.session.Status != StatusActive {
		return models.ErrNoActiveSession
	}
	m.session.Outcomes = append(m.session.Outcomes, outcome)
	return nil
}

// SyncOutcomes folds ledger-recorded outcomes into the active session.
// Only canary-tagged outcomes stamped after the session opened are
// considered, and outcomes the session already holds are skipped by id,
// so the direct RecordOutcome path and the ledger view never double
// count a trade.
func (m *Monitor) SyncOutcomes(outcomes []*models.TradeOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || m.session.Status != StatusActive {
		return models.ErrNoActiveSession
	}

	known := make(map[uuid.UUID]struct{}, len(m.session.Outcomes))
	for _, o := range m.session.Outcomes {
		known[o.ID] = struct{}{}
	}
	for _, o := range outcomes {
		if !o.Canary || o.Timestamp.Before(m.session.StartedAt) {
			continue
		}
		if _, ok := known[o.ID]; ok {
			continue
		}
		known[o.ID] = struct{}{}
		m.session.Outcomes = append(m.session.Outcomes, o)
	}
	return nil
}

// Active returns the current session if one is observing
func (m *Monitor) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.Status != StatusActive {
		return nil
	}
	return m.session
}

// Evaluate runs one decision pass over the active session.
//
// The catastrophic override is checked first, on every call, regardless of
// sample size: a disastrous early run cannot hide behind "not enough
// samples yet". Only then is the minimum-observation gate applied; below
// the gate the call is a no-op. Once gated, either degradation trigger
// alone is sufficient to roll back; a full clean window completes the
// session. Re-running with identical session state yields the same
// decision.
func (m *Monitor) Evaluate() (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || m.session.Status != StatusActive {
		return Result{}, models.ErrNoActiveSession
	}

	observed := ComputeMetrics(m.session.Outcomes, time.Now())
	elapsed := time.Since(m.session.StartedAt)
	n := len(m.session.Outcomes)

	// Catastrophic override, never skipped for any reason.
	catDrawdown := decimal.NewFromFloat(m.cfg.CatastrophicDrawdown)
	if n > 0 && observed.WinRate < m.cfg.CatastrophicWinRateFloor {
		return m.rollBackLocked(observed, true, "catastrophic",
			fmt.Sprintf("win rate %.2f below catastrophic floor %.2f after %d canary trades",
				observed.WinRate, m.cfg.CatastrophicWinRateFloor, n)), nil
	}
	if observed.MaxDrawdown.GreaterThan(catDrawdown) {
		return m.rollBackLocked(observed, true, "catastrophic",
			fmt.Sprintf("drawdown %s exceeds catastrophic ceiling %s",
				observed.MaxDrawdown.StringFixed(2), catDrawdown.StringFixed(2))), nil
	}

	// Minimum-observation gate: either enough trades or enough elapsed time.
	if n < m.cfg.MinTrades && elapsed < m.cfg.MinElapsed {
		return Result{Decision: DecisionNone, Observed: observed}, nil
	}

	// Trigger A: relative win-rate drop combined with an absolute drawdown floor.
	winRateDrop := relativeDrop(m.session.Baseline.WinRate, observed.WinRate)
	ddFloor := decimal.NewFromFloat(m.cfg.DrawdownFloor)
	if winRateDrop > m.cfg.WinRateDropTrigger && observed.MaxDrawdown.GreaterThan(ddFloor) {
		return m.rollBackLocked(observed, false, "win_rate_drawdown",
			fmt.Sprintf("win rate dropped %.0f%% from baseline %.2f to %.2f with drawdown %s over floor %s",
				winRateDrop*100, m.session.Baseline.WinRate, observed.WinRate,
				observed.MaxDrawdown.StringFixed(2), ddFloor.StringFixed(2))), nil
	}

	// Trigger B: relative Sharpe-like ratio drop, sufficient on its own.
	// Like the win-rate paths it needs at least one observed trade; a
	// session that saw no canary trades carries no evidence of degradation.
	sharpeDrop := relativeDrop(m.session.Baseline.SharpeRatio, observed.SharpeRatio)
	if n > 0 && sharpeDrop > m.cfg.SharpeDropTrigger {
		return m.rollBackLocked(observed, false, "sharpe_drop",
			fmt.Sprintf("sharpe dropped %.0f%% from baseline %.2f to %.2f",
				sharpeDrop*100, m.session.Baseline.SharpeRatio, observed.SharpeRatio)), nil
	}

	// A full observation window without a trigger completes the session.
	if elapsed >= m.cfg.ObservationWindow {
		m.session.Status = StatusCompleted
		m.logger.WithFields(logrus.Fields{
			"session_id":    m.session.ID,
			"canary_trades": n,
			"win_rate":      observed.WinRate,
			"sharpe":        observed.SharpeRatio,
		}).Info("Canary session completed clean")
		return Result{Decision: DecisionComplete, Observed: observed}, nil
	}

	return Result{Decision: DecisionNone, Observed: observed}, nil
}

func (m *Monitor) rollBackLocked(observed models.BaselineMetrics, catastrophic bool, trigger, reason string) Result {
	m.session.Status = StatusRolledBack

	m.logger.WithFields(logrus.Fields{
		"session_id":   m.session.ID,
		"trigger":      trigger,
		"catastrophic": catastrophic,
		"reason":       reason,
	}).Error("Canary degradation trigger fired")

	return Result{
		Decision:     DecisionRollback,
		Catastrophic: catastrophic,
		Trigger:      trigger,
		Reason:       reason,
		Observed:     observed,
	}
}
