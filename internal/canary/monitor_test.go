package canary

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/tradeguard/internal/models"
)

var testCohort = models.CohortKey{StrategyID: "momentum-v2", Regime: "trending", Session: "rth"}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func canaryTrade(pnl float64) *models.TradeOutcome {
	return &models.TradeOutcome{
		ID:          uuid.New(),
		RealizedPnL: decimal.NewFromFloat(pnl),
		Canary:      true,
		Timestamp:   time.Now(),
	}
}

func record(t *testing.T, m *Monitor, pnls ...float64) {
	t.Helper()
	for _, pnl := range pnls {
		require.NoError(t, m.RecordOutcome(canaryTrade(pnl)))
	}
}

func baseline(winRate, sharpe float64) models.BaselineMetrics {
	return models.BaselineMetrics{
		WinRate:     winRate,
		SharpeRatio: sharpe,
		SampleSize:  50,
		CapturedAt:  time.Now(),
	}
}

func TestStartRejectsSecondActiveSession(t *testing.T) {
	m := NewMonitor(DefaultConfig(), testLogger())

	first, err := m.Start(testCohort, baseline(0.6, 1.0), "snap-1")
	require.NoError(t, err)
	record(t, m, 100, -50)

	_, err = m.Start(testCohort, baseline(0.5, 0.5), "snap-2")
	assert.ErrorIs(t, err, models.ErrSessionActive)

	// The existing session must be unaltered by the rejected start.
	active := m.Active()
	require.NotNil(t, active)
	assert.Equal(t, first.ID, active.ID)
	assert.Equal(t, "snap-1", active.SnapshotID)
	assert.Len(t, active.Outcomes, 2)
}

func TestEvaluateBelowGateIsNoOp(t *testing.T) {
	m := NewMonitor(DefaultConfig(), testLogger())
	_, err := m.Start(testCohort, baseline(0.8, 1.0), "snap-1")
	require.NoError(t, err)

	// Five trades: 40% win rate and a $600 drawdown. Ugly, but above the
	// catastrophic floors, and below the ten-trade observation gate.
	record(t, m, 50, 50, -200, -200, -200)

	result, err := m.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, DecisionNone, result.Decision)
	require.NotNil(t, m.Active())
	assert.Equal(t, StatusActive, m.Active().Status)
}

func TestCatastrophicWinRateOverridesGate(t *testing.T) {
	m := NewMonitor(DefaultConfig(), testLogger())
	_, err := m.Start(testCohort, baseline(0.6, 1.0), "snap-1")
	require.NoError(t, err)

	// Three straight losses: win rate 0, far below the 0.25 floor.
	record(t, m, -100, -100, -100)

	result, err := m.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, DecisionRollback, result.Decision)
	assert.True(t, result.Catastrophic)
	assert.Nil(t, m.Active())
}

func TestCatastrophicDrawdownOverridesGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CatastrophicWinRateFloor = 0 // isolate the drawdown ceiling
	m := NewMonitor(cfg, testLogger())
	_, err := m.Start(testCohort, baseline(0.6, 1.0), "snap-1")
	require.NoError(t, err)

	record(t, m, 500, -1500, -1200)

	result, err := m.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, DecisionRollback, result.Decision)
	assert.True(t, result.Catastrophic)
	assert.Equal(t, "catastrophic", result.Trigger)
}

func TestTriggerAWinRateDropWithDrawdown(t *testing.T) {
	m := NewMonitor(DefaultConfig(), testLogger())
	_, err := m.Start(testCohort, baseline(0.6, 1.0), "snap-1")
	require.NoError(t, err)

	// 12 trades, 5 wins: win rate 0.42, a 30% drop from baseline 0.6,
	// with a $700 peak-to-trough drawdown over the $500 floor.
	record(t, m, 50, 50, 50, 50, 50, -100, -100, -100, -100, -100, -100, -100)

	result, err := m.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, DecisionRollback, result.Decision)
	assert.False(t, result.Catastrophic)
	assert.Equal(t, "win_rate_drawdown", result.Trigger)
	assert.Contains(t, result.Reason, "win rate")
}

func TestTriggerARequiresDrawdownFloor(t *testing.T) {
	m := NewMonitor(DefaultConfig(), testLogger())
	// Baseline Sharpe 0 keeps trigger B out of the picture.
	_, err := m.Start(testCohort, baseline(0.8, 0), "snap-1")
	require.NoError(t, err)

	// Win rate drops 27% but the drawdown never exceeds $10: no trigger.
	record(t, m, 10, -10, 10, -10, 10, -10, 10, -10, 10, -10, 10, 10)

	result, err := m.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, DecisionNone, result.Decision)
	assert.Equal(t, StatusActive, m.Active().Status)
}

func TestTriggerBSharpeDropAlone(t *testing.T) {
	m := NewMonitor(DefaultConfig(), testLogger())
	_, err := m.Start(testCohort, baseline(0.5, 2.0), "snap-1")
	require.NoError(t, err)

	// Win rate holds at baseline but returns turn noisy: the Sharpe-like
	// ratio collapses well past the 30% drop trigger.
	record(t, m, 100, -90, 100, -90, 100, -90, 100, -90, 100, -90, 100, -90)

	result, err := m.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, DecisionRollback, result.Decision)
	assert.Equal(t, "sharpe_drop", result.Trigger)
}

func TestCompletionAfterCleanWindow(t *testing.T) {
	m := NewMonitor(DefaultConfig(), testLogger())
	session, err := m.Start(testCohort, baseline(0.6, 0.5), "snap-1")
	require.NoError(t, err)

	record(t, m, 100, -50, 100, -50, 100, 100, -50, 100, -50, 100, -50, 100)
	session.StartedAt = time.Now().Add(-25 * time.Hour)

	result, err := m.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, DecisionComplete, result.Decision)
	assert.Nil(t, m.Active())
}

func TestEvaluateIdempotentBelowGate(t *testing.T) {
	m := NewMonitor(DefaultConfig(), testLogger())
	_, err := m.Start(testCohort, baseline(0.6, 1.0), "snap-1")
	require.NoError(t, err)
	record(t, m, 50, -50, 50)

	first, err := m.Evaluate()
	require.NoError(t, err)
	second, err := m.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, first.Decision, second.Decision)
	assert.Equal(t, first.Observed.WinRate, second.Observed.WinRate)
}

func TestRecordOutcomeRules(t *testing.T) {
	m := NewMonitor(DefaultConfig(), testLogger())

	// No active session: canary outcomes have nowhere to go.
	err := m.RecordOutcome(canaryTrade(10))
	assert.ErrorIs(t, err, models.ErrNoActiveSession)

	_, err = m.Start(testCohort, baseline(0.6, 1.0), "snap-1")
	require.NoError(t, err)

	// Non-canary outcomes are ignored, never mixed into the session.
	plain := canaryTrade(10)
	plain.Canary = false
	require.NoError(t, m.RecordOutcome(plain))
	require.NoError(t, m.RecordOutcome(canaryTrade(25)))

	assert.Len(t, m.Active().Outcomes, 1)
}

func TestEmptySessionNeverTriggersDegradation(t *testing.T) {
	m := NewMonitor(DefaultConfig(), testLogger())
	session, err := m.Start(testCohort, baseline(0.6, 1.0), "snap-1")
	require.NoError(t, err)

	// No canary trades, but well past the elapsed half of the observation
	// gate. A session with zero evidence must stay active, not roll back
	// on the zero Sharpe of an empty sample.
	session.StartedAt = time.Now().Add(-3 * time.Hour)

	result, err := m.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, DecisionNone, result.Decision)
	require.NotNil(t, m.Active())
	assert.Equal(t, StatusActive, m.Active().Status)
}

func TestSyncOutcomesFoldsLedgerRecords(t *testing.T) {
	m := NewMonitor(DefaultConfig(), testLogger())
	session, err := m.Start(testCohort, baseline(0.6, 1.0), "snap-1")
	require.NoError(t, err)

	direct := canaryTrade(100)
	require.NoError(t, m.RecordOutcome(direct))

	preSession := canaryTrade(50)
	preSession.Timestamp = session.StartedAt.Add(-time.Minute)
	plain := canaryTrade(25)
	plain.Canary = false
	fresh := canaryTrade(-40)

	// The ledger view overlaps the direct path: the shared record must not
	// double count, the pre-session and non-canary records must be dropped.
	require.NoError(t, m.SyncOutcomes([]*models.TradeOutcome{direct, preSession, plain, fresh}))

	active := m.Active()
	require.NotNil(t, active)
	require.Len(t, active.Outcomes, 2)
	assert.Equal(t, direct.ID, active.Outcomes[0].ID)
	assert.Equal(t, fresh.ID, active.Outcomes[1].ID)

	// Syncing the same view again changes nothing.
	require.NoError(t, m.SyncOutcomes([]*models.TradeOutcome{direct, fresh}))
	assert.Len(t, m.Active().Outcomes, 2)
}

func TestSyncOutcomesRequiresActiveSession(t *testing.T) {
	m := NewMonitor(DefaultConfig(), testLogger())
	err := m.SyncOutcomes([]*models.TradeOutcome{canaryTrade(10)})
	assert.ErrorIs(t, err, models.ErrNoActiveSession)
}

func TestNewSessionAllowedAfterRollback(t *testing.T) {
	m := NewMonitor(DefaultConfig(), testLogger())
	_, err := m.Start(testCohort, baseline(0.6, 1.0), "snap-1")
	require.NoError(t, err)
	record(t, m, -100, -100, -100)

	result, err := m.Evaluate()
	require.NoError(t, err)
	require.Equal(t, DecisionRollback, result.Decision)

	_, err = m.Start(testCohort, baseline(0.5, 0.5), "snap-2")
	assert.NoError(t, err)
}

func TestComputeMetricsDrawdownPeakToTrough(t *testing.T) {
	outcomes := []*models.TradeOutcome{
		canaryTrade(100), canaryTrade(200), canaryTrade(-150),
		canaryTrade(-250), canaryTrade(400),
	}
	m := ComputeMetrics(outcomes, time.Now())

	assert.InDelta(t, 0.6, m.WinRate, 1e-9)
	// Peak 300 after two wins, trough -100 after the two losses.
	assert.True(t, m.MaxDrawdown.Equal(decimal.NewFromInt(400)), "drawdown was %s", m.MaxDrawdown)
}

func TestComputeMetricsDegenerate(t *testing.T) {
	m := ComputeMetrics(nil, time.Now())
	assert.Equal(t, 0.0, m.WinRate)
	assert.Equal(t, 0.0, m.SharpeRatio)
	assert.True(t, m.MaxDrawdown.IsZero())

	// Zero variance must not divide by zero.
	same := []*models.TradeOutcome{canaryTrade(10), canaryTrade(10), canaryTrade(10)}
	m = ComputeMetrics(same, time.Now())
	assert.Equal(t, 0.0, m.SharpeRatio)
	assert.Equal(t, 1.0, m.WinRate)
}
