package promotion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/tradeguard/internal/backup"
	"github.com/yourusername/tradeguard/internal/canary"
	"github.com/yourusername/tradeguard/internal/ledger"
	"github.com/yourusername/tradeguard/internal/metrics"
	"github.com/yourusername/tradeguard/internal/models"
)

var testCohort = models.CohortKey{StrategyID: "momentum-v2", Regime: "trending", Session: "rth"}

type capturedEvents struct {
	mu      sync.Mutex
	changed []models.PromotionStateChanged
	applied []models.ParameterApplied
	halts   []models.HaltSignal
}

func (c *capturedEvents) PromotionChanged(event models.PromotionStateChanged) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changed = append(c.changed, event)
}

func (c *capturedEvents) ParameterApplied(event models.ParameterApplied) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applied = append(c.applied, event)
}

func (c *capturedEvents) Halt(signal models.HaltSignal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.halts = append(c.halts, signal)
}

func (c *capturedEvents) states() []models.PromotionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	states := make([]models.PromotionState, 0, len(c.changed))
	for _, e := range c.changed {
		states = append(states, e.State)
	}
	return states
}

type fixture struct {
	controller *Controller
	gate       *Gate
	store      *backup.Store
	monitor    *canary.Monitor
	outcomes   *ledger.MemoryLedger
	events     *capturedEvents
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := testLogger()
	store, err := backup.NewStore(backup.DefaultConfig(t.TempDir()), logger)
	require.NoError(t, err)

	outcomes := ledger.NewMemoryLedger(logger)
	seedBaselineHistory(t, outcomes)

	monitor := canary.NewMonitor(canary.DefaultConfig(), logger)
	gate := NewGate(true)

	controller, err := NewController(DefaultConfig(), gate, store, monitor, outcomes, logger)
	require.NoError(t, err)

	events := &capturedEvents{}
	controller.AddEmitter(events)
	controller.SetHaltSignaler(events)

	return &fixture{
		controller: controller,
		gate:       gate,
		store:      store,
		monitor:    monitor,
		outcomes:   outcomes,
		events:     events,
	}
}

// seedBaselineHistory writes 20 pre-promotion trades: 12 wins of +100 and
// 8 losses of -50, giving a 0.60 win rate and a Sharpe-like ratio near 0.54.
func seedBaselineHistory(t *testing.T, outcomes *ledger.MemoryLedger) {
	t.Helper()
	for i := 0; i < 20; i++ {
		pnl := 100.0
		if i%5 >= 3 {
			pnl = -50.0
		}
		require.NoError(t, outcomes.Record(context.Background(), &models.TradeOutcome{
			ID:          uuid.New(),
			Cohort:      testCohort,
			RealizedPnL: decimal.NewFromFloat(pnl),
			Timestamp:   time.Now(),
		}))
	}
}

func actionableRecommendation() *models.ParameterRecommendation {
	return &models.ParameterRecommendation{
		Cohort:         testCohort,
		CurrentValue:   8,
		CandidateValue: 12,
		Apply:          true,
		Justification:  "candidate mean 48.0000 beats current 40.0000",
		GeneratedAt:    time.Now(),
	}
}

func canaryTrade(pnl float64) *models.TradeOutcome {
	return &models.TradeOutcome{
		ID:          uuid.New(),
		Cohort:      testCohort,
		RealizedPnL: decimal.NewFromFloat(pnl),
		Canary:      true,
		Timestamp:   time.Now(),
	}
}

func recordCanary(t *testing.T, f *fixture, pnls ...float64) {
	t.Helper()
	for _, pnl := range pnls {
		require.NoError(t, f.controller.RecordOutcome(context.Background(), canaryTrade(pnl)))
	}
}

func TestPromoteParameterHappyPath(t *testing.T) {
	f := newFixture(t)

	session, err := f.controller.PromoteParameter(context.Background(), actionableRecommendation())
	require.NoError(t, err)
	require.NotNil(t, session)

	// The new value is live in memory and on disk.
	value, ok := f.controller.Current().Value(testCohort)
	require.True(t, ok)
	assert.Equal(t, 12.0, value)

	onDisk, err := loadParameters(f.store.LiveDir())
	require.NoError(t, err)
	diskValue, ok := onDisk.Value(testCohort)
	require.True(t, ok)
	assert.Equal(t, 12.0, diskValue)

	// A pre-promotion snapshot exists and the canary session references it.
	latest, err := f.store.Latest()
	require.NoError(t, err)
	assert.Equal(t, latest.SnapshotID, session.SnapshotID)

	// The baseline was captured from the seeded ledger history.
	assert.InDelta(t, 0.6, session.Baseline.WinRate, 1e-9)
	assert.Equal(t, 20, session.Baseline.SampleSize)

	assert.Equal(t, []models.PromotionState{models.PromotionStarted}, f.events.states())
	require.Len(t, f.events.applied, 1)
	assert.Equal(t, 8.0, f.events.applied[0].OldValue)
	assert.Equal(t, 12.0, f.events.applied[0].NewValue)
}

func TestPromoteRefusedWhenGateDisabled(t *testing.T) {
	f := newFixture(t)
	f.gate.Disable()

	_, err := f.controller.PromoteParameter(context.Background(), actionableRecommendation())
	assert.ErrorIs(t, err, models.ErrPromotionDisabled)
	assert.Nil(t, f.monitor.Active())

	_, ok := f.controller.Current().Value(testCohort)
	assert.False(t, ok)
}

func TestPromoteRefusedDuringActiveCanary(t *testing.T) {
	f := newFixture(t)

	_, err := f.controller.PromoteParameter(context.Background(), actionableRecommendation())
	require.NoError(t, err)

	_, err = f.controller.PromoteParameter(context.Background(), actionableRecommendation())
	assert.ErrorIs(t, err, models.ErrSessionActive)
}

func TestPromoteRefusedWhenNotActionable(t *testing.T) {
	f := newFixture(t)

	rec := actionableRecommendation()
	rec.Apply = false
	rec.Justification = "insufficient data, do not apply"

	_, err := f.controller.PromoteParameter(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not actionable")
	assert.Nil(t, f.monitor.Active())
}

func TestCatastrophicRollbackRestoresGateClearsAndHalts(t *testing.T) {
	f := newFixture(t)

	_, err := f.controller.PromoteParameter(context.Background(), actionableRecommendation())
	require.NoError(t, err)

	// Three straight heavy losses: win rate 0 and a $2400 drawdown, both
	// past the catastrophic floors.
	recordCanary(t, f, -800, -800, -800)

	result, err := f.controller.EvaluateCanary(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, canary.DecisionRollback, result.Decision)
	assert.True(t, result.Catastrophic)

	// Live parameters reverted to the pre-promotion snapshot.
	_, ok := f.controller.Current().Value(testCohort)
	assert.False(t, ok)
	onDisk, err := loadParameters(f.store.LiveDir())
	require.NoError(t, err)
	_, ok = onDisk.Value(testCohort)
	assert.False(t, ok)

	// The gate is cleared and stays cleared until re-armed externally.
	assert.False(t, f.gate.Enabled())
	_, err = f.controller.PromoteParameter(context.Background(), actionableRecommendation())
	assert.ErrorIs(t, err, models.ErrPromotionDisabled)

	assert.Equal(t, []models.PromotionState{models.PromotionStarted, models.PromotionRolledBack}, f.events.states())
	require.Len(t, f.events.halts, 1)
	assert.Equal(t, 0.0, f.events.halts[0].WinRate)
}

func TestDegradationRollbackDoesNotHalt(t *testing.T) {
	f := newFixture(t)

	_, err := f.controller.PromoteParameter(context.Background(), actionableRecommendation())
	require.NoError(t, err)

	// 12 trades, 5 wins: win rate 0.42 against baseline 0.60 with a $700
	// drawdown. A degradation trigger, not a catastrophe.
	recordCanary(t, f, 50, 50, 50, 50, 50, -100, -100, -100, -100, -100, -100, -100)

	result, err := f.controller.EvaluateCanary(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, canary.DecisionRollback, result.Decision)
	assert.False(t, result.Catastrophic)

	assert.False(t, f.gate.Enabled())
	assert.Empty(t, f.events.halts)

	require.Len(t, f.events.changed, 2)
	rolledBack := f.events.changed[1]
	assert.Equal(t, models.PromotionRolledBack, rolledBack.State)
	assert.InDelta(t, 0.6, rolledBack.Baseline.WinRate, 1e-9)
	assert.InDelta(t, 5.0/12.0, rolledBack.Observed.WinRate, 1e-9)
}

func TestCompletionCommitsAndKeepsGateArmed(t *testing.T) {
	f := newFixture(t)

	session, err := f.controller.PromoteParameter(context.Background(), actionableRecommendation())
	require.NoError(t, err)

	// Alternating +100/-20: win rate 0.50 and Sharpe well above the
	// trigger band relative to the seeded baseline.
	recordCanary(t, f, 100, -20, 100, -20, 100, -20, 100, -20, 100, -20, 100, -20)
	session.StartedAt = time.Now().Add(-25 * time.Hour)

	result, err := f.controller.EvaluateCanary(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, canary.DecisionComplete, result.Decision)

	// The promoted value stays live and the gate stays armed.
	value, ok := f.controller.Current().Value(testCohort)
	require.True(t, ok)
	assert.Equal(t, 12.0, value)
	assert.True(t, f.gate.Enabled())

	assert.Equal(t, []models.PromotionState{models.PromotionStarted, models.PromotionCompleted}, f.events.states())
}

func TestEvaluateCanarySeesLedgerRecordedOutcomes(t *testing.T) {
	f := newFixture(t)

	session, err := f.controller.PromoteParameter(context.Background(), actionableRecommendation())
	require.NoError(t, err)

	// Canary outcomes land in the shared ledger without passing through
	// this controller, the way a separate execution process records them.
	for i := 0; i < 12; i++ {
		pnl := 100.0
		if i%2 == 1 {
			pnl = -20.0
		}
		require.NoError(t, f.outcomes.Record(context.Background(), canaryTrade(pnl)))
	}

	// Past the elapsed half of the observation gate with healthy numbers:
	// the evaluation must count the ledger trades instead of rolling back
	// on an empty session.
	session.StartedAt = time.Now().Add(-3 * time.Hour)

	result, err := f.controller.EvaluateCanary(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, canary.DecisionNone, result.Decision)
	assert.Equal(t, 12, result.Observed.SampleSize)
	assert.InDelta(t, 0.5, result.Observed.WinRate, 1e-9)
	require.NotNil(t, f.monitor.Active())
	assert.True(t, f.gate.Enabled())
}

func TestRecordOutcomeIsCounted(t *testing.T) {
	f := newFixture(t)

	before := testutil.ToFloat64(metrics.OutcomesRecordedTotal)

	trade := canaryTrade(50)
	trade.Canary = false
	require.NoError(t, f.controller.RecordOutcome(context.Background(), trade))

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.OutcomesRecordedTotal))
}

func TestEvaluateCanaryNoSessionIsNoOp(t *testing.T) {
	f := newFixture(t)

	result, err := f.controller.EvaluateCanary(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, f.events.changed)
}

func TestPromoteArtifactVerifiesChecksum(t *testing.T) {
	f := newFixture(t)

	path := filepath.Join(t.TempDir(), "entry_model.bin")
	require.NoError(t, os.WriteFile(path, []byte("weights-v2"), 0o644))

	artifact := &models.CandidateArtifact{
		ID:          "run-042",
		ModelType:   "entry_model",
		Checksum:    "0000000000000000000000000000000000000000000000000000000000000000",
		PublishedAt: time.Now(),
	}

	_, err := f.controller.PromoteArtifact(context.Background(), artifact, path, testCohort)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match published")
	assert.Nil(t, f.monitor.Active())
}

func TestPromoteArtifactInstallsAndRollsBack(t *testing.T) {
	f := newFixture(t)

	content := []byte("weights-v2")
	path := filepath.Join(t.TempDir(), "entry_model.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	sum := sha256.Sum256(content)

	artifact := &models.CandidateArtifact{
		ID:          "run-042",
		ModelType:   "entry_model",
		Checksum:    hex.EncodeToString(sum[:]),
		PublishedAt: time.Now(),
	}

	_, err := f.controller.PromoteArtifact(context.Background(), artifact, path, testCohort)
	require.NoError(t, err)

	installed := filepath.Join(f.store.LiveDir(), modelsDirName, "entry_model")
	data, err := os.ReadFile(installed)
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.Equal(t, "run-042", f.controller.Current().ArtifactID)

	// A catastrophic canary removes the installed model again.
	recordCanary(t, f, -800, -800, -800)
	result, err := f.controller.EvaluateCanary(context.Background())
	require.NoError(t, err)
	require.Equal(t, canary.DecisionRollback, result.Decision)

	_, err = os.Stat(installed)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, f.controller.Current().ArtifactID)
}

func TestParametersSurviveRestart(t *testing.T) {
	f := newFixture(t)

	session, err := f.controller.PromoteParameter(context.Background(), actionableRecommendation())
	require.NoError(t, err)
	recordCanary(t, f, 100, -20, 100, -20, 100, -20, 100, -20, 100, -20, 100, -20)
	session.StartedAt = time.Now().Add(-25 * time.Hour)
	_, err = f.controller.EvaluateCanary(context.Background())
	require.NoError(t, err)

	// A fresh controller over the same store picks up the committed value.
	reloaded, err := NewController(DefaultConfig(), NewGate(true), f.store,
		canary.NewMonitor(canary.DefaultConfig(), testLogger()), f.outcomes, testLogger())
	require.NoError(t, err)

	value, ok := reloaded.Current().Value(testCohort)
	require.True(t, ok)
	assert.Equal(t, 12.0, value)
}
