// Package promotion orchestrates the promotion lifecycle: gate check,
// pre-promotion snapshot, atomic apply, canary observation and
// commit-or-rollback.
package promotion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/tradeguard/internal/backup"
	"github.com/yourusername/tradeguard/internal/canary"
	"github.com/yourusername/tradeguard/internal/ledger"
	"github.com/yourusername/tradeguard/internal/metrics"
	"github.com/yourusername/tradeguard/internal/models"
)

const modelsDirName = "models"

// Config defines promotion behavior
type Config struct {
	// BaselineWindow is the recency window of ledger history the
	// pre-promotion baseline is computed over.
	BaselineWindow time.Duration `json:"baseline_window"`
}

// DefaultConfig returns the illustrative default promotion settings
func DefaultConfig() Config {
	return Config{BaselineWindow: 7 * 24 * time.Hour}
}

// Controller owns the promotion lifecycle. Every promotion follows the same
// sequence: gate check, baseline capture, snapshot, apply, canary start.
// Every rollback restores the pre-promotion snapshot, clears the gate and
// emits the full metric comparison; the catastrophic path additionally
// raises a halt signal.
type Controller struct {
	cfg      Config
	gate     *Gate
	store    *backup.Store
	monitor  *canary.Monitor
	outcomes ledger.OutcomeLedger
	logger   *logrus.Logger

	mu       sync.Mutex
	current  atomic.Pointer[ActiveParameters]
	emitters []Emitter
	halt     HaltSignaler
}

// NewController creates a promotion controller and loads the live parameter
// configuration from the artifact store.
func NewController(cfg Config, gate *Gate, store *backup.Store, monitor *canary.Monitor, outcomes ledger.OutcomeLedger, logger *logrus.Logger) (*Controller, error) {
	params, err := loadParameters(store.LiveDir())
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:      cfg,
		gate:     gate,
		store:    store,
		monitor:  monitor,
		outcomes: outcomes,
		logger:   logger,
	}
	c.current.Store(params)
	return c, nil
}

// AddEmitter registers a lifecycle event receiver
func (c *Controller) AddEmitter(e Emitter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitters = append(c.emitters, e)
}

// SetHaltSignaler registers the external safety layer
func (c *Controller) SetHaltSignaler(h HaltSignaler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.halt = h
}

// Current returns the live parameter configuration. Lock-free; safe to call
// from the execution hot path.
func (c *Controller) Current() *ActiveParameters {
	return c.current.Load()
}

// CanaryActive reports whether a canary session is currently observing
func (c *Controller) CanaryActive() bool {
	return c.monitor.Active() != nil
}

// RecordOutcome appends an outcome to the ledger and, for canary-tagged
// trades, to the active canary session.
func (c *Controller) RecordOutcome(ctx context.Context, outcome *models.TradeOutcome) error {
	if err := c.outcomes.Record(ctx, outcome); err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	metrics.RecordOutcome()

	if outcome.Canary {
		if err := c.monitor.RecordOutcome(outcome); err != nil {
			// A canary trade can land just after its session closed.
			c.logger.WithFields(logrus.Fields{
				"outcome_id": outcome.ID,
				"cohort":     outcome.Cohort.String(),
			}).Warn("Canary outcome arrived with no active session")
		}
	}
	return nil
}

// PromoteParameter applies an actionable parameter recommendation and opens
// a canary session over it.
func (c *Controller) PromoteParameter(ctx context.Context, rec *models.ParameterRecommendation) (*canary.Session, error) {
	if !rec.Apply {
		return nil, fmt.Errorf("recommendation is not actionable: %s", rec.Justification)
	}

	oldValue := rec.CurrentValue
	return c.promote(ctx, rec.Cohort, func(next *ActiveParameters) error {
		next.Values[rec.Cohort.String()] = rec.CandidateValue
		return nil
	}, func(session *canary.Session) {
		c.emitApplied(models.ParameterApplied{
			Cohort:        rec.Cohort,
			OldValue:      oldValue,
			NewValue:      rec.CandidateValue,
			Justification: rec.Justification,
			Timestamp:     time.Now(),
		})
	})
}

// PromoteArtifact installs a retrained model artifact from a local file and
// opens a canary session over it. The file must match the checksum the
// training pipeline published.
func (c *Controller) PromoteArtifact(ctx context.Context, artifact *models.CandidateArtifact, localPath string, cohort models.CohortKey) (*canary.Session, error) {
	sum, err := fileChecksum(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to checksum artifact %s: %w", artifact.ID, err)
	}
	if sum != artifact.Checksum {
		return nil, fmt.Errorf("artifact %s checksum %s does not match published %s", artifact.ID, sum, artifact.Checksum)
	}

	return c.promote(ctx, cohort, func(next *ActiveParameters) error {
		if err := c.installArtifact(artifact, localPath); err != nil {
			return err
		}
		next.ArtifactID = artifact.ID
		return nil
	}, nil)
}

// promote runs the shared promotion sequence under the controller lock.
// apply mutates the next parameter set and writes any live files; emit,
// if non-nil, publishes the change-specific event after the canary opens.
func (c *Controller) promote(ctx context.Context, cohort models.CohortKey, apply func(*ActiveParameters) error, emit func(*canary.Session)) (*canary.Session, error) {
	if !c.gate.Enabled() {
		return nil, models.ErrPromotionDisabled
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.monitor.Active() != nil {
		return nil, models.ErrSessionActive
	}

	history, err := c.outcomes.Query(ctx, cohort, c.cfg.BaselineWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to capture baseline for %s: %w", cohort, err)
	}
	baseline := canary.ComputeMetrics(history, time.Now())

	snapshotID, err := c.store.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot before promotion: %w", err)
	}

	prev := c.current.Load()
	next := prev.clone()
	next.AppliedAt = time.Now()
	if err := apply(next); err != nil {
		c.revert(snapshotID, prev)
		return nil, fmt.Errorf("failed to apply promotion: %w", err)
	}
	if err := saveParameters(c.store.LiveDir(), next); err != nil {
		c.revert(snapshotID, prev)
		return nil, err
	}
	c.current.Store(next)

	session, err := c.monitor.Start(cohort, baseline, snapshotID)
	if err != nil {
		c.revert(snapshotID, prev)
		return nil, fmt.Errorf("failed to open canary session: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"session_id":  session.ID,
		"snapshot_id": snapshotID,
		"cohort":      cohort.String(),
	}).Info("Promotion applied, canary session open")

	if emit != nil {
		emit(session)
	}
	c.emitChanged(models.PromotionStateChanged{
		State:      models.PromotionStarted,
		SessionID:  session.ID,
		SnapshotID: snapshotID,
		Baseline:   baseline,
		Timestamp:  time.Now(),
	})

	return session, nil
}

// EvaluateCanary runs one canary decision pass and carries out its verdict.
// No-op when no session is active. Canary outcomes recorded straight into
// the ledger by other processes are folded into the session first, so the
// decision always reflects the full ledger view, not just the outcomes
// that happened to arrive through this controller.
func (c *Controller) EvaluateCanary(ctx context.Context) (*canary.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session := c.monitor.Active()
	if session == nil {
		return nil, nil
	}

	recent, err := c.outcomes.Query(ctx, session.Cohort, time.Since(session.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to load canary outcomes: %w", err)
	}
	if err := c.monitor.SyncOutcomes(recent); err != nil {
		return nil, err
	}

	result, err := c.monitor.Evaluate()
	if err != nil {
		return nil, err
	}

	switch result.Decision {
	case canary.DecisionComplete:
		c.logger.WithFields(logrus.Fields{
			"session_id":  session.ID,
			"snapshot_id": session.SnapshotID,
		}).Info("Promotion committed after clean canary window")
		c.emitChanged(models.PromotionStateChanged{
			State:      models.PromotionCompleted,
			SessionID:  session.ID,
			SnapshotID: session.SnapshotID,
			Baseline:   session.Baseline,
			Observed:   result.Observed,
			Timestamp:  time.Now(),
		})

	case canary.DecisionRollback:
		c.rollBackLocked(session, &result)
	}

	return &result, nil
}

// rollBackLocked restores the pre-promotion snapshot, clears the gate and
// emits the rollback with the full baseline-versus-observed comparison.
// The restore is plain file I/O with no cancellation points, so it runs to
// completion even when the surrounding loop is shutting down.
func (c *Controller) rollBackLocked(session *canary.Session, result *canary.Result) {
	if err := c.store.Restore(session.SnapshotID); err != nil {
		c.logger.WithFields(logrus.Fields{
			"session_id":  session.ID,
			"snapshot_id": session.SnapshotID,
			"error":       err,
		}).Error("Rollback restore failed, manual intervention required")
	} else if params, err := loadParameters(c.store.LiveDir()); err != nil {
		c.logger.WithError(err).Error("Failed to reload parameters after restore")
	} else {
		c.current.Store(params)
	}

	c.gate.Disable()

	c.logger.WithFields(logrus.Fields{
		"session_id":   session.ID,
		"snapshot_id":  session.SnapshotID,
		"trigger":      result.Trigger,
		"catastrophic": result.Catastrophic,
		"reason":       result.Reason,
	}).Error("Promotion rolled back, auto-promotion gate cleared")

	c.emitChanged(models.PromotionStateChanged{
		State:      models.PromotionRolledBack,
		SessionID:  session.ID,
		SnapshotID: session.SnapshotID,
		Reason:     result.Reason,
		Baseline:   session.Baseline,
		Observed:   result.Observed,
		Timestamp:  time.Now(),
	})

	if result.Catastrophic && c.halt != nil {
		c.halt.Halt(models.HaltSignal{
			Reason:    result.Reason,
			WinRate:   result.Observed.WinRate,
			Drawdown:  result.Observed.MaxDrawdown,
			SessionID: session.ID,
			Timestamp: time.Now(),
		})
	}
}

// revert undoes a half-applied promotion before any canary session opened
func (c *Controller) revert(snapshotID string, prev *ActiveParameters) {
	if err := c.store.Restore(snapshotID); err != nil {
		c.logger.WithFields(logrus.Fields{
			"snapshot_id": snapshotID,
			"error":       err,
		}).Error("Failed to revert aborted promotion")
	}
	c.current.Store(prev)
}

func (c *Controller) installArtifact(artifact *models.CandidateArtifact, localPath string) error {
	dir := filepath.Join(c.store.LiveDir(), modelsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	dst := filepath.Join(dir, artifact.ModelType)
	tmp := dst + ".tmp"
	if err := copyArtifact(localPath, tmp); err != nil {
		return fmt.Errorf("failed to stage artifact %s: %w", artifact.ID, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to install artifact %s: %w", artifact.ID, err)
	}
	return nil
}

func (c *Controller) emitChanged(event models.PromotionStateChanged) {
	for _, e := range c.emitters {
		e.PromotionChanged(event)
	}
}

func (c *Controller) emitApplied(event models.ParameterApplied) {
	for _, e := range c.emitters {
		e.ParameterApplied(event)
	}
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyArtifact(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
