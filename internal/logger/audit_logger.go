// Package logger provides audit logging.
package logger

import (
	"github.com/sirupsen/logrus"

	"github.com/yourusername/tradeguard/internal/models"
)

// AuditLogger provides the dedicated audit trail for every change the
// control plane makes to live trading configuration. It doubles as a
// promotion event emitter so the trail and the event stream can never
// disagree about what happened.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// PromotionChanged records a promotion lifecycle transition.
func (al *AuditLogger) PromotionChanged(event models.PromotionStateChanged) {
	entry := al.WithFields(logrus.Fields{
		"state":             string(event.State),
		"session_id":        event.SessionID,
		"snapshot_id":       event.SnapshotID,
		"reason":            event.Reason,
		"baseline_win_rate": event.Baseline.WinRate,
		"observed_win_rate": event.Observed.WinRate,
		"observed_drawdown": event.Observed.MaxDrawdown.StringFixed(2),
		"timestamp":         event.Timestamp.Unix(),
	})

	if event.State == models.PromotionRolledBack {
		entry.Warn("Promotion rolled back")
		return
	}
	entry.Info("Promotion state changed")
}

// ParameterApplied records a live parameter change.
func (al *AuditLogger) ParameterApplied(event models.ParameterApplied) {
	al.WithFields(logrus.Fields{
		"cohort":        event.Cohort.String(),
		"old_value":     event.OldValue,
		"new_value":     event.NewValue,
		"justification": event.Justification,
		"timestamp":     event.Timestamp.Unix(),
	}).Info("Live parameter changed")
}

// Halt records a catastrophic halt request sent to the safety layer.
func (al *AuditLogger) Halt(signal models.HaltSignal) {
	al.WithFields(logrus.Fields{
		"reason":     signal.Reason,
		"win_rate":   signal.WinRate,
		"drawdown":   signal.Drawdown.StringFixed(2),
		"session_id": signal.SessionID,
		"timestamp":  signal.Timestamp.Unix(),
	}).Error("Trading halt signalled")
}

// LogSnapshotRestore records a manual or automatic snapshot restore.
func (al *AuditLogger) LogSnapshotRestore(snapshotID, reason string) {
	al.WithFields(logrus.Fields{
		"snapshot_id": snapshotID,
		"reason":      reason,
	}).Warn("Artifact snapshot restored")
}

// LogGateChange records changes to the auto-promotion gate.
func (al *AuditLogger) LogGateChange(enabled bool, reason string) {
	al.WithFields(logrus.Fields{
		"enabled": enabled,
		"reason":  reason,
	}).Info("Auto-promotion gate changed")
}

// LogThresholdDerived records a newly derived excursion threshold.
func (al *AuditLogger) LogThresholdDerived(threshold models.ExcursionThreshold) {
	al.WithFields(logrus.Fields{
		"cohort":               threshold.Cohort.String(),
		"checkpoint":           threshold.Checkpoint.String(),
		"magnitude":            threshold.Magnitude,
		"stop_out_probability": threshold.StopOutProbability,
		"sample_size":          threshold.SampleSize,
	}).Info("Excursion threshold derived")
}
