package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BaselineMetrics is the performance snapshot a canary session is judged
// against, captured immediately before a promotion.
type BaselineMetrics struct {
	WinRate     float64         `json:"win_rate"`
	MaxDrawdown decimal.Decimal `json:"max_drawdown"`
	SharpeRatio float64         `json:"sharpe_ratio"`
	SampleSize  int             `json:"sample_size"`
	CapturedAt  time.Time       `json:"captured_at"`
}

// PromotionState describes a transition in the promotion lifecycle
type PromotionState string

const (
	// PromotionStarted means a change was applied and a canary session opened
	PromotionStarted PromotionState = "started"
	// PromotionCompleted means the canary window passed without a trigger
	PromotionCompleted PromotionState = "completed"
	// PromotionRolledBack means a degradation trigger or catastrophic override fired
	PromotionRolledBack PromotionState = "rolled_back"
)

// PromotionStateChanged is emitted on every promotion lifecycle transition
// for observability and auditing.
type PromotionStateChanged struct {
	State      PromotionState  `json:"state"`
	SessionID  uuid.UUID       `json:"session_id"`
	SnapshotID string          `json:"snapshot_id"`
	Reason     string          `json:"reason,omitempty"`
	Baseline   BaselineMetrics `json:"baseline"`
	Observed   BaselineMetrics `json:"observed"`
	Timestamp  time.Time       `json:"timestamp"`
}

// ParameterApplied is emitted to the execution layer when a new parameter
// value goes live.
type ParameterApplied struct {
	Cohort        CohortKey `json:"cohort"`
	OldValue      float64   `json:"old_value"`
	NewValue      float64   `json:"new_value"`
	Justification string    `json:"justification"`
	Timestamp     time.Time `json:"timestamp"`
}

// HaltSignal is emitted to the external safety layer on catastrophic
// override only. It requests a full trading halt, not merely a revert.
type HaltSignal struct {
	Reason    string          `json:"reason"`
	WinRate   float64         `json:"win_rate"`
	Drawdown  decimal.Decimal `json:"drawdown"`
	SessionID uuid.UUID       `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
}

// CandidateArtifact represents a newly retrained model ready for promotion
// consideration, delivered by the training pipeline.
type CandidateArtifact struct {
	ID          string            `json:"id"`
	ModelType   string            `json:"model_type"`
	URL         string            `json:"url"`
	Checksum    string            `json:"checksum"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	PublishedAt time.Time         `json:"published_at"`
}
