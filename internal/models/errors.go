package models

import "errors"

// Custom errors
var (
	ErrInsufficientData  = errors.New("insufficient sample for a decision")
	ErrNoThreshold       = errors.New("no excursion threshold available")
	ErrSessionActive     = errors.New("a canary session is already active")
	ErrNoActiveSession   = errors.New("no active canary session")
	ErrPromotionDisabled = errors.New("auto-promotion is disabled")
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrNotFound          = errors.New("record not found")
)
