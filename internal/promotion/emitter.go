package promotion

import "github.com/yourusername/tradeguard/internal/models"

// Emitter receives promotion lifecycle events. The controller fans events
// out to every registered emitter; a slow emitter must not block the
// promotion path, so implementations are expected to be non-blocking.
type Emitter interface {
	PromotionChanged(event models.PromotionStateChanged)
	ParameterApplied(event models.ParameterApplied)
}

// HaltSignaler delivers the catastrophic-override halt request to the
// external safety layer.
type HaltSignaler interface {
	Halt(signal models.HaltSignal)
}
