package promotion

import "sync/atomic"

// Gate is the process-wide auto-promotion switch. It is the single source
// of truth for "is promotion currently permitted": any rollback clears it,
// and only an explicit external call re-enables it.
type Gate struct {
	enabled atomic.Bool
}

// NewGate creates a gate in the given initial state
func NewGate(enabled bool) *Gate {
	g := &Gate{}
	g.enabled.Store(enabled)
	return g
}

// Enabled reports whether automatic promotion is currently permitted
func (g *Gate) Enabled() bool {
	return g.enabled.Load()
}

// Enable re-arms automatic promotion. Called only by an explicit external
// operator action, never by the control plane itself.
func (g *Gate) Enable() {
	g.enabled.Store(true)
}

// Disable clears the gate. Called by every rollback.
func (g *Gate) Disable() {
	g.enabled.Store(false)
}
