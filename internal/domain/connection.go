package domain

import (
	"fmt"
	"time"
)

// ConnectionPhase is the coarse streaming state shown to operators.
type ConnectionPhase string

const (
	PhaseDisconnected ConnectionPhase = "disconnected"
	PhaseConnecting   ConnectionPhase = "connecting"
	PhaseConnected    ConnectionPhase = "connected"
	PhaseDegraded     ConnectionPhase = "degraded"
	PhasePolling      ConnectionPhase = "polling"
)

// AllPhases lists every phase in declaration order.
var AllPhases = []ConnectionPhase{PhaseDisconnected, PhaseConnecting, PhaseConnected, PhaseDegraded, PhasePolling}

// ConnectionState is a read-only view of the reconnection supervisor.
// Attempt is meaningful only while Phase is not PhaseConnected.
type ConnectionState struct {
	Phase   ConnectionPhase `json:"phase"`
	Reason  string          `json:"reason,omitempty"`
	Attempt int             `json:"attempt"`
	Since   time.Time       `json:"since"`
}

// Status renders the legacy one-word status string.
func (s ConnectionState) Status() string {
	switch s.Phase {
	case PhaseConnected:
		return "running"
	case PhasePolling:
		return "rest_fallback"
	case PhaseDegraded:
		return fmt.Sprintf("reconnecting_attempt_%d", s.Attempt)
	case PhaseConnecting:
		if s.Attempt > 0 {
			return fmt.Sprintf("reconnecting_attempt_%d", s.Attempt)
		}
		return "connecting"
	default:
		return "stopped"
	}
}
