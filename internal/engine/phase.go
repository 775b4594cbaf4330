package engine

import "time"

// RoundPhase is the single authoritative game phase. Transitions only ever
// follow Idle -> Betting -> Running -> Crashed -> Betting, except that a
// disconnect forces Idle from anywhere.
type RoundPhase string

const (
	PhaseIdle    RoundPhase = "IDLE"
	PhaseBetting RoundPhase = "BETTING"
	PhaseRunning RoundPhase = "RUNNING"
	PhaseCrashed RoundPhase = "CRASHED"
)

// canTransition reports whether an event asking for `next` is valid from the
// current phase. Idle is always reachable (disconnect reset).
func (p RoundPhase) canTransition(next RoundPhase) bool {
	if next == PhaseIdle {
		return true
	}
	switch next {
	case PhaseBetting:
		return p == PhaseIdle || p == PhaseCrashed
	case PhaseRunning:
		return p == PhaseBetting
	case PhaseCrashed:
		return p == PhaseRunning
	}
	return false
}

// Round tracks the current server round as the client knows it.
type Round struct {
	RoundID    string     `json:"round_id"`
	Commitment string     `json:"commitment,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	CrashPoint float64    `json:"crash_point,omitempty"` // only set once crashed
	Phase      RoundPhase `json:"phase"`

	// BettingEndsAt is the betting-window deadline, derived from the server's
	// countdown. Zero when the server did not announce one.
	BettingEndsAt time.Time `json:"betting_ends_at"`
}
