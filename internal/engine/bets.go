package engine

import (
	"time"

	"github.com/google/uuid"
)

type BetState string

const (
	BetQueued    BetState = "QUEUED"
	BetPending   BetState = "PENDING"
	BetActive    BetState = "ACTIVE"
	BetCashedOut BetState = "CASHED_OUT"
	BetCrashed   BetState = "CRASHED"
	BetFailed    BetState = "FAILED"
)

// Resolution records how a bet ended.
type Resolution struct {
	Multiplier float64 `json:"multiplier"`
	Payout     float64 `json:"payout"`
}

// Bet is the local player's wager. Owned exclusively by the bet ledger; the
// rest of the world only ever sees copies.
type Bet struct {
	LocalID    string      `json:"local_id"`
	Amount     float64     `json:"amount"`
	State      BetState    `json:"state"`
	RoundID    string      `json:"round_id,omitempty"`
	PlacedAt   time.Time   `json:"placed_at"`
	ResolvedAt time.Time   `json:"resolved_at,omitempty"`
	Resolution *Resolution `json:"resolution,omitempty"`
	Error      string      `json:"error,omitempty"`

	// cashOutSent blocks repeat cash-out commands until resolution arrives.
	cashOutSent bool
}

func (b *Bet) resolved() bool {
	switch b.State {
	case BetCashedOut, BetCrashed, BetFailed:
		return true
	}
	return false
}

// betLedger holds the single in-flight bet and a bounded resolved history.
// At most one Pending/Active bet exists at any time.
type betLedger struct {
	current      *Bet
	history      []Bet
	historyLimit int
}

func newBetLedger(historyLimit int) *betLedger {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &betLedger{historyLimit: historyLimit}
}

// open creates the pending bet. The caller must have already checked that no
// bet is in flight.
func (l *betLedger) open(amount float64, roundID string, now time.Time) *Bet {
	l.current = &Bet{
		LocalID:  uuid.NewString(),
		Amount:   amount,
		State:    BetPending,
		RoundID:  roundID,
		PlacedAt: now,
	}
	return l.current
}

func (l *betLedger) inFlight() bool {
	return l.current != nil && !l.current.resolved()
}

func (l *betLedger) active() *Bet {
	if l.current != nil && l.current.State == BetActive {
		return l.current
	}
	return nil
}

func (l *betLedger) pending() *Bet {
	if l.current != nil && l.current.State == BetPending {
		return l.current
	}
	return nil
}

// confirm promotes the pending bet to Active. Idempotent: a duplicate
// confirmation for an already-active bet is a no-op and reports false.
func (l *betLedger) confirm(roundID string) (changed bool) {
	if l.current == nil {
		return false
	}
	if l.current.State == BetActive {
		if roundID != "" && l.current.RoundID == "" {
			l.current.RoundID = roundID
		}
		return false
	}
	if l.current.State != BetPending {
		return false
	}
	l.current.State = BetActive
	if roundID != "" {
		l.current.RoundID = roundID
	}
	return true
}

// fail terminates the in-flight bet with the given reason and retires it.
func (l *betLedger) fail(reason string, now time.Time) *Bet {
	if l.current == nil || l.current.resolved() {
		return nil
	}
	l.current.State = BetFailed
	l.current.Error = reason
	l.current.ResolvedAt = now
	return l.retire()
}

// cashOut resolves the active bet as a win. Idempotent against duplicate
// confirmations: once resolved, further calls return nil.
func (l *betLedger) cashOut(multiplier, payout float64, now time.Time) *Bet {
	b := l.active()
	if b == nil {
		return nil
	}
	b.State = BetCashedOut
	b.Resolution = &Resolution{Multiplier: multiplier, Payout: payout}
	b.ResolvedAt = now
	return l.retire()
}

// crash resolves the active bet as a loss at the round's crash point.
func (l *betLedger) crash(crashPoint float64, now time.Time) *Bet {
	b := l.active()
	if b == nil {
		return nil
	}
	b.State = BetCrashed
	b.Resolution = &Resolution{Multiplier: crashPoint, Payout: 0}
	b.ResolvedAt = now
	return l.retire()
}

// markCashOutSent flags the active bet so double-clicks become no-ops.
// Reports whether the flag was newly set.
func (l *betLedger) markCashOutSent() bool {
	b := l.active()
	if b == nil || b.cashOutSent {
		return false
	}
	b.cashOutSent = true
	return true
}

// clearCashOutSent re-enables cash-out after a failed send or a reset.
func (l *betLedger) clearCashOutSent() {
	if l.current != nil {
		l.current.cashOutSent = false
	}
}

// recordFailedAttempt writes a Failed entry straight into history, for bet
// attempts (queue flushes) that never made it to an in-flight bet.
func (l *betLedger) recordFailedAttempt(amount float64, reason string, now time.Time) Bet {
	b := Bet{
		LocalID:    uuid.NewString(),
		Amount:     amount,
		State:      BetFailed,
		PlacedAt:   now,
		ResolvedAt: now,
		Error:      reason,
	}
	l.history = append(l.history, b)
	if len(l.history) > l.historyLimit {
		l.history = l.history[len(l.history)-l.historyLimit:]
	}
	return b
}

// retire moves the resolved current bet into bounded history.
func (l *betLedger) retire() *Bet {
	b := l.current
	l.current = nil
	l.history = append(l.history, *b)
	if len(l.history) > l.historyLimit {
		l.history = l.history[len(l.history)-l.historyLimit:]
	}
	return b
}

// snapshot returns copies of the in-flight bet (if any) plus history,
// most recent first.
func (l *betLedger) snapshot() []Bet {
	out := make([]Bet, 0, len(l.history)+1)
	if l.current != nil {
		out = append(out, *l.current)
	}
	for i := len(l.history) - 1; i >= 0; i-- {
		out = append(out, l.history[i])
	}
	return out
}
