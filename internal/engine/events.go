package engine

import "time"

// Event is a server-originated (or transport-originated) fact delivered to the
// engine. Events are applied strictly one at a time, in arrival order.
type Event interface {
	isEvent()
}

// BettingOpened announces a fresh betting window. RoundID and Commitment are
// advisory at this point; the authoritative round id arrives with RoundStarted.
type BettingOpened struct {
	RoundID    string
	Commitment string
	TimeLeft   float64
}

// RoundStarted marks the multiplier launch. StartedAt is the server clock; a
// zero value means the server omitted it and local receipt time is used.
type RoundStarted struct {
	RoundID   string
	StartedAt time.Time
}

// MultiplierTick is an advisory intermediate multiplier pushed by the server.
type MultiplierTick struct {
	Value      float64
	ServerTime time.Time
}

// RoundCrashed ends a round at the server's authoritative crash point. Seed
// fields are the fairness reveal and may be empty.
type RoundCrashed struct {
	RoundID    string
	CrashPoint float64
	ServerSeed string
	ClientSeed string
	Nonce      int
}

// BetConfirmed acknowledges the player's wager for the given round.
type BetConfirmed struct {
	RoundID string
	BetID   string
	Amount  float64
}

// BetRejected terminates the in-flight wager server-side.
type BetRejected struct {
	Reason string
}

// CashOutConfirmed resolves the active wager at the given multiplier.
type CashOutConfirmed struct {
	Multiplier float64
	Payout     float64
}

// BalancePushed carries a server-confirmed spendable balance.
type BalancePushed struct {
	Confirmed float64
}

// Disconnected reports that the transport lost its connection. Reconnection is
// the transport's problem; the engine only resets to Idle.
type Disconnected struct{}

func (BettingOpened) isEvent()    {}
func (RoundStarted) isEvent()     {}
func (MultiplierTick) isEvent()   {}
func (RoundCrashed) isEvent()     {}
func (BetConfirmed) isEvent()     {}
func (BetRejected) isEvent()      {}
func (CashOutConfirmed) isEvent() {}
func (BalancePushed) isEvent()    {}
func (Disconnected) isEvent()     {}

// internal events, injected by the engine itself so that timer fires and
// funding outcomes pass through the same serialized loop as server events

type flushFire struct {
	gen int
}

type fundingResult struct {
	betID          string
	confirmationID string
	err            error
}

type reconcileRetry struct {
	confirmed float64
}

func (flushFire) isEvent()      {}
func (fundingResult) isEvent()  {}
func (reconcileRetry) isEvent() {}

// Commander is the outbound half of the transport: the commands the engine
// issues toward the game server.
type Commander interface {
	SubmitBet(amount float64, confirmationID string) error
	CashOut() error
	RefreshBalance() error
}
