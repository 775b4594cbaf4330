package engine

import (
	"errors"
	"time"
)

// ErrInsufficientBalance rejects a debit that would take the effective
// balance negative. Raised locally, before any network call.
var ErrInsufficientBalance = errors.New("insufficient balance")

// balanceLedger mirrors the player's spendable balance. `confirmed` is the
// last server-acknowledged value; `pendingDelta` sums optimistic local
// adjustments the server has not corroborated yet.
//
// Every local mutation arms a cooldown token. While the token is live,
// reconciliation is deferred instead of applied, so a slow server read cannot
// clobber a balance a just-confirmed bet already adjusted.
type balanceLedger struct {
	confirmed    float64
	pendingDelta float64

	cooldown     time.Duration
	lastMutation time.Time
}

func newBalanceLedger(cooldown time.Duration) *balanceLedger {
	if cooldown <= 0 {
		cooldown = 2 * time.Second
	}
	return &balanceLedger{cooldown: cooldown}
}

func (b *balanceLedger) effective() float64 {
	return b.confirmed + b.pendingDelta
}

// debit applies an optimistic stake deduction. Fails fast when the effective
// balance cannot cover it.
func (b *balanceLedger) debit(amount float64, now time.Time) error {
	if b.effective() < amount {
		return ErrInsufficientBalance
	}
	b.pendingDelta -= amount
	b.lastMutation = now
	return nil
}

// credit applies an optimistic payout or a rollback of an earlier debit.
func (b *balanceLedger) credit(amount float64, now time.Time) {
	b.pendingDelta += amount
	b.lastMutation = now
}

// mutationInFlight reports whether the cooldown token from the last local
// mutation is still live.
func (b *balanceLedger) mutationInFlight(now time.Time) bool {
	return !b.lastMutation.IsZero() && now.Sub(b.lastMutation) < b.cooldown
}

// reconcile replaces `confirmed` with a fresh server value and zeroes the
// optimistic delta. If a mutation is still inside its cooldown window the
// whole reconcile is deferred (reports false) and the caller retries later.
func (b *balanceLedger) reconcile(serverConfirmed float64, now time.Time) bool {
	if b.mutationInFlight(now) {
		return false
	}
	b.confirmed = serverConfirmed
	b.pendingDelta = 0
	return true
}
