package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"crashpilot/internal/funding"
)

const (
	defaultTickInterval = 16 * time.Millisecond // ~60 Hz display tick
	defaultSettleDelay  = time.Second
	defaultFreshness    = 100 * time.Millisecond
	defaultHistoryLimit = 50
	balancePollInterval = 30 * time.Second

	betResponseTimeout     = 5 * time.Second
	cashoutResponseTimeout = 2 * time.Second
	fundingSubmitTimeout   = 30 * time.Second
)

// Options tunes the engine. Zero values fall back to defaults.
type Options struct {
	MinBet             float64
	MaxBet             float64
	SettleDelay        time.Duration
	ReconcileCooldown  time.Duration
	ServerTickFreshFor time.Duration
	TickInterval       time.Duration
	HistoryLimit       int

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

func (o *Options) withDefaults() {
	if o.MinBet <= 0 {
		o.MinBet = 0.001
	}
	if o.MaxBet <= 0 {
		o.MaxBet = 100.0
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = defaultSettleDelay
	}
	if o.ReconcileCooldown <= 0 {
		o.ReconcileCooldown = 2 * time.Second
	}
	if o.ServerTickFreshFor <= 0 {
		o.ServerTickFreshFor = defaultFreshness
	}
	if o.TickInterval <= 0 {
		o.TickInterval = defaultTickInterval
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = defaultHistoryLimit
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Listener receives the engine's outward notifications. Implementations must
// not block: they are invoked from the engine loop.
type Listener interface {
	PhaseChanged(phase RoundPhase)
	MultiplierChanged(value float64, final bool)
	BetsChanged(bets []Bet)
	BalanceChanged(effective float64)
}

// RoundResult is the settled outcome of one observed round.
type RoundResult struct {
	RoundID    string    `json:"round_id"`
	CrashPoint float64   `json:"crash_point"`
	Commitment string    `json:"commitment,omitempty"`
	ServerSeed string    `json:"server_seed,omitempty"`
	Verified   bool      `json:"verified"`
	CrashedAt  time.Time `json:"crashed_at"`
}

// Recorder persists resolved bets and round outcomes. Calls are made off the
// engine loop; failures must be absorbed by the implementation.
type Recorder interface {
	RecordBet(ctx context.Context, bet Bet)
	RecordRound(ctx context.Context, result RoundResult)
}

// Balance is the read-only balance snapshot exposed to collaborators.
type Balance struct {
	Confirmed    float64 `json:"confirmed"`
	PendingDelta float64 `json:"pending_delta"`
	Effective    float64 `json:"effective"`
}

// State is a read-only snapshot of everything a renderer needs.
type State struct {
	Phase      RoundPhase        `json:"phase"`
	Round      Round             `json:"round"`
	Multiplier float64           `json:"multiplier"`
	Bets       []Bet             `json:"bets"`
	Balance    Balance           `json:"balance"`
	QueuedBet  *QueuedBetRequest `json:"queued_bet,omitempty"`
}

// BetResponse answers a PlaceBet call.
type BetResponse struct {
	Success bool    `json:"success"`
	Queued  bool    `json:"queued"`
	Message string  `json:"message"`
	BetID   string  `json:"bet_id,omitempty"`
	Balance float64 `json:"balance,omitempty"`
}

// CashoutResponse answers a CashOut call.
type CashoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type betRequest struct {
	amount float64
	resp   chan BetResponse
}

type cashoutRequest struct {
	resp chan CashoutResponse
}

// Engine is the round synchronization and bet lifecycle core. A single
// goroutine owns all mutable state; server events, user commands and timer
// fires are applied strictly one at a time through its channels.
type Engine struct {
	log       *zap.Logger
	opts      Options
	commander Commander
	gateway   funding.Gateway
	recorder  Recorder
	listeners []Listener

	events     chan Event
	internalCh chan Event
	betCh      chan betRequest
	cashoutCh  chan cashoutRequest
	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once

	mu            sync.RWMutex
	phase         RoundPhase
	round         Round
	ledger        *betLedger
	queue         *betQueue
	balance       *balanceLedger
	lastTick      serverTick
	displayValue  float64
	flushGen      int
	fundingBusy   bool
	pendingAmount float64

	ticker *time.Ticker // live only while phase is Running
}

func New(log *zap.Logger, commander Commander, gateway funding.Gateway, opts Options) *Engine {
	opts.withDefaults()
	return &Engine{
		log:       log,
		opts:      opts,
		commander: commander,
		gateway:   gateway,

		events:     make(chan Event, 256),
		internalCh: make(chan Event, 16),
		betCh:      make(chan betRequest),
		cashoutCh:  make(chan cashoutRequest),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		phase:        PhaseIdle,
		round:        Round{Phase: PhaseIdle},
		ledger:       newBetLedger(opts.HistoryLimit),
		queue:        &betQueue{},
		balance:      newBalanceLedger(opts.ReconcileCooldown),
		displayValue: MinMultiplier,
	}
}

// SetRecorder attaches an optional persistence sink. Call before Start.
func (e *Engine) SetRecorder(r Recorder) { e.recorder = r }

// AddListener registers an outward notification sink. Call before Start.
func (e *Engine) AddListener(l Listener) { e.listeners = append(e.listeners, l) }

func (e *Engine) Start() {
	e.startOnce.Do(func() {
		go e.run()
	})
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	<-e.doneCh
}

// Deliver hands an inbound event to the engine. Safe from any goroutine.
// Reports false when the engine is saturated and the event was dropped.
func (e *Engine) Deliver(ev Event) bool {
	select {
	case e.events <- ev:
		return true
	default:
		e.log.Warn("event buffer full, dropping event", zap.String("event", fmt.Sprintf("%T", ev)))
		return false
	}
}

// deliverInternal carries the engine's own completions (funding outcomes,
// timer fires). Unlike Deliver it never drops: losing a funding result would
// strand a pending bet and its debit, so the send blocks until the loop can
// take it or the engine stops.
func (e *Engine) deliverInternal(ev Event) {
	select {
	case e.internalCh <- ev:
	case <-e.stopCh:
	}
}

// PlaceBet requests a wager. Outside the betting window the request is queued
// (single slot, last wins) and acknowledged as such.
func (e *Engine) PlaceBet(amount float64) BetResponse {
	req := betRequest{amount: amount, resp: make(chan BetResponse, 1)}
	select {
	case e.betCh <- req:
	case <-e.stopCh:
		return BetResponse{Success: false, Message: "engine stopped"}
	}
	select {
	case resp := <-req.resp:
		return resp
	case <-time.After(betResponseTimeout):
		return BetResponse{Success: false, Message: "bet timeout"}
	}
}

// CashOut requests settlement of the active bet at the current multiplier.
// Idempotent against double-clicks.
func (e *Engine) CashOut() CashoutResponse {
	req := cashoutRequest{resp: make(chan CashoutResponse, 1)}
	select {
	case e.cashoutCh <- req:
	case <-e.stopCh:
		return CashoutResponse{Success: false, Message: "engine stopped"}
	}
	select {
	case resp := <-req.resp:
		return resp
	case <-time.After(cashoutResponseTimeout):
		return CashoutResponse{Success: false, Message: "cashout timeout"}
	}
}

// RefreshBalance asks the server for a fresh confirmed balance.
func (e *Engine) RefreshBalance() {
	if err := e.commander.RefreshBalance(); err != nil {
		e.log.Warn("balance refresh failed", zap.Error(err))
	}
}

// Snapshot returns a copy of the current engine state.
func (e *Engine) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return State{
		Phase:      e.phase,
		Round:      e.round,
		Multiplier: e.displayValue,
		Bets:       e.ledger.snapshot(),
		Balance: Balance{
			Confirmed:    e.balance.confirmed,
			PendingDelta: e.balance.pendingDelta,
			Effective:    e.balance.effective(),
		},
		QueuedBet: e.queue.peek(),
	}
}

func (e *Engine) run() {
	defer close(e.doneCh)
	defer e.stopTicker()

	poll := time.NewTicker(balancePollInterval)
	defer poll.Stop()

	for {
		var tickC <-chan time.Time
		if e.ticker != nil {
			tickC = e.ticker.C
		}

		select {
		case <-e.stopCh:
			return
		case ev := <-e.internalCh:
			e.handleEvent(ev)
		case ev := <-e.events:
			e.handleEvent(ev)
		case req := <-e.betCh:
			req.resp <- e.handlePlaceBet(req.amount, false)
		case req := <-e.cashoutCh:
			req.resp <- e.handleCashOut()
		case <-tickC:
			e.handleDisplayTick()
		case <-poll.C:
			e.RefreshBalance()
		}
	}
}

func (e *Engine) handleEvent(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev := ev.(type) {
	case BettingOpened:
		e.onBettingOpened(ev)
	case RoundStarted:
		e.onRoundStarted(ev)
	case MultiplierTick:
		e.onMultiplierTick(ev)
	case RoundCrashed:
		e.onRoundCrashed(ev)
	case BetConfirmed:
		e.onBetConfirmed(ev)
	case BetRejected:
		e.onBetRejected(ev)
	case CashOutConfirmed:
		e.onCashOutConfirmed(ev)
	case BalancePushed:
		e.onBalancePushed(ev.Confirmed)
	case Disconnected:
		e.onDisconnected()
	case flushFire:
		e.onFlushFire(ev)
	case fundingResult:
		e.onFundingResult(ev)
	case reconcileRetry:
		e.onBalancePushed(ev.confirmed)
	default:
		e.log.Warn("unknown event", zap.String("event", fmt.Sprintf("%T", ev)))
	}
}

// --- phase transitions -----------------------------------------------------

func (e *Engine) onBettingOpened(ev BettingOpened) {
	if e.phase == PhaseBetting {
		return // duplicate
	}
	if !e.phase.canTransition(PhaseBetting) {
		e.log.Warn("dropping invalid transition",
			zap.String("from", string(e.phase)), zap.String("to", string(PhaseBetting)))
		return
	}

	now := e.opts.Clock()

	// A bet still active at this point belongs to a round the server settled
	// without us (disconnect gap). Fail it explicitly and refund the stake.
	if b := e.ledger.active(); b != nil {
		e.log.Warn("abandoning stale active bet",
			zap.String("bet_id", b.LocalID), zap.String("round_id", b.RoundID))
		amount := b.Amount
		if failed := e.ledger.fail("round abandoned", now); failed != nil {
			e.balance.credit(amount, now)
			e.recordBet(*failed)
			e.notifyBets()
			e.notifyBalance()
		}
	}

	e.phase = PhaseBetting
	e.round = Round{
		RoundID:    ev.RoundID,
		Commitment: ev.Commitment,
		Phase:      PhaseBetting,
	}
	if ev.TimeLeft > 0 {
		e.round.BettingEndsAt = now.Add(time.Duration(ev.TimeLeft * float64(time.Second)))
	}
	e.lastTick = serverTick{}
	e.displayValue = MinMultiplier
	e.notifyPhase()

	// Flush the queued bet once, after a short settle delay so the submission
	// lands observably inside the betting window.
	e.flushGen++
	if e.queue.peek() != nil {
		gen := e.flushGen
		time.AfterFunc(e.opts.SettleDelay, func() {
			e.deliverInternal(flushFire{gen: gen})
		})
	}
}

func (e *Engine) onRoundStarted(ev RoundStarted) {
	if e.phase == PhaseRunning {
		return // duplicate
	}
	if !e.phase.canTransition(PhaseRunning) {
		e.log.Warn("dropping invalid transition",
			zap.String("from", string(e.phase)), zap.String("to", string(PhaseRunning)))
		return
	}

	startedAt := ev.StartedAt
	if startedAt.IsZero() {
		startedAt = e.opts.Clock()
	}

	e.phase = PhaseRunning
	if ev.RoundID != "" {
		e.round.RoundID = ev.RoundID
	}
	e.round.StartedAt = startedAt
	e.round.Phase = PhaseRunning
	e.flushGen++ // a settle timer that fires now would target a closed window

	e.startTicker()
	e.notifyPhase()
}

func (e *Engine) onMultiplierTick(ev MultiplierTick) {
	if e.phase != PhaseRunning {
		return
	}
	e.lastTick = serverTick{value: ev.Value, receivedAt: e.opts.Clock()}
}

func (e *Engine) onRoundCrashed(ev RoundCrashed) {
	if e.phase == PhaseCrashed {
		return // duplicate
	}
	if !e.phase.canTransition(PhaseCrashed) {
		e.log.Warn("dropping invalid transition",
			zap.String("from", string(e.phase)), zap.String("to", string(PhaseCrashed)))
		return
	}
	if ev.RoundID != "" && e.round.RoundID != "" && ev.RoundID != e.round.RoundID {
		e.log.Warn("ignoring crash for unknown round",
			zap.String("event_round", ev.RoundID), zap.String("current_round", e.round.RoundID))
		return
	}

	now := e.opts.Clock()

	e.stopTicker()
	e.phase = PhaseCrashed
	e.round.Phase = PhaseCrashed
	e.round.CrashPoint = ev.CrashPoint
	e.displayValue = ev.CrashPoint
	e.notifyMultiplier(ev.CrashPoint, true)
	e.notifyPhase()

	// Any bet still riding loses its full stake. No credit.
	if settled := e.ledger.crash(ev.CrashPoint, now); settled != nil {
		e.recordBet(*settled)
		e.notifyBets()
	}

	result := RoundResult{
		RoundID:    e.round.RoundID,
		CrashPoint: ev.CrashPoint,
		Commitment: e.round.Commitment,
		ServerSeed: ev.ServerSeed,
		CrashedAt:  now,
	}
	if ev.ServerSeed != "" && e.round.Commitment != "" {
		result.Verified = VerifyCommitment(ev.ServerSeed, e.round.Commitment) &&
			VerifyCrashPoint(ev.ServerSeed, ev.ClientSeed, ev.Nonce, ev.CrashPoint)
		if !result.Verified {
			e.log.Warn("fairness verification failed", zap.String("round_id", e.round.RoundID))
		}
	}
	e.recordRound(result)
}

func (e *Engine) onDisconnected() {
	e.stopTicker()
	e.phase = PhaseIdle
	e.round.Phase = PhaseIdle
	e.flushGen++    // cancel any armed settle timer
	e.queue.clear() // queued requests don't survive a disconnect
	e.ledger.clearCashOutSent()
	e.notifyPhase()
	e.log.Info("transport disconnected, engine idle")
}

// --- bet lifecycle ---------------------------------------------------------

func (e *Engine) handlePlaceBet(amount float64, fromQueue bool) BetResponse {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.placeBetLocked(amount, fromQueue)
}

func (e *Engine) placeBetLocked(amount float64, fromQueue bool) BetResponse {
	now := e.opts.Clock()

	if amount < e.opts.MinBet || amount > e.opts.MaxBet {
		return BetResponse{Success: false,
			Message: fmt.Sprintf("bet must be between %v and %v", e.opts.MinBet, e.opts.MaxBet)}
	}

	if e.phase != PhaseBetting {
		if fromQueue {
			return BetResponse{Success: false, Message: "betting window closed before flush"}
		}
		e.queue.enqueue(amount, now)
		e.log.Info("bet queued for next round", zap.Float64("amount", amount))
		return BetResponse{Success: true, Queued: true, Message: "betting closed, bet queued for next round"}
	}

	if e.ledger.inFlight() || e.fundingBusy {
		return e.flushFailure(fromQueue, amount, now, "a bet is already in flight")
	}

	if err := e.balance.debit(amount, now); err != nil {
		return e.flushFailure(fromQueue, amount, now, "insufficient balance")
	}

	bet := e.ledger.open(amount, e.round.RoundID, now)
	e.fundingBusy = true
	e.pendingAmount = amount

	betID := bet.LocalID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), fundingSubmitTimeout)
		defer cancel()
		confirmationID, err := e.gateway.Submit(ctx, amount)
		e.deliverInternal(fundingResult{betID: betID, confirmationID: confirmationID, err: err})
	}()

	e.notifyBets()
	e.notifyBalance()

	return BetResponse{
		Success: true,
		Message: "bet submitted",
		BetID:   bet.LocalID,
		Balance: e.balance.effective(),
	}
}

// flushFailure rejects a bet request; when the request came off the queue the
// rejection is materialized as a Failed ledger entry so the player sees it.
func (e *Engine) flushFailure(fromQueue bool, amount float64, now time.Time, reason string) BetResponse {
	if fromQueue {
		failed := e.ledger.recordFailedAttempt(amount, reason, now)
		e.recordBet(failed)
		e.notifyBets()
	}
	return BetResponse{Success: false, Message: reason, Balance: e.balance.effective()}
}

func (e *Engine) onFlushFire(ev flushFire) {
	if ev.gen != e.flushGen || e.phase != PhaseBetting {
		return // stale timer: round reset or disconnect since it was armed
	}
	req, ok := e.queue.take()
	if !ok {
		return
	}
	resp := e.placeBetLocked(req.Amount, true)
	if !resp.Success {
		e.log.Warn("queued bet flush failed", zap.String("reason", resp.Message))
	} else {
		e.log.Info("queued bet flushed", zap.Float64("amount", req.Amount))
	}
}

func (e *Engine) onFundingResult(ev fundingResult) {
	e.fundingBusy = false

	b := e.ledger.pending()
	if b == nil || b.LocalID != ev.betID {
		// The bet died while funding was in flight (abandoned round or server
		// rejection). Money handling for that path already happened.
		e.log.Warn("funding result for retired bet", zap.String("bet_id", ev.betID))
		return
	}

	now := e.opts.Clock()

	if ev.err != nil {
		reason := fmt.Sprintf("funding failed (%s)", funding.ClassOf(ev.err))
		e.log.Warn("funding submission failed", zap.Error(ev.err))
		e.failCurrentBet(reason, now)
		return
	}

	if err := e.commander.SubmitBet(b.Amount, ev.confirmationID); err != nil {
		e.log.Warn("bet submit command failed", zap.Error(err))
		e.failCurrentBet("transport unavailable", now)
		return
	}

	e.ledger.confirm(e.round.RoundID)
	e.notifyBets()
}

func (e *Engine) failCurrentBet(reason string, now time.Time) {
	b := e.ledger.current
	if b == nil {
		return
	}
	amount := b.Amount
	if failed := e.ledger.fail(reason, now); failed != nil {
		e.balance.credit(amount, now) // exact rollback of the optimistic debit
		e.recordBet(*failed)
		e.notifyBets()
		e.notifyBalance()
	}
}

func (e *Engine) onBetConfirmed(ev BetConfirmed) {
	if e.ledger.current == nil {
		e.log.Warn("bet confirmation with no bet in flight", zap.String("round_id", ev.RoundID))
		return
	}
	if e.ledger.confirm(ev.RoundID) {
		e.notifyBets()
	}
}

func (e *Engine) onBetRejected(ev BetRejected) {
	if !e.ledger.inFlight() {
		return
	}
	reason := ev.Reason
	if reason == "" {
		reason = "bet rejected by server"
	}
	e.failCurrentBet(reason, e.opts.Clock())
}

func (e *Engine) handleCashOut() CashoutResponse {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseRunning {
		return CashoutResponse{Success: false, Message: "cashout only available while round is running"}
	}
	if e.ledger.active() == nil {
		return CashoutResponse{Success: false, Message: "no active bet"}
	}
	if !e.ledger.markCashOutSent() {
		// double-click: the first request is still pending, swallow this one
		return CashoutResponse{Success: true, Message: "cashout already requested"}
	}
	if err := e.commander.CashOut(); err != nil {
		e.ledger.clearCashOutSent()
		e.log.Warn("cashout command failed", zap.Error(err))
		return CashoutResponse{Success: false, Message: "cashout send failed"}
	}
	return CashoutResponse{Success: true, Message: "cashout requested"}
}

func (e *Engine) onCashOutConfirmed(ev CashOutConfirmed) {
	now := e.opts.Clock()
	settled := e.ledger.cashOut(ev.Multiplier, ev.Payout, now)
	if settled == nil {
		return // duplicate confirmation or no active bet
	}
	e.balance.credit(ev.Payout, now)
	e.recordBet(*settled)
	e.notifyBets()
	e.notifyBalance()
	e.log.Info("cashed out",
		zap.Float64("multiplier", ev.Multiplier), zap.Float64("payout", ev.Payout))
}

// --- balance ---------------------------------------------------------------

func (e *Engine) onBalancePushed(confirmed float64) {
	now := e.opts.Clock()
	if e.balance.reconcile(confirmed, now) {
		e.notifyBalance()
		return
	}
	// A local mutation is inside its cooldown window; retry once it expires
	// rather than clobbering the optimistic value.
	time.AfterFunc(e.balance.cooldown, func() {
		e.deliverInternal(reconcileRetry{confirmed: confirmed})
	})
}

// --- display tick ----------------------------------------------------------

func (e *Engine) handleDisplayTick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseRunning {
		return // stale tick raced a phase change
	}
	now := e.opts.Clock()
	value := e.lastTick.displayValue(now, e.round.StartedAt, e.opts.ServerTickFreshFor)
	if value == e.displayValue {
		return
	}
	e.displayValue = value
	e.notifyMultiplier(value, false)
}

func (e *Engine) startTicker() {
	e.stopTicker()
	e.ticker = time.NewTicker(e.opts.TickInterval)
}

func (e *Engine) stopTicker() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}

// --- notifications & persistence -------------------------------------------

func (e *Engine) notifyPhase() {
	for _, l := range e.listeners {
		l.PhaseChanged(e.phase)
	}
}

func (e *Engine) notifyMultiplier(value float64, final bool) {
	for _, l := range e.listeners {
		l.MultiplierChanged(value, final)
	}
}

func (e *Engine) notifyBets() {
	bets := e.ledger.snapshot()
	for _, l := range e.listeners {
		l.BetsChanged(bets)
	}
}

func (e *Engine) notifyBalance() {
	effective := e.balance.effective()
	for _, l := range e.listeners {
		l.BalanceChanged(effective)
	}
}

func (e *Engine) recordBet(b Bet) {
	if e.recorder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.recorder.RecordBet(ctx, b)
	}()
}

func (e *Engine) recordRound(r RoundResult) {
	if e.recorder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		e.recorder.RecordRound(ctx, r)
	}()
}
