package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"crashpilot/internal/engine"
)

// envelope is the wire frame for every server message: a type tag plus a
// type-specific payload, flattened or nested under "data" depending on the
// message (the server emits both styles).
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`

	// flattened fields used by phase/state messages
	RoundID    string  `json:"round_id,omitempty"`
	Status     string  `json:"status,omitempty"`
	Commitment string  `json:"commitment,omitempty"`
	TimeLeft   float64 `json:"time_left,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty"`
	ServerSeed string  `json:"server_seed,omitempty"`
	ClientSeed string  `json:"client_seed,omitempty"`
	Nonce      int     `json:"nonce,omitempty"`
	StartedAt  int64   `json:"started_at,omitempty"` // unix millis
	ServerTime int64   `json:"server_time,omitempty"`
	Balance    float64 `json:"balance,omitempty"`
}

type betPayload struct {
	UserID  string  `json:"user_id"`
	BetID   string  `json:"bet_id"`
	RoundID string  `json:"round_id"`
	Amount  float64 `json:"amount"`
	Reason  string  `json:"reason,omitempty"`
}

type cashoutPayload struct {
	UserID     string  `json:"user_id"`
	BetID      string  `json:"bet_id"`
	Multiplier float64 `json:"multiplier"`
	Payout     float64 `json:"payout"`
}

type statePayload struct {
	RoundID    string  `json:"round_id"`
	Status     string  `json:"status"`
	Commitment string  `json:"hash_commitment"`
	Multiplier float64 `json:"current_multiplier"`
	StartedAt  int64   `json:"start_time,omitempty"`
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// decodeEvent maps one wire message to an engine event. A nil event with a
// nil error means the message is valid but not for us (another player's bet,
// a ping). Unknown or malformed messages return an error and are dropped by
// the caller; they never reach the engine.
func (c *Client) decodeEvent(raw []byte) (engine.Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch env.Type {
	case "round_start":
		return engine.BettingOpened{
			RoundID:    env.RoundID,
			Commitment: env.Commitment,
			TimeLeft:   env.TimeLeft,
		}, nil

	case "round_running":
		return engine.RoundStarted{
			RoundID:   env.RoundID,
			StartedAt: millisToTime(env.StartedAt),
		}, nil

	case "update":
		return engine.MultiplierTick{
			Value:      env.Multiplier,
			ServerTime: millisToTime(env.ServerTime),
		}, nil

	case "crash":
		return engine.RoundCrashed{
			RoundID:    env.RoundID,
			CrashPoint: env.Multiplier,
			ServerSeed: env.ServerSeed,
			ClientSeed: env.ClientSeed,
			Nonce:      env.Nonce,
		}, nil

	case "bet_placed":
		var p betPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("bad bet_placed payload: %w", err)
		}
		if p.UserID != c.playerID {
			return nil, nil // someone else's bet
		}
		return engine.BetConfirmed{RoundID: p.RoundID, BetID: p.BetID, Amount: p.Amount}, nil

	case "bet_rejected":
		var p betPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("bad bet_rejected payload: %w", err)
		}
		if p.UserID != "" && p.UserID != c.playerID {
			return nil, nil
		}
		return engine.BetRejected{Reason: p.Reason}, nil

	case "cashout":
		var p cashoutPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("bad cashout payload: %w", err)
		}
		if p.UserID != c.playerID {
			return nil, nil
		}
		return engine.CashOutConfirmed{Multiplier: p.Multiplier, Payout: p.Payout}, nil

	case "balance":
		return engine.BalancePushed{Confirmed: env.Balance}, nil

	case "initial_state":
		return c.decodeInitialState(env.Data)

	case "pong":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}

// decodeInitialState turns the server's connect-time snapshot into the phase
// event the engine would have seen live, so a reconnecting client catches up.
func (c *Client) decodeInitialState(data json.RawMessage) (engine.Event, error) {
	var p statePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("bad initial_state payload: %w", err)
	}
	switch p.Status {
	case "BETTING":
		return engine.BettingOpened{RoundID: p.RoundID, Commitment: p.Commitment}, nil
	case "RUNNING":
		// Joining mid-round: no betting window was observed, so the engine
		// stays idle until the next round opens.
		return nil, nil
	case "CRASHED":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown round status %q", p.Status)
	}
}

// outbound commands

type placeBetCommand struct {
	Type       string  `json:"type"`
	Amount     float64 `json:"amount"`
	FundingRef string  `json:"funding_ref,omitempty"`
}

type simpleCommand struct {
	Type string `json:"type"`
}
