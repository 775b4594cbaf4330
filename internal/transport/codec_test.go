package transport

import (
	"testing"
	"time"

	"crashpilot/internal/engine"
)

func testClient() *Client {
	return &Client{playerID: "player-1"}
}

func TestDecodeEvent_PhaseMessages(t *testing.T) {
	c := testClient()

	t.Run("round_start", func(t *testing.T) {
		raw := []byte(`{"type":"round_start","round_id":"R7","commitment":"abc123","time_left":5.0}`)
		ev, err := c.decodeEvent(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		opened, ok := ev.(engine.BettingOpened)
		if !ok {
			t.Fatalf("event = %T, want BettingOpened", ev)
		}
		if opened.RoundID != "R7" || opened.Commitment != "abc123" || opened.TimeLeft != 5.0 {
			t.Errorf("got %+v", opened)
		}
	})

	t.Run("round_running", func(t *testing.T) {
		ms := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
		raw := []byte(`{"type":"round_running","round_id":"R7","started_at":1748779200000}`)
		ev, err := c.decodeEvent(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		started, ok := ev.(engine.RoundStarted)
		if !ok {
			t.Fatalf("event = %T, want RoundStarted", ev)
		}
		if started.RoundID != "R7" {
			t.Errorf("round id = %q", started.RoundID)
		}
		if started.StartedAt.UnixMilli() != ms {
			t.Errorf("started at = %v, want unix millis %d", started.StartedAt, ms)
		}
	})

	t.Run("round_running without timestamp", func(t *testing.T) {
		raw := []byte(`{"type":"round_running","round_id":"R7"}`)
		ev, err := c.decodeEvent(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !ev.(engine.RoundStarted).StartedAt.IsZero() {
			t.Error("missing started_at should decode as zero time")
		}
	})

	t.Run("update", func(t *testing.T) {
		raw := []byte(`{"type":"update","multiplier":2.37}`)
		ev, err := c.decodeEvent(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if tick := ev.(engine.MultiplierTick); tick.Value != 2.37 {
			t.Errorf("value = %v, want 2.37", tick.Value)
		}
	})

	t.Run("crash", func(t *testing.T) {
		raw := []byte(`{"type":"crash","round_id":"R7","multiplier":3.14,"server_seed":"s","client_seed":"c","nonce":9}`)
		ev, err := c.decodeEvent(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		crashed := ev.(engine.RoundCrashed)
		if crashed.RoundID != "R7" || crashed.CrashPoint != 3.14 {
			t.Errorf("got %+v", crashed)
		}
		if crashed.ServerSeed != "s" || crashed.ClientSeed != "c" || crashed.Nonce != 9 {
			t.Errorf("fairness fields lost: %+v", crashed)
		}
	})
}

func TestDecodeEvent_BetMessages(t *testing.T) {
	c := testClient()

	t.Run("own bet confirmed", func(t *testing.T) {
		raw := []byte(`{"type":"bet_placed","data":{"user_id":"player-1","bet_id":"B1","round_id":"R7","amount":0.05}}`)
		ev, err := c.decodeEvent(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		confirmed, ok := ev.(engine.BetConfirmed)
		if !ok {
			t.Fatalf("event = %T, want BetConfirmed", ev)
		}
		if confirmed.RoundID != "R7" || confirmed.BetID != "B1" || confirmed.Amount != 0.05 {
			t.Errorf("got %+v", confirmed)
		}
	})

	t.Run("other player's bet is filtered", func(t *testing.T) {
		raw := []byte(`{"type":"bet_placed","data":{"user_id":"someone-else","bet_id":"B2","round_id":"R7","amount":1}}`)
		ev, err := c.decodeEvent(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev != nil {
			t.Errorf("event = %+v, want nil for another player's bet", ev)
		}
	})

	t.Run("bet rejected", func(t *testing.T) {
		raw := []byte(`{"type":"bet_rejected","data":{"user_id":"player-1","reason":"round closed"}}`)
		ev, err := c.decodeEvent(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if rejected := ev.(engine.BetRejected); rejected.Reason != "round closed" {
			t.Errorf("reason = %q", rejected.Reason)
		}
	})

	t.Run("own cashout", func(t *testing.T) {
		raw := []byte(`{"type":"cashout","data":{"user_id":"player-1","bet_id":"B1","multiplier":1.8,"payout":0.09}}`)
		ev, err := c.decodeEvent(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		co := ev.(engine.CashOutConfirmed)
		if co.Multiplier != 1.8 || co.Payout != 0.09 {
			t.Errorf("got %+v", co)
		}
	})

	t.Run("other player's cashout is filtered", func(t *testing.T) {
		raw := []byte(`{"type":"cashout","data":{"user_id":"someone-else","multiplier":1.8,"payout":0.09}}`)
		ev, err := c.decodeEvent(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev != nil {
			t.Errorf("event = %+v, want nil", ev)
		}
	})
}

func TestDecodeEvent_Balance(t *testing.T) {
	c := testClient()
	raw := []byte(`{"type":"balance","balance":12.34}`)
	ev, err := c.decodeEvent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pushed := ev.(engine.BalancePushed); pushed.Confirmed != 12.34 {
		t.Errorf("confirmed = %v, want 12.34", pushed.Confirmed)
	}
}

func TestDecodeEvent_InitialState(t *testing.T) {
	c := testClient()

	tests := []struct {
		name string
		raw  string
		want engine.Event
	}{
		{
			name: "betting maps to open window",
			raw:  `{"type":"initial_state","data":{"round_id":"R1","status":"BETTING","hash_commitment":"h"}}`,
			want: engine.BettingOpened{RoundID: "R1", Commitment: "h"},
		},
		{
			name: "running mid-round yields nothing",
			raw:  `{"type":"initial_state","data":{"round_id":"R1","status":"RUNNING","current_multiplier":1.5}}`,
			want: nil,
		},
		{
			name: "crashed yields nothing",
			raw:  `{"type":"initial_state","data":{"round_id":"R1","status":"CRASHED"}}`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := c.decodeEvent([]byte(tt.raw))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tt.want == nil {
				if ev != nil {
					t.Errorf("event = %+v, want nil", ev)
				}
				return
			}
			if ev != tt.want {
				t.Errorf("event = %+v, want %+v", ev, tt.want)
			}
		})
	}

	t.Run("unknown status is an error", func(t *testing.T) {
		raw := []byte(`{"type":"initial_state","data":{"status":"PAUSED"}}`)
		if _, err := c.decodeEvent(raw); err == nil {
			t.Error("expected error for unknown round status")
		}
	})
}

func TestDecodeEvent_Pong(t *testing.T) {
	c := testClient()
	ev, err := c.decodeEvent([]byte(`{"type":"pong"}`))
	if err != nil || ev != nil {
		t.Errorf("pong: ev=%v err=%v, want nil/nil", ev, err)
	}
}

func TestDecodeEvent_Errors(t *testing.T) {
	c := testClient()

	t.Run("malformed frame", func(t *testing.T) {
		if _, err := c.decodeEvent([]byte(`{not json`)); err == nil {
			t.Error("expected error for malformed frame")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := c.decodeEvent([]byte(`{"type":"jackpot"}`)); err == nil {
			t.Error("expected error for unknown message type")
		}
	})

	t.Run("bad bet payload", func(t *testing.T) {
		if _, err := c.decodeEvent([]byte(`{"type":"bet_placed","data":"nope"}`)); err == nil {
			t.Error("expected error for non-object bet payload")
		}
	})
}
