package history

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"crashpilot/internal/cache"
	"crashpilot/internal/engine"
)

// Recorder persists resolved bets and round outcomes for the session. Both
// sinks are optional; a nil db or cache just skips that sink. All failures
// are logged and absorbed: history is best-effort and never blocks play.
type Recorder struct {
	log   *zap.Logger
	db    *sql.DB
	cache cache.Service
}

func NewRecorder(log *zap.Logger, db *sql.DB, cacheSvc cache.Service) *Recorder {
	return &Recorder{log: log, db: db, cache: cacheSvc}
}

func (r *Recorder) RecordBet(ctx context.Context, bet engine.Bet) {
	if r.db == nil {
		return
	}
	var multiplier, payout sql.NullFloat64
	if bet.Resolution != nil {
		multiplier = sql.NullFloat64{Float64: bet.Resolution.Multiplier, Valid: true}
		payout = sql.NullFloat64{Float64: bet.Resolution.Payout, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bet_history (local_id, amount, state, round_id, placed_at, resolved_at, multiplier, payout, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (local_id) DO NOTHING`,
		bet.LocalID, bet.Amount, string(bet.State), nullString(bet.RoundID),
		bet.PlacedAt, nullTime(bet.ResolvedAt), multiplier, payout, nullString(bet.Error),
	)
	if err != nil {
		r.log.Warn("bet history insert failed", zap.Error(err), zap.String("bet_id", bet.LocalID))
	}
}

func (r *Recorder) RecordRound(ctx context.Context, result engine.RoundResult) {
	if r.db != nil {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO round_history (round_id, crash_point, commitment, server_seed, verified, crashed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (round_id) DO NOTHING`,
			result.RoundID, result.CrashPoint, nullString(result.Commitment),
			nullString(result.ServerSeed), result.Verified, result.CrashedAt,
		)
		if err != nil {
			r.log.Warn("round history insert failed", zap.Error(err), zap.String("round_id", result.RoundID))
		}
	}
	if r.cache != nil {
		if err := r.cache.RecordCrashPoint(ctx, result.RoundID, result.CrashPoint); err != nil {
			r.log.Warn("crash ribbon update failed", zap.Error(err))
		}
	}
}

// RecentBets returns the latest resolved bets, newest first.
func (r *Recorder) RecentBets(ctx context.Context, limit int) ([]engine.Bet, error) {
	if r.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT local_id, amount, state, COALESCE(round_id, ''), placed_at, resolved_at, multiplier, payout, COALESCE(error, '')
		FROM bet_history ORDER BY placed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bets []engine.Bet
	for rows.Next() {
		var (
			b          engine.Bet
			state      string
			resolvedAt sql.NullTime
			multiplier sql.NullFloat64
			payout     sql.NullFloat64
		)
		if err := rows.Scan(&b.LocalID, &b.Amount, &state, &b.RoundID, &b.PlacedAt,
			&resolvedAt, &multiplier, &payout, &b.Error); err != nil {
			return nil, err
		}
		b.State = engine.BetState(state)
		if resolvedAt.Valid {
			b.ResolvedAt = resolvedAt.Time
		}
		if multiplier.Valid {
			b.Resolution = &engine.Resolution{Multiplier: multiplier.Float64, Payout: payout.Float64}
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
