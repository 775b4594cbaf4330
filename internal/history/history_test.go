package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"crashpilot/internal/engine"
)

var testDB *sql.DB

const testSchema = `
CREATE TABLE IF NOT EXISTS bet_history (
    id BIGSERIAL PRIMARY KEY,
    local_id TEXT NOT NULL UNIQUE,
    amount DOUBLE PRECISION NOT NULL,
    state TEXT NOT NULL,
    round_id TEXT,
    placed_at TIMESTAMPTZ NOT NULL,
    resolved_at TIMESTAMPTZ,
    multiplier DOUBLE PRECISION,
    payout DOUBLE PRECISION,
    error TEXT
);
CREATE TABLE IF NOT EXISTS round_history (
    id BIGSERIAL PRIMARY KEY,
    round_id TEXT NOT NULL UNIQUE,
    crash_point DOUBLE PRECISION NOT NULL,
    commitment TEXT,
    server_seed TEXT,
    verified BOOLEAN NOT NULL DEFAULT FALSE,
    crashed_at TIMESTAMPTZ NOT NULL
);`

func mustStartPostgres() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(
		ctx,
		"postgres:latest",
		postgres.WithDatabase("history_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	host, err := container.Host(context.Background())
	if err != nil {
		return container.Terminate, err
	}
	mapped, err := container.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return container.Terminate, err
	}

	dsn := fmt.Sprintf("postgres://user:password@%s:%s/history_test?sslmode=disable", host, mapped.Port())
	testDB, err = sql.Open("pgx", dsn)
	if err != nil {
		return container.Terminate, err
	}
	if _, err := testDB.Exec(testSchema); err != nil {
		return container.Terminate, err
	}

	return container.Terminate, nil
}

func TestMain(m *testing.M) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}

	if os.Getenv("CI") == "" && !isDockerAvailable() {
		os.Exit(0)
	}

	teardown, err := mustStartPostgres()
	if err != nil {
		os.Exit(0)
	}

	code := m.Run()

	if teardown != nil {
		teardown(context.Background())
	}

	os.Exit(code)
}

func isDockerAvailable() (ok bool) {
	// testcontainers panics (rather than returning an error) when no Docker
	// host can be found; treat that as "not available" so TestMain can skip.
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}

func TestRecordBetAndRecentBets(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(zap.NewNop(), testDB, nil)

	bet := engine.Bet{
		LocalID:    uuid.NewString(),
		Amount:     0.05,
		State:      engine.BetCashedOut,
		RoundID:    "R100",
		PlacedAt:   time.Now().Add(-time.Minute),
		ResolvedAt: time.Now(),
		Resolution: &engine.Resolution{Multiplier: 1.8, Payout: 0.09},
	}
	r.RecordBet(ctx, bet)

	// the insert is idempotent on local_id
	r.RecordBet(ctx, bet)

	bets, err := r.RecentBets(ctx, 10)
	if err != nil {
		t.Fatalf("RecentBets: %v", err)
	}

	var found *engine.Bet
	for i := range bets {
		if bets[i].LocalID == bet.LocalID {
			found = &bets[i]
		}
	}
	if found == nil {
		t.Fatalf("recorded bet not returned, got %d bets", len(bets))
	}
	if found.State != engine.BetCashedOut || found.RoundID != "R100" {
		t.Errorf("got %+v", found)
	}
	if found.Resolution == nil || found.Resolution.Payout != 0.09 {
		t.Errorf("resolution = %+v, want payout 0.09", found.Resolution)
	}

	var count int
	if err := testDB.QueryRow("SELECT COUNT(*) FROM bet_history WHERE local_id = $1", bet.LocalID).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 1 {
		t.Errorf("rows for local_id = %d, want 1 (duplicate insert must be a no-op)", count)
	}
}

func TestRecordFailedBet(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(zap.NewNop(), testDB, nil)

	bet := engine.Bet{
		LocalID:    uuid.NewString(),
		Amount:     0.1,
		State:      engine.BetFailed,
		PlacedAt:   time.Now(),
		ResolvedAt: time.Now(),
		Error:      "round abandoned",
	}
	r.RecordBet(ctx, bet)

	bets, err := r.RecentBets(ctx, 50)
	if err != nil {
		t.Fatalf("RecentBets: %v", err)
	}
	for _, b := range bets {
		if b.LocalID == bet.LocalID {
			if b.Error != "round abandoned" {
				t.Errorf("error = %q, want \"round abandoned\"", b.Error)
			}
			if b.Resolution != nil {
				t.Errorf("failed bet should have no resolution, got %+v", b.Resolution)
			}
			return
		}
	}
	t.Fatal("failed bet not returned")
}

func TestRecordRound(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(zap.NewNop(), testDB, nil)

	result := engine.RoundResult{
		RoundID:    "R-" + uuid.NewString(),
		CrashPoint: 2.41,
		Commitment: "deadbeef",
		ServerSeed: "seed",
		Verified:   true,
		CrashedAt:  time.Now(),
	}
	r.RecordRound(ctx, result)
	r.RecordRound(ctx, result) // duplicate round id is a no-op

	var (
		crashPoint float64
		verified   bool
	)
	err := testDB.QueryRow(
		"SELECT crash_point, verified FROM round_history WHERE round_id = $1", result.RoundID,
	).Scan(&crashPoint, &verified)
	if err != nil {
		t.Fatalf("round query: %v", err)
	}
	if crashPoint != 2.41 || !verified {
		t.Errorf("crash_point = %v, verified = %v", crashPoint, verified)
	}
}

func TestRecorderWithoutSinks(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(zap.NewNop(), nil, nil)

	// all calls must be safe no-ops
	r.RecordBet(ctx, engine.Bet{LocalID: "x"})
	r.RecordRound(ctx, engine.RoundResult{RoundID: "y"})

	bets, err := r.RecentBets(ctx, 10)
	if err != nil || bets != nil {
		t.Errorf("RecentBets without db = (%v, %v), want (nil, nil)", bets, err)
	}
}
