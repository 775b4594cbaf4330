package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"crashpilot/internal/cache"
	"crashpilot/internal/config"
	"crashpilot/internal/database"
	"crashpilot/internal/engine"
	"crashpilot/internal/funding"
	"crashpilot/internal/history"
	"crashpilot/internal/logger"
	"crashpilot/internal/server"
	"crashpilot/internal/transport"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New("crashpilot", cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zlog.Sync()

	// Optional session stores: the client plays fine with neither.
	cacheSvc := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, zlog.Named("cache"))
	var db *sql.DB
	if os.Getenv("CRASHPILOT_DB_DISABLED") == "" {
		dbSvc := database.New()
		if dbSvc.Health()["status"] == "up" {
			db = dbSvc.DB()
			defer dbSvc.Close()
		} else {
			zlog.Warn("postgres unavailable, running without bet history")
		}
	}

	gateway := funding.NewWalletClient(cfg.WalletURL, cfg.PlayerID, zlog.Named("funding"))

	ts := transport.New(cfg.ServerWS, cfg.PlayerID, zlog.Named("transport"))
	eng := engine.New(zlog.Named("engine"), ts, gateway, engine.Options{
		MinBet:             cfg.MinBet,
		MaxBet:             cfg.MaxBet,
		SettleDelay:        cfg.FlushSettleDelay,
		ReconcileCooldown:  cfg.ReconcileCooldown,
		ServerTickFreshFor: cfg.ServerTickFreshFor,
	})
	ts.SetSink(func(ev engine.Event) {
		eng.Deliver(ev)
	})

	eng.SetRecorder(history.NewRecorder(zlog.Named("history"), db, cacheSvc))

	srv := server.New(zlog.Named("server"), eng, cacheSvc)
	srv.RegisterRoutes()

	eng.Start()

	// Seed the balance from the last session so the UI shows something
	// sensible before the server's first push corrects it.
	if cacheSvc != nil {
		if bal, ok, err := cacheSvc.LastBalance(context.Background(), cfg.PlayerID); err == nil && ok {
			eng.Deliver(engine.BalancePushed{Confirmed: bal})
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go ts.Run(ctx)

	go func() {
		if err := srv.Listen(":" + cfg.HTTPPort); err != nil {
			zlog.Fatal("ui bridge listen failed", zap.Error(err))
		}
	}()
	zlog.Info("crashpilot session started",
		zap.String("server", cfg.ServerWS),
		zap.String("ui_port", cfg.HTTPPort),
		zap.String("player", cfg.PlayerID),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down")
	cancel()
	srv.Shutdown()
	if cacheSvc != nil {
		snapshot := eng.Snapshot()
		cacheSvc.SaveBalance(context.Background(), cfg.PlayerID, snapshot.Balance.Confirmed)
	}
	eng.Stop()
	if cacheSvc != nil {
		cacheSvc.Close()
	}
}
