package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"crashpilot/internal/cache"
	"crashpilot/internal/engine"
)

// FiberServer is the local bridge between the engine and its renderer: REST
// for commands and snapshots, a websocket for live notifications. It is the
// only surface a UI talks to; raw game-server traffic never reaches it.
type FiberServer struct {
	*fiber.App

	log    *zap.Logger
	engine *engine.Engine
	hub    *Hub
	cache  cache.Service // may be nil
}

// New wires the UI bridge. Must be called before engine.Start so the hub
// listener registration lands ahead of the first notification.
func New(log *zap.Logger, eng *engine.Engine, cacheSvc cache.Service) *FiberServer {
	hub := NewHub(log.Named("hub"))
	eng.AddListener(hub)

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "crashpilot",
			AppName:       "crashpilot",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		log:    log,
		engine: eng,
		hub:    hub,
		cache:  cacheSvc,
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	go hub.Run()

	return server
}

// Shutdown stops the fiber app; the engine and cache are owned by main.
func (s *FiberServer) Shutdown() error {
	s.log.Info("ui bridge shutting down")
	return s.App.Shutdown()
}
