package server

import (
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"
)

func (s *FiberServer) RegisterRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")
	api.Get("/state", s.stateHandler)
	api.Post("/bet", s.betHandler)
	api.Post("/cashout", s.cashoutHandler)
	api.Get("/balance", s.balanceHandler)
	api.Post("/balance/refresh", s.balanceRefreshHandler)
	api.Get("/rounds/recent", s.recentRoundsHandler)

	s.App.Get("/ws", websocket.New(s.uiWebSocketHandler))
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	snapshot := s.engine.Snapshot()
	health := fiber.Map{
		"engine": fiber.Map{
			"phase":     snapshot.Phase,
			"renderers": s.hub.ClientCount(),
		},
	}
	if s.cache != nil {
		health["cache"] = s.cache.Health()
	}
	return c.JSON(health)
}

func (s *FiberServer) stateHandler(c *fiber.Ctx) error {
	return c.JSON(s.engine.Snapshot())
}

func (s *FiberServer) betHandler(c *fiber.Ctx) error {
	var body struct {
		Amount float64 `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if body.Amount <= 0 {
		return c.Status(400).JSON(fiber.Map{"error": "amount must be positive"})
	}

	resp := s.engine.PlaceBet(body.Amount)
	if !resp.Success {
		return c.Status(400).JSON(resp)
	}
	return c.JSON(resp)
}

func (s *FiberServer) cashoutHandler(c *fiber.Ctx) error {
	resp := s.engine.CashOut()
	if !resp.Success {
		return c.Status(400).JSON(resp)
	}
	return c.JSON(resp)
}

func (s *FiberServer) balanceHandler(c *fiber.Ctx) error {
	return c.JSON(s.engine.Snapshot().Balance)
}

func (s *FiberServer) balanceRefreshHandler(c *fiber.Ctx) error {
	s.engine.RefreshBalance()
	return c.JSON(fiber.Map{"message": "balance refresh requested"})
}

// recentRoundsHandler serves the crash-point ribbon the UI shows above the
// chart. Empty without a cache.
func (s *FiberServer) recentRoundsHandler(c *fiber.Ctx) error {
	if s.cache == nil {
		return c.JSON(fiber.Map{"rounds": []float64{}})
	}
	points, err := s.cache.RecentCrashPoints(c.Context(), 20)
	if err != nil {
		s.log.Warn("recent rounds lookup failed", zap.Error(err))
		return c.Status(500).JSON(fiber.Map{"error": "history unavailable"})
	}
	return c.JSON(fiber.Map{"rounds": points})
}

// uiWebSocketHandler registers a renderer with the hub and relays its
// commands into the engine. The initial snapshot goes out immediately so a
// late-joining UI can draw without waiting for the next notification.
// All frames, replies included, go through client.send: hub broadcasts write
// on the same conn from other goroutines and the conn allows one writer.
func (s *FiberServer) uiWebSocketHandler(conn *websocket.Conn) {
	client := s.hub.RegisterClient(conn)

	snapshot, _ := json.Marshal(uiMessage{Type: "state", Data: s.engine.Snapshot()})
	client.send(snapshot)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			s.hub.UnregisterClient(client)
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var cmd struct {
			Type   string  `json:"type"`
			Amount float64 `json:"amount"`
		}
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}

		switch cmd.Type {
		case "place_bet":
			resp := s.engine.PlaceBet(cmd.Amount)
			data, _ := json.Marshal(uiMessage{Type: "bet_response", Data: resp})
			client.send(data)

		case "cashout":
			resp := s.engine.CashOut()
			data, _ := json.Marshal(uiMessage{Type: "cashout_response", Data: resp})
			client.send(data)

		case "ping":
			pong, _ := json.Marshal(uiMessage{Type: "pong"})
			client.send(pong)
		}
	}
}
