package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"crashpilot/internal/engine"
)

// uiMessage is the frame pushed to connected renderers.
type uiMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// uiClient owns one renderer connection. mu serializes every frame write:
// hub broadcasts and handler replies share the conn, which tolerates only a
// single writer at a time.
type uiClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub fans the engine's outward notifications out to every connected
// renderer. It implements engine.Listener; notification calls only push onto
// the broadcast channel and never block the engine loop.
type Hub struct {
	log        *zap.Logger
	clients    map[*uiClient]bool
	broadcast  chan uiMessage
	register   chan *uiClient
	unregister chan *uiClient
	mu         sync.RWMutex
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*uiClient]bool),
		broadcast:  make(chan uiMessage, 256),
		register:   make(chan *uiClient),
		unregister: make(chan *uiClient),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Info("renderer connected", zap.Int("total", h.ClientCount()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
			}
			h.mu.Unlock()
			h.log.Info("renderer disconnected", zap.Int("total", h.ClientCount()))

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.log.Warn("marshal broadcast failed", zap.Error(err))
				continue
			}
			h.mu.RLock()
			for client := range h.clients {
				go client.send(data)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Broadcast(msg uiMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("broadcast channel full, dropping message", zap.String("type", msg.Type))
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RegisterClient(conn *websocket.Conn) *uiClient {
	client := &uiClient{conn: conn}
	h.register <- client
	return client
}

func (h *Hub) UnregisterClient(client *uiClient) {
	h.unregister <- client
}

func (c *uiClient) send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	c.conn.WriteMessage(websocket.TextMessage, data)
}

// engine.Listener implementation

func (h *Hub) PhaseChanged(phase engine.RoundPhase) {
	h.Broadcast(uiMessage{Type: "phase", Data: map[string]any{"phase": phase}})
}

func (h *Hub) MultiplierChanged(value float64, final bool) {
	h.Broadcast(uiMessage{Type: "multiplier", Data: map[string]any{"value": value, "final": final}})
}

func (h *Hub) BetsChanged(bets []engine.Bet) {
	h.Broadcast(uiMessage{Type: "bets", Data: bets})
}

func (h *Hub) BalanceChanged(effective float64) {
	h.Broadcast(uiMessage{Type: "balance", Data: map[string]any{"effective": effective}})
}
