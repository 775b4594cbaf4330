package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"crashpilot/internal/engine"
)

const (
	reconnectDelay = 3 * time.Second
	writeTimeout   = 10 * time.Second
)

// ErrNotConnected rejects outbound commands while the socket is down.
var ErrNotConnected = errors.New("transport: not connected")

// Client is the realtime socket adapter: it decodes inbound server messages
// into typed engine events and encodes engine commands back out. Reconnect
// backoff lives here; the engine only ever sees Disconnected events.
type Client struct {
	url      string
	playerID string
	log      *zap.Logger
	sink     func(engine.Event)

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(url, playerID string, log *zap.Logger) *Client {
	return &Client{
		url:      url,
		playerID: playerID,
		log:      log,
	}
}

// SetSink wires the event consumer. Must be called before Run.
func (c *Client) SetSink(sink func(engine.Event)) {
	c.sink = sink
}

// Run keeps the socket alive until the context is canceled, reconnecting
// after every drop. Each drop surfaces exactly one Disconnected event.
func (c *Client) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.log.Info("context canceled, stopping transport")
			return
		default:
			if err := c.connectAndListen(ctx); err != nil {
				c.log.Warn("connection closed", zap.Error(err))
			}
			c.sink(engine.Disconnected{})
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}
}

func (c *Client) connectAndListen(ctx context.Context) error {
	url := fmt.Sprintf("%s?user_id=%s", c.url, c.playerID)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	c.log.Info("connected to game server", zap.String("url", c.url))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		ev, err := c.decodeEvent(message)
		if err != nil {
			c.log.Warn("dropping message", zap.Error(err))
			continue
		}
		if ev != nil {
			c.sink(ev)
		}
	}
}

func (c *Client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// SubmitBet sends the funded wager to the game server.
func (c *Client) SubmitBet(amount float64, confirmationID string) error {
	return c.send(placeBetCommand{Type: "place_bet", Amount: amount, FundingRef: confirmationID})
}

// CashOut asks the server to settle the active bet at the current multiplier.
func (c *Client) CashOut() error {
	return c.send(simpleCommand{Type: "cashout"})
}

// RefreshBalance asks the server to push a fresh confirmed balance.
func (c *Client) RefreshBalance() error {
	return c.send(simpleCommand{Type: "balance_refresh"})
}
