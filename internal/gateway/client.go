package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/remote-device-control/backend/internal/logger"
	"github.com/remote-device-control/backend/internal/model"
)

// Outbound queue length per connection.
const sendBuffer = 256

// Tuning holds the websocket timing knobs shared by every gateway.
type Tuning struct {
	// WriteWait bounds a single frame write to the peer.
	WriteWait time.Duration
	// PongWait bounds the wait for the next pong from the peer. Pings go
	// out at nine tenths of it.
	PongWait time.Duration
	// MaxMessageSize caps inbound frames.
	MaxMessageSize int64
}

// DefaultTuning matches the broker's shipped defaults.
var DefaultTuning = Tuning{
	WriteWait:      10 * time.Second,
	PongWait:       60 * time.Second,
	MaxMessageSize: 65536,
}

func (t Tuning) pingPeriod() time.Duration {
	return (t.PongWait * 9) / 10
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client wraps a websocket connection with an outbound queue so sends never
// block the caller. A Client whose queue fills or whose socket errors is
// closed and reports model.ErrConnClosed on further sends.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	tuning Tuning

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn, tuning Tuning) *Client {
	return &Client{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		tuning: tuning,
	}
}

// ID returns the connection identifier.
func (c *Client) ID() string {
	return c.id
}

// Send queues raw bytes for delivery. It reports model.ErrConnClosed when
// the transport is no longer writable instead of blocking or panicking.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return model.ErrConnClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		// Slow consumer; drop the connection rather than the broker.
		c.closeLocked()
		return model.ErrConnClosed
	}
}

// SendEnvelope marshals and queues an envelope.
func (c *Client) SendEnvelope(env model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// Close closes the client's outbound queue.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// writePump drains the outbound queue onto the websocket, one message per
// frame, and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.tuning.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.tuning.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.tuning.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop pumps inbound frames into onMessage until the connection drops,
// then runs onClose exactly once.
func (c *Client) readLoop(onMessage func(data []byte), onClose func()) {
	defer func() {
		onClose()
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.tuning.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.tuning.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.tuning.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warnf("websocket read error conn=%s err=%v", c.id, err)
			}
			return
		}
		onMessage(message)
	}
}
