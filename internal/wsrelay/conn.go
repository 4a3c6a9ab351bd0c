package wsrelay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 32
)

// Upgrader is shared by every relay endpoint. Origin checking is left to the
// reverse proxy in front of the core instance, matching the rest of the
// stack's "ambient concerns live at the edge" posture.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerFunc processes one inbound Envelope on a Conn. It runs on the Conn's
// own read goroutine, so handlers that need to block on I/O (DB lookups,
// pub/sub publishes) should do so via ctx and return promptly — one slow
// handler only stalls its own connection, never another's.
type HandlerFunc func(ctx context.Context, c *Conn, msg Envelope)

// Conn wraps one upgraded WebSocket connection. Per gorilla/websocket's
// single-writer constraint, all writes funnel through the send channel and
// writePump; nothing else may call conn.WriteMessage directly.
type Conn struct {
	ID     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *zap.Logger

	closeOnce sync.Once
}

// NewConn wraps an already-upgraded *websocket.Conn.
func NewConn(id string, wsConn *websocket.Conn, logger *zap.Logger) *Conn {
	wsConn.SetReadLimit(maxMessageSize)
	return &Conn{
		ID:     id,
		conn:   wsConn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Send enqueues a raw frame for delivery. Returns false if the send buffer
// is full or the connection has already started closing — callers must
// treat a false return as "message dropped", never retry inline. send is
// never closed (only done is), so a concurrent Send from another goroutine
// can never race a Close into a "send on closed channel" panic.
func (c *Conn) Send(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// SendEnvelope marshals and enqueues a typed message.
func (c *Conn) SendEnvelope(msgType, id string, payload any) bool {
	b, err := encode(msgType, id, payload)
	if err != nil {
		c.logger.Warn("wsrelay: encode failed", zap.Error(err), zap.String("type", msgType))
		return false
	}
	return c.Send(b)
}

// ReadOne blocks for exactly one inbound frame, used only during the auth
// handshake before the read/write pumps are started.
func (c *Conn) ReadOne(deadline time.Time) (Envelope, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return Envelope{}, err
	}
	var env Envelope
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return Envelope{}, err
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Run starts the write pump and blocks running the read pump until the
// connection closes or ctx is cancelled. handler is invoked for every
// inbound frame after the auth handshake has already completed.
func (c *Conn) Run(ctx context.Context, handler HandlerFunc) {
	go c.writePump()
	c.readPump(ctx, handler)
}

func (c *Conn) readPump(ctx context.Context, handler HandlerFunc) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.SendEnvelope(TypeError, "", ErrorPayload{Reason: "invalid JSON"})
			continue
		}

		if env.Type == TypeHeartbeat {
			c.SendEnvelope(TypeHeartbeatAck, env.ID, HeartbeatAckPayload{ServerTime: time.Now()})
			continue
		}

		if handler != nil {
			handler(ctx, c, env)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// CloseWithCode sends a WebSocket close frame carrying the given code and
// reason, then tears down the connection. Used by the handshake to reject a
// connection with 4001/4004 before the pumps ever start.
func (c *Conn) CloseWithCode(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	c.conn.Close()
}

// Close idempotently signals the write pump to stop. send itself is never
// closed, so a Send racing a concurrent Close only ever observes "dropped",
// never panics.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
