package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/riscvbooks/eventrelay/internal/relay"
)

const (
	// outboundBufferSize bounds how many undelivered frames a slow
	// consumer may accumulate before fan-out drops deliveries to it.
	outboundBufferSize = 64

	writeTimeout = 10 * time.Second
)

// wsConn adapts one websocket connection to the relay.Sender contract:
// a non-blocking buffered outbound path and a closed flag the fan-out
// engine uses to prune dead subscriptions.
type wsConn struct {
	id       string
	socket   *websocket.Conn
	outbound chan []byte
	done     chan struct{}
	closed   atomic.Bool
	stopOnce sync.Once
	logger   *zap.Logger
}

func newWSConn(socket *websocket.Conn, logger *zap.Logger) *wsConn {
	return &wsConn{
		id:       uuid.NewString(),
		socket:   socket,
		outbound: make(chan []byte, outboundBufferSize),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// ID returns the connection's registry identity.
func (c *wsConn) ID() string {
	return c.id
}

// Send queues a frame for delivery. It never blocks: a full buffer or a
// closed connection drops the frame and reports false.
func (c *wsConn) Send(frame []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.outbound <- frame:
		return true
	default:
		return false
	}
}

// Closed reports whether the connection has shut down.
func (c *wsConn) Closed() bool {
	return c.closed.Load()
}

func (c *wsConn) stop() {
	c.stopOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.socket.Close()
	})
}

// writePump drains the outbound buffer onto the socket. It owns all
// writes so frames from the dispatcher and the fan-out engine never
// interleave.
func (c *wsConn) writePump() {
	for {
		select {
		case frame := <-c.outbound:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.socket.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("websocket write failed",
					zap.String("connection_id", c.id),
					zap.Error(err))
				c.stop()
				return
			}
		case <-c.done:
			return
		}
	}
}

// readPump handles inbound frames strictly in arrival order; each
// frame's side effects complete before the next frame is read.
func (c *wsConn) readPump(ctx context.Context, dispatcher *relay.Dispatcher) {
	defer func() {
		c.stop()
		dispatcher.ConnectionClosed(c.id)
	}()
	for {
		_, raw, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read failed",
					zap.String("connection_id", c.id),
					zap.Error(err))
			}
			return
		}
		dispatcher.HandleFrame(ctx, c, raw)
	}
}
