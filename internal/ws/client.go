package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second

	// sendQueueSize bounds the per-connection outbound queue. A slow
	// channel drops payloads instead of blocking delivery to others.
	sendQueueSize = 32
)

// client wraps one websocket connection. Outbound data frames go through a
// buffered queue drained by writePump; pings are written directly with
// WriteControl, which gorilla allows concurrently with the writer.
type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}

	mu     sync.Mutex
	closed bool
	alive  bool
}

func newClient(userID string, conn *websocket.Conn) *client {
	return &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
		alive:  true,
	}
}

func (c *client) Send(payload []byte) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *client) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// close tears down the transport. Safe to call more than once. The send
// queue is never closed so concurrent Send calls cannot panic; writePump
// exits via the done channel instead.
func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	_ = c.conn.Close()
}

func (c *client) markAlive() {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
}

// markSwept flags the client as provisionally dead and reports whether it
// had responded since the previous sweep.
func (c *client) markSwept() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	wasAlive := c.alive
	c.alive = false
	return wasAlive
}

func (c *client) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// writePump drains the send queue onto the wire. It owns all data writes
// for the connection.
func (c *client) writePump() {
	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout),
			)
			return
		}
	}
}
