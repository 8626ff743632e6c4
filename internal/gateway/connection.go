package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angelmondragon/homeserve-backend/pkg/enums"
)

// socket is the part of *websocket.Conn the gateway uses.
type socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Connection is one live client socket. Writes go through a buffered channel
// drained by a single writer goroutine.
type Connection struct {
	ID          string
	UserID      uuid.UUID
	Role        enums.ClientRole
	ConnectedAt time.Time

	sock      socket
	send      chan []byte
	done      chan struct{}
	missed    atomic.Int32
	closeOnce sync.Once
}

func newConnection(sock socket, userID uuid.UUID, role enums.ClientRole, buffer int, now time.Time) *Connection {
	if buffer <= 0 {
		buffer = 1
	}
	return &Connection{
		ID:          uuid.NewString(),
		UserID:      userID,
		Role:        role,
		ConnectedAt: now,
		sock:        sock,
		send:        make(chan []byte, buffer),
		done:        make(chan struct{}),
	}
}

// Send queues payload without blocking. It reports false when the connection is
// closed or its buffer is full.
func (c *Connection) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// SendWait queues payload, waiting up to timeout for buffer space.
func (c *Connection) SendWait(payload []byte, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return false
	case c.send <- payload:
		return true
	case <-timer.C:
		return false
	}
}

// Missed is the number of pings sent since the client last answered.
func (c *Connection) Missed() int {
	return int(c.missed.Load())
}

func (c *Connection) markAlive() {
	c.missed.Store(0)
}

func (c *Connection) ping(deadline time.Time) error {
	c.missed.Add(1)
	return c.sock.WriteControl(websocket.PingMessage, nil, deadline)
}

func (c *Connection) closeWith(code int, reason string, deadline time.Time) {
	_ = c.sock.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	c.Close()
}

// Close stops the writer and closes the socket. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
}

func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) writePump(writeTimeout time.Duration) error {
	for {
		select {
		case <-c.done:
			return nil
		case payload := <-c.send:
			if writeTimeout > 0 {
				_ = c.sock.SetWriteDeadline(time.Now().Add(writeTimeout))
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, payload); err != nil {
				return err
			}
		}
	}
}
