package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Time allowed to write a message to the peer.
const writeWait = 10 * time.Second

// transport is the write side of a WebSocket connection.
// *websocket.Conn satisfies it.
type transport interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn is one live robot or dashboard connection.
type Conn struct {
	id   string
	wire transport
	log  zerolog.Logger

	// send is never closed; done signals the writer to stop.
	send  chan []byte
	ping  chan struct{}
	done  chan struct{}
	once  sync.Once
	flush bool // drain send before closing; written before done is closed

	alive atomic.Bool

	mu      sync.RWMutex
	user    string
	robotID string
}

func newConn(wire transport, bufSize int, log zerolog.Logger) *Conn {
	id := uuid.NewString()
	c := &Conn{
		id:   id,
		wire: wire,
		log:  log.With().Str("conn", id).Logger(),
		send: make(chan []byte, bufSize),
		ping: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

// ID returns the process-local connection id.
func (c *Conn) ID() string { return c.id }

// User returns the authenticated user, or "" before a successful auth.
func (c *Conn) User() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// RobotID returns the registered robot id, or "" if none.
func (c *Conn) RobotID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.robotID
}

// setUser records the first authenticated identity. Later calls are ignored.
func (c *Conn) setUser(user string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user != "" {
		return false
	}
	c.user = user
	return true
}

func (c *Conn) bindRobot(id string) {
	c.mu.Lock()
	c.robotID = id
	c.mu.Unlock()
}

// enqueue queues data for the writer without blocking. It fails when the
// connection is closing or its queue is full.
func (c *Conn) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Conn) closing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// requestPing asks the writer to send a ping control frame.
func (c *Conn) requestPing() {
	select {
	case c.ping <- struct{}{}:
	default:
	}
}

func (c *Conn) pong() {
	c.alive.Store(true)
}

// close flushes queued frames, sends a close frame and closes the socket.
func (c *Conn) close() {
	c.once.Do(func() {
		c.flush = true
		close(c.done)
	})
}

// terminate closes the socket immediately, discarding queued frames.
func (c *Conn) terminate() {
	c.once.Do(func() { close(c.done) })
	_ = c.wire.Close()
}

// writePump is the only goroutine that writes data frames to the socket.
func (c *Conn) writePump() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				c.terminate()
				return
			}

		case <-c.ping:
			if err := c.wire.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Debug().Err(err).Msg("ping failed")
				c.terminate()
				return
			}

		case <-c.done:
			if c.flush {
				c.drain()
				_ = c.wire.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
			}
			_ = c.wire.Close()
			return
		}
	}
}

func (c *Conn) drain() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(msg []byte) error {
	_ = c.wire.SetWriteDeadline(time.Now().Add(writeWait))
	return c.wire.WriteMessage(websocket.TextMessage, msg)
}
