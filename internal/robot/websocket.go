package robot

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ConnectionHandler is called on connection events.
type ConnectionHandler interface {
	OnConnected()
	OnDisconnected()
}

// Connection parameters
const (
	pingInterval     = 30 * time.Second
	pongWait         = 45 * time.Second
	writeWait        = 10 * time.Second
	maxBackoff       = 60 * time.Second
	initialBackoff   = 1 * time.Second
	closeGracePeriod = 5 * time.Second
)

// WebSocketClient keeps a connection to the hub open, redialing with
// exponential backoff whenever it drops.
type WebSocketClient struct {
	url     string
	log     zerolog.Logger
	handler ConnectionHandler

	conn     *websocket.Conn
	mu       sync.Mutex
	messages chan []byte

	connected  bool
	backoff    time.Duration
	minBackoff time.Duration
}

// NewWebSocketClient creates a client for the hub socket at url.
func NewWebSocketClient(url string, log zerolog.Logger, handler ConnectionHandler) *WebSocketClient {
	return &WebSocketClient{
		url:        url,
		log:        log.With().Str("component", "websocket").Logger(),
		handler:    handler,
		messages:   make(chan []byte, 100),
		backoff:    initialBackoff,
		minBackoff: initialBackoff,
	}
}

// Run connects to the hub and maintains the connection.
// It blocks until the context is cancelled.
func (c *WebSocketClient) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			c.log.Debug().Msg("context cancelled, stopping")
			return
		}

		conn, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error().Err(err).Dur("backoff", c.backoff).Msg("connection failed, retrying")
			c.waitBackoff(ctx)
			continue
		}

		c.backoff = c.minBackoff
		c.readLoop(ctx, conn)
		c.waitBackoff(ctx)
	}
}

func (c *WebSocketClient) connect(ctx context.Context) (*websocket.Conn, error) {
	c.log.Debug().Str("url", c.url).Msg("connecting")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusForbidden {
			c.log.Error().Msg("origin rejected: 403 Forbidden")
		}
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	// The hub pings on its own schedule; answering also proves the hub is there.
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	go c.pingLoop(ctx, conn)
	c.handler.OnConnected()
	return conn, nil
}

// readLoop reads frames until the connection fails or ctx is cancelled.
func (c *WebSocketClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	stop := context.AfterFunc(ctx, func() { _ = c.closeConn(conn, "shutdown") })
	defer func() {
		stop()
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
			c.connected = false
		}
		c.mu.Unlock()
		_ = conn.Close()
		c.handler.OnDisconnected()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				c.log.Error().Err(err).Msg("read error")
			}
			return
		}

		if !json.Valid(data) {
			c.log.Error().Str("data", string(data)).Msg("failed to parse message")
			continue
		}

		select {
		case c.messages <- data:
		default:
			c.log.Warn().Msg("message queue full, dropping message")
		}
	}
}

func (c *WebSocketClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			current := c.conn == conn
			c.mu.Unlock()
			if !current {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (c *WebSocketClient) waitBackoff(ctx context.Context) {
	timer := time.NewTimer(c.backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}

	c.backoff *= 2
	if c.backoff > maxBackoff {
		c.backoff = maxBackoff
	}
}

// SendMessage encodes v as JSON and writes it as one text frame.
func (c *WebSocketClient) SendMessage(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return websocket.ErrCloseSent
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the channel of incoming frames.
func (c *WebSocketClient) Messages() <-chan []byte {
	return c.messages
}

// Close closes the current connection with a normal close frame. Run keeps
// redialing unless its context is cancelled.
func (c *WebSocketClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return c.closeConn(conn, "shutdown")
}

func (c *WebSocketClient) closeConn(conn *websocket.Conn, reason string) error {
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(closeGracePeriod),
	)
	if err != nil {
		_ = conn.Close()
		return err
	}

	// Wait briefly for close acknowledgment
	time.Sleep(100 * time.Millisecond)
	return conn.Close()
}

// IsConnected returns whether the client is connected.
func (c *WebSocketClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
