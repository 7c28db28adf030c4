// Package hub implements the robofleet connection hub.
//
// Robots and dashboards share one WebSocket endpoint. Every inbound frame is
// parsed into a protocol variant and routed: telemetry and commands are
// broadcast to everyone, signals are relayed to the connections bound to
// their target robot id, and auth/register are acknowledged to the sender
// only. A periodic ping sweep reaps connections that stopped answering.
package hub

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/markus-barta/robofleet/internal/auth"
	"github.com/markus-barta/robofleet/internal/fleet"
	"github.com/rs/zerolog"
)

// Options tune the hub. Zero values select the defaults.
type Options struct {
	PingInterval   time.Duration // liveness sweep period (default 30s)
	SendBuffer     int           // per-connection outbound queue depth (default 256)
	MaxMessageSize int64         // largest accepted inbound frame (default 1 MiB)
	RequireAuth    bool          // drop non-auth frames from unauthenticated connections
	AllowedOrigins []string      // browser origins accepted on upgrade; empty allows all
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 1 << 20
	}
	return o
}

// Hub owns the connection registry and routes messages between connections.
type Hub struct {
	log      zerolog.Logger
	fleet    *fleet.Store
	tokens   auth.Verifier
	opts     Options
	conns    *Registry
	upgrader websocket.Upgrader
	stats    counters
}

// New creates a hub that records robot state in store and verifies auth
// tokens with tokens.
func New(log zerolog.Logger, store *fleet.Store, tokens auth.Verifier, opts Options) *Hub {
	h := &Hub{
		log:    log.With().Str("component", "hub").Logger(),
		fleet:  store,
		tokens: tokens,
		opts:   opts.withDefaults(),
		conns:  NewRegistry(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run drives the liveness monitor until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	return h.conns.Count()
}

// ServeHTTP upgrades the request to a WebSocket connection and serves it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := h.attach(ws)
	c.log.Debug().Str("remote", r.RemoteAddr).Msg("connection opened")

	go c.writePump()
	go h.readPump(c, ws)
}

// attach registers a new connection on wire.
func (h *Hub) attach(wire transport) *Conn {
	c := newConn(wire, h.opts.SendBuffer, h.log)
	h.conns.Add(c)
	return c
}

// drop removes c from the registry and closes it without flushing.
func (h *Hub) drop(c *Conn) {
	if h.conns.Remove(c) {
		c.log.Debug().
			Str("robot_id", c.RobotID()).
			Msg("connection closed")
	}
	c.terminate()
}

func (h *Hub) shutdown() {
	conns := h.conns.drain()
	for _, c := range conns {
		c.close()
	}
	h.log.Info().Int("count", len(conns)).Msg("closed all connections")
}

// readPump feeds frames from ws to the router in arrival order.
func (h *Hub) readPump(c *Conn, ws *websocket.Conn) {
	defer h.drop(c)

	ws.SetReadLimit(h.opts.MaxMessageSize)
	ws.SetPongHandler(func(string) error {
		c.pong()
		return nil
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("read error")
			}
			return
		}
		// Frames arriving after a close was decided are discarded while the
		// writer flushes; the read fails once it closes the socket.
		if c.closing() {
			continue
		}
		h.OnMessage(c, data)
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Robots are not browsers and send no Origin
		return true
	}
	for _, o := range h.opts.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	h.log.Warn().Str("origin", origin).Msg("rejected websocket origin")
	return false
}
