package hub

import (
	"github.com/markus-barta/robofleet/internal/fleet"
	"github.com/markus-barta/robofleet/internal/protocol"
)

// OnMessage routes one inbound frame from c. Malformed frames and unknown
// types are dropped without a reply.
func (h *Hub) OnMessage(c *Conn, data []byte) {
	msg, err := protocol.Parse(data)
	if err != nil {
		c.log.Debug().Err(err).Msg("dropping message")
		h.stats.dropped.Add(1)
		return
	}

	if h.opts.RequireAuth && msg.Kind() != protocol.TypeAuth && c.User() == "" {
		c.log.Debug().Str("type", string(msg.Kind())).Msg("dropping unauthenticated message")
		h.stats.dropped.Add(1)
		return
	}
	h.stats.frame(msg.Kind())

	switch m := msg.(type) {
	case protocol.Auth:
		_ = h.handleAuth(c, m.Token)
	case protocol.Telemetry:
		h.handleTelemetry(m)
	case protocol.Command:
		h.handleCommand(m)
	case protocol.Signal:
		h.handleSignal(c, m)
	case protocol.Register:
		h.handleRegister(c, m)
	}
}

// handleAuth verifies token and acknowledges to c. A bad token gets
// auth_error and the connection is closed once that frame is written.
func (h *Hub) handleAuth(c *Conn, token string) error {
	id, err := h.tokens.Verify(token)
	if err != nil {
		c.log.Warn().Err(err).Msg("auth failed")
		h.stats.authFailed.Add(1)
		c.enqueue(protocol.AuthError())
		c.close()
		return err
	}

	if c.setUser(id.User) {
		c.log.Info().Str("user", id.User).Msg("authenticated")
	}
	h.deliver(c, protocol.AuthOK())
	return nil
}

func (h *Hub) handleTelemetry(m protocol.Telemetry) {
	h.fleet.ApplyTelemetry(m.RobotID, fleet.Telemetry{
		Pose:    m.Pose,
		Speed:   m.Speed,
		Battery: m.Battery,
		Health:  m.Health,
	})

	data, err := m.Encode()
	if err != nil {
		h.log.Error().Err(err).Str("robot_id", m.RobotID).Msg("failed to encode telemetry")
		return
	}
	h.broadcast(data, nil)
}

// handleCommand broadcasts to everyone; robots filter on robot_id themselves.
func (h *Hub) handleCommand(m protocol.Command) {
	data, err := m.Encode()
	if err != nil {
		h.log.Error().Err(err).Str("robot_id", m.RobotID).Msg("failed to encode command")
		return
	}
	h.log.Debug().Str("robot_id", m.RobotID).Msg("command broadcast")
	h.broadcast(data, nil)
}

// handleSignal relays the frame unchanged to connections bound to its
// target, never back to the sender.
func (h *Hub) handleSignal(from *Conn, m protocol.Signal) {
	if m.Target == "" {
		return
	}
	n := h.broadcast(m.Raw, func(c *Conn) bool {
		return c != from && c.RobotID() == m.Target
	})
	if n == 0 {
		from.log.Debug().Str("target", m.Target).Msg("signal target not connected")
	}
}

func (h *Hub) handleRegister(c *Conn, m protocol.Register) {
	c.bindRobot(m.RobotID)
	if h.fleet.Touch(m.RobotID) {
		h.log.Info().Str("robot_id", m.RobotID).Msg("new robot")
	}
	c.log.Info().Str("robot_id", m.RobotID).Msg("robot registered")
	h.deliver(c, protocol.Registered(m.RobotID))
}

// broadcast queues data on every connection accepted by match and returns
// how many were visited.
func (h *Hub) broadcast(data []byte, match func(*Conn) bool) int {
	n := 0
	h.conns.ForEach(match, func(c *Conn) {
		n++
		h.deliver(c, data)
	})
	return n
}

// deliver queues data on c. A full queue means the peer is not keeping up;
// it is disconnected rather than allowed to grow without bound.
func (h *Hub) deliver(c *Conn, data []byte) {
	if c.enqueue(data) || c.closing() {
		return
	}
	c.log.Warn().Int("buffer", cap(c.send)).Msg("send buffer full, disconnecting")
	h.stats.overflows.Add(1)
	h.drop(c)
}
