// Package robot implements a simulated robot that reports telemetry to the
// hub and listens for commands and signals addressed to it.
package robot

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/markus-barta/robofleet/internal/config"
	"github.com/markus-barta/robofleet/internal/protocol"
	"github.com/rs/zerolog"
)

// Event is a command or signal delivered to this robot.
type Event struct {
	Type protocol.Kind   // TypeCommand or TypeSignal
	Cmd  json.RawMessage // set for commands
	Raw  []byte          // the frame as received
}

// inbound is the part of a hub frame the robot looks at.
type inbound struct {
	Type    protocol.Kind   `json:"type"`
	RobotID string          `json:"robot_id"`
	Cmd     json.RawMessage `json:"cmd"`
}

// Robot coordinates the socket client and the telemetry loop.
type Robot struct {
	cfg    *config.Config
	log    zerolog.Logger
	ws     *WebSocketClient
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	registered bool
	motion     *motion

	events chan Event
}

// New creates a robot with the given configuration.
func New(cfg *config.Config, log zerolog.Logger) *Robot {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Robot{
		cfg:    cfg,
		log:    log.With().Str("component", "robot").Str("robot_id", cfg.RobotID).Logger(),
		ctx:    ctx,
		cancel: cancel,
		motion: newMotion(cfg.RobotID),
		events: make(chan Event, 64),
	}
	r.ws = NewWebSocketClient(cfg.HubURL, log, r)
	return r
}

// Run starts the robot and blocks until Shutdown.
func (r *Robot) Run() error {
	r.log.Info().
		Str("url", r.cfg.HubURL).
		Dur("interval", r.cfg.TelemetryInterval).
		Bool("auth", r.cfg.Token != "").
		Msg("starting robot")

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.telemetryLoop()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.messageLoop()
	}()

	r.ws.Run(r.ctx)

	wg.Wait()
	r.log.Info().Msg("robot stopped")
	return nil
}

// Shutdown stops the robot. The open connection is closed normally.
func (r *Robot) Shutdown() {
	r.log.Info().Msg("shutting down")
	r.cancel()
}

// Events returns commands and signals addressed to this robot.
func (r *Robot) Events() <-chan Event {
	return r.events
}

// IsRegistered reports whether the hub acknowledged the current connection.
func (r *Robot) IsRegistered() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registered
}

// OnConnected sends auth (when a token is configured) and register.
func (r *Robot) OnConnected() {
	r.log.Info().Msg("connected to hub")

	if r.cfg.Token != "" {
		if err := r.ws.SendMessage(protocol.AuthFrame{Type: protocol.TypeAuth, Token: r.cfg.Token}); err != nil {
			r.log.Error().Err(err).Msg("failed to send auth")
			return
		}
	}

	if err := r.ws.SendMessage(protocol.RegisterFrame{Type: protocol.TypeRegister, RobotID: r.cfg.RobotID}); err != nil {
		r.log.Error().Err(err).Msg("failed to send registration")
		return
	}
	r.log.Debug().Msg("registration sent")
}

// OnDisconnected clears the registration; the next connection registers again.
func (r *Robot) OnDisconnected() {
	r.mu.Lock()
	r.registered = false
	r.mu.Unlock()
	r.log.Warn().Msg("disconnected from hub")
}

// OnMessage handles one frame from the hub.
func (r *Robot) OnMessage(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		r.log.Debug().Err(err).Msg("ignoring malformed frame")
		return
	}

	switch msg.Type {
	case protocol.TypeAuthOK:
		r.log.Info().Msg("authenticated")

	case protocol.TypeAuthError:
		r.log.Error().Msg("hub rejected token")

	case protocol.TypeRegistered:
		if msg.RobotID != r.cfg.RobotID {
			return
		}
		r.mu.Lock()
		r.registered = true
		r.mu.Unlock()
		r.log.Info().Msg("registered with hub")

		// First report goes out right away
		r.sendTelemetry()

	case protocol.TypeCommand:
		if msg.RobotID != r.cfg.RobotID {
			return
		}
		r.log.Info().RawJSON("cmd", orNull(msg.Cmd)).Msg("command received")
		r.emit(Event{Type: protocol.TypeCommand, Cmd: msg.Cmd, Raw: data})

	case protocol.TypeSignal:
		r.log.Info().Int("bytes", len(data)).Msg("signal received")
		r.emit(Event{Type: protocol.TypeSignal, Raw: data})

	case protocol.TypeTelemetry:
		// Fleet-wide echo, including our own.

	default:
		r.log.Debug().Str("type", string(msg.Type)).Msg("unknown message type")
	}
}

func (r *Robot) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		r.log.Warn().Str("type", string(ev.Type)).Msg("event queue full, dropping")
	}
}

func (r *Robot) messageLoop() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case data := <-r.ws.Messages():
			r.OnMessage(data)
		}
	}
}

// telemetryLoop reports every interval while registered.
func (r *Robot) telemetryLoop() {
	ticker := time.NewTicker(r.cfg.TelemetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if r.ws.IsConnected() && r.IsRegistered() {
				r.sendTelemetry()
			}
		}
	}
}

func (r *Robot) sendTelemetry() {
	r.mu.Lock()
	frame := r.motion.next()
	r.mu.Unlock()

	if err := r.ws.SendMessage(frame); err != nil {
		r.log.Debug().Err(err).Msg("failed to send telemetry")
		return
	}

	r.log.Debug().
		Float64("battery", frame.Battery).
		Bool("health", frame.Health != nil).
		Msg("telemetry sent")
}

func orNull(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}
