package hub

import (
	"sync/atomic"

	"github.com/markus-barta/robofleet/internal/protocol"
)

// Stats is a point-in-time view of the hub counters.
type Stats struct {
	Connections int
	Frames      map[protocol.Kind]uint64 // routed frames by type
	Dropped     uint64                   // malformed, unknown or unauthenticated
	AuthFailed  uint64
	Overflows   uint64 // connections dropped for a full send buffer
	Reaped      uint64 // connections dropped by the liveness sweep
}

type counters struct {
	auth, telemetry, command, signal, register atomic.Uint64

	dropped    atomic.Uint64
	authFailed atomic.Uint64
	overflows  atomic.Uint64
	reaped     atomic.Uint64
}

func (s *counters) frame(k protocol.Kind) {
	switch k {
	case protocol.TypeAuth:
		s.auth.Add(1)
	case protocol.TypeTelemetry:
		s.telemetry.Add(1)
	case protocol.TypeCommand:
		s.command.Add(1)
	case protocol.TypeSignal:
		s.signal.Add(1)
	case protocol.TypeRegister:
		s.register.Add(1)
	}
}

// Stats returns the current counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Connections: h.conns.Count(),
		Frames: map[protocol.Kind]uint64{
			protocol.TypeAuth:      h.stats.auth.Load(),
			protocol.TypeTelemetry: h.stats.telemetry.Load(),
			protocol.TypeCommand:   h.stats.command.Load(),
			protocol.TypeSignal:    h.stats.signal.Load(),
			protocol.TypeRegister:  h.stats.register.Load(),
		},
		Dropped:    h.stats.dropped.Load(),
		AuthFailed: h.stats.authFailed.Load(),
		Overflows:  h.stats.overflows.Load(),
		Reaped:     h.stats.reaped.Load(),
	}
}
