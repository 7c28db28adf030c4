package robot

import (
	"math"

	"github.com/markus-barta/robofleet/internal/protocol"
)

// Simulated motion parameters
const (
	orbitRadius   = 5.0  // metres
	angularStep   = 0.05 // radians per frame
	cruiseSpeed   = 0.5  // m/s
	batteryDrain  = 0.02 // percent per frame
	healthEvery   = 10   // frames between health reports
	lowBattery    = 20.0 // percent
	baseTempC     = 35.0
	tempPerFrameC = 0.001
)

// motion produces a deterministic telemetry stream: the robot circles the
// origin while its battery drains.
type motion struct {
	robotID string
	frame   int
	angle   float64
	battery float64
}

func newMotion(robotID string) *motion {
	return &motion{robotID: robotID, battery: 100}
}

// next advances the simulation by one frame.
func (m *motion) next() protocol.TelemetryFrame {
	m.frame++
	m.angle = math.Mod(m.angle+angularStep, 2*math.Pi)
	m.battery = math.Max(0, m.battery-batteryDrain)

	speed := cruiseSpeed
	if m.battery == 0 {
		speed = 0
	}

	t := protocol.TelemetryFrame{
		Type:    protocol.TypeTelemetry,
		RobotID: m.robotID,
		Pose: protocol.Pose{
			X:       round3(orbitRadius * math.Cos(m.angle)),
			Y:       round3(orbitRadius * math.Sin(m.angle)),
			Heading: round3(math.Mod(m.angle+math.Pi/2, 2*math.Pi)),
		},
		Speed:   speed,
		Battery: round3(m.battery),
	}

	if m.frame%healthEvery == 1 {
		t.Health = m.health()
	}
	return t
}

func (m *motion) health() *protocol.Health {
	h := &protocol.Health{
		Status:      "ok",
		Temperature: round3(baseTempC + float64(m.frame)*tempPerFrameC),
	}
	switch {
	case m.battery == 0:
		h.Status = "fault"
		h.Faults = []string{"battery_depleted"}
	case m.battery < lowBattery:
		h.Status = "degraded"
		h.Faults = []string{"battery_low"}
	}
	return h
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
