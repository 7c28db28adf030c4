package protocol

import "encoding/json"

// Reply is a hub acknowledgment sent to a single connection.
type Reply struct {
	Type    Kind   `json:"type"`
	RobotID string `json:"robot_id,omitempty"`
}

// CommandFrame is the normalized command broadcast to every connection.
type CommandFrame struct {
	Type    Kind            `json:"type"`
	RobotID string          `json:"robot_id"`
	Cmd     json.RawMessage `json:"cmd,omitempty"`
}

// AuthOK encodes the successful auth acknowledgment.
func AuthOK() []byte {
	return mustMarshal(Reply{Type: TypeAuthOK})
}

// AuthError encodes the failed auth acknowledgment.
func AuthError() []byte {
	return mustMarshal(Reply{Type: TypeAuthError})
}

// Registered encodes the registration acknowledgment for robotID.
func Registered(robotID string) []byte {
	return mustMarshal(Reply{Type: TypeRegistered, RobotID: robotID})
}

// Encode builds the broadcast form of a command.
func (m Command) Encode() ([]byte, error) {
	return json.Marshal(CommandFrame{Type: TypeCommand, RobotID: m.RobotID, Cmd: m.Cmd})
}

// Encode builds the broadcast echo of a telemetry frame: every field the
// robot sent, tagged with its type.
func (m Telemetry) Encode() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.fields)+1)
	for k, v := range m.fields {
		out[k] = v
	}
	out["type"] = json.RawMessage(`"` + string(TypeTelemetry) + `"`)
	return json.Marshal(out)
}

// Outbound frames built from fixed structs cannot fail to marshal.
func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// Client-side frames, used by the robot simulator.

// AuthFrame is the auth request.
type AuthFrame struct {
	Type  Kind   `json:"type"`
	Token string `json:"token"`
}

// RegisterFrame is the registration request.
type RegisterFrame struct {
	Type    Kind   `json:"type"`
	RobotID string `json:"robot_id"`
}

// TelemetryFrame is a telemetry report.
type TelemetryFrame struct {
	Type    Kind    `json:"type"`
	RobotID string  `json:"robot_id"`
	Pose    Pose    `json:"pose"`
	Speed   float64 `json:"speed"`
	Battery float64 `json:"battery"`
	Health  *Health `json:"health,omitempty"`
}

// Pose is a planar robot pose.
type Pose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"theta"`
}

// Health is a coarse robot self-diagnosis.
type Health struct {
	Status      string   `json:"status"` // "ok", "degraded", "fault"
	Temperature float64  `json:"temperature"`
	Faults      []string `json:"faults,omitempty"`
}
