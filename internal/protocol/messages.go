// Package protocol defines the WebSocket messages exchanged between robots,
// dashboards and the hub.
//
// Every frame is a flat JSON object tagged by its "type" field. Parse turns a
// raw frame into exactly one of the inbound variants below, or fails with
// ErrMalformed / ErrUnknownKind.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the value of a frame's "type" field.
type Kind string

// Message types (client → hub)
const (
	TypeAuth      Kind = "auth"
	TypeTelemetry Kind = "telemetry"
	TypeCommand   Kind = "command"
	TypeSignal    Kind = "signal"
	TypeRegister  Kind = "register"
)

// Message types (hub → client)
const (
	TypeAuthOK     Kind = "auth_ok"
	TypeAuthError  Kind = "auth_error"
	TypeRegistered Kind = "registered"
)

var (
	// ErrMalformed is returned for frames that are not a JSON object or lack
	// the fields their kind requires.
	ErrMalformed = errors.New("malformed message")

	// ErrUnknownKind is returned for well-formed frames with an unrecognized type.
	ErrUnknownKind = errors.New("unknown message type")
)

// Inbound is implemented by every parsed client message.
type Inbound interface {
	Kind() Kind
}

// Auth carries a bearer token for in-band authentication.
type Auth struct {
	Token string
}

// Telemetry is a periodic robot status report.
type Telemetry struct {
	RobotID string
	Pose    json.RawMessage
	Speed   *float64
	Battery json.RawMessage
	Health  json.RawMessage // nil when absent or null

	// fields holds every field of the frame so the broadcast echo can carry
	// whatever extras the robot sent.
	fields map[string]json.RawMessage
}

// Command is an operator instruction addressed to a robot.
type Command struct {
	RobotID string
	Cmd     json.RawMessage
}

// Signal is an opaque signaling payload relayed to connections bound to Target.
type Signal struct {
	Target string
	Raw    []byte
}

// Register binds a robot id to the sending connection.
type Register struct {
	RobotID string
}

func (Auth) Kind() Kind      { return TypeAuth }
func (Telemetry) Kind() Kind { return TypeTelemetry }
func (Command) Kind() Kind   { return TypeCommand }
func (Signal) Kind() Kind    { return TypeSignal }
func (Register) Kind() Kind  { return TypeRegister }

// Parse decodes a raw frame into its inbound variant.
func Parse(data []byte) (Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	var kind string
	if err := decodeField(fields, "type", &kind); err != nil {
		return nil, err
	}

	switch Kind(kind) {
	case TypeAuth:
		var m Auth
		// A missing or non-string token still yields an auth message; the
		// gate rejects it like any other bad token.
		_ = decodeField(fields, "token", &m.Token)
		return m, nil

	case TypeTelemetry:
		id, err := robotID(fields)
		if err != nil {
			return nil, err
		}
		m := Telemetry{
			RobotID: id,
			Pose:    present(fields["pose"]),
			Battery: present(fields["battery"]),
			Health:  present(fields["health"]),
			fields:  fields,
		}
		if raw := present(fields["speed"]); raw != nil {
			var speed float64
			if err := json.Unmarshal(raw, &speed); err != nil {
				return nil, fmt.Errorf("%w: speed: %v", ErrMalformed, err)
			}
			m.Speed = &speed
		}
		return m, nil

	case TypeCommand:
		id, err := robotID(fields)
		if err != nil {
			return nil, err
		}
		return Command{RobotID: id, Cmd: present(fields["cmd"])}, nil

	case TypeSignal:
		m := Signal{Raw: data}
		_ = decodeField(fields, "target", &m.Target)
		return m, nil

	case TypeRegister:
		id, err := robotID(fields)
		if err != nil {
			return nil, err
		}
		return Register{RobotID: id}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func decodeField(fields map[string]json.RawMessage, name string, target any) error {
	raw, ok := fields[name]
	if !ok {
		return fmt.Errorf("%w: missing %s", ErrMalformed, name)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}
	return nil
}

func robotID(fields map[string]json.RawMessage) (string, error) {
	var id string
	if err := decodeField(fields, "robot_id", &id); err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%w: empty robot_id", ErrMalformed)
	}
	return id, nil
}

// present returns raw unless it is absent or JSON null.
func present(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
