package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParse_Kinds(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Kind
	}{
		{"auth", `{"type":"auth","token":"abc"}`, TypeAuth},
		{"auth without token", `{"type":"auth"}`, TypeAuth},
		{"telemetry", `{"type":"telemetry","robot_id":"r1","pose":{"x":1},"speed":0.5,"battery":88}`, TypeTelemetry},
		{"command", `{"type":"command","robot_id":"r1","cmd":"stop"}`, TypeCommand},
		{"signal", `{"type":"signal","target":"r2","sdp":"v=0"}`, TypeSignal},
		{"register", `{"type":"register","robot_id":"r1"}`, TypeRegister},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse([]byte(tt.data))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if msg.Kind() != tt.want {
				t.Errorf("Kind() = %q, want %q", msg.Kind(), tt.want)
			}
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"not json", `{{{`, ErrMalformed},
		{"json null", `null`, ErrMalformed},
		{"array", `[1,2]`, ErrMalformed},
		{"no type", `{"robot_id":"r1"}`, ErrMalformed},
		{"numeric type", `{"type":7}`, ErrMalformed},
		{"unknown type", `{"type":"dance"}`, ErrUnknownKind},
		{"telemetry without robot", `{"type":"telemetry","speed":1}`, ErrMalformed},
		{"telemetry empty robot", `{"type":"telemetry","robot_id":""}`, ErrMalformed},
		{"telemetry bad speed", `{"type":"telemetry","robot_id":"r1","speed":"fast"}`, ErrMalformed},
		{"register numeric robot", `{"type":"register","robot_id":12}`, ErrMalformed},
		{"command without robot", `{"type":"command","cmd":"stop"}`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParse_TelemetryFields(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"telemetry","robot_id":"r1","pose":{"x":1,"y":2},"speed":1.5,"battery":{"pct":90},"health":null}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	tm := msg.(Telemetry)

	if tm.RobotID != "r1" {
		t.Errorf("RobotID = %q, want r1", tm.RobotID)
	}
	if tm.Speed == nil || *tm.Speed != 1.5 {
		t.Errorf("Speed = %v, want 1.5", tm.Speed)
	}
	if string(tm.Pose) != `{"x":1,"y":2}` {
		t.Errorf("Pose = %s", tm.Pose)
	}
	if tm.Health != nil {
		t.Errorf("Health = %s, want nil for null", tm.Health)
	}
}

func TestParse_SignalKeepsRawBytes(t *testing.T) {
	data := []byte(`{"type":"signal","target":"cam-1","candidate":{"sdpMid":"0"}}`)
	msg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	sig := msg.(Signal)
	if sig.Target != "cam-1" {
		t.Errorf("Target = %q, want cam-1", sig.Target)
	}
	if string(sig.Raw) != string(data) {
		t.Errorf("Raw = %s, want original bytes", sig.Raw)
	}
}

func TestTelemetry_EncodeKeepsExtras(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"telemetry","robot_id":"r1","speed":2,"lidar":"ok"}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	data, err := msg.(Telemetry).Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["type"] != "telemetry" {
		t.Errorf("type = %v, want telemetry", out["type"])
	}
	if out["lidar"] != "ok" {
		t.Errorf("lidar = %v, want ok", out["lidar"])
	}
	if out["robot_id"] != "r1" {
		t.Errorf("robot_id = %v, want r1", out["robot_id"])
	}
}

func TestCommand_Encode(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"command","robot_id":"r1","cmd":{"goto":[1,2]},"extra":true}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	data, err := msg.(Command).Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	want := `{"type":"command","robot_id":"r1","cmd":{"goto":[1,2]}}`
	if string(data) != want {
		t.Errorf("Encode() = %s, want %s", data, want)
	}
}

func TestReplies(t *testing.T) {
	if got := string(AuthOK()); got != `{"type":"auth_ok"}` {
		t.Errorf("AuthOK() = %s", got)
	}
	if got := string(AuthError()); got != `{"type":"auth_error"}` {
		t.Errorf("AuthError() = %s", got)
	}
	if got := string(Registered("r9")); got != `{"type":"registered","robot_id":"r9"}` {
		t.Errorf("Registered() = %s", got)
	}
}
