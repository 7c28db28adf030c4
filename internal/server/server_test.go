package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// --- helpers ----------------------------------------------------------------

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	return &Config{
		ListenAddr:        "127.0.0.1:0",
		StaticDir:         dir,
		JWTSecret:         "test-secret",
		TokenTTL:          time.Hour,
		RateLimitRequests: 5,
		RateLimitWindow:   time.Minute,
		DataDir:           dir,
		DatabasePath:      filepath.Join(dir, "test.db"),
		PingInterval:      time.Hour,
		SendBuffer:        16,
		MaxMessageSize:    1 << 20,
	}
}

func startServer(t *testing.T, cfg *Config) (*Server, *httptest.Server) {
	t.Helper()
	db, err := InitDatabase(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("InitDatabase: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := New(cfg, db, zerolog.Nop())
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return s, srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func getURL(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, frame string) map[string]any {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func login(t *testing.T, srv *httptest.Server, body string) string {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/login", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var out struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	decodeBody(t, resp, &out)
	if out.Token == "" || out.ExpiresAt == "" {
		t.Fatalf("login response = %+v", out)
	}
	return out.Token
}

// --- tests ------------------------------------------------------------------

func TestServer_LoginThenSocketFlow(t *testing.T) {
	_, srv := startServer(t, testConfig(t))

	token := login(t, srv, `{"user":"operator"}`)

	conn := dialWS(t, srv)
	if m := roundTrip(t, conn, `{"type":"auth","token":"`+token+`"}`); m["type"] != "auth_ok" {
		t.Fatalf("auth reply = %v", m)
	}
	if m := roundTrip(t, conn, `{"type":"register","robot_id":"amr-7"}`); m["type"] != "registered" {
		t.Fatalf("register reply = %v", m)
	}
	if m := roundTrip(t, conn, `{"type":"telemetry","robot_id":"amr-7","pose":{"x":1,"y":2},"speed":0.8,"battery":64,"health":{"status":"ok"}}`); m["type"] != "telemetry" {
		t.Fatalf("telemetry echo = %v", m)
	}

	resp := getURL(t, srv.URL+"/api/fleet/amr-7")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fleet/amr-7 status = %d", resp.StatusCode)
	}
	var robot map[string]any
	decodeBody(t, resp, &robot)
	if robot["robot_id"] != "amr-7" || robot["speed"] != 0.8 {
		t.Errorf("robot = %v", robot)
	}

	resp = getURL(t, srv.URL+"/api/health/amr-7")
	var health map[string]any
	decodeBody(t, resp, &health)
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}

	resp = getURL(t, srv.URL+"/api/fleet")
	var robots []map[string]any
	decodeBody(t, resp, &robots)
	if len(robots) != 1 {
		t.Errorf("fleet = %v, want one robot", robots)
	}
}

func TestServer_UnknownRobotIs404(t *testing.T) {
	_, srv := startServer(t, testConfig(t))

	for _, path := range []string{"/api/fleet/ghost", "/api/health/ghost", "/api/maps/map-1"} {
		resp := getURL(t, srv.URL+path)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, resp.StatusCode)
		}
		var body map[string]string
		decodeBody(t, resp, &body)
		if body["error"] != "not found" {
			t.Errorf("%s body = %v", path, body)
		}
	}
}

func TestServer_RegisteredRobotWithoutHealth(t *testing.T) {
	_, srv := startServer(t, testConfig(t))
	conn := dialWS(t, srv)
	roundTrip(t, conn, `{"type":"register","robot_id":"r1"}`)

	resp := getURL(t, srv.URL+"/api/health/r1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var health map[string]any
	decodeBody(t, resp, &health)
	if len(health) != 0 {
		t.Errorf("health = %v, want empty object", health)
	}
}

func TestServer_LoginValidation(t *testing.T) {
	cfg := testConfig(t)
	hash, _ := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	cfg.PasswordHash = string(hash)
	_, srv := startServer(t, cfg)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing user", `{"password":"s3cret"}`, http.StatusBadRequest},
		{"bad json", `{`, http.StatusBadRequest},
		{"wrong password", `{"user":"op","password":"nope"}`, http.StatusUnauthorized},
		{"right password", `{"user":"op","password":"s3cret"}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/login", tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestServer_LoginRateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimitRequests = 2
	_, srv := startServer(t, cfg)

	for i := 0; i < 2; i++ {
		postJSON(t, srv.URL+"/api/login", `{}`)
	}
	resp := postJSON(t, srv.URL+"/api/login", `{"user":"op"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
}

func TestServer_Maps(t *testing.T) {
	_, srv := startServer(t, testConfig(t))

	resp := postJSON(t, srv.URL+"/api/maps", `{"meta":{"name":"warehouse"},"grid":[0,1,1,0]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created struct {
		ID   string            `json:"id"`
		Meta map[string]string `json:"meta"`
	}
	decodeBody(t, resp, &created)
	if !strings.HasPrefix(created.ID, "map-") || created.Meta["name"] != "warehouse" {
		t.Fatalf("created = %+v", created)
	}

	resp = getURL(t, srv.URL+"/api/maps/"+created.ID)
	var payload map[string]any
	decodeBody(t, resp, &payload)
	if grid, ok := payload["grid"].([]any); !ok || len(grid) != 4 {
		t.Errorf("payload = %v", payload)
	}

	resp = getURL(t, srv.URL+"/api/maps")
	var list []map[string]any
	decodeBody(t, resp, &list)
	if len(list) != 1 || list[0]["id"] != created.ID {
		t.Errorf("list = %v", list)
	}

	bad := postJSON(t, srv.URL+"/api/maps", `[1,2,3]`)
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("array upload status = %d, want 400", bad.StatusCode)
	}
}

func TestServer_ExportSnapshot(t *testing.T) {
	_, srv := startServer(t, testConfig(t))
	conn := dialWS(t, srv)
	roundTrip(t, conn, `{"type":"register","robot_id":"r1"}`)
	postJSON(t, srv.URL+"/api/maps", `{"grid":[]}`)

	resp := postJSON(t, srv.URL+"/api/export_snapshot", ``)
	var snap struct {
		Robots map[string]map[string]any `json:"robots"`
		Maps   []map[string]any          `json:"maps"`
		T      float64                   `json:"t"`
	}
	decodeBody(t, resp, &snap)

	if _, ok := snap.Robots["r1"]; !ok {
		t.Errorf("robots = %v, want r1", snap.Robots)
	}
	if len(snap.Maps) != 1 {
		t.Fatalf("maps = %v, want 1", snap.Maps)
	}
	if snap.Maps[0]["meta"] == nil {
		t.Error("map meta missing, want {}")
	}
	if now := float64(time.Now().Unix()); snap.T < now-60 || snap.T > now+60 {
		t.Errorf("t = %v, want around %v", snap.T, now)
	}
}

func TestServer_HealthAndStatic(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.StaticDir, "index.html"), []byte("<h1>fleet</h1>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	_, srv := startServer(t, cfg)

	resp := getURL(t, srv.URL+"/health")
	var health map[string]any
	decodeBody(t, resp, &health)
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}
	if resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}

	resp = getURL(t, srv.URL+"/")
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "fleet") {
		t.Errorf("index = %q", buf.String())
	}
}

func TestServer_Metrics(t *testing.T) {
	_, srv := startServer(t, testConfig(t))
	conn := dialWS(t, srv)
	roundTrip(t, conn, `{"type":"register","robot_id":"r1"}`)
	roundTrip(t, conn, `{"type":"telemetry","robot_id":"r1","speed":1}`)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The hub processes one connection's frames in order, so a reply to a
	// later frame means the drop has been counted.
	roundTrip(t, conn, `{"type":"register","robot_id":"r1"}`)

	resp := getURL(t, srv.URL+"/metrics")
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		t.Fatalf("parse metrics: %v", err)
	}

	if v := mfs["robofleet_connections"].GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Errorf("robofleet_connections = %v, want 1", v)
	}
	if v := mfs["robofleet_robots"].GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Errorf("robofleet_robots = %v, want 1", v)
	}
	if v := mfs["robofleet_frames_dropped_total"].GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("robofleet_frames_dropped_total = %v, want 1", v)
	}

	byType := map[string]float64{}
	for _, m := range mfs["robofleet_frames_total"].GetMetric() {
		byType[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	if byType["register"] != 2 || byType["telemetry"] != 1 {
		t.Errorf("frames by type = %v", byType)
	}
}
