// Package fleet holds the last-known state of every robot the hub has heard from.
package fleet

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned by lookups for a robot id the store has never seen.
var ErrNotFound = errors.New("robot not found")

// RobotState is the latest known status of one robot.
type RobotState struct {
	RobotID  string          `json:"robot_id"`
	Pose     json.RawMessage `json:"pose,omitempty"`
	Speed    *float64        `json:"speed,omitempty"`
	Battery  json.RawMessage `json:"battery,omitempty"`
	Health   json.RawMessage `json:"health,omitempty"`
	LastSeen time.Time       `json:"last_seen"`
}

// Telemetry is the subset of a telemetry report that the store keeps.
type Telemetry struct {
	Pose    json.RawMessage
	Speed   *float64
	Battery json.RawMessage
	Health  json.RawMessage // nil keeps the stored value
}

// Reader is the read-only view handed to HTTP collaborators.
type Reader interface {
	Snapshot() []RobotState
	Get(robotID string) (RobotState, error)
	Health(robotID string) (json.RawMessage, error)
	Len() int
}

// Store maps robot id to RobotState. Entries are never removed.
type Store struct {
	mu     sync.RWMutex
	robots map[string]*RobotState
	now    func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		robots: make(map[string]*RobotState),
		now:    time.Now,
	}
}

// ApplyTelemetry upserts a robot from a telemetry report. Pose, speed and
// battery are always overwritten; health only when the report carries it.
func (s *Store) ApplyTelemetry(robotID string, t Telemetry) RobotState {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.entry(robotID)
	r.Pose = t.Pose
	r.Speed = t.Speed
	r.Battery = t.Battery
	if t.Health != nil {
		r.Health = t.Health
	}
	r.LastSeen = s.now()
	return r.clone()
}

// Touch ensures robotID exists and refreshes its last-seen time. It reports
// whether the record was created by this call.
func (s *Store) Touch(robotID string) (created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.robots[robotID]
	s.entry(robotID).LastSeen = s.now()
	return !exists
}

// Get returns a copy of one robot's state.
func (s *Store) Get(robotID string) (RobotState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.robots[robotID]
	if !ok {
		return RobotState{}, ErrNotFound
	}
	return r.clone(), nil
}

// Health returns the last reported health of a robot. A known robot that
// never reported health yields an empty JSON object.
func (s *Store) Health(robotID string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.robots[robotID]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Health == nil {
		return json.RawMessage(`{}`), nil
	}
	return cloneRaw(r.Health), nil
}

// Snapshot returns copies of all robots ordered by id.
func (s *Store) Snapshot() []RobotState {
	s.mu.RLock()
	out := make([]RobotState, 0, len(s.robots))
	for _, r := range s.robots {
		out = append(out, r.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].RobotID < out[j].RobotID })
	return out
}

// Len returns the number of known robots.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.robots)
}

// entry returns the record for id, creating it. Caller holds s.mu.
func (s *Store) entry(id string) *RobotState {
	r, ok := s.robots[id]
	if !ok {
		r = &RobotState{RobotID: id}
		s.robots[id] = r
	}
	return r
}

func (r *RobotState) clone() RobotState {
	c := *r
	c.Pose = cloneRaw(r.Pose)
	c.Battery = cloneRaw(r.Battery)
	c.Health = cloneRaw(r.Health)
	if r.Speed != nil {
		v := *r.Speed
		c.Speed = &v
	}
	return c
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
