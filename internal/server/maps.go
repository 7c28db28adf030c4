package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMapNotFound is returned for unknown map ids.
var ErrMapNotFound = errors.New("map not found")

// MapInfo describes an uploaded map without its payload.
type MapInfo struct {
	ID        string          `json:"id"`
	Meta      json.RawMessage `json:"meta"`
	CreatedAt time.Time       `json:"created_at"`
}

// MapStore keeps uploaded maps in SQLite.
type MapStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMapStore creates a map store on db.
func NewMapStore(db *sql.DB) *MapStore {
	return &MapStore{db: db, now: time.Now}
}

// Create stores payload, which must be a JSON object, under a new id derived
// from the upload time. The object's "meta" field becomes the map metadata.
func (m *MapStore) Create(payload json.RawMessage) (MapInfo, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil || doc == nil {
		return MapInfo{}, errors.New("map payload must be a JSON object")
	}
	meta := json.RawMessage(`{}`)
	if raw, ok := doc["meta"]; ok && string(raw) != "null" {
		meta = raw
	}

	created := m.now()
	ms := created.UnixMilli()
	// Uploads within the same millisecond take the next free id.
	for attempt := 0; attempt < 100; attempt++ {
		id := fmt.Sprintf("map-%d", ms+int64(attempt))
		res, err := m.db.Exec(
			`INSERT OR IGNORE INTO maps (id, meta_json, payload_json, created_at) VALUES (?, ?, ?, ?)`,
			id, string(meta), string(payload), created.UnixMilli(),
		)
		if err != nil {
			return MapInfo{}, fmt.Errorf("insert map: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return MapInfo{ID: id, Meta: meta, CreatedAt: time.UnixMilli(created.UnixMilli())}, nil
		}
	}
	return MapInfo{}, errors.New("no free map id")
}

// List returns all maps, oldest first.
func (m *MapStore) List() ([]MapInfo, error) {
	rows, err := m.db.Query(`SELECT id, meta_json, created_at FROM maps ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query maps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	maps := []MapInfo{}
	for rows.Next() {
		var (
			info    MapInfo
			meta    string
			created int64
		)
		if err := rows.Scan(&info.ID, &meta, &created); err != nil {
			return nil, fmt.Errorf("scan map: %w", err)
		}
		info.Meta = json.RawMessage(meta)
		info.CreatedAt = time.UnixMilli(created)
		maps = append(maps, info)
	}
	return maps, rows.Err()
}

// Get returns the stored payload of one map.
func (m *MapStore) Get(id string) (json.RawMessage, error) {
	var payload string
	err := m.db.QueryRow(`SELECT payload_json FROM maps WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMapNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query map: %w", err)
	}
	return json.RawMessage(payload), nil
}
