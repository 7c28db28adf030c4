package server

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/markus-barta/robofleet/internal/fleet"
)

// maxUploadSize bounds map uploads.
const maxUploadSize = 10 << 20

// handleHealth reports liveness of the server itself.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.hub.Count(),
		"robots":      s.fleet.Len(),
	})
}

// handleLogin exchanges a user name (and password/TOTP when configured) for
// a socket token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !s.limiter.Allow(ip) {
		writeError(w, http.StatusTooManyRequests, "too many attempts")
		return
	}

	var req struct {
		User     string `json:"user"`
		Password string `json:"password"`
		TOTP     string `json:"totp"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.User == "" {
		writeError(w, http.StatusBadRequest, "user required")
		return
	}

	if err := s.creds.Check(req.Password, req.TOTP); err != nil {
		s.log.Warn().Str("ip", ip).Str("user", req.User).Msg("failed login attempt")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, exp, err := s.tokens.Issue(req.User)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to issue token")
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	s.limiter.Reset(ip)
	s.log.Info().Str("user", req.User).Msg("login")
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleGetFleet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fleet.Snapshot())
}

func (s *Server) handleGetRobot(w http.ResponseWriter, r *http.Request) {
	st, err := s.fleet.Get(chi.URLParam(r, "robotID"))
	if errors.Is(err, fleet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGetRobotHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.fleet.Health(chi.URLParam(r, "robotID"))
	if errors.Is(err, fleet.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleCreateMap(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if len(body) > maxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, "map too large")
		return
	}

	info, err := s.maps.Create(body)
	if err != nil {
		s.log.Debug().Err(err).Msg("map upload rejected")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.log.Info().Str("map_id", info.ID).Int("bytes", len(body)).Msg("map stored")
	writeJSON(w, http.StatusOK, map[string]any{"id": info.ID, "meta": info.Meta})
}

func (s *Server) handleListMaps(w http.ResponseWriter, r *http.Request) {
	maps, err := s.maps.List()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list maps")
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, maps)
}

func (s *Server) handleGetMap(w http.ResponseWriter, r *http.Request) {
	payload, err := s.maps.Get(chi.URLParam(r, "mapID"))
	if errors.Is(err, ErrMapNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load map")
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleExportSnapshot returns the whole fleet and map catalogue at once.
func (s *Server) handleExportSnapshot(w http.ResponseWriter, r *http.Request) {
	maps, err := s.maps.List()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list maps")
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	robots := make(map[string]fleet.RobotState)
	for _, st := range s.fleet.Snapshot() {
		robots[st.RobotID] = st
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"robots": robots,
		"maps":   maps,
		"t":      float64(time.Now().UnixMilli()) / 1000,
	})
}

// clientIP strips the port from the remote address.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
