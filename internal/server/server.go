package server

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/markus-barta/robofleet/internal/auth"
	"github.com/markus-barta/robofleet/internal/fleet"
	"github.com/markus-barta/robofleet/internal/hub"
	"github.com/rs/zerolog"
)

// Server is the robofleet HTTP server.
type Server struct {
	cfg     *Config
	log     zerolog.Logger
	fleet   fleet.Reader
	hub     *hub.Hub
	tokens  *auth.TokenService
	creds   auth.Credentials
	limiter *auth.RateLimiter
	maps    *MapStore
	router  *chi.Mux
}

// New creates a server. The hub's liveness monitor starts with Run.
func New(cfg *Config, db *sql.DB, log zerolog.Logger) *Server {
	store := fleet.NewStore()
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)

	s := &Server{
		cfg:     cfg,
		log:     log.With().Str("component", "server").Logger(),
		fleet:   store,
		hub:     hub.New(log, store, tokens, cfg.HubOptions()),
		tokens:  tokens,
		creds:   auth.Credentials{PasswordHash: cfg.PasswordHash, TOTPSecret: cfg.TOTPSecret},
		limiter: auth.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		maps:    NewMapStore(db),
	}

	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.securityHeaders)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	// WebSocket (robots and dashboards, auth is in-band)
	r.Get("/ws", s.hub.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)

		r.Get("/fleet", s.handleGetFleet)
		r.Get("/fleet/{robotID}", s.handleGetRobot)
		r.Get("/health/{robotID}", s.handleGetRobotHealth)

		r.Post("/maps", s.handleCreateMap)
		r.Get("/maps", s.handleListMaps)
		r.Get("/maps/{mapID}", s.handleGetMap)

		r.Post("/export_snapshot", s.handleExportSnapshot)
	})

	// Static files
	r.Handle("/*", http.FileServer(http.Dir(s.cfg.StaticDir)))

	s.router = r
}

// securityHeaders adds security headers to responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is cancelled, then shuts down the hub and the
// listener.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting robofleet server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down")
	stopHub()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP router (for testing).
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the connection hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Tokens returns the token service used for logins and socket auth.
func (s *Server) Tokens() *auth.TokenService {
	return s.tokens
}
