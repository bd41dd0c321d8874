package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"carpooltally/internal/balance"
	"carpooltally/internal/config"
	"carpooltally/internal/export"
	appLog "carpooltally/internal/log"
	"carpooltally/internal/model"
	"carpooltally/internal/pipeline"
)

// Provider exposes the most recent pipeline result to the API.
// *pipeline.Runner satisfies it.
type Provider interface {
	Last() *pipeline.Result
}

// Server provides the HTTP API for the current carpool balance:
// /health, /api/balance, /api/balance.csv and /api/trips.
type Server struct {
	cfg      *config.Config
	provider Provider
	mux      *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, provider Provider) *Server {
	s := &Server{
		cfg:      cfg,
		provider: provider,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/balance", s.handleBalance)
	s.mux.HandleFunc("/api/balance.csv", s.handleBalanceCSV)
	s.mux.HandleFunc("/api/trips", s.handleTrips)
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password counts as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health stays reachable without credentials.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="carpooltally", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type balanceResponse struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Entries     []balance.Entry `json:"entries"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lastResult(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		GeneratedAt: res.GeneratedAt,
		Entries:     res.Balance.Entries(),
	})
}

func (s *Server) handleBalanceCSV(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lastResult(w)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	var err error
	if r.URL.Query().Get("net") == "1" {
		err = export.WriteNetCSV(w, res.Balance)
	} else {
		err = export.WriteCSV(w, res.Balance)
	}
	if err != nil {
		appLog.Error("balance csv render failed", err)
	}
}

type tripsResponse struct {
	GeneratedAt   time.Time    `json:"generated_at"`
	Trips         []model.Trip `json:"trips"`
	SkippedEvents int          `json:"skipped_events"`
}

func (s *Server) handleTrips(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lastResult(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tripsResponse{
		GeneratedAt:   res.GeneratedAt,
		Trips:         res.Trips,
		SkippedEvents: res.SkippedEvents,
	})
}

// lastResult fetches the latest pipeline result, answering 503 when no
// run has completed yet.
func (s *Server) lastResult(w http.ResponseWriter) (*pipeline.Result, bool) {
	res := s.provider.Last()
	if res == nil {
		http.Error(w, "no balance computed yet", http.StatusServiceUnavailable)
		return nil, false
	}
	return res, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("json encode failed", err)
	}
}

// StartServer serves the API on cfg.Listen until ctx is cancelled.
func StartServer(ctx context.Context, cfg *config.Config, provider Provider) error {
	s := NewServer(cfg, provider)
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
