// Package api provides the HTTP API for running scenarios and browsing stored runs.
// GET endpoints are public (read-only).
// POST endpoints require a bearer token and are rate-limited per client.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/talgya/nephron-sim/internal/engine"
	"github.com/talgya/nephron-sim/internal/metrics"
	"github.com/talgya/nephron-sim/internal/nephron"
	"github.com/talgya/nephron-sim/internal/persistence"
	"github.com/talgya/nephron-sim/internal/report"
	"github.com/talgya/nephron-sim/internal/scenario"
	"github.com/talgya/nephron-sim/internal/species"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Server serves scenario runs over HTTP.
type Server struct {
	DB       *persistence.DB
	Metrics  *metrics.Metrics
	Base     engine.Config // Controller config every run starts from
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	MaxDays  int    // Upper bound on requested run length

	// Allowed CORS origins in addition to localhost dev servers.
	CORSOrigins []string

	// Requests per RateWindow allowed on POST /runs for each client.
	RateLimit  int
	RateWindow time.Duration

	started time.Time
	limiter *RateLimiter
	srv     *http.Server
}

// Handler builds the router. It is safe to call once per Server.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	if s.limiter == nil {
		rate, window := s.RateLimit, s.RateWindow
		if rate <= 0 {
			rate = 30
		}
		if window <= 0 {
			window = time.Hour
		}
		s.limiter = NewRateLimiter(rate, window)
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public endpoints.
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/scenarios", s.handleScenarios).Methods("GET")
	api.HandleFunc("/runs", s.handleListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", s.handleRun).Methods("GET")
	api.HandleFunc("/runs/{id}/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/runs/{id}/plot.png", s.handlePlot).Methods("GET")
	api.HandleFunc("/runs/{id}/history.csv", s.handleCSV).Methods("GET")

	// Admin endpoints.
	api.HandleFunc("/runs", s.adminOnly(RateLimitMiddleware(s.limiter, s.handleCreateRun))).Methods("POST")
	api.HandleFunc("/runs/{id}", s.adminOnly(s.handleDeleteRun)).Methods("DELETE")

	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler()).Methods("GET")
	}

	return s.corsMiddleware(r)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the listener and the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range s.CORSOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowedOrigins[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			writeError(w, http.StatusForbidden, "admin endpoints disabled (no NEPHRON_ADMIN_KEY set)")
			return
		}
		if !s.checkBearerToken(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name":       "nephron-sim",
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"scenarios":  len(scenario.Names()),
		"admin_auth": s.AdminKey != "",
		"max_days":   s.maxDays(),
		"setpoint":   s.Base.Setpoint.Map(),
	}
	if s.DB != nil {
		if n, err := s.DB.CountRuns(); err == nil {
			status["runs"] = n
		}
		if last, err := s.DB.GetMeta("last_run"); err == nil {
			status["last_run"] = last
		}
	}
	writeJSON(w, http.StatusOK, status)
}

type scenarioView struct {
	Name        string             `json:"name"`
	Label       string             `json:"label"`
	Description string             `json:"description,omitempty"`
	Plasma      map[string]float64 `json:"plasma"`
}

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	builtin := scenario.Builtin()
	out := make([]scenarioView, 0, len(builtin))
	for _, name := range scenario.Names() {
		sc := builtin[name]
		out = append(out, scenarioView{
			Name:        sc.Name,
			Label:       sc.Label,
			Description: sc.Description,
			Plasma:      sc.Plasma.Map(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// runRequest is the body of POST /runs. Plasma entries override the
// scenario's initial concentrations.
type runRequest struct {
	Scenario    string                `json:"scenario"`
	Days        *int                  `json:"days,omitempty"`
	Plasma      map[string]float64    `json:"plasma,omitempty"`
	Variability *scenario.Variability `json:"variability,omitempty"`
}

type runResponse struct {
	Run     persistence.Run    `json:"run"`
	Config  engine.Config      `json:"config"`
	History []engine.DayRecord `json:"history,omitempty"`
}

func (s *Server) maxDays() int {
	if s.MaxDays > 0 {
		return s.MaxDays
	}
	return 365
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	var req runRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Scenario == "" {
		req.Scenario = "healthy"
	}

	sc, err := scenario.Lookup(req.Scenario)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Days != nil {
		if *req.Days < 1 || *req.Days > s.maxDays() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("days must be 1-%d", s.maxDays()))
			return
		}
		sc.Days = *req.Days
	}
	if len(req.Plasma) > 0 {
		plasma, err := species.SolutesFromMap(req.Plasma, sc.Plasma)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sc.Plasma = plasma
	}
	if req.Variability != nil {
		if req.Variability.Amplitude < 0 || req.Variability.Amplitude > 0.5 {
			writeError(w, http.StatusBadRequest, "variability amplitude must be 0-0.5")
			return
		}
		sc.Variability = *req.Variability
	}

	res, err := scenario.Run(sc, s.Base)
	if err != nil {
		if s.Metrics != nil {
			s.Metrics.ObserveError(sc.Name)
		}
		if errors.Is(err, nephron.ErrInvalidInput) || errors.Is(err, engine.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("run failed", "scenario", sc.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "run failed")
		return
	}
	if s.Metrics != nil {
		s.Metrics.ObserveRun(sc.Name, res.History, res.Took)
	}

	run, err := persistence.NewRun(sc.Name, sc.Label, res.Config, res.History)
	if err == nil {
		err = s.DB.SaveRun(run, res.History)
	}
	if err != nil {
		slog.Error("run save failed", "scenario", sc.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "run save failed")
		return
	}

	writeJSON(w, http.StatusCreated, runResponse{Run: run, Config: res.Config, History: res.History.Records()})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "database not available")
		return
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := s.DB.ListRuns(limit)
	if err != nil {
		slog.Error("list runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// loadRun fetches the run named in the path, writing the error response itself.
func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (persistence.Run, bool) {
	if s.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "database not available")
		return persistence.Run{}, false
	}
	run, err := s.DB.LoadRun(mux.Vars(r)["id"])
	if errors.Is(err, persistence.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return run, false
	}
	if err != nil {
		slog.Error("load run failed", "error", err)
		writeError(w, http.StatusInternalServerError, "load run failed")
		return run, false
	}
	return run, true
}

func (s *Server) loadHistory(w http.ResponseWriter, id string) (*engine.History, bool) {
	hist, err := s.DB.LoadHistory(id)
	if errors.Is(err, persistence.ErrNotFound) {
		writeError(w, http.StatusNotFound, "history not found")
		return nil, false
	}
	if err != nil {
		slog.Error("load history failed", "run", id, "error", err)
		writeError(w, http.StatusInternalServerError, "load history failed")
		return nil, false
	}
	return hist, true
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	cfg, err := run.Config()
	if err != nil {
		slog.Error("decode run config failed", "run", run.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "corrupt run config")
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run, Config: cfg})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	hist, ok := s.loadHistory(w, run.ID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, hist.Records())
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	hist, ok := s.loadHistory(w, run.ID)
	if !ok {
		return
	}

	opts := report.DefaultPlotOptions()
	opts.Title = run.Label
	if cfg, err := run.Config(); err == nil {
		opts.Setpoint = cfg.Setpoint
	}

	w.Header().Set("Content-Type", "image/png")
	if err := report.WritePlot(w, hist, opts); err != nil {
		slog.Error("plot failed", "run", run.ID, "error", err)
	}
}

func (s *Server) handleCSV(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	hist, ok := s.loadHistory(w, run.ID)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", run.ID+".csv"))
	if err := report.WriteCSV(w, hist); err != nil {
		slog.Error("csv failed", "run", run.ID, "error", err)
	}
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "database not available")
		return
	}
	id := mux.Vars(r)["id"]
	err := s.DB.DeleteRun(id)
	if errors.Is(err, persistence.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		slog.Error("delete run failed", "run", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	slog.Info("run deleted", "run", id)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
