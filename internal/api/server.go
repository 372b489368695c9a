// Package api serves a read-only JSON view of the detector state.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/rewired-gh/liqoracle/internal/logger"
	"github.com/rewired-gh/liqoracle/internal/models"
	"github.com/rewired-gh/liqoracle/internal/monitor"
)

const (
	defaultWindow = 5 * time.Minute
	maxWindow     = 24 * time.Hour
)

// Config holds the HTTP server settings.
type Config struct {
	BindAddress string
	CORSOrigins []string
}

// Server exposes health, monitor state and recent liquidations.
type Server struct {
	config   Config
	store    monitor.Store
	snapshot func() models.MonitorSnapshot
	started  time.Time
	now      func() time.Time
	server   *http.Server
}

func NewServer(cfg Config, store monitor.Store, snapshot func() models.MonitorSnapshot) *Server {
	return &Server{
		config:   cfg,
		store:    store,
		snapshot: snapshot,
		started:  time.Now(),
		now:      time.Now,
	}
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.getHealth).Methods("GET")
	api.HandleFunc("/status", s.getStatus).Methods("GET")
	api.HandleFunc("/liquidations", s.getLiquidations).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         3600,
	})
	return c.Handler(router)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.BindAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server starting on %s", s.config.BindAddress)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) getHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(s.now().Sub(s.started).Seconds()),
	})
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) getLiquidations(w http.ResponseWriter, r *http.Request) {
	window := defaultWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > maxWindow {
			http.Error(w, "invalid window", http.StatusBadRequest)
			return
		}
		window = d
	}

	end := s.now().UTC()
	events, err := s.store.LiquidationsBetween(r.Context(), end.Add(-window), end)
	if err != nil {
		logger.Error("Failed to query liquidations: %v", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []models.LiquidationEvent{}
	}

	response := struct {
		Window       string                    `json:"window"`
		Count        int                       `json:"count"`
		Metrics      models.WindowMetrics      `json:"metrics"`
		Liquidations []models.LiquidationEvent `json:"liquidations"`
	}{
		Window:       window.String(),
		Count:        len(events),
		Metrics:      monitor.ComputeMetrics(events, window.Seconds()),
		Liquidations: events,
	}
	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}
