// Package simulator serves synthetic metric samples over HTTP so the
// control plane can be run end to end with collector.type "http".
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/OldStager01/resilience-plane/internal/collector"
	"github.com/OldStager01/resilience-plane/internal/logger"
)

type Config struct {
	Port          int
	Pattern       string
	BaseCPU       float64
	BaseMemory    float64
	BaseRps       float64
	BaseLatencyMs float64
}

type Simulator struct {
	config     Config
	source     *collector.SyntheticSource
	mu         sync.Mutex
	failing    string
	httpServer *http.Server
}

func New(cfg Config) *Simulator {
	if cfg.Port == 0 {
		cfg.Port = 9000
	}

	return &Simulator{
		config: cfg,
		source: collector.NewSyntheticSource(collector.SyntheticSourceConfig{
			Pattern:       cfg.Pattern,
			BaseCPU:       cfg.BaseCPU,
			BaseMemory:    cfg.BaseMemory,
			BaseRps:       cfg.BaseRps,
			BaseLatencyMs: cfg.BaseLatencyMs,
		}),
	}
}

func (s *Simulator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /metrics", s.metricsHandler)
	mux.HandleFunc("POST /load", s.loadHandler)
	mux.HandleFunc("POST /fail", s.failHandler)
	return mux
}

func (s *Simulator) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Infof("Simulator listening on %s", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Simulator server error: %v", err)
		}
	}()

	return nil
}

func (s *Simulator) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Simulator) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "metrics-simulator",
	})
}

func (s *Simulator) metricsHandler(w http.ResponseWriter, r *http.Request) {
	sample, err := s.source.Collect(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

type LoadRequest struct {
	CPU    *float64 `json:"cpu"`
	Memory *float64 `json:"memory"`
}

// loadHandler moves the base load the synthetic pattern oscillates around.
func (s *Simulator) loadHandler(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if req.CPU != nil {
		s.source.SetBaseCPU(*req.CPU)
	}
	if req.Memory != nil {
		s.source.SetBaseMemory(*req.Memory)
	}

	logger.WithComponent("simulator").WithFields(map[string]interface{}{
		"cpu":    req.CPU,
		"memory": req.Memory,
	}).Info("Base load changed")
	writeJSON(w, http.StatusOK, map[string]string{"message": "load updated"})
}

type FailRequest struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

// failHandler makes /metrics answer 503 so the collector circuit can be
// tripped on demand.
func (s *Simulator) failHandler(w http.ResponseWriter, r *http.Request) {
	var req FailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !req.Enabled {
		s.failing = ""
		s.source.SetFailure(nil)
		writeJSON(w, http.StatusOK, map[string]string{"message": "failure cleared"})
		return
	}

	if req.Message == "" {
		req.Message = "simulated outage"
	}
	s.failing = req.Message
	s.source.SetFailure(errors.New(req.Message))
	logger.WithComponent("simulator").Warnf("Injected failure: %s", req.Message)
	writeJSON(w, http.StatusOK, map[string]string{"message": "failure injected"})
}

// Failing returns the injected failure message, if any.
func (s *Simulator) Failing() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failing
}
