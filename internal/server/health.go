package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"mcpdocs/internal/logging"
)

// Readiness tracks the startup gates the readiness probe reports.
type Readiness struct {
	mu                     sync.RWMutex
	databaseConnected      bool
	embeddingInitialized   bool
	autoPopulationComplete bool
}

// NewReadiness returns a Readiness with all gates closed.
func NewReadiness() *Readiness {
	return &Readiness{}
}

func (r *Readiness) SetDatabaseConnected(v bool) {
	r.mu.Lock()
	r.databaseConnected = v
	r.mu.Unlock()
}

func (r *Readiness) SetEmbeddingInitialized(v bool) {
	r.mu.Lock()
	r.embeddingInitialized = v
	r.mu.Unlock()
}

func (r *Readiness) SetAutoPopulationComplete(v bool) {
	r.mu.Lock()
	r.autoPopulationComplete = v
	r.mu.Unlock()
}

// Ready reports whether the service can answer queries: database and
// embedding provider are up. Auto-population is reported but never gates
// readiness.
func (r *Readiness) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.databaseConnected && r.embeddingInitialized
}

func (r *Readiness) snapshot() (db, emb, pop bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.databaseConnected, r.embeddingInitialized, r.autoPopulationComplete
}

// NewHealthHandler returns the HTTP handler for the health surface:
// /health/live, /health/ready and the legacy /health.
func NewHealthHandler(readiness *Readiness) http.Handler {
	log := logging.Get(logging.CategoryHealth)
	mux := http.NewServeMux()

	live := func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "alive"})
	}
	mux.HandleFunc("GET /health/live", live)
	mux.HandleFunc("GET /health", live)

	mux.HandleFunc("GET /health/ready", func(w http.ResponseWriter, _ *http.Request) {
		db, emb, pop := readiness.snapshot()
		body := map[string]any{
			"database_connected":       db,
			"embedding_initialized":    emb,
			"auto_population_complete": pop,
		}
		if readiness.Ready() {
			body["status"] = "ready"
			writeJSON(w, http.StatusOK, body)
			return
		}
		body["status"] = "not_ready"
		log.Debug("readiness probe failed",
			zap.Bool("database_connected", db),
			zap.Bool("embedding_initialized", emb),
			zap.Bool("auto_population_complete", pop))
		writeJSON(w, http.StatusServiceUnavailable, body)
	})

	// Every response from this surface is JSON, including the 404.
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"status": "not_found"})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
