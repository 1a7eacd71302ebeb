package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/tendant/nd3-capture-pipeline/internal/queue"
)

// StatusSource reports the state of the job queue
type StatusSource interface {
	Status() queue.Status
}

// OpsHandler serves health, queue and metrics endpoints
type OpsHandler struct {
	queue   StatusSource
	metrics http.Handler
	version string
}

// NewOpsHandler creates a new ops handler. metrics may be nil.
func NewOpsHandler(q StatusSource, metrics http.Handler, version string) *OpsHandler {
	return &OpsHandler{
		queue:   q,
		metrics: metrics,
		version: version,
	}
}

// Routes registers the ops endpoints on a new mux
func (h *OpsHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc("/v1/queue", h.HandleQueue)
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics)
	}
	return mux
}

// HandleHealth handles GET /health
func (h *OpsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := "healthy"
	code := http.StatusOK
	if h.queue.Status().Closed {
		status = "stopping"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// HandleQueue handles GET /v1/queue - returns the queue snapshot
func (h *OpsHandler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, h.queue.Status())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
