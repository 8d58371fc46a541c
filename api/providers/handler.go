// Package providers exposes the provider directory over HTTP so operators
// can register providers and update their availability.
package providers

import (
	"encoding/json"
	"net/http"

	"github.com/fieldserv/matchd/core/directory"
	"github.com/fieldserv/matchd/core/model"
)

// Handler serves the directory endpoints.
type Handler struct {
	dir directory.Directory
}

// NewHandler wraps the directory.
func NewHandler(dir directory.Directory) *Handler {
	return &Handler{dir: dir}
}

// Register mounts the endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /providers", h.list)
	mux.HandleFunc("PUT /providers/{id}", h.upsert)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.dir.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	var p model.Provider
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid provider body", http.StatusBadRequest)
		return
	}
	p.ID = r.PathValue("id")
	if p.ID == "" {
		http.Error(w, "provider id is required", http.StatusBadRequest)
		return
	}
	if p.MaxSimultaneousJobs <= 0 {
		http.Error(w, "max_simultaneous_jobs must be positive", http.StatusBadRequest)
		return
	}
	// Preserve the live assignment count on re-registration.
	if prev, ok := h.dir.Get(p.ID); ok {
		p.ActiveAssignments = prev.ActiveAssignments
	}
	h.dir.Upsert(p)
	w.WriteHeader(http.StatusNoContent)
}
