// Package requests exposes the assignment engine over HTTP.
package requests

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fieldserv/matchd/core/assign"
	"github.com/fieldserv/matchd/core/model"
	"github.com/fieldserv/matchd/core/store"
)

// Handler serves the request lifecycle endpoints.
type Handler struct {
	mgr *assign.Manager
}

// NewHandler wraps the manager.
func NewHandler(mgr *assign.Manager) *Handler {
	return &Handler{mgr: mgr}
}

// Register mounts the endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /requests", h.create)
	mux.HandleFunc("GET /requests/{id}", h.get)
	mux.HandleFunc("POST /requests/{id}/accept", h.respond(h.mgr.Accept))
	mux.HandleFunc("POST /requests/{id}/reject", h.respond(h.mgr.Reject))
	mux.HandleFunc("POST /requests/{id}/cancel", h.cancel)
	mux.HandleFunc("POST /requests/{id}/start", h.transition(h.mgr.Start))
	mux.HandleFunc("POST /requests/{id}/complete", h.transition(h.mgr.Complete))
}

type createRequest struct {
	ServiceType   string         `json:"service_type"`
	Location      model.Location `json:"location"`
	Priority      string         `json:"priority"`
	ClientContact string         `json:"client_contact"`
}

type requestView struct {
	model.Request
	Attempts []model.AssignmentAttempt `json:"attempts"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in createRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	prio, err := model.ParsePriority(in.Priority)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := h.mgr.Submit(r.Context(), assign.NewRequest{
		ServiceType:   in.ServiceType,
		Location:      in.Location,
		Priority:      prio,
		ClientContact: in.ClientContact,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req, err := h.mgr.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	attempts, err := h.mgr.Attempts(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requestView{Request: req, Attempts: attempts})
}

type providerResponse struct {
	ProviderID string `json:"provider_id"`
}

// respond builds a handler for provider accept/reject endpoints.
func (h *Handler) respond(apply func(ctx context.Context, requestID, providerID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in providerResponse
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.ProviderID == "" {
			http.Error(w, "provider_id is required", http.StatusBadRequest)
			return
		}
		if err := apply(r.Context(), r.PathValue("id"), in.ProviderID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Reason string `json:"reason"`
	}
	// A missing or empty body is a plain cancellation.
	_ = json.NewDecoder(r.Body).Decode(&in)
	if err := h.mgr.Cancel(r.Context(), r.PathValue("id"), in.Reason); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// transition builds a handler for start/complete confirmations.
func (h *Handler) transition(apply func(ctx context.Context, requestID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := apply(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "request not found", http.StatusNotFound)
	case errors.Is(err, assign.ErrConflict), errors.Is(err, assign.ErrInvalidStateTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
