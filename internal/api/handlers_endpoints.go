package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shohag/hookline/internal/delivery"
	"github.com/shohag/hookline/internal/models"
	"github.com/shohag/hookline/internal/registry"
	"github.com/shohag/hookline/internal/storage"
)

type EndpointHandler struct {
	registry   *registry.Registry
	store      storage.Storage
	testSender *delivery.Sender
}

func NewEndpointHandler(reg *registry.Registry, store storage.Storage, testSender *delivery.Sender) *EndpointHandler {
	return &EndpointHandler{registry: reg, store: store, testSender: testSender}
}

type createEndpointRequest struct {
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

func (h *EndpointHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ep, err := h.registry.Create(r.Context(), registry.CreateInput{
		UserID: UserFromContext(r.Context()),
		Name:   req.Name,
		URL:    req.URL,
		Events: req.Events,
	})
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ep)
}

func (h *EndpointHandler) List(w http.ResponseWriter, r *http.Request) {
	eps, err := h.registry.List(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list endpoints")
		return
	}
	if eps == nil {
		eps = []models.Endpoint{}
	}
	writeJSON(w, http.StatusOK, eps)
}

func (h *EndpointHandler) Get(w http.ResponseWriter, r *http.Request) {
	ep, err := h.registry.Get(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

type updateEndpointRequest struct {
	Name   *string  `json:"name"`
	URL    *string  `json:"url"`
	Events []string `json:"events"`
	Active *bool    `json:"active"`
}

func (h *EndpointHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ep, err := h.registry.Update(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"), registry.UpdateInput{
		Name:   req.Name,
		URL:    req.URL,
		Events: req.Events,
		Active: req.Active,
	})
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ep)
}

func (h *EndpointHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EndpointHandler) RegenerateSecret(w http.ResponseWriter, r *http.Request) {
	secret, err := h.registry.RegenerateSecret(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	// The secret is returned exactly once here; capture it or regenerate.
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "secret regenerated successfully",
		"secret":  secret,
	})
}

type testEndpointRequest struct {
	Event string `json:"event"`
}

// Test fires a synthetic one-shot delivery and reports the result
// directly, bypassing the record/retry pipeline.
func (h *EndpointHandler) Test(w http.ResponseWriter, r *http.Request) {
	ep, err := h.registry.Get(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	req := testEndpointRequest{Event: "application.created"}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result := h.testSender.SendTest(r.Context(), ep, req.Event)
	if result.Success {
		writeJSON(w, http.StatusOK, result)
		return
	}
	writeJSON(w, http.StatusBadRequest, result)
}

func (h *EndpointHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ep, err := h.registry.Get(r.Context(), UserFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	stats, err := h.store.GetEndpointStats(r.Context(), ep.ID, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get endpoint stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
