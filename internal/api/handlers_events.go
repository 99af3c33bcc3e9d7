package api

import (
	"encoding/json"
	"net/http"

	"github.com/shohag/hookline/internal/dispatch"
	"github.com/shohag/hookline/internal/models"
)

type EventHandler struct {
	dispatcher *dispatch.Dispatcher
}

func NewEventHandler(disp *dispatch.Dispatcher) *EventHandler {
	return &EventHandler{dispatcher: disp}
}

// Catalog lists the closed set of dispatchable events.
func (h *EventHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": models.EventCatalog,
	})
}

type ingestEventRequest struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// Ingest is the explicit entry point for the surrounding system: business
// code reports a committed domain event here and fan-out happens
// asynchronously. The response never reflects delivery outcomes.
func (h *EventHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !models.KnownEvent(req.Event) {
		writeError(w, http.StatusBadRequest, "unknown event")
		return
	}

	h.dispatcher.Dispatch(r.Context(), req.Event, req.Data, UserFromContext(r.Context()))

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "event accepted",
		"event":   req.Event,
	})
}
