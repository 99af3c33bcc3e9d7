package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shohag/hookline/internal/models"
	"github.com/shohag/hookline/internal/registry"
	"github.com/shohag/hookline/internal/storage"
)

type DeliveryHandler struct {
	store    storage.Storage
	registry *registry.Registry
	queue    Enqueuer
}

// Enqueuer is the slice of the work queue the API needs for manual
// retries.
type Enqueuer interface {
	Enqueue(deliveryID string)
}

func NewDeliveryHandler(store storage.Storage, reg *registry.Registry, queue Enqueuer) *DeliveryHandler {
	return &DeliveryHandler{store: store, registry: reg, queue: queue}
}

func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	deliveries, err := h.store.ListDeliveries(r.Context(), storage.DeliveryFilter{
		UserID:     UserFromContext(r.Context()),
		EndpointID: q.Get("endpoint"),
		Status:     models.DeliveryStatus(q.Get("status")),
		Event:      q.Get("event"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}
	if deliveries == nil {
		deliveries = []models.Delivery{}
	}
	writeJSON(w, http.StatusOK, deliveries)
}

func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.getOwned(r)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Retry manually re-triggers a delivery: attempt_count back to zero,
// status to pending, then re-enqueued. Successful deliveries are rejected
// outright; a delivery a worker currently holds a claim on loses the reset
// race and answers 409.
func (h *DeliveryHandler) Retry(w http.ResponseWriter, r *http.Request) {
	d, err := h.getOwned(r)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	if d.Status == models.DeliverySuccess {
		writeError(w, http.StatusBadRequest, "cannot retry successful delivery")
		return
	}

	reset, err := h.store.ResetDelivery(r.Context(), d.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset delivery")
		return
	}
	if !reset {
		writeError(w, http.StatusConflict, "delivery is not retryable")
		return
	}

	h.queue.Enqueue(d.ID)

	writeJSON(w, http.StatusOK, map[string]string{
		"message":     "delivery queued for retry",
		"delivery_id": d.ID,
	})
}

// getOwned loads the delivery and verifies the caller owns its endpoint.
func (h *DeliveryHandler) getOwned(r *http.Request) (*models.Delivery, error) {
	d, err := h.store.GetDelivery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, registry.ErrNotFound
	}
	if _, err := h.registry.Get(r.Context(), UserFromContext(r.Context()), d.EndpointID); err != nil {
		return nil, registry.ErrNotFound
	}
	return d, nil
}
