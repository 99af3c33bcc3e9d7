// Package dispatch fans domain events out to subscribed endpoints.
//
// Business code calls Dispatch at the point of commit; there is no implicit
// hook layer. Dispatch creates durable pending delivery records and hands
// them to the work queue, so callers never block on network I/O and never
// see a delivery error.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shohag/hookline/internal/models"
	"github.com/shohag/hookline/internal/registry"
	"github.com/shohag/hookline/internal/storage"
)

// Queue enqueues delivery IDs for asynchronous processing.
type Queue interface {
	Enqueue(deliveryID string)
}

type Dispatcher struct {
	store       storage.Storage
	registry    *registry.Registry
	queue       Queue
	maxAttempts int
	log         zerolog.Logger
}

func New(store storage.Storage, reg *registry.Registry, queue Queue, maxAttempts int, log zerolog.Logger) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = models.DefaultMaxAttempts
	}
	return &Dispatcher{
		store:       store,
		registry:    reg,
		queue:       queue,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Dispatch creates one pending delivery per active, subscribed endpoint of
// userID and enqueues each. The payload is marshaled exactly once; the
// stored bytes are what the worker later signs and POSTs.
//
// Dispatch never returns an error: a delivery problem must not abort the
// business operation that triggered the event, and one bad endpoint must
// not block fan-out to its siblings. Failures are logged and swallowed
// per endpoint.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, data map[string]any, userID string) {
	endpoints, err := d.registry.ListActiveSubscribers(ctx, userID, event)
	if err != nil {
		d.log.Error().Err(err).Str("event", event).Str("user_id", userID).Msg("failed to load subscribers")
		return
	}

	if len(endpoints) == 0 {
		return
	}

	payload, err := json.Marshal(models.Payload{
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	})
	if err != nil {
		d.log.Error().Err(err).Str("event", event).Msg("failed to marshal payload")
		return
	}

	for _, ep := range endpoints {
		delivery := &models.Delivery{
			ID:          uuid.New().String(),
			EndpointID:  ep.ID,
			Event:       event,
			Payload:     payload,
			Status:      models.DeliveryPending,
			MaxAttempts: d.maxAttempts,
			CreatedAt:   time.Now().UTC(),
		}

		// The record is created before the enqueue: if the process dies
		// in between, the retry sweeper picks the pending row back up.
		if err := d.store.CreateDelivery(ctx, delivery); err != nil {
			d.log.Error().Err(err).
				Str("event", event).
				Str("endpoint_id", ep.ID).
				Msg("failed to create delivery")
			continue
		}

		d.queue.Enqueue(delivery.ID)

		d.log.Info().
			Str("delivery_id", delivery.ID).
			Str("event", event).
			Str("endpoint_id", ep.ID).
			Msg("queued webhook delivery")
	}
}
