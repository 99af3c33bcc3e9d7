package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shohag/hookline/internal/models"
	"github.com/shohag/hookline/internal/registry"
	"github.com/shohag/hookline/internal/storage"
)

// Worker executes one delivery attempt: claim the record, perform the
// signed POST, and apply the retry or terminal-failure policy. Process is
// safe under at-least-once queue semantics: a delivery that is already
// terminal or already claimed is a no-op.
type Worker struct {
	store       storage.Storage
	registry    *registry.Registry
	sender      *Sender
	queue       *Queue
	retryDelays []time.Duration
	log         zerolog.Logger
}

func NewWorker(store storage.Storage, reg *registry.Registry, sender *Sender, queue *Queue, retryDelays []time.Duration, log zerolog.Logger) *Worker {
	if len(retryDelays) == 0 {
		retryDelays = DefaultRetryDelays
	}
	return &Worker{
		store:       store,
		registry:    reg,
		sender:      sender,
		queue:       queue,
		retryDelays: retryDelays,
		log:         log,
	}
}

// Process never returns an error to the queue: every outcome, including
// unexpected ones, is recorded on the delivery so the queue's own retry
// mechanism cannot stack on top of the delivery retry counting.
func (w *Worker) Process(ctx context.Context, deliveryID string) {
	d, err := w.store.GetDelivery(ctx, deliveryID)
	if err != nil || d == nil {
		w.log.Error().Err(err).Str("delivery_id", deliveryID).Msg("delivery not found")
		return
	}

	if d.Status == models.DeliverySuccess {
		w.log.Debug().Str("delivery_id", d.ID).Msg("already delivered, skipping")
		return
	}

	// Compare-and-swap claim: only one of two racing workers proceeds.
	claimed, err := w.store.ClaimDelivery(ctx, d.ID)
	if err != nil {
		w.log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to claim delivery")
		return
	}
	if !claimed {
		w.log.Debug().Str("delivery_id", d.ID).Msg("delivery claimed elsewhere, skipping")
		return
	}

	// The pre-claim snapshot may be stale: another worker can finish an
	// attempt between the read above and winning the claim. Re-read so the
	// attempt counting below starts from the current row.
	d, err = w.store.GetDelivery(ctx, deliveryID)
	if err != nil || d == nil {
		w.log.Error().Err(err).Str("delivery_id", deliveryID).Msg("delivery vanished after claim")
		return
	}

	ep, err := w.store.GetEndpoint(ctx, d.EndpointID)
	if err != nil || ep == nil {
		d.Status = models.DeliveryFailed
		d.ErrorMessage = "Endpoint no longer exists"
		w.finish(ctx, d)
		return
	}

	if !ep.Active {
		// A disabled endpoint is a non-retryable short-circuit; the
		// failure counter is left alone.
		d.Status = models.DeliveryFailed
		d.ErrorMessage = "Endpoint is disabled"
		w.finish(ctx, d)
		w.log.Info().Str("delivery_id", d.ID).Msg("delivery skipped, endpoint disabled")
		return
	}

	d.AttemptCount++

	result := w.sender.Send(ctx, ep, d.ID, d.Event, d.Payload)

	if result.StatusCode != 0 {
		code := result.StatusCode
		d.ResponseStatusCode = &code
		d.ResponseBody = result.ResponseBody
	}

	if result.Success() {
		now := time.Now().UTC()
		d.Status = models.DeliverySuccess
		d.DeliveredAt = &now
		d.NextRetryAt = nil
		d.ErrorMessage = ""
		w.finish(ctx, d)

		if err := w.registry.RecordSuccess(ctx, ep.ID); err != nil {
			w.log.Error().Err(err).Str("endpoint_id", ep.ID).Msg("failed to record endpoint success")
		}

		w.log.Info().
			Str("delivery_id", d.ID).
			Int("status_code", result.StatusCode).
			Int64("latency_ms", result.LatencyMs).
			Msg("delivery succeeded")
		return
	}

	if result.Error != "" {
		d.ErrorMessage = result.Error
	} else {
		body := result.ResponseBody
		if len(body) > 200 {
			body = body[:200]
		}
		d.ErrorMessage = fmt.Sprintf("HTTP %d: %s", result.StatusCode, body)
	}

	w.handleFailure(ctx, d, ep)
}

func (w *Worker) handleFailure(ctx context.Context, d *models.Delivery, ep *models.Endpoint) {
	if d.AttemptCount < d.MaxAttempts {
		delay := NextRetryDelay(d.AttemptCount, w.retryDelays)
		next := time.Now().UTC().Add(delay)

		d.Status = models.DeliveryRetrying
		d.NextRetryAt = &next
		w.finish(ctx, d)

		w.queue.EnqueueAfter(d.ID, delay)

		w.log.Warn().
			Str("delivery_id", d.ID).
			Int("attempt", d.AttemptCount).
			Int("max_attempts", d.MaxAttempts).
			Dur("retry_in", delay).
			Str("error", d.ErrorMessage).
			Msg("delivery failed, retry scheduled")
		return
	}

	d.Status = models.DeliveryFailed
	d.NextRetryAt = nil
	w.finish(ctx, d)

	if err := w.registry.RecordFailure(ctx, ep.ID); err != nil {
		w.log.Error().Err(err).Str("endpoint_id", ep.ID).Msg("failed to record endpoint failure")
	}

	w.log.Error().
		Str("delivery_id", d.ID).
		Int("attempts", d.AttemptCount).
		Str("error", d.ErrorMessage).
		Msg("delivery permanently failed")
}

func (w *Worker) finish(ctx context.Context, d *models.Delivery) {
	if err := w.store.FinishDelivery(ctx, d); err != nil {
		w.log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to update delivery")
	}
}
