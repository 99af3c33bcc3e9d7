// Package registry owns the lifecycle of webhook endpoints: validation,
// secret management, and the selection predicate that gates dispatch.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shohag/hookline/internal/models"
	"github.com/shohag/hookline/internal/storage"
)

var (
	// ErrValidation marks caller input errors; the API layer maps it to
	// HTTP 400.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when an endpoint does not exist or belongs
	// to a different user.
	ErrNotFound = errors.New("endpoint not found")
)

type Registry struct {
	store storage.Storage
	log   zerolog.Logger
}

func New(store storage.Storage, log zerolog.Logger) *Registry {
	return &Registry{store: store, log: log}
}

type CreateInput struct {
	UserID string
	Name   string
	URL    string
	Secret string
	Events []string
}

// Create validates the input and stores a new endpoint. A fresh secret
// (32 random bytes, hex) is generated when none is supplied; the returned
// endpoint carries it so the caller can show it once.
func (r *Registry) Create(ctx context.Context, in CreateInput) (*models.Endpoint, error) {
	if err := validateURL(in.URL); err != nil {
		return nil, err
	}
	if err := validateEvents(in.Events); err != nil {
		return nil, err
	}

	secret := in.Secret
	if secret == "" {
		secret = models.NewSecret()
	}

	now := time.Now().UTC()
	ep := &models.Endpoint{
		ID:        uuid.New().String(),
		UserID:    in.UserID,
		Name:      in.Name,
		URL:       in.URL,
		Secret:    secret,
		Events:    in.Events,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := r.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, fmt.Errorf("creating endpoint: %w", err)
	}

	r.log.Info().Str("endpoint_id", ep.ID).Str("user_id", ep.UserID).Str("url", ep.URL).Msg("endpoint created")
	return ep, nil
}

// Get returns the endpoint only if it belongs to userID.
func (r *Registry) Get(ctx context.Context, userID, id string) (*models.Endpoint, error) {
	ep, err := r.store.GetEndpoint(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting endpoint: %w", err)
	}
	if ep == nil || ep.UserID != userID {
		return nil, ErrNotFound
	}
	return ep, nil
}

func (r *Registry) List(ctx context.Context, userID string) ([]models.Endpoint, error) {
	eps, err := r.store.ListEndpoints(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing endpoints: %w", err)
	}
	return eps, nil
}

type UpdateInput struct {
	Name   *string
	URL    *string
	Events []string
	Active *bool
}

func (r *Registry) Update(ctx context.Context, userID, id string, in UpdateInput) (*models.Endpoint, error) {
	ep, err := r.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		ep.Name = *in.Name
	}
	if in.URL != nil {
		if err := validateURL(*in.URL); err != nil {
			return nil, err
		}
		ep.URL = *in.URL
	}
	if in.Events != nil {
		if err := validateEvents(in.Events); err != nil {
			return nil, err
		}
		ep.Events = in.Events
	}
	if in.Active != nil {
		ep.Active = *in.Active
	}

	if err := r.store.UpdateEndpoint(ctx, ep); err != nil {
		return nil, fmt.Errorf("updating endpoint: %w", err)
	}
	return ep, nil
}

// Delete removes the endpoint; its deliveries cascade-delete with it.
func (r *Registry) Delete(ctx context.Context, userID, id string) error {
	if _, err := r.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := r.store.DeleteEndpoint(ctx, id); err != nil {
		return fmt.Errorf("deleting endpoint: %w", err)
	}
	r.log.Info().Str("endpoint_id", id).Msg("endpoint deleted")
	return nil
}

// RegenerateSecret replaces the endpoint's secret and returns the new one.
// In-flight deliveries signed with the old secret will fail verification on
// the receiver.
func (r *Registry) RegenerateSecret(ctx context.Context, userID, id string) (string, error) {
	if _, err := r.Get(ctx, userID, id); err != nil {
		return "", err
	}
	secret := models.NewSecret()
	if err := r.store.UpdateEndpointSecret(ctx, id, secret); err != nil {
		return "", fmt.Errorf("updating secret: %w", err)
	}
	r.log.Info().Str("endpoint_id", id).Msg("endpoint secret regenerated")
	return secret, nil
}

// ListActiveSubscribers is the sole gate for dispatch: endpoints owned by
// userID, active, below the failure threshold, and subscribed to event.
func (r *Registry) ListActiveSubscribers(ctx context.Context, userID, event string) ([]models.Endpoint, error) {
	return r.store.ListSubscribedEndpoints(ctx, userID, event)
}

// RecordSuccess resets the endpoint's consecutive-failure counter.
func (r *Registry) RecordSuccess(ctx context.Context, endpointID string) error {
	return r.store.ResetEndpointFailures(ctx, endpointID, time.Now().UTC())
}

// RecordFailure bumps the endpoint's consecutive-failure counter; at the
// threshold the endpoint self-excludes from future dispatch.
func (r *Registry) RecordFailure(ctx context.Context, endpointID string) error {
	return r.store.IncrementEndpointFailures(ctx, endpointID, time.Now().UTC())
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: url is required", ErrValidation)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be a valid HTTP or HTTPS URL", ErrValidation)
	}
	return nil
}

func validateEvents(events []string) error {
	if len(events) == 0 {
		return fmt.Errorf("%w: at least one event is required", ErrValidation)
	}
	for _, e := range events {
		if !models.KnownEvent(e) {
			return fmt.Errorf("%w: unknown event %q", ErrValidation, e)
		}
	}
	return nil
}
