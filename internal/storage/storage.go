package storage

import (
	"context"
	"time"

	"github.com/shohag/hookline/internal/models"
)

// DeliveryFilter narrows ListDeliveries. Zero values mean "no filter".
// UserID scopes results to deliveries whose endpoint belongs to that user.
type DeliveryFilter struct {
	UserID     string
	EndpointID string
	Status     models.DeliveryStatus
	Event      string
	Limit      int
	Offset     int
}

type Storage interface {
	// Endpoints
	CreateEndpoint(ctx context.Context, ep *models.Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error)
	ListEndpoints(ctx context.Context, userID string) ([]models.Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error
	UpdateEndpointSecret(ctx context.Context, id, secret string) error
	DeleteEndpoint(ctx context.Context, id string) error

	// ListSubscribedEndpoints returns endpoints owned by userID that are
	// active, below the failure threshold, and subscribed to event. This
	// predicate is the sole gate for dispatch.
	ListSubscribedEndpoints(ctx context.Context, userID, event string) ([]models.Endpoint, error)

	// ResetEndpointFailures zeroes failure_count and stamps
	// last_success_at; IncrementEndpointFailures bumps failure_count and
	// stamps last_failure_at. Both are single atomic statements, never
	// read-modify-write of a stale copy.
	ResetEndpointFailures(ctx context.Context, id string, now time.Time) error
	IncrementEndpointFailures(ctx context.Context, id string, now time.Time) error

	// Deliveries
	CreateDelivery(ctx context.Context, d *models.Delivery) error
	GetDelivery(ctx context.Context, id string) (*models.Delivery, error)
	ListDeliveries(ctx context.Context, f DeliveryFilter) ([]models.Delivery, error)

	// ClaimDelivery conditionally moves a delivery from pending/retrying
	// to in_progress and reports whether this caller won the claim.
	ClaimDelivery(ctx context.Context, id string) (bool, error)

	// FinishDelivery writes the outcome of a claimed delivery: status,
	// attempt count, response details and timing columns.
	FinishDelivery(ctx context.Context, d *models.Delivery) error

	// ResetDelivery rearms a failed, retrying, or pending delivery for
	// manual retry: status=pending, attempt_count=0, error cleared.
	// Successful and in_progress rows never qualify; reports whether the
	// row did.
	ResetDelivery(ctx context.Context, id string) (bool, error)

	// Sweeper queries.
	ListDueRetries(ctx context.Context, now time.Time, limit int) ([]string, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Stats
	GetStats(ctx context.Context, userID string) (*Stats, error)
	GetEndpointStats(ctx context.Context, endpointID string, since time.Time) (*EndpointStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

type Stats struct {
	TotalEndpoints  int64   `json:"total_endpoints"`
	ActiveEndpoints int64   `json:"active_endpoints"`
	TotalDeliveries int64   `json:"total_deliveries"`
	SuccessCount    int64   `json:"success_count"`
	FailedCount     int64   `json:"failed_count"`
	PendingCount    int64   `json:"pending_count"`
	SuccessRate     float64 `json:"success_rate"`
}

// EndpointStats is the recent delivery breakdown shown alongside an
// endpoint (last 24h by default).
type EndpointStats struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
}
