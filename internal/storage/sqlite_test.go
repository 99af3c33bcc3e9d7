package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shohag/hookline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "hookline.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func testEndpoint(userID string) *models.Endpoint {
	now := time.Now().UTC()
	return &models.Endpoint{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      "Test Endpoint",
		URL:       "https://example.com/hooks",
		Secret:    models.NewSecret(),
		Events:    []string{"application.created"},
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testDelivery(endpointID string) *models.Delivery {
	return &models.Delivery{
		ID:          uuid.New().String(),
		EndpointID:  endpointID,
		Event:       "application.created",
		Payload:     json.RawMessage(`{"event":"application.created","timestamp":"2026-08-30T00:00:00Z","data":{}}`),
		Status:      models.DeliveryPending,
		MaxAttempts: models.DefaultMaxAttempts,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestEndpointRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ep := testEndpoint("user-1")
	require.NoError(t, store.CreateEndpoint(ctx, ep))

	got, err := store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ep.ID, got.ID)
	assert.Equal(t, ep.Secret, got.Secret)
	assert.Equal(t, []string{"application.created"}, got.Events)
	assert.True(t, got.Active)

	t.Run("missing endpoint returns nil", func(t *testing.T) {
		got, err := store.GetEndpoint(ctx, uuid.New().String())
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestListSubscribedEndpoints(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	subscribed := testEndpoint("user-1")
	require.NoError(t, store.CreateEndpoint(ctx, subscribed))

	inactive := testEndpoint("user-1")
	inactive.Active = false
	require.NoError(t, store.CreateEndpoint(ctx, inactive))

	failing := testEndpoint("user-1")
	failing.FailureCount = models.FailureThreshold
	require.NoError(t, store.CreateEndpoint(ctx, failing))

	otherEvent := testEndpoint("user-1")
	otherEvent.Events = []string{"company.created"}
	require.NoError(t, store.CreateEndpoint(ctx, otherEvent))

	otherUser := testEndpoint("user-2")
	require.NoError(t, store.CreateEndpoint(ctx, otherUser))

	eps, err := store.ListSubscribedEndpoints(ctx, "user-1", "application.created")
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, subscribed.ID, eps[0].ID)
}

func TestEndpointFailureCounters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ep := testEndpoint("user-1")
	require.NoError(t, store.CreateEndpoint(ctx, ep))

	now := time.Now().UTC()
	require.NoError(t, store.IncrementEndpointFailures(ctx, ep.ID, now))
	require.NoError(t, store.IncrementEndpointFailures(ctx, ep.ID, now))

	got, err := store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.FailureCount)
	require.NotNil(t, got.LastFailureAt)

	require.NoError(t, store.ResetEndpointFailures(ctx, ep.ID, now))
	got, err = store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.FailureCount)
	require.NotNil(t, got.LastSuccessAt)
}

func TestClaimDelivery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ep := testEndpoint("user-1")
	require.NoError(t, store.CreateEndpoint(ctx, ep))

	t.Run("only one claimant wins", func(t *testing.T) {
		d := testDelivery(ep.ID)
		require.NoError(t, store.CreateDelivery(ctx, d))

		first, err := store.ClaimDelivery(ctx, d.ID)
		require.NoError(t, err)
		assert.True(t, first)

		second, err := store.ClaimDelivery(ctx, d.ID)
		require.NoError(t, err)
		assert.False(t, second)

		got, err := store.GetDelivery(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryInProgress, got.Status)
	})

	t.Run("retrying is claimable", func(t *testing.T) {
		d := testDelivery(ep.ID)
		d.Status = models.DeliveryRetrying
		require.NoError(t, store.CreateDelivery(ctx, d))
		next := time.Now().UTC()
		d.NextRetryAt = &next
		require.NoError(t, store.FinishDelivery(ctx, d))

		claimed, err := store.ClaimDelivery(ctx, d.ID)
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("terminal states are not claimable", func(t *testing.T) {
		d := testDelivery(ep.ID)
		require.NoError(t, store.CreateDelivery(ctx, d))
		d.Status = models.DeliveryFailed
		require.NoError(t, store.FinishDelivery(ctx, d))

		claimed, err := store.ClaimDelivery(ctx, d.ID)
		require.NoError(t, err)
		assert.False(t, claimed)
	})
}

func TestResetDelivery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ep := testEndpoint("user-1")
	require.NoError(t, store.CreateEndpoint(ctx, ep))

	t.Run("failed delivery is rearmed", func(t *testing.T) {
		d := testDelivery(ep.ID)
		require.NoError(t, store.CreateDelivery(ctx, d))
		d.Status = models.DeliveryFailed
		d.AttemptCount = 3
		d.ErrorMessage = "HTTP 500: boom"
		require.NoError(t, store.FinishDelivery(ctx, d))

		reset, err := store.ResetDelivery(ctx, d.ID)
		require.NoError(t, err)
		assert.True(t, reset)

		got, err := store.GetDelivery(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryPending, got.Status)
		assert.Equal(t, 0, got.AttemptCount)
		assert.Empty(t, got.ErrorMessage)
		assert.Nil(t, got.NextRetryAt)
	})

	t.Run("successful delivery is not rearmed", func(t *testing.T) {
		d := testDelivery(ep.ID)
		require.NoError(t, store.CreateDelivery(ctx, d))
		now := time.Now().UTC()
		d.Status = models.DeliverySuccess
		d.DeliveredAt = &now
		require.NoError(t, store.FinishDelivery(ctx, d))

		reset, err := store.ResetDelivery(ctx, d.ID)
		require.NoError(t, err)
		assert.False(t, reset)
	})

	t.Run("in-flight delivery is not rearmed", func(t *testing.T) {
		d := testDelivery(ep.ID)
		require.NoError(t, store.CreateDelivery(ctx, d))
		claimed, err := store.ClaimDelivery(ctx, d.ID)
		require.NoError(t, err)
		require.True(t, claimed)

		// Rearming a claimed delivery would hand it to a second worker
		// while the first is still mid-POST.
		reset, err := store.ResetDelivery(ctx, d.ID)
		require.NoError(t, err)
		assert.False(t, reset)

		second, err := store.ClaimDelivery(ctx, d.ID)
		require.NoError(t, err)
		assert.False(t, second)

		got, err := store.GetDelivery(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryInProgress, got.Status)
	})
}

func TestSweeperQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ep := testEndpoint("user-1")
	require.NoError(t, store.CreateEndpoint(ctx, ep))

	due := testDelivery(ep.ID)
	require.NoError(t, store.CreateDelivery(ctx, due))
	past := now.Add(-time.Minute)
	due.Status = models.DeliveryRetrying
	due.NextRetryAt = &past
	require.NoError(t, store.FinishDelivery(ctx, due))

	notDue := testDelivery(ep.ID)
	require.NoError(t, store.CreateDelivery(ctx, notDue))
	future := now.Add(time.Hour)
	notDue.Status = models.DeliveryRetrying
	notDue.NextRetryAt = &future
	require.NoError(t, store.FinishDelivery(ctx, notDue))

	t.Run("due retries only", func(t *testing.T) {
		ids, err := store.ListDueRetries(ctx, now, 100)
		require.NoError(t, err)
		assert.Equal(t, []string{due.ID}, ids)
	})

	t.Run("stale pending", func(t *testing.T) {
		stale := testDelivery(ep.ID)
		stale.CreatedAt = now.Add(-10 * time.Minute)
		require.NoError(t, store.CreateDelivery(ctx, stale))

		fresh := testDelivery(ep.ID)
		require.NoError(t, store.CreateDelivery(ctx, fresh))

		ids, err := store.ListStalePending(ctx, now.Add(-time.Minute), 100)
		require.NoError(t, err)
		assert.Equal(t, []string{stale.ID}, ids)
	})

	t.Run("stale claims are released", func(t *testing.T) {
		stuck := testDelivery(ep.ID)
		stuck.CreatedAt = now.Add(-time.Hour)
		require.NoError(t, store.CreateDelivery(ctx, stuck))
		claimed, err := store.ClaimDelivery(ctx, stuck.ID)
		require.NoError(t, err)
		require.True(t, claimed)

		// The fresh claim is inside the TTL; nothing to release yet.
		released, err := store.ReleaseStaleClaims(ctx, now.Add(-10*time.Minute))
		require.NoError(t, err)
		assert.Zero(t, released)

		released, err = store.ReleaseStaleClaims(ctx, now.Add(time.Minute))
		require.NoError(t, err)
		assert.EqualValues(t, 1, released)

		got, err := store.GetDelivery(ctx, stuck.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryPending, got.Status)
	})
}

func TestDeleteTerminalBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ep := testEndpoint("user-1")
	require.NoError(t, store.CreateEndpoint(ctx, ep))

	oldFailed := testDelivery(ep.ID)
	oldFailed.CreatedAt = now.Add(-31 * 24 * time.Hour)
	require.NoError(t, store.CreateDelivery(ctx, oldFailed))
	oldFailed.Status = models.DeliveryFailed
	require.NoError(t, store.FinishDelivery(ctx, oldFailed))

	oldRetrying := testDelivery(ep.ID)
	oldRetrying.CreatedAt = now.Add(-60 * 24 * time.Hour)
	require.NoError(t, store.CreateDelivery(ctx, oldRetrying))
	oldRetrying.Status = models.DeliveryRetrying
	next := now.Add(time.Minute)
	oldRetrying.NextRetryAt = &next
	require.NoError(t, store.FinishDelivery(ctx, oldRetrying))

	recentSuccess := testDelivery(ep.ID)
	require.NoError(t, store.CreateDelivery(ctx, recentSuccess))
	recentSuccess.Status = models.DeliverySuccess
	recentSuccess.DeliveredAt = &now
	require.NoError(t, store.FinishDelivery(ctx, recentSuccess))

	deleted, err := store.DeleteTerminalBefore(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	gone, err := store.GetDelivery(ctx, oldFailed.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := store.GetDelivery(ctx, oldRetrying.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, models.DeliveryRetrying, kept.Status)
}

func TestDeliveriesCascadeWithEndpoint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ep := testEndpoint("user-1")
	require.NoError(t, store.CreateEndpoint(ctx, ep))
	d := testDelivery(ep.ID)
	require.NoError(t, store.CreateDelivery(ctx, d))

	require.NoError(t, store.DeleteEndpoint(ctx, ep.ID))

	got, err := store.GetDelivery(ctx, d.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListDeliveriesFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ep1 := testEndpoint("user-1")
	require.NoError(t, store.CreateEndpoint(ctx, ep1))
	ep2 := testEndpoint("user-1")
	require.NoError(t, store.CreateEndpoint(ctx, ep2))

	d1 := testDelivery(ep1.ID)
	require.NoError(t, store.CreateDelivery(ctx, d1))

	d2 := testDelivery(ep2.ID)
	d2.Event = "company.created"
	require.NoError(t, store.CreateDelivery(ctx, d2))
	d2.Status = models.DeliveryFailed
	require.NoError(t, store.FinishDelivery(ctx, d2))

	t.Run("by user", func(t *testing.T) {
		ds, err := store.ListDeliveries(ctx, DeliveryFilter{UserID: "user-1"})
		require.NoError(t, err)
		assert.Len(t, ds, 2)

		ds, err = store.ListDeliveries(ctx, DeliveryFilter{UserID: "user-2"})
		require.NoError(t, err)
		assert.Empty(t, ds)
	})

	t.Run("by endpoint", func(t *testing.T) {
		ds, err := store.ListDeliveries(ctx, DeliveryFilter{UserID: "user-1", EndpointID: ep1.ID})
		require.NoError(t, err)
		require.Len(t, ds, 1)
		assert.Equal(t, d1.ID, ds[0].ID)
	})

	t.Run("by status", func(t *testing.T) {
		ds, err := store.ListDeliveries(ctx, DeliveryFilter{UserID: "user-1", Status: models.DeliveryFailed})
		require.NoError(t, err)
		require.Len(t, ds, 1)
		assert.Equal(t, d2.ID, ds[0].ID)
	})

	t.Run("by event", func(t *testing.T) {
		ds, err := store.ListDeliveries(ctx, DeliveryFilter{UserID: "user-1", Event: "company.created"})
		require.NoError(t, err)
		require.Len(t, ds, 1)
		assert.Equal(t, d2.ID, ds[0].ID)
	})
}
