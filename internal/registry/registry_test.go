package registry_test

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shohag/hookline/internal/models"
	"github.com/shohag/hookline/internal/registry"
	"github.com/shohag/hookline/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*registry.Registry, storage.Storage) {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "hookline.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { store.Close() })
	return registry.New(store, zerolog.Nop()), store
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("generates a 64-char hex secret", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		ep, err := reg.Create(ctx, registry.CreateInput{
			UserID: "user-1",
			Name:   "My Webhook",
			URL:    "https://example.com/webhook",
			Events: []string{"application.created"},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, ep.ID)
		assert.True(t, ep.Active)
		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), ep.Secret)
	})

	t.Run("keeps a supplied secret", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		ep, err := reg.Create(ctx, registry.CreateInput{
			UserID: "user-1",
			URL:    "https://example.com/webhook",
			Secret: "preset-secret",
			Events: []string{"company.created"},
		})
		require.NoError(t, err)
		assert.Equal(t, "preset-secret", ep.Secret)
	})

	t.Run("rejects invalid url", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		for _, url := range []string{"", "not-a-url", "ftp://example.com", "http://"} {
			_, err := reg.Create(ctx, registry.CreateInput{
				UserID: "user-1",
				URL:    url,
				Events: []string{"application.created"},
			})
			assert.ErrorIs(t, err, registry.ErrValidation, "url %q", url)
		}
	})

	t.Run("rejects empty event set", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		_, err := reg.Create(ctx, registry.CreateInput{
			UserID: "user-1",
			URL:    "https://example.com/webhook",
		})
		assert.ErrorIs(t, err, registry.ErrValidation)
	})

	t.Run("rejects unknown event names", func(t *testing.T) {
		reg, _ := newTestRegistry(t)

		_, err := reg.Create(ctx, registry.CreateInput{
			UserID: "user-1",
			URL:    "https://example.com/webhook",
			Events: []string{"application.created", "cat.meowed"},
		})
		assert.ErrorIs(t, err, registry.ErrValidation)
	})
}

func TestOwnerScoping(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	ep, err := reg.Create(ctx, registry.CreateInput{
		UserID: "user-1",
		URL:    "https://example.com/webhook",
		Events: []string{"application.created"},
	})
	require.NoError(t, err)

	t.Run("owner can get", func(t *testing.T) {
		got, err := reg.Get(ctx, "user-1", ep.ID)
		require.NoError(t, err)
		assert.Equal(t, ep.ID, got.ID)
	})

	t.Run("other user gets not found", func(t *testing.T) {
		_, err := reg.Get(ctx, "user-2", ep.ID)
		assert.ErrorIs(t, err, registry.ErrNotFound)
	})

	t.Run("other user cannot delete", func(t *testing.T) {
		err := reg.Delete(ctx, "user-2", ep.ID)
		assert.ErrorIs(t, err, registry.ErrNotFound)
	})
}

func TestRegenerateSecret(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	ep, err := reg.Create(ctx, registry.CreateInput{
		UserID: "user-1",
		URL:    "https://example.com/webhook",
		Events: []string{"application.created"},
	})
	require.NoError(t, err)

	secret, err := reg.RegenerateSecret(ctx, "user-1", ep.ID)
	require.NoError(t, err)
	assert.NotEqual(t, ep.Secret, secret)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), secret)

	got, err := reg.Get(ctx, "user-1", ep.ID)
	require.NoError(t, err)
	assert.Equal(t, secret, got.Secret)
}

func TestListActiveSubscribers(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	ep, err := reg.Create(ctx, registry.CreateInput{
		UserID: "user-1",
		URL:    "https://example.com/webhook",
		Events: []string{"application.created"},
	})
	require.NoError(t, err)

	t.Run("returns subscribed active endpoint", func(t *testing.T) {
		eps, err := reg.ListActiveSubscribers(ctx, "user-1", "application.created")
		require.NoError(t, err)
		require.Len(t, eps, 1)
		assert.Equal(t, ep.ID, eps[0].ID)
	})

	t.Run("never returns for unsubscribed events", func(t *testing.T) {
		eps, err := reg.ListActiveSubscribers(ctx, "user-1", "interview.completed")
		require.NoError(t, err)
		assert.Empty(t, eps)
	})

	t.Run("inactive endpoint is excluded", func(t *testing.T) {
		inactive := false
		_, err := reg.Update(ctx, "user-1", ep.ID, registry.UpdateInput{Active: &inactive})
		require.NoError(t, err)

		eps, err := reg.ListActiveSubscribers(ctx, "user-1", "application.created")
		require.NoError(t, err)
		assert.Empty(t, eps)

		active := true
		_, err = reg.Update(ctx, "user-1", ep.ID, registry.UpdateInput{Active: &active})
		require.NoError(t, err)
	})

	t.Run("failure threshold soft-disables", func(t *testing.T) {
		for i := 0; i < models.FailureThreshold; i++ {
			require.NoError(t, reg.RecordFailure(ctx, ep.ID))
		}

		eps, err := reg.ListActiveSubscribers(ctx, "user-1", "application.created")
		require.NoError(t, err)
		assert.Empty(t, eps, "endpoint at threshold must not receive traffic even while active")

		// A success resets the counter and restores dispatch.
		require.NoError(t, reg.RecordSuccess(ctx, ep.ID))
		eps, err = reg.ListActiveSubscribers(ctx, "user-1", "application.created")
		require.NoError(t, err)
		assert.Len(t, eps, 1)
	})
}
