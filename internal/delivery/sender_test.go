package delivery_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shohag/hookline/internal/delivery"
	"github.com/shohag/hookline/internal/models"
	"github.com/shohag/hookline/internal/signing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	ctx := context.Background()
	payload := []byte(`{"event":"application.created","timestamp":"2026-08-30T00:00:00Z","data":{"id":1}}`)

	t.Run("signed request with webhook headers", func(t *testing.T) {
		var gotBody []byte
		var gotHeader http.Header

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotBody, _ = io.ReadAll(r.Body)
			gotHeader = r.Header.Clone()
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`ok`))
		}))
		defer srv.Close()

		ep := &models.Endpoint{ID: "ep-1", URL: srv.URL, Secret: "test-secret"}
		sender := delivery.NewSender(5 * time.Second)

		res := sender.Send(ctx, ep, "dlv-1", "application.created", payload)

		require.Empty(t, res.Error)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "ok", res.ResponseBody)
		assert.Equal(t, payload, gotBody)

		assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
		assert.Equal(t, "Hookline-Webhook/1.0", gotHeader.Get("User-Agent"))
		assert.Equal(t, "application.created", gotHeader.Get("X-Webhook-Event"))
		assert.Equal(t, "dlv-1", gotHeader.Get("X-Webhook-Delivery-ID"))

		ts, err := strconv.ParseInt(gotHeader.Get("X-Webhook-Timestamp"), 10, 64)
		require.NoError(t, err)
		assert.InDelta(t, time.Now().Unix(), ts, 5)

		sig := gotHeader.Get("X-Webhook-Signature")
		require.True(t, strings.HasPrefix(sig, "sha256="))
		assert.True(t, signing.Verify("test-secret", gotBody, strings.TrimPrefix(sig, "sha256=")))
	})

	t.Run("response body is truncated", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(strings.Repeat("x", 5000)))
		}))
		defer srv.Close()

		sender := delivery.NewSender(5 * time.Second)
		res := sender.Send(ctx, &models.Endpoint{URL: srv.URL, Secret: "s"}, "dlv-1", "company.created", payload)

		require.Empty(t, res.Error)
		assert.Len(t, res.ResponseBody, 1000)
	})

	t.Run("transport error lands in the result", func(t *testing.T) {
		sender := delivery.NewSender(time.Second)
		res := sender.Send(ctx, &models.Endpoint{URL: "http://127.0.0.1:1", Secret: "s"}, "dlv-1", "company.created", payload)

		assert.NotEmpty(t, res.Error)
		assert.False(t, res.Success())
	})
}

func TestSendTest(t *testing.T) {
	ctx := context.Background()

	t.Run("reports success and status code", func(t *testing.T) {
		var gotEvent string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotEvent = r.Header.Get("X-Webhook-Event")
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		sender := delivery.NewSender(5 * time.Second)
		res := sender.SendTest(ctx, &models.Endpoint{ID: "ep-1", Name: "Test", URL: srv.URL, Secret: "s"}, "application.created")

		assert.True(t, res.Success)
		assert.Equal(t, http.StatusNoContent, res.StatusCode)
		assert.Equal(t, "application.created", gotEvent)
	})

	t.Run("reports failure without retrying", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		sender := delivery.NewSender(5 * time.Second)
		res := sender.SendTest(ctx, &models.Endpoint{URL: srv.URL, Secret: "s"}, "application.created")

		assert.False(t, res.Success)
		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
		assert.Equal(t, 1, calls)
	})
}
