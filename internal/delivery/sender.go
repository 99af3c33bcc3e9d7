package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shohag/hookline/internal/models"
	"github.com/shohag/hookline/internal/signing"
)

// UserAgent identifies outbound webhook requests.
const UserAgent = "Hookline-Webhook/1.0"

// maxStoredBody caps how much of an endpoint's response is kept on the
// delivery record.
const maxStoredBody = 1000

type SendResult struct {
	StatusCode   int
	ResponseBody string
	LatencyMs    int64
	Error        string
}

func (r *SendResult) Success() bool {
	return r.Error == "" && IsSuccess(r.StatusCode)
}

// Sender performs the signed HTTP POST to an endpoint. The client and its
// timeout are fixed at construction; there is no shared global client.
type Sender struct {
	client *http.Client
}

func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send issues exactly one POST of payload to the endpoint, signed with its
// secret. Transport errors are returned in the result, never as a Go
// error, so the caller applies one failure policy for every outcome.
func (s *Sender) Send(ctx context.Context, ep *models.Endpoint, deliveryID, event string, payload []byte) *SendResult {
	start := time.Now()

	signature := signing.Sign(ep.Secret, payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return &SendResult{
			Error:     fmt.Sprintf("failed to create request: %v", err),
			LatencyMs: time.Since(start).Milliseconds(),
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("X-Webhook-Event", event)
	req.Header.Set("X-Webhook-Signature", "sha256="+signature)
	req.Header.Set("X-Webhook-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	req.Header.Set("X-Webhook-Delivery-ID", deliveryID)

	resp, err := s.client.Do(req)
	if err != nil {
		return &SendResult{
			Error:     fmt.Sprintf("request failed: %v", err),
			LatencyMs: time.Since(start).Milliseconds(),
		}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxStoredBody))

	return &SendResult{
		StatusCode:   resp.StatusCode,
		ResponseBody: string(body),
		LatencyMs:    time.Since(start).Milliseconds(),
	}
}

// TestResult is reported directly to the caller of a verification ping.
type TestResult struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code,omitempty"`
	Response   string `json:"response,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SendTest fires a synthetic one-shot delivery to verify endpoint
// configuration. It bypasses the record/retry pipeline entirely.
func (s *Sender) SendTest(ctx context.Context, ep *models.Endpoint, event string) *TestResult {
	payload, err := json.Marshal(models.Payload{
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data: map[string]any{
			"message":       "This is a test webhook from Hookline",
			"endpoint_id":   ep.ID,
			"endpoint_name": ep.Name,
		},
	})
	if err != nil {
		return &TestResult{Error: err.Error()}
	}

	res := s.Send(ctx, ep, "test", event, payload)
	if res.Error != "" {
		return &TestResult{Error: res.Error}
	}

	body := res.ResponseBody
	if len(body) > 500 {
		body = body[:500]
	}
	return &TestResult{
		Success:    IsSuccess(res.StatusCode),
		StatusCode: res.StatusCode,
		Response:   body,
	}
}
