package models

import (
	"encoding/json"
	"time"
)

type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "pending"
	DeliverySuccess  DeliveryStatus = "success"
	DeliveryRetrying DeliveryStatus = "retrying"
	DeliveryFailed   DeliveryStatus = "failed"

	// DeliveryInProgress marks a delivery claimed by a worker. Only one
	// worker can move a delivery from pending/retrying into this state,
	// which prevents two concurrent POSTs for one logical delivery.
	DeliveryInProgress DeliveryStatus = "in_progress"
)

// Terminal reports whether no further transitions occur from s.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliverySuccess || s == DeliveryFailed
}

const DefaultMaxAttempts = 3

// Delivery is one attempted-or-pending transmission of one event to one
// endpoint. Payload holds the exact JSON bytes that are signed and POSTed;
// it is marshaled once at dispatch time and never mutated afterwards.
type Delivery struct {
	ID                 string          `json:"id"`
	EndpointID         string          `json:"endpoint_id"`
	Event              string          `json:"event"`
	Payload            json.RawMessage `json:"payload"`
	Status             DeliveryStatus  `json:"status"`
	AttemptCount       int             `json:"attempt_count"`
	MaxAttempts        int             `json:"max_attempts"`
	ResponseStatusCode *int            `json:"response_status_code,omitempty"`
	ResponseBody       string          `json:"response_body,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	DeliveredAt        *time.Time      `json:"delivered_at,omitempty"`
	NextRetryAt        *time.Time      `json:"next_retry_at,omitempty"`
}

// Payload is the wire body sent to endpoints:
// {"event": "...", "timestamp": "<RFC3339>", "data": {...}}
type Payload struct {
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}
