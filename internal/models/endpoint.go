package models

import "time"

// Endpoint is a user-configured webhook destination. An endpoint whose
// FailureCount reaches FailureThreshold is excluded from new dispatch even
// while Active remains true (soft auto-disable).
type Endpoint struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	Secret        string     `json:"secret,omitempty"`
	Events        []string   `json:"events"`
	Active        bool       `json:"active"`
	FailureCount  int        `json:"failure_count"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// FailureThreshold is the consecutive terminal-failure count at which an
// endpoint stops receiving new dispatches.
const FailureThreshold = 10

func (e *Endpoint) Subscribed(event string) bool {
	for _, sub := range e.Events {
		if sub == event {
			return true
		}
	}
	return false
}
