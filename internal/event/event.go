package event

import (
	"encoding/json"
	"time"

	"github.com/pulsehook/pulsehook/internal/classify"
)

// Status is the processing state of a stored webhook event.
type Status string

const (
	StatusReceived   Status = "received"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
	// StatusAbandoned is the explicit terminal state for events whose attempt
	// ceiling was reached; they are visible to operators and swept to the DLQ.
	StatusAbandoned Status = "abandoned"
)

// Event is one classified webhook change persisted for processing.
type Event struct {
	ID            string            `json:"id"`
	AccountID     string            `json:"account_id,omitempty"`
	Platform      string            `json:"platform"`
	Kind          classify.Kind     `json:"kind"`
	Priority      classify.Priority `json:"priority"`
	Payload       json.RawMessage   `json:"payload"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Status        Status            `json:"status"`
	Attempts      int               `json:"attempts"`
	LastError     string            `json:"last_error,omitempty"`
	LastAttemptAt *time.Time        `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}
