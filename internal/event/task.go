package event

import "encoding/json"

// Task is the envelope published to NSQ for asynchronous processing of one
// classified event.
type Task struct {
	EventID      string            `json:"event_id"`
	AccountID    string            `json:"account_id,omitempty"`
	Platform     string            `json:"platform"`
	Kind         string            `json:"kind"`
	Priority     string            `json:"priority"`
	Value        json.RawMessage   `json:"value"` // raw change value as delivered
	Attempt      int               `json:"attempt"`
	ReceivedAt   string            `json:"received_at"`             // RFC3339
	TraceHeaders map[string]string `json:"trace_headers,omitempty"` // OTel trace propagation headers
}

// Notification is the envelope published to the notifications topic when an
// account's preferences ask to be told about an event.
type Notification struct {
	AccountID string `json:"account_id"`
	EventID   string `json:"event_id"`
	Kind      string `json:"kind"`
	Priority  string `json:"priority"`
	Summary   string `json:"summary"`
	At        string `json:"at"` // RFC3339
}
