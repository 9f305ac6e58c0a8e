package event

import "time"

const DLQType = "event.dlq"

// DeadLetter is the envelope published to the DLQ topic when an event is
// abandoned after exhausting its attempt ceiling.
type DeadLetter struct {
	Type      string `json:"type"`    // "event.dlq"
	Version   string `json:"version"` // schema version
	At        string `json:"at"`      // RFC3339 time the DLQ was emitted
	Reason    string `json:"reason"`  // human/debug text
	Attempt   int    `json:"attempt"` // attempt count when abandoned
	LastError string `json:"last_error,omitempty"`
	Task      Task   `json:"task"` // full task snapshot
}

func NewDeadLetter(t Task, attempt int, lastErr, reason string) DeadLetter {
	return DeadLetter{
		Type:      DLQType,
		Version:   "v1",
		At:        time.Now().Format(time.RFC3339Nano),
		Reason:    reason,
		Attempt:   attempt,
		LastError: lastErr,
		Task:      t,
	}
}
