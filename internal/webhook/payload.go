package webhook

import (
	"encoding/json"
	"time"
)

// Payload is the envelope platforms deliver: one delivery can carry several
// entries, each with several field changes.
type Payload struct {
	Object string  `json:"object"` // e.g. "instagram"
	Entry  []Entry `json:"entry"`
}

// Entry is one account-scoped batch of changes.
type Entry struct {
	ID      string   `json:"id"`   // platform user id the entry belongs to
	Time    int64    `json:"time"` // unix seconds
	Changes []Change `json:"changes"`
}

// Change is a single field change notification. Value is kept raw: its shape
// varies per field and unknown fields are stored verbatim.
type Change struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// OccurredAt returns the entry timestamp, falling back to now for entries
// without one.
func (e Entry) OccurredAt() time.Time {
	if e.Time == 0 {
		return time.Now().UTC()
	}
	return time.Unix(e.Time, 0).UTC()
}

// ParsePayload decodes a raw delivery body.
func ParsePayload(body []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// VerifyChallenge implements the GET subscription handshake: the challenge is
// echoed back iff the mode is "subscribe" and the token matches.
func VerifyChallenge(mode, token, challenge, verifyToken string) (string, bool) {
	if mode != "subscribe" {
		return "", false
	}
	if verifyToken == "" || token != verifyToken {
		return "", false
	}
	return challenge, true
}
