// Package notify delivers best-effort notifications to staff members.
package notify

import (
	"context"
	"encoding/json"
	"time"
)

// Notifier delivers one notification. Implementations must not retry indefinitely;
// callers treat delivery as fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, recipient, kind string, payload any) error
}

// Message is the wire form published by the broker-backed notifiers.
type Message struct {
	Recipient string    `json:"recipient"`
	Kind      string    `json:"kind"`
	Payload   any       `json:"payload"`
	SentAt    time.Time `json:"sent_at"`
}

func encode(recipient, kind string, payload any) ([]byte, error) {
	return json.Marshal(Message{
		Recipient: recipient,
		Kind:      kind,
		Payload:   payload,
		SentAt:    time.Now().UTC(),
	})
}

func subject(prefix, recipient string) string {
	if prefix == "" {
		prefix = "notifications"
	}
	return prefix + "." + recipient
}
