package notify

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSNotifier publishes notifications on a NATS subject per recipient.
type NATSNotifier struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSNotifier creates a NATSNotifier publishing to "<prefix>.<recipient>".
func NewNATSNotifier(conn *nats.Conn, prefix string) *NATSNotifier {
	return &NATSNotifier{conn: conn, prefix: prefix}
}

func (n *NATSNotifier) Notify(ctx context.Context, recipient, kind string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(recipient, kind, payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.conn.Publish(subject(n.prefix, recipient), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}
