package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes notifications on a Redis pub/sub channel per recipient.
type RedisNotifier struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisNotifier creates a RedisNotifier publishing to "<prefix>.<recipient>".
func NewRedisNotifier(client redis.UniversalClient, prefix string) *RedisNotifier {
	return &RedisNotifier{client: client, prefix: prefix}
}

func (n *RedisNotifier) Notify(ctx context.Context, recipient, kind string, payload any) error {
	data, err := encode(recipient, kind, payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.client.Publish(ctx, subject(n.prefix, recipient), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
