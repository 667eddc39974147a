// Package bus defines the pub/sub bus adapter: JSON message channels
// plus a TTL'd key-value side for presence entries, with a Redis-backed
// production implementation and an in-memory fake for tests and
// single-instance development.
package bus

import (
	"context"
	"time"
)

// Handler processes one published message's raw JSON payload.
type Handler func(payload string)

// Bus is the pub/sub + presence collaborator the core consumes.
type Bus interface {
	Publish(ctx context.Context, channel, payload string) error

	// Subscribe registers handler for channel. The room manager's
	// subscription registry calls Subscribe at most once per channel, so
	// implementations don't need to deduplicate.
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Unsubscribe(ctx context.Context, channel string) error

	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}
