package room

import (
	"context"
	"sync"

	"collabtext/internal/bus"
)

// subscriptionRegistry is the process-global set of channel names this
// instance currently has an active bus subscription on. Its own lock is
// distinct from any per-document lock so Ensure/Release never
// participates in document-level serialization.
type subscriptionRegistry struct {
	mu      sync.Mutex
	channel map[string]bool
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{channel: make(map[string]bool)}
}

// Ensure subscribes to channel via b if this instance isn't already
// subscribed, so joining twice yields exactly one subscription.
func (r *subscriptionRegistry) Ensure(ctx context.Context, b bus.Bus, channel string, handler bus.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel[channel] {
		return nil
	}
	if err := b.Subscribe(ctx, channel, handler); err != nil {
		return err
	}
	r.channel[channel] = true
	return nil
}

// Channels returns a snapshot of the currently subscribed channel names.
func (r *subscriptionRegistry) Channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.channel))
	for ch := range r.channel {
		out = append(out, ch)
	}
	return out
}

// Release unsubscribes from channel if currently subscribed.
func (r *subscriptionRegistry) Release(ctx context.Context, b bus.Bus, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.channel[channel] {
		return nil
	}
	if err := b.Unsubscribe(ctx, channel); err != nil {
		return err
	}
	delete(r.channel, channel)
	return nil
}
