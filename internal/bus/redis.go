package bus

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"collabtext/internal/apperr"
	"collabtext/internal/logging"
)

// Redis is the production Bus backed by go-redis/v9.
type Redis struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[string]*redis.PubSub
}

// NewRedis dials addr (host:port) with the given password/db index and
// pings it before returning.
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, apperr.Wrap(apperr.Transient, "connect to redis", err)
	}
	logging.WithComponent("bus").Info().Str("addr", addr).Msg("connected to redis")

	return &Redis{
		client: client,
		subs:   make(map[string]*redis.PubSub),
	}, nil
}

// Close releases the underlying client.
func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) Publish(ctx context.Context, channel, payload string) error {
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return apperr.Wrap(apperr.Transient, "publish", err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, channel string, handler Handler) error {
	r.mu.Lock()
	if _, exists := r.subs[channel]; exists {
		r.mu.Unlock()
		return nil
	}
	pubsub := r.client.Subscribe(ctx, channel)
	r.subs[channel] = pubsub
	r.mu.Unlock()

	go func() {
		ch := pubsub.Channel()
		for msg := range ch {
			handler(msg.Payload)
		}
	}()

	return nil
}

func (r *Redis) Unsubscribe(ctx context.Context, channel string) error {
	r.mu.Lock()
	pubsub, exists := r.subs[channel]
	if !exists {
		r.mu.Unlock()
		return nil
	}
	delete(r.subs, channel)
	r.mu.Unlock()

	if err := pubsub.Unsubscribe(ctx, channel); err != nil {
		return apperr.Wrap(apperr.Transient, "unsubscribe", err)
	}
	return pubsub.Close()
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return apperr.Wrap(apperr.Transient, "set", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Wrap(apperr.Transient, "get", err)
	}
	return val, true, nil
}

func (r *Redis) Del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return apperr.Wrap(apperr.Transient, "del", err)
	}
	return nil
}

func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := r.client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "keys", err)
	}
	return keys, nil
}

var _ Bus = (*Redis)(nil)
