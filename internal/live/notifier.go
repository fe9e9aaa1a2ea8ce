package live

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Notifier carries "something changed" signals. Publish must not block on
// listeners.
type Notifier interface {
	Publish(ctx context.Context) error
	Listen(ctx context.Context, fn func()) error
}

// MemoryNotifier signals within one process. Bursts of publishes coalesce
// into a single wake-up. It supports one listener.
type MemoryNotifier struct {
	ch chan struct{}
}

// NewMemoryNotifier creates a notifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{ch: make(chan struct{}, 1)}
}

// Publish records a pending signal.
func (m *MemoryNotifier) Publish(context.Context) error {
	select {
	case m.ch <- struct{}{}:
	default:
	}
	return nil
}

// Listen calls fn for each signal until ctx is done.
func (m *MemoryNotifier) Listen(ctx context.Context, fn func()) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.ch:
			fn()
		}
	}
}

// RedisNotifier fans signals out to every API replica over pub/sub.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier publishes on channel.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = "qrattend:changes"
	}
	return &RedisNotifier{client: client, channel: channel}
}

// Publish sends a signal.
func (r *RedisNotifier) Publish(ctx context.Context) error {
	return r.client.Publish(ctx, r.channel, "changed").Err()
}

// Listen subscribes and calls fn per message until ctx is done.
func (r *RedisNotifier) Listen(ctx context.Context, fn func()) error {
	ps := r.client.Subscribe(ctx, r.channel)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			fn()
		}
	}
}
