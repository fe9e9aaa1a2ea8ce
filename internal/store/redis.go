package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis holds the broker connection shared by the roster queue, change
// notifications and the refresh token registry.
type Redis struct {
	Client *redis.Client
}

// NewRedis dials addr with short timeouts. Reads that block (BRPOP, pub/sub
// receive) set their own deadlines through context.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:                  addr,
		DialTimeout:           2 * time.Second,
		ReadTimeout:           time.Second,
		WriteTimeout:          time.Second,
		ContextTimeoutEnabled: true,
	})
	return &Redis{Client: client}
}

// Ping fails when the broker cannot be reached.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Ping(ctx) == nil
}

// Close releases the pool.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
