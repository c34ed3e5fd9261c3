package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// New creates a new Redis client.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// Readiness reports whether Redis answers PING.
type Readiness struct {
	client redis.UniversalClient
}

// NewReadiness wraps a client for health checks.
func NewReadiness(client redis.UniversalClient) *Readiness {
	return &Readiness{client: client}
}

// Check pings Redis with a short timeout.
func (r *Readiness) Check(ctx context.Context) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("platform/cache: client not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}
