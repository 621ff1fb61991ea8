package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// AttemptCounter implements ports.AttemptCounter with INCR. The key has no
// expiry: a lockout lasts until an explicit reset.
type AttemptCounter struct {
	client goredis.UniversalClient
	key    string
}

// NewAttemptCounter creates a counter for the wallet identified by uid.
func NewAttemptCounter(client goredis.UniversalClient, uid string) *AttemptCounter {
	return &AttemptCounter{client: client, key: "pin:attempts:" + uid}
}

func (c *AttemptCounter) Failures(ctx context.Context) (int, error) {
	n, err := c.client.Get(ctx, c.key).Int()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get attempts: %w", err)
	}
	return n, nil
}

func (c *AttemptCounter) RecordFailure(ctx context.Context) (int, error) {
	n, err := c.client.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr attempts: %w", err)
	}
	return int(n), nil
}

func (c *AttemptCounter) Reset(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("redis reset attempts: %w", err)
	}
	return nil
}
