package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedemptionGuard implements ports.RedemptionGuard using Redis SET NX, so
// wallets sharing a Redis cannot both claim a voucher.
type RedemptionGuard struct {
	client goredis.UniversalClient
	prefix string
}

// NewRedemptionGuard creates a new Redis-backed redemption guard.
func NewRedemptionGuard(client goredis.UniversalClient) *RedemptionGuard {
	return &RedemptionGuard{
		client: client,
		prefix: "redeem:",
	}
}

// Claim returns true if the voucher ID was not claimed yet. A zero ttl
// claims forever.
func (g *RedemptionGuard) Claim(ctx context.Context, voucherID string, ttl time.Duration) (bool, error) {
	result, err := g.client.SetArgs(ctx, g.prefix+voucherID, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis claim voucher: %w", err)
	}
	return result == "OK", nil
}

func (g *RedemptionGuard) Release(ctx context.Context, voucherID string) error {
	if err := g.client.Del(ctx, g.prefix+voucherID).Err(); err != nil {
		return fmt.Errorf("redis release voucher: %w", err)
	}
	return nil
}
