package redis

import (
	"context"
	"fmt"
	"time"

	"offline-wallet/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// dialTimeout keeps startup snappy when Redis is configured but down.
const dialTimeout = 3 * time.Second

// NewClient connects to Redis and pings it. The client is closed again
// when the ping fails.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr(), err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Msg("Redis connected")

	return client, nil
}

// Guards bundles the Redis-backed stores one wallet uses. Keys are
// scoped by wallet UID where two wallets could share a database.
type Guards struct {
	Attempts   *AttemptCounter
	Redemption *RedemptionGuard
	SyncLock   *SyncLock
	RateLimit  *RateLimitStore
	Health     *HealthCheck
}

// NewGuards builds every Redis store over one client.
func NewGuards(client goredis.UniversalClient, uid string, log zerolog.Logger) *Guards {
	return &Guards{
		Attempts:   NewAttemptCounter(client, uid),
		Redemption: NewRedemptionGuard(client),
		SyncLock:   NewSyncLock(client, uid, log),
		RateLimit:  NewRateLimitStore(client),
		Health:     NewHealthCheck(client),
	}
}
