package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SyncLock implements ports.SyncLock across processes sharing a Redis.
type SyncLock struct {
	client goredis.UniversalClient
	key    string
	log    zerolog.Logger
}

// NewSyncLock creates the lock for the wallet identified by uid.
func NewSyncLock(client goredis.UniversalClient, uid string, log zerolog.Logger) *SyncLock {
	return &SyncLock{client: client, key: "sync:lock:" + uid, log: log}
}

// Acquire takes the lock for at most ttl. The returned release is safe to
// call more than once and never deletes a lock re-acquired by someone else.
func (l *SyncLock) Acquire(ctx context.Context, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	err := l.client.SetArgs(ctx, l.key, token, goredis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis acquire sync lock: %w", err)
	}

	release := func() {
		ctx := context.WithoutCancel(ctx)
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			l.log.Warn().Err(err).Str("key", l.key).Msg("Failed to release sync lock")
		}
	}
	return release, true, nil
}
