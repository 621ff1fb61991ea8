package redis_test

import (
	"context"
	"testing"
	"time"

	"offline-wallet/internal/adapter/storage/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestAttemptCounter(t *testing.T) {
	mr, client := newClient(t)
	counter := redis.NewAttemptCounter(client, "U123")
	ctx := context.Background()

	n, err := counter.Failures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for want := 1; want <= 3; want++ {
		n, err = counter.RecordFailure(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	// Lockout state does not expire on its own.
	mr.FastForward(48 * time.Hour)
	n, err = counter.Failures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, time.Duration(0), mr.TTL("pin:attempts:U123"))

	require.NoError(t, counter.Reset(ctx))
	n, err = counter.Failures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	other := redis.NewAttemptCounter(client, "U456")
	n, err = other.Failures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAttemptCounter_RedisDown(t *testing.T) {
	mr, client := newClient(t)
	counter := redis.NewAttemptCounter(client, "U123")
	mr.Close()

	_, err := counter.RecordFailure(context.Background())
	assert.Error(t, err)
	_, err = counter.Failures(context.Background())
	assert.Error(t, err)
}

func TestRedemptionGuard_Claim(t *testing.T) {
	mr, client := newClient(t)
	guard := redis.NewRedemptionGuard(client)
	ctx := context.Background()

	ok, err := guard.Claim(ctx, "vch_1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "first claim should succeed")

	ok, err = guard.Claim(ctx, "vch_1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second claim should be rejected")

	ok, err = guard.Claim(ctx, "vch_2", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "claims are per voucher")

	assert.True(t, mr.Exists("redeem:vch_1"))
}

func TestRedemptionGuard_ExpiryAndRelease(t *testing.T) {
	mr, client := newClient(t)
	guard := redis.NewRedemptionGuard(client)
	ctx := context.Background()

	ok, err := guard.Claim(ctx, "vch_1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = guard.Claim(ctx, "vch_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired claim can be taken again")

	require.NoError(t, guard.Release(ctx, "vch_1"))
	ok, err = guard.Claim(ctx, "vch_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released claim can be taken again")
}

func TestSyncLock(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	first := redis.NewSyncLock(client, "U123", zerolog.Nop())
	second := redis.NewSyncLock(client, "U123", zerolog.Nop())

	release, ok, err := first.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = second.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lock is held")

	release()
	release()
	assert.False(t, mr.Exists("sync:lock:U123"))

	release2, ok, err := second.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer release2()

	// A stale holder's release must not free someone else's lock.
	release()
	assert.True(t, mr.Exists("sync:lock:U123"))
}

func TestSyncLock_Expires(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	lock := redis.NewSyncLock(client, "U123", zerolog.Nop())

	_, ok, err := lock.Acquire(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = lock.Acquire(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHealthCheck(t *testing.T) {
	mr, client := newClient(t)
	hc := redis.NewHealthCheck(client)
	assert.Equal(t, "redis", hc.Name())
	assert.NoError(t, hc.Ping(context.Background()))

	mr.Close()
	assert.Error(t, hc.Ping(context.Background()))
}
