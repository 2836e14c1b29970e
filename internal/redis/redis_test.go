package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewRedisClient(mr.Addr(), "", "")
	require.NoError(t, err)
	defer rdb.Close()

	_, err = NewRedisClient("127.0.0.1:1", "", "")
	require.Error(t, err)
}

func TestNewRedisClientOptions(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewRedisClient(mr.Addr(), "", "", WithPoolSize(2), WithIOTimeout(time.Second))
	require.NoError(t, err)
	defer rdb.Close()

	opts := rdb.Options()
	assert.Equal(t, 2, opts.PoolSize)
	assert.Equal(t, 1, opts.MinIdleConns)
	assert.Equal(t, time.Second, opts.ReadTimeout)
	assert.Equal(t, time.Second, opts.WriteTimeout)
}

func TestSlotKeyFormat(t *testing.T) {
	doctor := uuid.MustParse("0b8f6c1e-3f7a-4d2b-9a51-5c2e7d4f8a10")
	key := SlotKey{DoctorID: doctor, Date: "2025-06-01", Time: "09:00"}
	assert.Equal(t, "lock:slot:0b8f6c1e-3f7a-4d2b-9a51-5c2e7d4f8a10:2025-06-01:09:00", key.RedisKey())
}

func TestSlotLockReleasesAfterCallback(t *testing.T) {
	mr, rdb := newTestClient(t)
	locker := NewRedisSlotLocker(rdb, 5*time.Second)

	key := SlotKey{DoctorID: uuid.New(), Date: "2025-06-01", Time: "09:00"}
	called := false
	err := locker.WithSlotLock(context.Background(), key, func(ctx context.Context) error {
		called = true
		assert.True(t, mr.Exists(key.RedisKey()))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, mr.Exists(key.RedisKey()))
}

func TestSlotLockContended(t *testing.T) {
	_, rdb := newTestClient(t)
	locker := NewRedisSlotLocker(rdb, 5*time.Second)
	key := SlotKey{DoctorID: uuid.New(), Date: "2025-06-01", Time: "09:00"}

	err := locker.WithSlotLock(context.Background(), key, func(ctx context.Context) error {
		inner := locker.WithSlotLock(ctx, key, func(context.Context) error {
			t.Fatal("nested lock should not be acquired")
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)

		next := key
		next.Time = "09:30"
		return locker.WithSlotLock(ctx, next, func(context.Context) error { return nil })
	})
	require.NoError(t, err, "another start time of the same doctor is a different lock")
}

func TestSlotLockPropagatesCallbackError(t *testing.T) {
	mr, rdb := newTestClient(t)
	locker := NewRedisSlotLocker(rdb, 5*time.Second)
	boom := errors.New("boom")
	key := SlotKey{DoctorID: uuid.New(), Date: "2025-06-01", Time: "09:00"}

	err := locker.WithSlotLock(context.Background(), key, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(key.RedisKey()))
}

func TestSlotLockDoesNotReleaseForeignToken(t *testing.T) {
	mr, rdb := newTestClient(t)
	locker := NewRedisSlotLocker(rdb, 5*time.Second)

	key := SlotKey{DoctorID: uuid.New(), Date: "2025-06-01", Time: "09:00"}

	err := locker.WithSlotLock(context.Background(), key, func(context.Context) error {
		// simulate the lock expiring and another holder taking it
		require.NoError(t, mr.Set(key.RedisKey(), "someone-else"))
		return nil
	})
	require.NoError(t, err)

	val, err := mr.Get(key.RedisKey())
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

func TestSlotCache(t *testing.T) {
	mr, rdb := newTestClient(t)
	cache := NewRedisSlotCache(rdb, time.Minute)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "d1:2025-06-01")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "d1:2025-06-01", []byte(`[]`)))
	val, ok, err := cache.Get(ctx, "d1:2025-06-01")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`[]`), val)

	mr.FastForward(2 * time.Minute)
	_, ok, err = cache.Get(ctx, "d1:2025-06-01")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "d1:2025-06-01", []byte(`[]`)))
	require.NoError(t, cache.Invalidate(ctx, "d1:2025-06-01"))
	_, ok, err = cache.Get(ctx, "d1:2025-06-01")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSlotCacheInvalidatePrefix(t *testing.T) {
	mr, rdb := newTestClient(t)
	cache := NewRedisSlotCache(rdb, time.Minute)
	ctx := context.Background()

	for _, key := range []string{"d1:2025-06-01", "d1:2025-06-02", "d2:2025-06-01"} {
		require.NoError(t, cache.Set(ctx, key, []byte(`[]`)))
	}

	require.NoError(t, cache.InvalidatePrefix(ctx, "d1:"))
	assert.False(t, mr.Exists("slots:d1:2025-06-01"))
	assert.False(t, mr.Exists("slots:d1:2025-06-02"))
	assert.True(t, mr.Exists("slots:d2:2025-06-01"))

	require.NoError(t, cache.InvalidatePrefix(ctx, "d9:"), "nothing to drop")
}
