package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("slot is locked by another booking")

// SlotKey names one bookable instant of a doctor's calendar. Bookings contend
// for the same lock only when doctor, date and start time all match, so two
// slots of one schedule never block each other.
type SlotKey struct {
	DoctorID uuid.UUID
	Date     string // YYYY-MM-DD
	Time     string // HH:MM
}

// RedisKey renders the key as lock:slot:<doctor>:<YYYY-MM-DD>:<HH:MM>.
func (k SlotKey) RedisKey() string {
	return "lock:slot:" + k.DoctorID.String() + ":" + k.Date + ":" + k.Time
}

func (k SlotKey) String() string {
	return k.DoctorID.String() + " " + k.Date + " " + k.Time
}

// Locker serialises the active-appointment check and insert of one booking
// across api-server replicas.
type Locker interface {
	WithSlotLock(ctx context.Context, key SlotKey, fn func(ctx context.Context) error) error
}

type slotLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSlotLocker holds each lock for at most ttl; fn gets a context bounded by the same ttl.
func NewRedisSlotLocker(rdb *redis.Client, ttl time.Duration) Locker {
	return &slotLocker{rdb: rdb, ttl: ttl}
}

func (l *slotLocker) WithSlotLock(ctx context.Context, key SlotKey, fn func(ctx context.Context) error) error {
	redisKey := key.RedisKey()
	owner := uuid.NewString()

	acquired, err := l.rdb.SetNX(ctx, redisKey, owner, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	if !acquired {
		return ErrLockNotAcquired
	}
	// Released even if ctx is cancelled inside fn.
	defer l.unlock(context.WithoutCancel(ctx), redisKey, owner)

	held, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()
	return fn(held)
}

// compareAndDelete removes the key only while it still carries our owner token,
// so a lock that expired and was re-acquired elsewhere is left alone.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *slotLocker) unlock(ctx context.Context, redisKey, owner string) {
	_ = compareAndDelete.Run(ctx, l.rdb, []string{redisKey}, owner).Err()
}
