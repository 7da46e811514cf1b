package negotiation

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBusy indicates another round for the same session is in flight.
var ErrBusy = errors.New("negotiation busy")

// Locker serializes rounds per negotiation session. Release must always be
// called when Acquire succeeds.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// RedisLocker implements Locker with a SETNX lock per session id.
type RedisLocker struct {
	Rdb *redis.Client
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lockKey := "negotiate:lock:" + key
	ok, err := l.Rdb.SetNX(ctx, lockKey, "1", ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBusy
	}
	return func() { l.Rdb.Del(context.Background(), lockKey) }, nil
}

// NoopLocker is used when Redis is not configured; single-instance deployments
// still get per-process serialization from the database's conditional updates.
type NoopLocker struct{}

func (NoopLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return func() {}, nil
}
