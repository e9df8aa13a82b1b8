package lock

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("lock is already held")

const unlockScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

// ReleaseFunc releases a lock obtained from RedisLocker.
type ReleaseFunc func(ctx context.Context) error

// RedisLocker hands out single-holder locks backed by SET NX PX. Only the holder's token can release a lock.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	token  func() string
}

func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: prefix,
		token:  func() string { return uuid.NewString() },
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	fullKey := l.prefix + key
	value := l.token()

	success, err := l.client.SetNX(ctx, fullKey, value, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !success {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, fullKey)
	}

	return func(ctx context.Context) error {
		result, err := l.client.Eval(ctx, unlockScript, []string{fullKey}, value).Result()
		if err != nil {
			return err
		}
		if result == int64(0) {
			return fmt.Errorf("unlock failed, either lock expired or not the holder for key %s", fullKey)
		}
		return nil
	}, nil
}

// WaitAcquire retries Acquire with jitter until waitTimeout elapses.
func (l *RedisLocker) WaitAcquire(ctx context.Context, key string, ttl, waitTimeout time.Duration) (ReleaseFunc, error) {
	deadline := time.Now().Add(waitTimeout)
	for {
		release, err := l.Acquire(ctx, key, ttl)
		if err == nil {
			return release, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(10+rand.Intn(90)) * time.Millisecond):
		}
	}
}
