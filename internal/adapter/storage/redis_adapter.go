package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-ledger/pkg/logger"
)

const (
	lockKeyPrefix       = "lock:product:"
	idempotencyKeyTTL   = 24 * time.Hour
	defaultLockTTL      = 10 * time.Second
	defaultLockInterval = 5 * time.Millisecond
)

// releaseLockScript deletes the lock only while it still carries our token,
// so an expired lock taken over by another instance is left alone.
var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]

if redis.call('GET', key) == token then
	return redis.call('DEL', key)
end

return 0
`)

type RedisAdapter struct {
	client       *redis.Client
	lockTTL      time.Duration
	pollInterval time.Duration
}

func NewRedisAdapter(client *redis.Client, lockTTL time.Duration) *RedisAdapter {
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &RedisAdapter{
		client:       client,
		lockTTL:      lockTTL,
		pollInterval: defaultLockInterval,
	}
}

// Lock takes one SET NX PX key per product, in id order. The TTL only guards
// against a crashed holder; it must exceed the longest validate+apply.
func (r *RedisAdapter) Lock(ctx context.Context, productIDs []string) (func(), error) {
	ids := sortedUnique(productIDs)
	token := uuid.NewString()
	held := make([]string, 0, len(ids))

	for _, id := range ids {
		if err := r.acquire(ctx, lockKeyPrefix+id, token); err != nil {
			r.releaseAll(held, token)
			return nil, fmt.Errorf("lock product %s: %w", id, err)
		}
		held = append(held, lockKeyPrefix+id)
	}

	var once sync.Once
	return func() { once.Do(func() { r.releaseAll(held, token) }) }, nil
}

func (r *RedisAdapter) acquire(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.lockTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *RedisAdapter) releaseAll(keys []string, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := len(keys) - 1; i >= 0; i-- {
		if err := releaseLockScript.Run(ctx, r.client, []string{keys[i]}, token).Err(); err != nil {
			// The key still expires with its TTL.
			logger.Logger.Warn().Err(err).Str("key", keys[i]).Msg("Failed to release product lock")
		}
	}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
