// Package locksvc provides distributed locks.
package locksvc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/payment"
)

// deletes the key only if we still own it
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger core.Logger
}

var _ payment.Locker = (*RedisLocker)(nil)

// NewRedisClient connects to conf.Redis.Addr. A nil client (and no error) means Redis is not configured.
func NewRedisClient(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	if conf.Redis.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: conf.Redis.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return client, nil
}

// NewRedisLocker holds locks for at most ttl, so a crashed holder cannot block others forever.
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger core.Logger) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, retry: 50 * time.Millisecond, logger: logger}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = "lock:" + key
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, "acquiring lock")
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "acquiring lock")
		case <-time.After(l.retry):
		}
	}

	return func() {
		// the caller's context may be done already
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := unlockScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("releasing lock", err, map[string]interface{}{"key": key})
		}
	}, nil
}
