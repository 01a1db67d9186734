package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"GeoCheckin/storage/redis"
)

// 分布式锁，通过 SetNX 实现，防止多个调度实例同时跑同一轮
const (
	lockPrefix = "lock"
)

// 只删除自己持有的锁
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	client goredis.Cmdable
	prefix string
}

func NewLocker(client goredis.Cmdable, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix}
}

// TryLock 成功时返回持有者 token
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, redis.KeyWithPrefix(l.prefix, lockPrefix, key), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	return token, acquired, nil
}

func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	fullKey := redis.KeyWithPrefix(l.prefix, lockPrefix, key)
	if err := unlockScript.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil && err != goredis.Nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}
