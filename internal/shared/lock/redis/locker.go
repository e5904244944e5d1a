// Package redis 基于 Redis 的分布式锁
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"golden-drift/internal/shared/lock"
)

const (
	defaultTTL  = 30 * time.Second
	defaultPoll = 50 * time.Millisecond
	keyPrefix   = "golden_lock:"
)

// releaseScript 仅当值等于持有者 token 时删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker Redis 锁
//
// TTL 需大于一次比对（回放加记录）的最长耗时；过期后锁可被他人获取，
// 此时存储层的 version 条件更新仍会拒绝过时写入。
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	poll   time.Duration
}

// New 创建 Redis 锁，ttl <= 0 时使用默认 30s
func New(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Locker{client: client, ttl: ttl, poll: defaultPoll}
}

func (l *Locker) Acquire(ctx context.Context, key string) (lock.Lease, error) {
	token := uuid.NewString()
	k := keyPrefix + key

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return &lease{client: l.client, key: k, token: token}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

type lease struct {
	client *redis.Client
	key    string
	token  string
}

func (l *lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("redis unlock %s: %w", l.key, err)
	}
	if n == 0 {
		return lock.ErrNotHeld
	}
	return nil
}

var _ lock.Locker = (*Locker)(nil)
