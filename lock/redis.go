package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"smabot/logger"
)

// ErrNotHeld 锁未持有或已过期
var ErrNotHeld = errors.New("lock not held")

// 只有持有 token 的实例才能释放或续期
var (
	unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

const (
	minRetryDelay = 50 * time.Millisecond
	maxRetryDelay = time.Second
)

type lease struct {
	token string
	stop  chan struct{}
	done  chan struct{}
}

// RedisLock 多实例共享的下载锁
type RedisLock struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	leases map[string]*lease
}

// NewRedisLock 创建 Redis 下载锁
func NewRedisLock(client *redis.Client, prefix string) *RedisLock {
	return &RedisLock{
		client: client,
		prefix: prefix,
		leases: make(map[string]*lease),
	}
}

func newToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Lock 获取锁，等待间隔从 50ms 翻倍到 1s
func (r *RedisLock) Lock(ctx context.Context, key string, ttl time.Duration) error {
	if ttl < time.Second {
		ttl = time.Second
	}
	redisKey := r.prefix + key
	token := newToken()
	delay := minRetryDelay

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, ttl).Result()
		if err != nil {
			return fmt.Errorf("redis setnx %s: %w", key, err)
		}
		if ok {
			r.hold(key, redisKey, token, ttl)
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if delay *= 2; delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// hold 记录 token 并在 ttl/3 间隔续期，直到 Unlock
func (r *RedisLock) hold(key, redisKey, token string, ttl time.Duration) {
	l := &lease{token: token, stop: make(chan struct{}), done: make(chan struct{})}
	r.mu.Lock()
	r.leases[key] = l
	r.mu.Unlock()

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), ttl/3)
				n, err := renewScript.Run(ctx, r.client, []string{redisKey}, token, ttl.Milliseconds()).Int64()
				cancel()
				if err != nil {
					logger.Warn("⚠️ 下载锁续期失败 %s: %v", key, err)
					continue
				}
				if n == 0 {
					logger.Warn("⚠️ 下载锁已失效: %s", key)
					return
				}
			}
		}
	}()
}

// Unlock 停止续期并释放锁
func (r *RedisLock) Unlock(ctx context.Context, key string) error {
	r.mu.Lock()
	l, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotHeld, key)
	}

	close(l.stop)
	<-l.done

	n, err := unlockScript.Run(ctx, r.client, []string{r.prefix + key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("redis unlock %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s expired", ErrNotHeld, key)
	}
	return nil
}

// Close 释放所有持有的锁并关闭连接
func (r *RedisLock) Close() error {
	r.mu.Lock()
	keys := make([]string, 0, len(r.leases))
	for key := range r.leases {
		keys = append(keys, key)
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for _, key := range keys {
		_ = r.Unlock(ctx, key)
	}
	return r.client.Close()
}

// Ping 检查连接
func (r *RedisLock) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
