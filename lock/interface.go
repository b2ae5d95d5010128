package lock

import (
	"context"
	"time"
)

// DistributedLock 下载锁：同一缓存键同时只有一个实例访问交易所
type DistributedLock interface {
	// Lock 阻塞直到获得锁或 ctx 结束，持有期间 ttl 自动续期
	Lock(ctx context.Context, key string, ttl time.Duration) error
	Unlock(ctx context.Context, key string) error
	Close() error
}

// FetchKey 缓存键对应的下载锁键
func FetchKey(cacheKey string) string {
	return "fetch:" + cacheKey
}

// NopLock 不加锁
type NopLock struct{}

func NewNopLock() *NopLock {
	return &NopLock{}
}

func (NopLock) Lock(ctx context.Context, key string, ttl time.Duration) error { return ctx.Err() }

func (NopLock) Unlock(ctx context.Context, key string) error { return nil }

func (NopLock) Close() error { return nil }
