package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LocalLock 进程内按 key 加锁（单实例模式），ttl 被忽略
type LocalLock struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewLocalLock 创建进程内锁
func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]chan struct{})}
}

// Lock 获取锁，阻塞直到成功或 ctx 结束
func (l *LocalLock) Lock(ctx context.Context, key string, ttl time.Duration) error {
	for {
		l.mu.Lock()
		wait, busy := l.held[key]
		if !busy {
			l.held[key] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Unlock 释放锁并唤醒等待者
func (l *LocalLock) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	wait, ok := l.held[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotHeld, key)
	}
	delete(l.held, key)
	close(wait)
	return nil
}

func (l *LocalLock) Close() error {
	return nil
}
