package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockSerializes(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Lock(ctx, "k", time.Second))
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, l.Unlock(ctx, "k"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestLocalLockCancelAndUnlock(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	require.NoError(t, l.Lock(ctx, "a", time.Second))

	// 不同 key 互不影响
	require.NoError(t, l.Lock(ctx, "b", time.Second))

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Lock(cctx, "a", time.Second), context.DeadlineExceeded)

	require.NoError(t, l.Unlock(ctx, "a"))
	assert.ErrorIs(t, l.Unlock(ctx, "a"), ErrNotHeld)
	require.NoError(t, l.Lock(ctx, "a", time.Second))
}

func TestNopLock(t *testing.T) {
	var l DistributedLock = NewNopLock()
	require.NoError(t, l.Lock(context.Background(), FetchKey("k"), time.Second))
	require.NoError(t, l.Unlock(context.Background(), FetchKey("k")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Lock(ctx, "k", time.Second), context.Canceled)
}

func TestNewDistributedLock(t *testing.T) {
	l, err := NewDistributedLock(nil)
	require.NoError(t, err)
	assert.IsType(t, &NopLock{}, l)

	l, err = NewDistributedLock(&Config{Enabled: true, Type: "local"})
	require.NoError(t, err)
	assert.IsType(t, &LocalLock{}, l)

	_, err = NewDistributedLock(&Config{Enabled: true, Type: "redis"})
	assert.Error(t, err)

	_, err = NewDistributedLock(&Config{Enabled: true, Type: "etcd"})
	assert.Error(t, err)
}

func TestRedisLock(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR 未设置，跳过 Redis 测试")
	}

	l := NewRedisLock(redis.NewClient(&redis.Options{Addr: addr}), "smabot:test:lock:")
	defer l.Close()

	ctx := context.Background()
	require.NoError(t, l.Ping(ctx))

	key := FetchKey("BTCUSDT_1h_2024-01-01_2024-02-01")
	require.NoError(t, l.Lock(ctx, key, time.Second))

	// 持有期间自动续期，超过 ttl 仍不可获取
	other := NewRedisLock(redis.NewClient(&redis.Options{Addr: addr}), "smabot:test:lock:")
	defer other.Close()
	cctx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, other.Lock(cctx, key, time.Second), context.DeadlineExceeded)

	require.NoError(t, l.Unlock(ctx, key))
	assert.ErrorIs(t, l.Unlock(ctx, key), ErrNotHeld)

	require.NoError(t, other.Lock(ctx, key, time.Second))
	require.NoError(t, other.Unlock(ctx, key))
}
