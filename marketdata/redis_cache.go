package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"smabot/market"
)

// RedisCache Redis K线缓存
//
// 数据存放在 prefix+key，元数据存放在哈希 prefix+"index"。
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache 创建 Redis 缓存，ttl 为 0 表示不过期
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "smabot:candles:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisCache) indexKey() string {
	return r.prefix + "index"
}

// Load 读取缓存
func (r *RedisCache) Load(ctx context.Context, key string) ([]market.Candle, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var candles []market.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("解析缓存 %s 失败: %w", key, err)
	}
	return candles, nil
}

// Save 写入缓存并更新索引
func (r *RedisCache) Save(ctx context.Context, key string, candles []market.Candle) error {
	data, err := json.Marshal(candles)
	if err != nil {
		return err
	}
	info, err := json.Marshal(NewCacheInfo(key, candles, int64(len(data))))
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.prefix+key, data, r.ttl)
		pipe.HSet(ctx, r.indexKey(), key, info)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save failed: %w", err)
	}
	return nil
}

// Delete 删除缓存
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.prefix+key)
		pipe.HDel(ctx, r.indexKey(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// List 列出缓存；数据已过期的条目会从索引中移除
func (r *RedisCache) List(ctx context.Context) ([]CacheInfo, error) {
	entries, err := r.client.HGetAll(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	caches := make([]CacheInfo, 0, len(entries))
	for name, raw := range entries {
		exists, err := r.client.Exists(ctx, r.prefix+name).Result()
		if err != nil {
			return nil, fmt.Errorf("redis exists failed: %w", err)
		}
		if exists == 0 {
			r.client.HDel(ctx, r.indexKey(), name)
			continue
		}

		var info CacheInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			return nil, fmt.Errorf("解析缓存索引 %s 失败: %w", name, err)
		}
		info.Name = name
		caches = append(caches, info)
	}
	sort.Slice(caches, func(i, j int) bool { return caches[i].Name < caches[j].Name })

	return caches, nil
}

// Clear 清理所有缓存
func (r *RedisCache) Clear(ctx context.Context) error {
	names, err := r.client.HKeys(ctx, r.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("redis hkeys failed: %w", err)
	}

	keys := make([]string, 0, len(names)+1)
	for _, name := range names {
		keys = append(keys, r.prefix+name)
	}
	keys = append(keys, r.indexKey())

	return r.client.Del(ctx, keys...).Err()
}

// Stats 缓存统计
func (r *RedisCache) Stats(ctx context.Context) (CacheStats, error) {
	caches, err := r.List(ctx)
	if err != nil {
		return CacheStats{}, err
	}

	var totalSize int64
	for _, c := range caches {
		n, err := r.client.StrLen(ctx, r.prefix+c.Name).Result()
		if err != nil {
			return CacheStats{}, fmt.Errorf("redis strlen failed: %w", err)
		}
		totalSize += n
	}

	return CacheStats{
		Backend:   "redis",
		Entries:   len(caches),
		TotalSize: totalSize,
		SizeMB:    float64(totalSize) / 1024 / 1024,
	}, nil
}

// Ping 检查连接
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close 关闭连接
func (r *RedisCache) Close() error {
	return r.client.Close()
}
