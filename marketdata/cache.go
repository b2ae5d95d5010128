package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"smabot/market"
)

// ErrCacheMiss 缓存中没有对应的数据
var ErrCacheMiss = errors.New("cache miss")

const (
	cacheDateLayout = "2006-01-02"
	// 非整日边界使用分钟精度
	cacheTimeLayout = "20060102T1504"
)

// CacheInfo 缓存信息
type CacheInfo struct {
	Name     string    `json:"name"`
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Candles  int       `json:"candles"`
	SizeMB   float64   `json:"size_mb"`
	Created  time.Time `json:"created"`
}

// CacheStats 缓存统计
type CacheStats struct {
	Backend   string  `json:"backend"`
	Entries   int     `json:"entries"`
	TotalSize int64   `json:"total_size"`
	SizeMB    float64 `json:"size_mb"`
}

// CandleCache K线缓存
type CandleCache interface {
	// Load 读取缓存，不存在时返回 ErrCacheMiss
	Load(ctx context.Context, key string) ([]market.Candle, error)
	Save(ctx context.Context, key string, candles []market.Candle) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]CacheInfo, error)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (CacheStats, error)
}

// CacheKey 生成缓存键，格式: BTCUSDT_1h_2024-01-01_2024-02-01
//
// 边界不在 UTC 零点时精确到分钟: BTCUSDT_1h_20240101T1200_20240107T0600
func CacheKey(symbol, interval string, start, end time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s",
		symbol,
		interval,
		formatKeyTime(start),
		formatKeyTime(end),
	)
}

func formatKeyTime(t time.Time) string {
	t = t.UTC()
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format(cacheDateLayout)
	}
	return t.Format(cacheTimeLayout)
}

func parseKeyTime(s string) (time.Time, error) {
	if t, err := time.Parse(cacheDateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(cacheTimeLayout, s)
}

// ParseCacheKey 解析缓存键
func ParseCacheKey(key string) (CacheInfo, error) {
	parts := strings.Split(key, "_")
	if len(parts) != 4 {
		return CacheInfo{}, fmt.Errorf("invalid cache key: %s", key)
	}

	start, err := parseKeyTime(parts[2])
	if err != nil {
		return CacheInfo{}, fmt.Errorf("invalid cache key start %q: %w", parts[2], err)
	}
	end, err := parseKeyTime(parts[3])
	if err != nil {
		return CacheInfo{}, fmt.Errorf("invalid cache key end %q: %w", parts[3], err)
	}

	return CacheInfo{
		Name:     key,
		Symbol:   parts[0],
		Interval: parts[1],
		Start:    start,
		End:      end,
	}, nil
}

// NewCacheInfo 根据缓存键和K线生成缓存信息
func NewCacheInfo(key string, candles []market.Candle, size int64) CacheInfo {
	info, err := ParseCacheKey(key)
	if err != nil {
		info = CacheInfo{Name: key}
	}
	info.Candles = len(candles)
	info.SizeMB = float64(size) / 1024 / 1024
	info.Created = time.Now()
	return info
}

// CleanOld 清理创建时间早于 days 天前的缓存，返回删除数量
func CleanOld(ctx context.Context, cache CandleCache, days int) (int, error) {
	if days < 0 {
		return 0, fmt.Errorf("days must not be negative, got %d", days)
	}

	caches, err := cache.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoffTime := time.Now().AddDate(0, 0, -days)
	deletedCount := 0

	for _, c := range caches {
		if c.Created.Before(cutoffTime) {
			if err := cache.Delete(ctx, c.Name); err != nil {
				return deletedCount, fmt.Errorf("删除过期缓存 %s 失败: %w", c.Name, err)
			}
			deletedCount++
		}
	}

	return deletedCount, nil
}

// NopCache 不缓存
type NopCache struct{}

func (NopCache) Load(ctx context.Context, key string) ([]market.Candle, error) {
	return nil, ErrCacheMiss
}

func (NopCache) Save(ctx context.Context, key string, candles []market.Candle) error {
	return nil
}

func (NopCache) Delete(ctx context.Context, key string) error {
	return nil
}

func (NopCache) List(ctx context.Context) ([]CacheInfo, error) {
	return []CacheInfo{}, nil
}

func (NopCache) Clear(ctx context.Context) error {
	return nil
}

func (NopCache) Stats(ctx context.Context) (CacheStats, error) {
	return CacheStats{Backend: "none"}, nil
}
