package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smabot/lock"
	"smabot/market"
)

var (
	testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	hourMs    = int64(time.Hour / time.Millisecond)
)

// fakeSource 按小时生成K线的假数据源
type fakeSource struct {
	candles    []market.Candle
	calls      int32
	duplicates bool
	err        error
}

func newFakeSource(n int) *fakeSource {
	candles := make([]market.Candle, n)
	for i := range candles {
		p := 100 + float64(i%7)
		candles[i] = market.NewCandle(testStart.UnixMilli()+int64(i)*hourMs, p, p+1, p-1, p, 10)
	}
	return &fakeSource{candles: candles}
}

func (f *fakeSource) Klines(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]market.Candle, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}

	if start.IsZero() {
		if limit > len(f.candles) {
			limit = len(f.candles)
		}
		return append([]market.Candle(nil), f.candles[len(f.candles)-limit:]...), nil
	}

	out := make([]market.Candle, 0, limit)
	for _, c := range f.candles {
		if c.Timestamp < start.UnixMilli() || (!end.IsZero() && c.Timestamp > end.UnixMilli()) {
			continue
		}
		out = append(out, c)
		if f.duplicates && len(out) < limit {
			out = append(out, c)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func newTestFetcher(src KlineSource, opts ...FetcherOption) *Fetcher {
	opts = append([]FetcherOption{WithRateLimit(0, 0)}, opts...)
	return NewFetcher(src, opts...)
}

func TestCacheKey(t *testing.T) {
	key := CacheKey("BTCUSDT", "1h", testStart, testStart.AddDate(0, 1, 0))
	assert.Equal(t, "BTCUSDT_1h_2024-01-01_2024-02-01", key)

	info, err := ParseCacheKey(key)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", info.Symbol)
	assert.Equal(t, "1h", info.Interval)
	assert.True(t, info.Start.Equal(testStart))

	_, err = ParseCacheKey("BTCUSDT_1h")
	assert.Error(t, err)

	// 非整日边界精确到分钟
	noon := testStart.Add(12 * time.Hour)
	key = CacheKey("BTCUSDT", "1h", noon, noon.Add(145*time.Hour))
	assert.Equal(t, "BTCUSDT_1h_20240101T1200_20240107T1300", key)
	assert.NotEqual(t, CacheKey("BTCUSDT", "1h", testStart, testStart.Add(150*time.Hour)), key)

	info, err = ParseCacheKey(key)
	require.NoError(t, err)
	assert.True(t, info.Start.Equal(noon))
	assert.True(t, info.End.Equal(noon.Add(145*time.Hour)))
}

func TestFetchSubDayRangesUseOwnCache(t *testing.T) {
	src := newFakeSource(200)
	cache := NewFileCache(t.TempDir())
	f := newTestFetcher(src, WithCache(cache, "file"), WithLock(lock.NewLocalLock(), time.Minute))
	ctx := context.Background()

	first, err := f.Fetch(ctx, Request{Symbol: "BTCUSDT", Interval: "1h", Start: testStart, End: testStart.Add(150 * time.Hour)})
	require.NoError(t, err)
	require.Equal(t, 151, first.Len())

	noon := testStart.Add(12 * time.Hour)
	second, err := f.Fetch(ctx, Request{Symbol: "BTCUSDT", Interval: "1h", Start: noon, End: noon.Add(145 * time.Hour)})
	require.NoError(t, err)
	require.Equal(t, 146, second.Len())
	assert.Equal(t, noon.UnixMilli(), second.Candles[0].Timestamp)
	assert.Equal(t, noon.Add(145*time.Hour).UnixMilli(), second.Candles[second.Len()-1].Timestamp)

	list, err := cache.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestFetchCacheHitIsTrimmedToRange(t *testing.T) {
	src := newFakeSource(100)
	cache := NewFileCache(t.TempDir())
	f := newTestFetcher(src, WithCache(cache, "file"))
	ctx := context.Background()

	start := testStart.Add(10 * time.Hour)
	end := testStart.Add(20 * time.Hour)
	// 缓存中的数据比请求范围宽
	require.NoError(t, cache.Save(ctx, CacheKey("BTCUSDT", "1h", start, end), src.candles))

	series, err := f.Fetch(ctx, Request{Symbol: "BTCUSDT", Interval: "1h", Start: start, End: end})
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&src.calls))
	require.Equal(t, 11, series.Len())
	assert.Equal(t, start.UnixMilli(), series.Candles[0].Timestamp)
	assert.Equal(t, end.UnixMilli(), series.Candles[10].Timestamp)
}

func TestFetchOpenEndedSkipsCache(t *testing.T) {
	src := newFakeSource(100)
	cache := NewFileCache(t.TempDir())
	f := newTestFetcher(src, WithCache(cache, "file"))
	now := testStart.Add(50 * time.Hour)
	f.now = func() time.Time { return now }
	ctx := context.Background()

	series, err := f.Fetch(ctx, Request{Symbol: "BTCUSDT", Interval: "1h", Start: testStart})
	require.NoError(t, err)
	assert.Equal(t, 51, series.Len())

	list, err := cache.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	// 时间推进后重新下载，不返回旧序列
	now = testStart.Add(80 * time.Hour)
	series, err = f.Fetch(ctx, Request{Symbol: "BTCUSDT", Interval: "1h", Start: testStart})
	require.NoError(t, err)
	assert.Equal(t, 81, series.Len())
}

func TestFetchPaginates(t *testing.T) {
	src := newFakeSource(2500)
	f := newTestFetcher(src)

	end := testStart.Add(2499 * time.Hour)
	series, err := f.Fetch(context.Background(), Request{Symbol: "BTCUSDT", Interval: "1h", Start: testStart, End: end})
	require.NoError(t, err)

	assert.Equal(t, 2500, series.Len())
	assert.Equal(t, int32(3), atomic.LoadInt32(&src.calls))
	assert.Equal(t, testStart.UnixMilli(), series.Candles[0].Timestamp)
	assert.Equal(t, end.UnixMilli(), series.Candles[series.Len()-1].Timestamp)
	assert.True(t, math.IsNaN(series.Candles[0].SlowMA))
}

func TestFetchDropsDuplicatesAndFilters(t *testing.T) {
	src := newFakeSource(100)
	src.duplicates = true
	f := newTestFetcher(src, WithBatchLimit(30))

	start := testStart.Add(10 * time.Hour)
	end := testStart.Add(59 * time.Hour)
	series, err := f.Fetch(context.Background(), Request{Symbol: "BTCUSDT", Interval: "1h", Start: start, End: end})
	require.NoError(t, err)

	require.Equal(t, 50, series.Len())
	for i := 1; i < series.Len(); i++ {
		assert.Equal(t, series.Candles[i-1].Timestamp+hourMs, series.Candles[i].Timestamp)
	}
}

func TestFetchUsesCache(t *testing.T) {
	src := newFakeSource(200)
	cache := NewFileCache(t.TempDir())
	f := newTestFetcher(src, WithCache(cache, "file"), WithLock(lock.NewLocalLock(), time.Minute))

	req := Request{Symbol: "BTCUSDT", Interval: "1h", Start: testStart, End: testStart.Add(199 * time.Hour)}
	first, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	calls := atomic.LoadInt32(&src.calls)

	second, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, calls, atomic.LoadInt32(&src.calls), "第二次应命中缓存")
	assert.Equal(t, first.Closes(), second.Closes())

	req.NoCache = true
	_, err = f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Greater(t, atomic.LoadInt32(&src.calls), calls)
}

func TestFetchConcurrentSameKey(t *testing.T) {
	src := newFakeSource(300)
	cache := NewFileCache(t.TempDir())
	f := newTestFetcher(src, WithCache(cache, "file"), WithLock(lock.NewLocalLock(), time.Minute))

	req := Request{Symbol: "BTCUSDT", Interval: "1h", Start: testStart, End: testStart.Add(299 * time.Hour)}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			series, err := f.Fetch(context.Background(), req)
			assert.NoError(t, err)
			assert.Equal(t, 300, series.Len())
		}()
	}
	wg.Wait()

	// 只有第一个请求下载，其余等锁后命中缓存
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.calls))
}

func TestFetchLatest(t *testing.T) {
	src := newFakeSource(800)
	f := newTestFetcher(src)

	series, err := f.Fetch(context.Background(), Request{Symbol: "BTCUSDT", Interval: "1h"})
	require.NoError(t, err)
	assert.Equal(t, DefaultLatestLimit, series.Len())
	assert.Equal(t, src.candles[799].Timestamp, series.Candles[series.Len()-1].Timestamp)

	series, err = f.Fetch(context.Background(), Request{Symbol: "BTCUSDT", Interval: "1h", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 20, series.Len())
}

func TestFetchValidation(t *testing.T) {
	f := newTestFetcher(newFakeSource(10))
	ctx := context.Background()

	_, err := f.Fetch(ctx, Request{Interval: "1h"})
	assert.Error(t, err)
	_, err = f.Fetch(ctx, Request{Symbol: "BTCUSDT", Interval: "7h"})
	assert.Error(t, err)
	_, err = f.Fetch(ctx, Request{Symbol: "BTCUSDT", Interval: "1h", Start: testStart, End: testStart})
	assert.Error(t, err)
	_, err = f.Fetch(ctx, Request{Symbol: "BTCUSDT", Interval: "1h", End: testStart})
	assert.Error(t, err)

	src := newFakeSource(10)
	src.err = fmt.Errorf("boom")
	_, err = newTestFetcher(src).Fetch(ctx, Request{Symbol: "BTCUSDT", Interval: "1h", Start: testStart, End: testStart.Add(time.Hour)})
	assert.ErrorContains(t, err, "boom")
}

func TestFileCache(t *testing.T) {
	dir := t.TempDir()
	cache := NewFileCache(dir)
	ctx := context.Background()

	_, err := cache.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	key := CacheKey("ETHUSDT", "1h", testStart, testStart.Add(48*time.Hour))
	candles := newFakeSource(48).candles
	require.NoError(t, cache.Save(ctx, key, candles))
	assert.FileExists(t, filepath.Join(dir, key+".csv"))
	assert.FileExists(t, filepath.Join(dir, cacheIndexFile))

	loaded, err := cache.Load(ctx, key)
	require.NoError(t, err)
	require.Len(t, loaded, 48)
	assert.Equal(t, candles[5].Close, loaded[5].Close)
	assert.Equal(t, candles[5].Timestamp, loaded[5].Timestamp)
	assert.True(t, math.IsNaN(loaded[5].FastMA))

	list, err := cache.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, key, list[0].Name)
	assert.Equal(t, "ETHUSDT", list[0].Symbol)
	assert.Equal(t, 48, list[0].Candles)

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
	assert.Greater(t, stats.TotalSize, int64(0))

	// 刚创建的缓存不会被清理
	n, err := CleanOld(ctx, cache, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = CleanOld(ctx, cache, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err = cache.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, cache.Save(ctx, key, candles))
	require.NoError(t, cache.Clear(ctx))
	_, err = cache.Load(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.csv")
	content := "timestamp,open,high,low,close,volume\n" +
		"1704070800000,101,102,100,101.5,3\n" +
		"1704067200000,100,101,99,100.5,2\n" +
		"1704067200000,100,101,99,100.5,2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	series, err := LoadCSV(path, "BTCUSDT", "1h")
	require.NoError(t, err)
	require.Equal(t, 2, series.Len())
	assert.Equal(t, int64(1704067200000), series.Candles[0].Timestamp)
	assert.Equal(t, 101.5, series.Candles[1].Close)
	assert.Equal(t, "BTCUSDT", series.Symbol)

	bad := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("timestamp,open,high,low,close,volume\n1,a,2,3,4,5\n"), 0644))
	_, err = LoadCSV(bad, "", "1h")
	assert.Error(t, err)
}

func TestBinanceSource(t *testing.T) {
	var gotSymbol, gotInterval string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		gotSymbol = q.Get("symbol")
		gotInterval = q.Get("interval")
		start, _ := strconv.ParseInt(q.Get("startTime"), 10, 64)
		limit, _ := strconv.Atoi(q.Get("limit"))

		rows := make([][]interface{}, 0, limit)
		for i := 0; i < limit; i++ {
			open := start + int64(i)*hourMs
			rows = append(rows, []interface{}{
				open, "100.5", "101.25", "99.75", "100.0", "12.5",
				open + hourMs - 1, "1250.0", 10, "6.0", "600.0", "0",
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rows)
	}))
	defer server.Close()

	src := NewBinanceSource(BinanceConfig{BaseURL: server.URL})
	candles, err := src.Klines(context.Background(), "BTCUSDT", "1h", testStart, testStart.Add(10*time.Hour), 3)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", gotSymbol)
	assert.Equal(t, "1h", gotInterval)
	require.Len(t, candles, 3)
	assert.Equal(t, testStart.UnixMilli()+hourMs, candles[1].Timestamp)
	assert.Equal(t, 101.25, candles[0].High)
	assert.Equal(t, 99.75, candles[0].Low)
	assert.Equal(t, 12.5, candles[0].Volume)
}

func TestBinanceSourceBadPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]interface{}{
			{testStart.UnixMilli(), "x", "1", "1", "1", "1", testStart.UnixMilli() + hourMs - 1, "1", 1, "1", "1", "0"},
		})
	}))
	defer server.Close()

	src := NewBinanceSource(BinanceConfig{BaseURL: server.URL})
	_, err := src.Klines(context.Background(), "BTCUSDT", "1h", time.Time{}, time.Time{}, 1)
	assert.ErrorContains(t, err, "open")
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR 未设置，跳过 Redis 测试")
	}

	cache := NewRedisCache(redis.NewClient(&redis.Options{Addr: addr}), "smabot:test:candles:", time.Minute)
	defer cache.Close()
	ctx := context.Background()
	require.NoError(t, cache.Ping(ctx))
	require.NoError(t, cache.Clear(ctx))

	key := CacheKey("BTCUSDT", "1h", testStart, testStart.Add(24*time.Hour))
	candles := newFakeSource(24).candles
	require.NoError(t, cache.Save(ctx, key, candles))

	loaded, err := cache.Load(ctx, key)
	require.NoError(t, err)
	require.Len(t, loaded, 24)
	assert.True(t, math.IsNaN(loaded[0].SlowMA))

	list, err := cache.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, cache.Delete(ctx, key))
	_, err = cache.Load(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)
}
