package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"smabot/lock"
	"smabot/logger"
	"smabot/market"
	"smabot/metrics"
)

// DefaultLatestLimit 未指定时间范围时获取的K线数量
const DefaultLatestLimit = 500

// Request 行情请求
type Request struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Limit    int       `json:"limit"`    // 仅在未指定时间范围时使用
	NoCache  bool      `json:"no_cache"` // 跳过缓存读取
}

// HasRange 是否指定了时间范围
func (r Request) HasRange() bool {
	return !r.Start.IsZero()
}

// Validate 校验请求
func (r Request) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if _, err := IntervalDuration(r.Interval); err != nil {
		return err
	}
	if !r.End.IsZero() && r.Start.IsZero() {
		return fmt.Errorf("end time requires a start time")
	}
	if r.HasRange() && !r.End.IsZero() && !r.End.After(r.Start) {
		return fmt.Errorf("end time %s must be after start time %s", r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	if r.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	return nil
}

// Fetcher 带缓存的K线获取器
type Fetcher struct {
	source       KlineSource
	cache        CandleCache
	cacheBackend string
	locker       lock.DistributedLock
	lockTTL      time.Duration
	limiter      *rate.Limiter
	batchLimit   int
	now          func() time.Time
}

// FetcherOption 获取器选项
type FetcherOption func(*Fetcher)

// WithCache 设置缓存，backend 用于指标标签
func WithCache(cache CandleCache, backend string) FetcherOption {
	return func(f *Fetcher) {
		f.cache = cache
		f.cacheBackend = backend
	}
}

// WithLock 设置下载锁，同一缓存键的并发下载会串行化
func WithLock(l lock.DistributedLock, ttl time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.locker = l
		f.lockTTL = ttl
	}
}

// WithRateLimit 设置请求速率（每秒请求数）
func WithRateLimit(rps float64, burst int) FetcherOption {
	return func(f *Fetcher) {
		if rps <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBatchLimit 设置单次请求的K线数量上限
func WithBatchLimit(limit int) FetcherOption {
	return func(f *Fetcher) {
		if limit > 0 && limit <= MaxKlinesPerRequest {
			f.batchLimit = limit
		}
	}
}

// NewFetcher 创建获取器，默认不缓存、不加锁、每秒 10 次请求
func NewFetcher(source KlineSource, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		source:       source,
		cache:        NopCache{},
		cacheBackend: "none",
		locker:       lock.NewNopLock(),
		lockTTL:      5 * time.Minute,
		limiter:      rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		batchLimit:   MaxKlinesPerRequest,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Cache 当前缓存
func (f *Fetcher) Cache() CandleCache {
	return f.cache
}

// Fetch 获取K线序列（优先缓存）
//
// 指定时间范围时结果写入缓存；未指定时获取最新 Limit 根，不缓存。
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*market.Series, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if !req.HasRange() {
		return f.fetchLatest(ctx, req)
	}
	if req.End.IsZero() {
		// 结束时间随当前时间变化，结果不缓存
		req.End = f.now()
		candles, err := f.fetchRange(ctx, req.Symbol, req.Interval, req.Start, req.End)
		if err != nil {
			return nil, err
		}
		return market.NewSeries(req.Symbol, req.Interval, candles), nil
	}

	cacheKey := CacheKey(req.Symbol, req.Interval, req.Start, req.End)

	if !req.NoCache {
		if candles, ok := f.loadCache(ctx, cacheKey, req); ok {
			return market.NewSeries(req.Symbol, req.Interval, candles), nil
		}
	}

	if err := f.locker.Lock(ctx, lock.FetchKey(cacheKey), f.lockTTL); err != nil {
		return nil, fmt.Errorf("获取下载锁失败: %w", err)
	}
	defer func() {
		if err := f.locker.Unlock(context.Background(), lock.FetchKey(cacheKey)); err != nil {
			logger.Warn("⚠️ 释放下载锁失败: %v", err)
		}
	}()

	// 等锁期间可能已被其他实例写入缓存
	if !req.NoCache {
		if candles, ok := f.loadCache(ctx, cacheKey, req); ok {
			return market.NewSeries(req.Symbol, req.Interval, candles), nil
		}
	}

	logger.Info("⬇️ 从 Binance 下载: %s %s (%s 至 %s)",
		req.Symbol, req.Interval,
		req.Start.Format("2006-01-02"),
		req.End.Format("2006-01-02"))

	candles, err := f.fetchRange(ctx, req.Symbol, req.Interval, req.Start, req.End)
	if err != nil {
		return nil, err
	}

	if len(candles) > 0 {
		if err := f.cache.Save(ctx, cacheKey, candles); err != nil {
			logger.Warn("⚠️ 缓存保存失败: %v", err)
		} else {
			logger.Info("💾 已缓存: %s (%d 根K线)", cacheKey, len(candles))
		}
	}

	return market.NewSeries(req.Symbol, req.Interval, candles), nil
}

// loadCache 读取缓存并裁剪到请求范围
func (f *Fetcher) loadCache(ctx context.Context, key string, req Request) ([]market.Candle, bool) {
	pm := metrics.GetPrometheusMetrics()

	candles, err := f.cache.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			logger.Warn("⚠️ 读取缓存 %s 失败: %v", key, err)
		}
		pm.RecordCacheMiss(f.cacheBackend)
		return nil, false
	}
	candles = normalize(candles, req.Start.UnixMilli(), req.End.UnixMilli())
	if len(candles) == 0 {
		pm.RecordCacheMiss(f.cacheBackend)
		return nil, false
	}

	pm.RecordCacheHit(f.cacheBackend)
	logger.Info("✅ 从缓存加载: %s (%d 根K线)", key, len(candles))
	return candles, true
}

// fetchLatest 获取最新 limit 根K线
func (f *Fetcher) fetchLatest(ctx context.Context, req Request) (*market.Series, error) {
	limit := req.Limit
	if limit == 0 {
		limit = DefaultLatestLimit
	}

	var candles []market.Candle
	if limit <= f.batchLimit {
		batch, err := f.request(ctx, req.Symbol, req.Interval, time.Time{}, time.Time{}, limit)
		if err != nil {
			return nil, err
		}
		candles = normalize(batch, 0, 0)
	} else {
		// 超过单次上限时按时间范围分批获取，再取最后 limit 根
		d, _ := IntervalDuration(req.Interval)
		end := f.now()
		start := end.Add(-d * time.Duration(limit+1))
		all, err := f.fetchRange(ctx, req.Symbol, req.Interval, start, end)
		if err != nil {
			return nil, err
		}
		candles = all
	}

	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	logger.Info("✅ 获取最新K线: %s %s (%d 根)", req.Symbol, req.Interval, len(candles))

	return market.NewSeries(req.Symbol, req.Interval, candles), nil
}

// fetchRange 分批获取 [start, end] 范围内的K线
func (f *Fetcher) fetchRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]market.Candle, error) {
	all := make([]market.Candle, 0)
	currentStart := start

	totalBatches := int(end.Sub(start) / calculateBatchDuration(interval, f.batchLimit))
	if totalBatches == 0 {
		totalBatches = 1
	}
	batchNum := 0

	for !currentStart.After(end) {
		batchNum++

		candles, err := f.request(ctx, symbol, interval, currentStart, end, f.batchLimit)
		if err != nil {
			return nil, fmt.Errorf("获取第 %d 批数据失败: %w", batchNum, err)
		}
		if len(candles) == 0 {
			break
		}
		all = append(all, candles...)

		next := time.UnixMilli(candles[len(candles)-1].Timestamp + 1)
		if !next.After(currentStart) {
			break
		}
		currentStart = next

		progress := float64(batchNum) / float64(totalBatches) * 100
		if progress > 100 {
			progress = 100
		}
		logger.Debug("📊 下载进度: %.1f%% (已获取 %d 根K线)", progress, len(all))

		if len(candles) < f.batchLimit {
			break
		}
	}

	result := normalize(all, start.UnixMilli(), end.UnixMilli())
	logger.Info("✅ 下载完成: 共 %d 根K线", len(result))
	return result, nil
}

// request 单次请求，受速率限制
func (f *Fetcher) request(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]market.Candle, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	pm := metrics.GetPrometheusMetrics()
	candles, err := f.source.Klines(ctx, symbol, interval, start, end, limit)
	pm.RecordFetchRequest(err == nil)
	if err != nil {
		return nil, err
	}
	pm.RecordCandlesFetched(symbol, interval, len(candles))
	return candles, nil
}

// normalize 过滤到 [startMs, endMs]（0 表示不限制），按时间升序排序并去掉重复时间戳
func normalize(candles []market.Candle, startMs, endMs int64) []market.Candle {
	out := make([]market.Candle, 0, len(candles))
	for _, c := range candles {
		if startMs > 0 && c.Timestamp < startMs {
			continue
		}
		if endMs > 0 && c.Timestamp > endMs {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })

	deduped := make([]market.Candle, 0, len(out))
	for _, c := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Timestamp == c.Timestamp {
			continue
		}
		deduped = append(deduped, c)
	}
	return deduped
}
