package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// 回测指标
	backtestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smabot_backtest_runs_total",
			Help: "Total number of backtest runs by result status",
		},
		[]string{"symbol", "status"},
	)

	backtestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smabot_backtest_duration_seconds",
			Help:    "Backtest run duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"symbol"},
	)

	signalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smabot_signals_total",
			Help: "Total number of generated signals (buy, sell, open)",
		},
		[]string{"symbol", "kind"},
	)

	lastProfit = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "smabot_backtest_last_profit",
			Help: "Profit of the latest backtest run",
		},
		[]string{"symbol"},
	)

	// 行情数据指标
	candlesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smabot_candles_fetched_total",
			Help: "Total number of candles downloaded from the market data source",
		},
		[]string{"symbol", "interval"},
	)

	fetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smabot_fetch_requests_total",
			Help: "Total number of market data API requests",
		},
		[]string{"status"},
	)

	cacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smabot_cache_requests_total",
			Help: "Candle cache lookups by result",
		},
		[]string{"backend", "result"},
	)

	// 系统指标
	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smabot_goroutines",
			Help: "Number of goroutines",
		},
	)

	memoryAlloc = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smabot_memory_alloc_bytes",
			Help: "Bytes of allocated heap objects",
		},
	)

	gcPause = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smabot_gc_pause_seconds",
			Help:    "Latest GC pause duration in seconds",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
		},
	)

	processCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smabot_process_cpu_percent",
			Help: "Process CPU usage percent",
		},
	)

	processMemoryMB = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smabot_process_memory_mb",
			Help: "Process resident memory in MB",
		},
	)

	processMemoryPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smabot_process_memory_percent",
			Help: "Process resident memory as percent of system memory",
		},
	)
)

// PrometheusMetrics Prometheus 指标收集器
type PrometheusMetrics struct {
	mu sync.RWMutex
}

var globalPrometheusMetrics *PrometheusMetrics

// NewPrometheusMetrics 创建 Prometheus 指标收集器
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{}
}

// GetPrometheusMetrics 获取全局 Prometheus 指标收集器
func GetPrometheusMetrics() *PrometheusMetrics {
	once.Do(func() {
		globalPrometheusMetrics = NewPrometheusMetrics()
	})
	return globalPrometheusMetrics
}

// 回测相关指标记录

// RecordBacktest 记录一次回测
func (pm *PrometheusMetrics) RecordBacktest(symbol, status string, duration time.Duration, buys, sells, open int, profit float64) {
	backtestRunsTotal.WithLabelValues(symbol, status).Inc()
	backtestDuration.WithLabelValues(symbol).Observe(duration.Seconds())
	signalsTotal.WithLabelValues(symbol, "buy").Add(float64(buys))
	signalsTotal.WithLabelValues(symbol, "sell").Add(float64(sells))
	signalsTotal.WithLabelValues(symbol, "open").Add(float64(open))
	lastProfit.WithLabelValues(symbol).Set(profit)
}

// RecordBacktestFailure 记录回测失败
func (pm *PrometheusMetrics) RecordBacktestFailure(symbol string) {
	backtestRunsTotal.WithLabelValues(symbol, "failed").Inc()
}

// 行情数据相关指标记录

// RecordCandlesFetched 记录下载的K线数量
func (pm *PrometheusMetrics) RecordCandlesFetched(symbol, interval string, count int) {
	candlesFetchedTotal.WithLabelValues(symbol, interval).Add(float64(count))
}

// RecordFetchRequest 记录一次行情接口请求
func (pm *PrometheusMetrics) RecordFetchRequest(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	fetchRequestsTotal.WithLabelValues(status).Inc()
}

// RecordCacheHit 记录缓存命中
func (pm *PrometheusMetrics) RecordCacheHit(backend string) {
	cacheRequestsTotal.WithLabelValues(backend, "hit").Inc()
}

// RecordCacheMiss 记录缓存未命中
func (pm *PrometheusMetrics) RecordCacheMiss(backend string) {
	cacheRequestsTotal.WithLabelValues(backend, "miss").Inc()
}

// 系统相关指标记录

// SetGoroutineCount 设置 goroutine 数量
func (pm *PrometheusMetrics) SetGoroutineCount(count int) {
	goroutineCount.Set(float64(count))
}

// SetMemoryAlloc 设置已分配内存
func (pm *PrometheusMetrics) SetMemoryAlloc(bytes uint64) {
	memoryAlloc.Set(float64(bytes))
}

// RecordGCPause 记录 GC 停顿
func (pm *PrometheusMetrics) RecordGCPause(d time.Duration) {
	gcPause.Observe(d.Seconds())
}

// SetProcessStats 设置进程资源占用
func (pm *PrometheusMetrics) SetProcessStats(cpuPercent, memoryMB, memoryPercent float64) {
	processCPUPercent.Set(cpuPercent)
	processMemoryMB.Set(memoryMB)
	processMemoryPercent.Set(memoryPercent)
}
