package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smabot/backtest"
	"smabot/database"
	"smabot/event"
	"smabot/indicators"
	"smabot/market"
	"smabot/marketdata"
	"smabot/strategy"
)

const baseTimestamp = int64(1704067200000)

// dipCandles 第 4 根K线最低价跌到 90 并在同一根内反弹
func dipCandles() []market.Candle {
	candles := make([]market.Candle, 0, 10)
	for i := 0; i < 10; i++ {
		low, high := 99.0, 101.0
		if i == 4 {
			low, high = 90, 100
		}
		candles = append(candles, market.NewCandle(baseTimestamp+int64(i)*3600000, 100, high, low, 100, 10))
	}
	return candles
}

func testJob() Job {
	return Job{
		Symbol:     "btcusdt",
		Interval:   "1h",
		Config:     strategy.DefaultConfig(),
		Indicators: indicators.Options{Type: indicators.TypeSMA, FastWindow: 2, SlowWindow: 4},
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.EventType
	data   []map[string]interface{}
}

func (p *recordingPublisher) PublishEvent(t event.EventType, data map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, t)
	p.data = append(p.data, data)
}

type fakeSource struct {
	candles []market.Candle
	err     error
	calls   int
}

func (f *fakeSource) Klines(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]market.Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

func TestRunner_InlineCandles(t *testing.T) {
	dir := t.TempDir()
	db, err := database.NewDatabase(&database.Config{Type: "sqlite", DSN: filepath.Join(dir, "runs.db")})
	require.NoError(t, err)
	defer db.Close()

	pub := &recordingPublisher{}
	runner := NewRunner(nil,
		WithDatabase(db),
		WithPublisher(pub),
		WithOutput(OutputOptions{ReportDir: dir, Language: "en-US", SignalsCSV: true, EquityCSV: true}),
	)

	job := testJob()
	job.Candles = dipCandles()
	outcome, err := runner.Run(context.Background(), job)
	require.NoError(t, err)

	res := outcome.Result
	assert.Equal(t, "BTCUSDT", res.Symbol)
	assert.Equal(t, backtest.StatusOK, res.Report.Status)
	require.Len(t, res.Buys, 1)
	require.Len(t, res.Sells, 1)
	assert.Equal(t, 4, res.Buys[0].EntryIndex)
	assert.Equal(t, 90.0, res.Buys[0].EntryPrice)
	assert.Equal(t, 4, res.Sells[0].ExitIndex)
	assert.Equal(t, "1.8", res.Report.Profit.String())

	// 输出文件
	for _, p := range []string{outcome.ReportPath, outcome.SignalsPath, outcome.EquityPath} {
		require.NotEmpty(t, p)
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}

	// 回测记录
	require.NotZero(t, outcome.RunID)
	run, err := db.GetRun(context.Background(), outcome.RunID)
	require.NoError(t, err)
	assert.Equal(t, "ok", run.Status)
	require.Len(t, run.Signals, 1)
	assert.True(t, run.Signals[0].Matched)

	// 提供K线时不发布 data_fetched
	assert.Equal(t, []event.EventType{event.EventTypeBacktestStarted, event.EventTypeBacktestCompleted}, pub.events)
	assert.Equal(t, "1.8", pub.data[1]["profit"])
}

func TestRunner_Fetches(t *testing.T) {
	src := &fakeSource{candles: dipCandles()}
	fetcher := marketdata.NewFetcher(src, marketdata.WithRateLimit(0, 0))

	pub := &recordingPublisher{}
	runner := NewRunner(fetcher, WithPublisher(pub))

	job := testJob()
	job.Limit = 10
	outcome, err := runner.Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 10, outcome.Result.Candles)
	assert.Zero(t, outcome.RunID)
	assert.Empty(t, outcome.ReportPath)
	assert.Equal(t, []event.EventType{
		event.EventTypeBacktestStarted,
		event.EventTypeDataFetched,
		event.EventTypeBacktestCompleted,
	}, pub.events)
}

func TestRunner_Failures(t *testing.T) {
	pub := &recordingPublisher{}

	// 没有行情源
	_, err := NewRunner(nil, WithPublisher(pub)).Run(context.Background(), testJob())
	assert.Error(t, err)

	// 行情源出错
	fetcher := marketdata.NewFetcher(&fakeSource{err: errors.New("boom")}, marketdata.WithRateLimit(0, 0))
	_, err = NewRunner(fetcher).Run(context.Background(), testJob())
	assert.Error(t, err)

	// 慢线窗口不小于序列长度
	job := testJob()
	job.Candles = dipCandles()[:4]
	_, err = NewRunner(nil).Run(context.Background(), job)
	assert.ErrorIs(t, err, market.ErrInvalidWindow)

	// 未知策略
	job = testJob()
	job.Candles = dipCandles()
	job.Strategy = "grid"
	_, err = NewRunner(nil).Run(context.Background(), job)
	assert.Error(t, err)

	assert.Contains(t, pub.events, event.EventTypeBacktestFailed)
}

func TestRunner_SortsInlineCandles(t *testing.T) {
	candles := dipCandles()
	reversed := make([]market.Candle, len(candles))
	for i := range candles {
		reversed[len(candles)-1-i] = candles[i]
	}

	job := testJob()
	job.Candles = reversed
	outcome, err := NewRunner(nil).Run(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, outcome.Result.Buys, 1)
	assert.Equal(t, 4, outcome.Result.Buys[0].EntryIndex)
	// 调用方的切片不被修改
	assert.Equal(t, candles[9].Timestamp, reversed[0].Timestamp)
}
