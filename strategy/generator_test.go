package strategy

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smabot/market"
)

// bar 测试用K线：只关心最低价、最高价和慢线
type bar struct {
	low, high, slow float64
}

func makeSeries(slowWindow int, bars ...bar) *market.Series {
	candles := make([]market.Candle, len(bars))
	for i, b := range bars {
		c := market.NewCandle(int64(i)*3600000, b.low, b.high, b.low, b.high, 1)
		c.SlowMA = b.slow
		candles[i] = c
	}
	s := market.NewSeries("BTCUSDT", "1h", candles)
	s.SlowWindow = slowWindow
	return s
}

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewGenerator(DefaultConfig())
	require.NoError(t, err)
	return g
}

func TestWorkedExample(t *testing.T) {
	nan := math.NaN()
	series := makeSeries(2,
		bar{low: 99, high: 101, slow: nan},
		bar{low: 100, high: 100.5, slow: 104},
		bar{low: 100.5, high: 103, slow: 101},
	)

	signals, err := newTestGenerator(t).Generate(context.Background(), series)
	require.NoError(t, err)

	require.Len(t, signals.Buys, 1)
	buy := signals.Buys[0]
	assert.Equal(t, 1, buy.EntryIndex)
	assert.Equal(t, 100.0, buy.EntryPrice)
	assert.InDelta(t, 102.0, buy.TargetPrice, 1e-9)
	assert.Equal(t, series.Candles[1].Timestamp, buy.Time)

	require.Len(t, signals.Sells, 1)
	sell := signals.Sells[0]
	assert.Equal(t, buy.TargetPrice, sell.ExitPrice)
	assert.Equal(t, 1, sell.EntryIndex)
	assert.Equal(t, 2, sell.ExitIndex)
	assert.Equal(t, series.Candles[2].Timestamp, sell.Time)
}

func TestEntryThresholdIsStrict(t *testing.T) {
	g := newTestGenerator(t)

	tests := []struct {
		name string
		low  float64
		slow float64
		want int
	}{
		{"gap equals threshold", 100, 103, 0},
		{"gap above threshold", 100, 103.01, 1},
		{"no gap", 100, 100, 0},
		{"low above slow", 105, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := makeSeries(1,
				bar{low: 1000, high: 1000, slow: 1000},
				bar{low: tt.low, high: tt.low, slow: tt.slow},
			)
			buys, err := g.ScanEntries(series)
			require.NoError(t, err)
			assert.Len(t, buys, tt.want)
		})
	}
}

func TestFirstCandleNeverTriggers(t *testing.T) {
	series := makeSeries(1,
		bar{low: 50, high: 50, slow: 100},
		bar{low: 100, high: 100, slow: 100},
	)
	buys, err := newTestGenerator(t).ScanEntries(series)
	require.NoError(t, err)
	assert.Empty(t, buys)
}

func TestExitCanHappenOnEntryCandle(t *testing.T) {
	// 最高价在买入K线内已达到目标价
	series := makeSeries(1,
		bar{low: 100, high: 100, slow: 100},
		bar{low: 100, high: 110, slow: 110},
	)
	signals, err := newTestGenerator(t).Generate(context.Background(), series)
	require.NoError(t, err)
	require.Len(t, signals.Sells, 1)
	assert.Equal(t, 1, signals.Sells[0].EntryIndex)
	assert.Equal(t, 1, signals.Sells[0].ExitIndex)
}

func TestUnmatchedBuyStaysOpen(t *testing.T) {
	series := makeSeries(1,
		bar{low: 100, high: 100, slow: 100},
		bar{low: 90, high: 91, slow: 100},
		bar{low: 80, high: 91, slow: 100},
		bar{low: 91, high: 91.5, slow: 93},
	)
	signals, err := newTestGenerator(t).Generate(context.Background(), series)
	require.NoError(t, err)

	// 下标 1 目标 91.8 未达到；下标 2 目标 81.6 在下标 2 达到
	require.Len(t, signals.Buys, 2)
	require.Len(t, signals.Sells, 1)
	assert.Equal(t, 2, signals.Sells[0].EntryIndex)

	open := signals.Open()
	require.Len(t, open, 1)
	assert.Equal(t, 1, open[0].EntryIndex)

	trades := signals.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, trades[0].Buy.EntryIndex, trades[0].Sell.EntryIndex)
	assert.Equal(t, 0, trades[0].HoldingBars())
}

func TestMissingIndicatorOutsideWarmUp(t *testing.T) {
	series := makeSeries(2,
		bar{low: 100, high: 100, slow: math.NaN()},
		bar{low: 100, high: 100, slow: 100},
		bar{low: 100, high: 100, slow: math.NaN()},
	)
	_, err := newTestGenerator(t).Generate(context.Background(), series)
	require.Error(t, err)
	assert.True(t, errors.Is(err, market.ErrMissingIndicator))
}

func TestRawSeriesWithoutIndicators(t *testing.T) {
	candles := make([]market.Candle, 40)
	for i := range candles {
		candles[i] = market.NewCandle(int64(i)*3600000, 100, 100, 1, 100, 1)
	}
	series := market.NewSeries("BTCUSDT", "1h", candles)

	signals, err := newTestGenerator(t).Generate(context.Background(), series)
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrMissingIndicator)
	assert.Empty(t, signals.Buys)
	assert.False(t, series.InWarmUp(0))
}

func TestEmptySeries(t *testing.T) {
	_, err := newTestGenerator(t).Generate(context.Background(), market.NewSeries("X", "1h", nil))
	assert.ErrorIs(t, err, market.ErrEmptySeries)
}

func TestSignalInvariants(t *testing.T) {
	series := oscillatingSeries(500)
	signals, err := newTestGenerator(t).Generate(context.Background(), series)
	require.NoError(t, err)
	require.NotEmpty(t, signals.Buys)

	buys := make(map[int]BuySignal, len(signals.Buys))
	for _, b := range signals.Buys {
		buys[b.EntryIndex] = b
	}
	for _, s := range signals.Sells {
		b, ok := buys[s.EntryIndex]
		require.True(t, ok)
		assert.Equal(t, b.TargetPrice, s.ExitPrice)
		assert.GreaterOrEqual(t, s.ExitIndex, s.EntryIndex)
		assert.GreaterOrEqual(t, series.Candles[s.ExitIndex].High, s.ExitPrice)
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	series := oscillatingSeries(300)
	g := newTestGenerator(t)

	first, err := g.Generate(context.Background(), series)
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), series)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParallelExitsMatchSequential(t *testing.T) {
	series := oscillatingSeries(2000)

	seq := newTestGenerator(t)
	cfg := DefaultConfig()
	cfg.Workers = 8
	par, err := NewGenerator(cfg)
	require.NoError(t, err)

	want, err := seq.Generate(context.Background(), series)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(want.Buys), minParallelBuys)

	got, err := par.Generate(context.Background(), series)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestScanExitsCancelled(t *testing.T) {
	series := oscillatingSeries(200)
	g := newTestGenerator(t)
	buys, err := g.ScanEntries(series)
	require.NoError(t, err)
	require.NotEmpty(t, buys)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.ScanExits(ctx, series, buys)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0.03, cfg.EntryThresholdRatio)
	assert.Equal(t, 0.02, cfg.ExitMarkupRatio)
	assert.Equal(t, 1.0, cfg.Quantity)
	require.NoError(t, cfg.Validate())

	bad := []Config{
		{EntryThresholdRatio: -0.1, ExitMarkupRatio: 0.02, Quantity: 1},
		{EntryThresholdRatio: 0.03, ExitMarkupRatio: math.NaN(), Quantity: 1},
		{EntryThresholdRatio: 0.03, ExitMarkupRatio: 0.02, Quantity: 0},
		{EntryThresholdRatio: 0.03, ExitMarkupRatio: 0.02, Quantity: 1, Workers: -1},
	}
	for _, c := range bad {
		assert.Error(t, c.Validate(), "%+v", c)
		_, err := NewGenerator(c)
		assert.Error(t, err)
	}
}

func TestRegistry(t *testing.T) {
	s, err := New("", DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, NameSMAThreshold, s.Name())
	assert.Contains(t, Names(), NameSMAThreshold)

	_, err = New("martingale", DefaultConfig())
	assert.ErrorIs(t, err, ErrUnknownStrategy)
	assert.Contains(t, err.Error(), "martingale")
}

// oscillatingSeries 慢线固定为 100，最低价在 90~110 之间摆动
func oscillatingSeries(n int) *market.Series {
	bars := make([]bar, n)
	for i := range bars {
		low := 100 + 10*math.Sin(float64(i)/5)
		bars[i] = bar{low: low, high: low + 1.5, slow: 100}
	}
	return makeSeries(1, bars...)
}
