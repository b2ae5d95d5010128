package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smabot/backtest"
	"smabot/indicators"
	"smabot/strategy"
)

func newTestDB(t *testing.T) Database {
	t.Helper()
	db, err := NewDatabase(&Config{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "smabot.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testResult() *backtest.Result {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &backtest.Result{
		Symbol:     "BTCUSDT",
		Interval:   "1h",
		Strategy:   strategy.NameSMAThreshold,
		StartTime:  start,
		EndTime:    start.Add(10 * time.Hour),
		Candles:    11,
		Config:     strategy.DefaultConfig(),
		Indicators: indicators.DefaultOptions(),
		Buys: []strategy.BuySignal{
			{Time: 1, EntryPrice: 100, TargetPrice: 102, EntryIndex: 1, Quantity: 1},
			{Time: 5, EntryPrice: 90, TargetPrice: 91.8, EntryIndex: 5, Quantity: 1},
		},
		Sells: []strategy.SellSignal{
			{Time: 2, EntryPrice: 100, ExitPrice: 102, EntryIndex: 1, ExitIndex: 2, Quantity: 1},
		},
		Report: backtest.Report{
			Status:        backtest.StatusOK,
			CoinsBought:   decimal.NewFromInt(2),
			CoinsSold:     decimal.NewFromInt(1),
			MoneySpent:    decimal.NewFromInt(100),
			MoneyEarned:   decimal.NewFromInt(102),
			Profit:        decimal.NewFromInt(2),
			BuyCount:      2,
			MatchedCount:  1,
			OpenPositions: 1,
		},
		Elapsed: 15 * time.Millisecond,
	}
}

func TestNewBacktestRun(t *testing.T) {
	run := NewBacktestRun(testResult())

	assert.Equal(t, "BTCUSDT", run.Symbol)
	assert.Equal(t, "ok", run.Status)
	assert.Equal(t, 30, run.SlowWindow)
	assert.Equal(t, int64(15), run.DurationMs)
	require.Len(t, run.Signals, 2)

	assert.True(t, run.Signals[0].Matched)
	assert.Equal(t, 2, run.Signals[0].ExitIndex)
	assert.Equal(t, 102.0, run.Signals[0].ExitPrice)

	assert.False(t, run.Signals[1].Matched)
	assert.Equal(t, -1, run.Signals[1].ExitIndex)
}

func TestGormDatabase_Runs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := NewBacktestRun(testResult())
	require.NoError(t, db.SaveRun(ctx, run))
	require.NotZero(t, run.ID)

	other := NewBacktestRun(testResult())
	other.Symbol = "ETHUSDT"
	other.Status = "no_trades"
	require.NoError(t, db.SaveRun(ctx, other))

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.True(t, got.Profit.Equal(decimal.NewFromInt(2)), got.Profit.String())
	require.Len(t, got.Signals, 2)
	assert.Equal(t, 1, got.Signals[0].EntryIndex)
	assert.Equal(t, 5, got.Signals[1].EntryIndex)

	all, err := db.ListRuns(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Empty(t, all[0].Signals)

	btc, err := db.ListRuns(ctx, &RunFilter{Symbol: "BTCUSDT"})
	require.NoError(t, err)
	require.Len(t, btc, 1)
	assert.Equal(t, run.ID, btc[0].ID)

	noTrades, err := db.ListRuns(ctx, &RunFilter{Status: "no_trades"})
	require.NoError(t, err)
	require.Len(t, noTrades, 1)
	assert.Equal(t, "ETHUSDT", noTrades[0].Symbol)

	require.NoError(t, db.DeleteRun(ctx, run.ID))
	_, err = db.GetRun(ctx, run.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.DeleteRun(ctx, run.ID), ErrNotFound)
}

func TestGormDatabase_Events(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveEvent(ctx, &EventRecord{Type: "backtest_started", Symbol: "BTCUSDT", Message: "start"}))
	require.NoError(t, db.SaveEvent(ctx, &EventRecord{Type: "backtest_completed", Symbol: "BTCUSDT", Message: "done"}))
	require.NoError(t, db.SaveEvent(ctx, &EventRecord{Type: "data_fetched", Symbol: "ETHUSDT"}))

	events, err := db.GetEvents(ctx, &EventFilter{Symbol: "BTCUSDT"})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	completed, err := db.GetEvents(ctx, &EventFilter{Type: "backtest_completed"})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "done", completed[0].Message)

	limited, err := db.GetEvents(ctx, &EventFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	n, err := db.CleanupEvents(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.NoError(t, db.Ping(ctx))
}

func TestNewDatabase_UnsupportedType(t *testing.T) {
	_, err := NewDatabase(&Config{Type: "oracle"})
	assert.Error(t, err)
}
