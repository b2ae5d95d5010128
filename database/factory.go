package database

import (
	"fmt"
	"time"

	"smabot/backtest"
)

// Config 数据库配置
type Config struct {
	Type            string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

// NewDatabase 根据配置创建数据库实例
func NewDatabase(config *Config) (Database, error) {
	dbConfig := &DBConfig{
		Type:            config.Type,
		DSN:             config.DSN,
		MaxOpenConns:    config.MaxOpenConns,
		MaxIdleConns:    config.MaxIdleConns,
		ConnMaxLifetime: config.ConnMaxLifetime,
		LogLevel:        config.LogLevel,
	}

	switch config.Type {
	case "sqlite", "postgres", "postgresql", "mysql":
		return NewGormDatabase(dbConfig)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}
}

// NewBacktestRun 把回测结果转换为存储记录
func NewBacktestRun(result *backtest.Result) *BacktestRun {
	r := result.Report
	run := &BacktestRun{
		Symbol:              result.Symbol,
		Interval:            result.Interval,
		Strategy:            result.Strategy,
		MAType:              result.Indicators.Type,
		FastWindow:          result.Indicators.FastWindow,
		SlowWindow:          result.Indicators.SlowWindow,
		EntryThresholdRatio: result.Config.EntryThresholdRatio,
		ExitMarkupRatio:     result.Config.ExitMarkupRatio,
		Quantity:            result.Config.Quantity,
		StartTime:           result.StartTime,
		EndTime:             result.EndTime,
		Candles:             result.Candles,
		Status:              string(r.Status),
		BuyCount:            r.BuyCount,
		MatchedCount:        r.MatchedCount,
		OpenPositions:       r.OpenPositions,
		CoinsBought:         r.CoinsBought,
		CoinsSold:           r.CoinsSold,
		AverageBuyPrice:     r.AverageBuyPrice,
		AverageSellPrice:    r.AverageSellPrice,
		MoneySpent:          r.MoneySpent,
		MoneyEarned:         r.MoneyEarned,
		Profit:              r.Profit,
		DurationMs:          result.Elapsed.Milliseconds(),
	}

	sells := make(map[int]int, len(result.Sells))
	for i, s := range result.Sells {
		sells[s.EntryIndex] = i
	}

	run.Signals = make([]SignalRecord, 0, len(result.Buys))
	for _, b := range result.Buys {
		rec := SignalRecord{
			EntryIndex:  b.EntryIndex,
			BuyTime:     b.Time,
			EntryPrice:  b.EntryPrice,
			TargetPrice: b.TargetPrice,
			Quantity:    b.Quantity,
			ExitIndex:   -1,
		}
		if i, ok := sells[b.EntryIndex]; ok {
			s := result.Sells[i]
			rec.Matched = true
			rec.ExitIndex = s.ExitIndex
			rec.SellTime = s.Time
			rec.ExitPrice = s.ExitPrice
		}
		run.Signals = append(run.Signals, rec)
	}

	return run
}
