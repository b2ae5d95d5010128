package backtest

import (
	"math"

	"smabot/market"
	"smabot/strategy"
)

// EquityPoint 权益点：已实现利润 + 按收盘价计算的未实现盈亏
type EquityPoint struct {
	Timestamp int64   `json:"timestamp"`
	Equity    float64 `json:"equity"`
}

// Metrics 交易统计
type Metrics struct {
	TotalTrades            int     `json:"total_trades"`             // 成交配对数
	OpenPositions          int     `json:"open_positions"`           // 未平仓数
	ReturnOnSpent          float64 `json:"return_on_spent"`          // 利润 / 花费 (%)
	AvgTradeReturn         float64 `json:"avg_trade_return"`         // 单笔平均收益率 (%)
	AvgHoldingBars         float64 `json:"avg_holding_bars"`         // 平均持仓K线数
	MaxHoldingBars         int     `json:"max_holding_bars"`         // 最长持仓K线数
	MaxConcurrentPositions int     `json:"max_concurrent_positions"` // 最大同时持仓数
	UnrealizedPnL          float64 `json:"unrealized_pnl"`           // 未平仓按最后收盘价计算的盈亏
	MaxDrawdown            float64 `json:"max_drawdown"`             // 权益曲线最大回撤（金额）
}

// CalculateEquity 计算权益曲线
//
// 买入K线开始持仓，卖出K线按卖出价实现利润。
func CalculateEquity(series *market.Series, signals strategy.Signals) []EquityPoint {
	n := series.Len()
	if n == 0 {
		return []EquityPoint{}
	}

	exits := make(map[int]strategy.SellSignal, len(signals.Sells))
	for _, s := range signals.Sells {
		exits[s.EntryIndex] = s
	}

	// realized[i]：在第 i 根K线实现的利润
	realized := make([]float64, n)
	// 每个买入信号在 [EntryIndex, end) 区间内持仓
	type holding struct {
		start, end int
		entry, qty float64
	}
	holdings := make([]holding, 0, len(signals.Buys))
	for _, b := range signals.Buys {
		end := n
		if s, ok := exits[b.EntryIndex]; ok {
			end = s.ExitIndex
			realized[s.ExitIndex] += (s.ExitPrice - s.EntryPrice) * s.Quantity
		}
		holdings = append(holdings, holding{start: b.EntryIndex, end: end, entry: b.EntryPrice, qty: b.Quantity})
	}

	equity := make([]EquityPoint, n)
	cum := 0.0
	for i, c := range series.Candles {
		cum += realized[i]
		unrealized := 0.0
		for _, h := range holdings {
			if i >= h.start && i < h.end {
				unrealized += (c.Close - h.entry) * h.qty
			}
		}
		equity[i] = EquityPoint{Timestamp: c.Timestamp, Equity: cum + unrealized}
	}
	return equity
}

// CalculateMetrics 计算交易统计
func CalculateMetrics(series *market.Series, signals strategy.Signals, equity []EquityPoint) Metrics {
	trades := signals.Trades()
	open := signals.Open()

	m := Metrics{
		TotalTrades:   len(trades),
		OpenPositions: len(open),
		MaxDrawdown:   calculateMaxDrawdown(equity),
	}

	if series.Len() > 0 {
		last := series.Candles[series.Len()-1].Close
		for _, b := range open {
			m.UnrealizedPnL += (last - b.EntryPrice) * b.Quantity
		}
	}
	m.MaxConcurrentPositions = calculateMaxConcurrent(series.Len(), signals)

	if len(trades) == 0 {
		return m
	}

	spent, earned, returns, bars := 0.0, 0.0, 0.0, 0
	for _, t := range trades {
		spent += t.Buy.EntryPrice * t.Sell.Quantity
		earned += t.Sell.ExitPrice * t.Sell.Quantity
		if t.Buy.EntryPrice > 0 {
			returns += (t.Sell.ExitPrice - t.Buy.EntryPrice) / t.Buy.EntryPrice
		}
		held := t.HoldingBars()
		bars += held
		if held > m.MaxHoldingBars {
			m.MaxHoldingBars = held
		}
	}

	if spent > 0 {
		m.ReturnOnSpent = (earned - spent) / spent * 100
	}
	m.AvgTradeReturn = returns / float64(len(trades)) * 100
	m.AvgHoldingBars = float64(bars) / float64(len(trades))

	return m
}

// calculateMaxDrawdown 最大回撤（金额，权益从 0 起步，不用百分比）
func calculateMaxDrawdown(equity []EquityPoint) float64 {
	if len(equity) == 0 {
		return 0
	}

	maxDrawdown := 0.0
	peak := math.Max(0, equity[0].Equity)

	for _, point := range equity {
		if point.Equity > peak {
			peak = point.Equity
		}
		if drawdown := peak - point.Equity; drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}

	return maxDrawdown
}

// calculateMaxConcurrent 同一根K线上同时持有的最大仓位数
func calculateMaxConcurrent(n int, signals strategy.Signals) int {
	if n == 0 {
		return 0
	}

	exits := make(map[int]int, len(signals.Sells))
	for _, s := range signals.Sells {
		exits[s.EntryIndex] = s.ExitIndex
	}

	// 差分数组：买入K线 +1，卖出K线之后 -1
	delta := make([]int, n+1)
	for _, b := range signals.Buys {
		delta[b.EntryIndex]++
		if exit, ok := exits[b.EntryIndex]; ok {
			delta[exit+1]--
		}
	}

	maxOpen, cur := 0, 0
	for i := 0; i < n; i++ {
		cur += delta[i]
		if cur > maxOpen {
			maxOpen = cur
		}
	}
	return maxOpen
}
