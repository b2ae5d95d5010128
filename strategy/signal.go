package strategy

import (
	"time"
)

// BuySignal 买入信号
type BuySignal struct {
	Time        int64   `json:"time"`         // 触发K线时间（毫秒）
	EntryPrice  float64 `json:"entry_price"`  // 买入价（触发K线最低价）
	TargetPrice float64 `json:"target_price"` // 目标卖出价
	EntryIndex  int     `json:"entry_index"`  // 触发K线在序列中的下标
	Quantity    float64 `json:"quantity"`
}

// SellSignal 卖出信号，通过 EntryIndex 关联唯一的买入信号
type SellSignal struct {
	Time       int64   `json:"time"` // 成交K线时间（毫秒）
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"` // 固定为买入信号的目标价
	EntryIndex int     `json:"entry_index"`
	ExitIndex  int     `json:"exit_index"`
	Quantity   float64 `json:"quantity"`
}

// Trade 已配对的买卖
type Trade struct {
	Buy  BuySignal  `json:"buy"`
	Sell SellSignal `json:"sell"`
}

// HoldingBars 持仓K线数
func (t Trade) HoldingBars() int {
	return t.Sell.ExitIndex - t.Buy.EntryIndex
}

// Signals 一次运行产生的全部信号
type Signals struct {
	Buys  []BuySignal  `json:"buy_signals"`
	Sells []SellSignal `json:"sell_signals"`
}

// Trades 按 EntryIndex 配对，顺序与买入信号一致
func (s Signals) Trades() []Trade {
	sells := make(map[int]SellSignal, len(s.Sells))
	for _, sell := range s.Sells {
		sells[sell.EntryIndex] = sell
	}

	trades := make([]Trade, 0, len(s.Sells))
	for _, buy := range s.Buys {
		if sell, ok := sells[buy.EntryIndex]; ok {
			trades = append(trades, Trade{Buy: buy, Sell: sell})
		}
	}
	return trades
}

// Open 未能卖出的买入信号（持仓到序列结束）
func (s Signals) Open() []BuySignal {
	matched := make(map[int]bool, len(s.Sells))
	for _, sell := range s.Sells {
		matched[sell.EntryIndex] = true
	}

	open := make([]BuySignal, 0)
	for _, buy := range s.Buys {
		if !matched[buy.EntryIndex] {
			open = append(open, buy)
		}
	}
	return open
}

// BuyTime 买入时间
func (b BuySignal) BuyTime() time.Time {
	return time.UnixMilli(b.Time).UTC()
}

// SellTime 卖出时间
func (s SellSignal) SellTime() time.Time {
	return time.UnixMilli(s.Time).UTC()
}
