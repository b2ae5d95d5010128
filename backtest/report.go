package backtest

import (
	"github.com/shopspring/decimal"

	"smabot/strategy"
)

// Status 回测结果状态
type Status string

const (
	StatusOK        Status = "ok"         // 至少一笔成交配对
	StatusNoSignals Status = "no_signals" // 没有买入信号
	StatusNoTrades  Status = "no_trades"  // 有买入信号但全部未卖出
)

// Report 回测统计
//
// AverageSellPrice 的分母是 CoinsBought 而不是 CoinsSold，
// 存在未平仓买入时平均卖出价会偏低。
type Report struct {
	Status           Status          `json:"status"`
	CoinsBought      decimal.Decimal `json:"coins_bought"`
	CoinsSold        decimal.Decimal `json:"coins_sold"`
	AverageBuyPrice  decimal.Decimal `json:"average_buy_price"`
	AverageSellPrice decimal.Decimal `json:"average_sell_price"`
	MoneySpent       decimal.Decimal `json:"money_spent"`
	MoneyEarned      decimal.Decimal `json:"money_earned"`
	Profit           decimal.Decimal `json:"profit"`
	BuyCount         int             `json:"buy_count"`
	MatchedCount     int             `json:"matched_count"`
	OpenPositions    int             `json:"open_positions"`
}

// Aggregate 汇总成交配对
//
// 只有配对成功的买卖计入花费与收入；CoinsBought 统计所有买入信号。
func Aggregate(signals strategy.Signals) Report {
	report := Report{
		Status:           StatusOK,
		CoinsBought:      decimal.Zero,
		CoinsSold:        decimal.Zero,
		AverageBuyPrice:  decimal.Zero,
		AverageSellPrice: decimal.Zero,
		MoneySpent:       decimal.Zero,
		MoneyEarned:      decimal.Zero,
		Profit:           decimal.Zero,
		BuyCount:         len(signals.Buys),
	}

	if len(signals.Buys) == 0 {
		report.Status = StatusNoSignals
		return report
	}

	for _, buy := range signals.Buys {
		report.CoinsBought = report.CoinsBought.Add(decimal.NewFromFloat(buy.Quantity))
	}

	trades := signals.Trades()
	report.MatchedCount = len(trades)
	report.OpenPositions = report.BuyCount - report.MatchedCount

	if len(trades) == 0 {
		report.Status = StatusNoTrades
		return report
	}

	for _, t := range trades {
		qty := decimal.NewFromFloat(t.Sell.Quantity)
		report.MoneySpent = report.MoneySpent.Add(decimal.NewFromFloat(t.Buy.EntryPrice).Mul(qty))
		report.MoneyEarned = report.MoneyEarned.Add(decimal.NewFromFloat(t.Sell.ExitPrice).Mul(qty))
		report.CoinsSold = report.CoinsSold.Add(qty)
	}
	report.Profit = report.MoneyEarned.Sub(report.MoneySpent)

	if report.CoinsBought.IsPositive() {
		report.AverageBuyPrice = report.MoneySpent.Div(report.CoinsBought)
		report.AverageSellPrice = report.MoneyEarned.Div(report.CoinsBought)
	}

	return report
}

// ProfitFloat 利润（float64），用于指标上报
func (r Report) ProfitFloat() float64 {
	f, _ := r.Profit.Float64()
	return f
}
