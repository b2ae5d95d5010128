package backtest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"smabot/i18n"
)

// 报告中最多列出的交易笔数
const maxReportTrades = 50

// GenerateReport 生成 Markdown 回测报告，返回文件路径
func GenerateReport(result *Result, dir, lang string) (string, error) {
	if dir == "" {
		dir = filepath.Join("backtest", "reports")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := fmt.Sprintf("%s_%s_%s_%s.md", result.Strategy, result.Symbol, result.Interval, timestamp)
	reportPath := filepath.Join(dir, filename)

	content, err := RenderReport(result, lang)
	if err != nil {
		return "", fmt.Errorf("渲染报告模板失败: %w", err)
	}

	if err := os.WriteFile(reportPath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}

	return reportPath, nil
}

// ReportData 报告数据
type ReportData struct {
	Title       string
	GeneratedAt string
	Symbol      string
	Interval    string
	StartDate   string
	EndDate     string
	Candles     int

	MAType         string
	FastWindow     int
	SlowWindow     int
	EntryThreshold string
	ExitMarkup     string
	Quantity       string

	Status           string
	CoinsBought      string
	CoinsSold        string
	AverageBuyPrice  string
	AverageSellPrice string
	MoneySpent       string
	MoneyEarned      string
	Profit           string
	BuyCount         int
	MatchedCount     int
	OpenPositions    int

	ReturnOnSpent          string
	AvgHoldingBars         string
	MaxHoldingBars         int
	MaxConcurrentPositions int
	UnrealizedPnL          string
	MaxDrawdown            string

	Trades []TradeRow
}

// TradeRow 交易行，未卖出时卖出列为空
type TradeRow struct {
	BuyTime    string
	EntryPrice string
	SellTime   string
	ExitPrice  string
}

func prepareReportData(result *Result, lang string) ReportData {
	r := result.Report
	m := result.Metrics

	rows := make([]TradeRow, 0)
	sells := make(map[int]int, len(result.Sells))
	for i, s := range result.Sells {
		sells[s.EntryIndex] = i
	}
	for _, b := range result.Buys {
		if len(rows) >= maxReportTrades {
			break
		}
		row := TradeRow{
			BuyTime:    b.BuyTime().Format("2006-01-02 15:04"),
			EntryPrice: fmt.Sprintf("%.4f", b.EntryPrice),
			SellTime:   i18n.TWithLang(lang, "report.open"),
		}
		if i, ok := sells[b.EntryIndex]; ok {
			s := result.Sells[i]
			row.SellTime = s.SellTime().Format("2006-01-02 15:04")
			row.ExitPrice = fmt.Sprintf("%.4f", s.ExitPrice)
		}
		rows = append(rows, row)
	}

	return ReportData{
		Title:       i18n.TWithLang(lang, "report.title", map[string]interface{}{"Strategy": result.Strategy}),
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
		Symbol:      result.Symbol,
		Interval:    result.Interval,
		StartDate:   result.StartTime.Format("2006-01-02 15:04"),
		EndDate:     result.EndTime.Format("2006-01-02 15:04"),
		Candles:     result.Candles,

		MAType:         result.Indicators.Type,
		FastWindow:     result.Indicators.FastWindow,
		SlowWindow:     result.Indicators.SlowWindow,
		EntryThreshold: fmt.Sprintf("%.2f%%", result.Config.EntryThresholdRatio*100),
		ExitMarkup:     fmt.Sprintf("%.2f%%", result.Config.ExitMarkupRatio*100),
		Quantity:       fmt.Sprintf("%g", result.Config.Quantity),

		Status:           i18n.TWithLang(lang, "status."+string(r.Status)),
		CoinsBought:      r.CoinsBought.String(),
		CoinsSold:        r.CoinsSold.String(),
		AverageBuyPrice:  r.AverageBuyPrice.StringFixed(4),
		AverageSellPrice: r.AverageSellPrice.StringFixed(4),
		MoneySpent:       r.MoneySpent.StringFixed(4),
		MoneyEarned:      r.MoneyEarned.StringFixed(4),
		Profit:           r.Profit.StringFixed(4),
		BuyCount:         r.BuyCount,
		MatchedCount:     r.MatchedCount,
		OpenPositions:    r.OpenPositions,

		ReturnOnSpent:          fmt.Sprintf("%.2f%%", m.ReturnOnSpent),
		AvgHoldingBars:         fmt.Sprintf("%.1f", m.AvgHoldingBars),
		MaxHoldingBars:         m.MaxHoldingBars,
		MaxConcurrentPositions: m.MaxConcurrentPositions,
		UnrealizedPnL:          fmt.Sprintf("%.4f", m.UnrealizedPnL),
		MaxDrawdown:            fmt.Sprintf("%.4f", m.MaxDrawdown),

		Trades: rows,
	}
}

const reportTemplate = `# {{.Title}}

{{t "report.generated_at"}}: {{.GeneratedAt}}

## {{t "report.summary"}}

- **{{t "report.symbol"}}**: {{.Symbol}}
- **{{t "report.interval"}}**: {{.Interval}}
- **{{t "report.period"}}**: {{.StartDate}} ~ {{.EndDate}}
- **{{t "report.candles"}}**: {{.Candles}}
- **{{t "report.status"}}**: {{.Status}}
- **{{t "report.profit"}}**: {{.Profit}}

## {{t "report.parameters"}}

| {{t "report.metric"}} | {{t "report.value"}} |
|------|------|
| {{t "report.ma_type"}} | {{.MAType}} |
| {{t "report.fast_window"}} | {{.FastWindow}} |
| {{t "report.slow_window"}} | {{.SlowWindow}} |
| {{t "report.entry_threshold"}} | {{.EntryThreshold}} |
| {{t "report.exit_markup"}} | {{.ExitMarkup}} |
| {{t "report.quantity"}} | {{.Quantity}} |

## {{t "report.results"}}

| {{t "report.metric"}} | {{t "report.value"}} |
|------|------|
| {{t "report.coins_bought"}} | {{.CoinsBought}} |
| {{t "report.coins_sold"}} | {{.CoinsSold}} |
| {{t "report.average_buy_price"}} | {{.AverageBuyPrice}} |
| {{t "report.average_sell_price"}} | {{.AverageSellPrice}} |
| {{t "report.money_spent"}} | {{.MoneySpent}} |
| {{t "report.money_earned"}} | {{.MoneyEarned}} |
| {{t "report.profit"}} | {{.Profit}} |
| {{t "report.buy_signals"}} | {{.BuyCount}} |
| {{t "report.matched_trades"}} | {{.MatchedCount}} |
| {{t "report.open_positions"}} | {{.OpenPositions}} |

*{{t "report.note_average_sell"}}*

## {{t "report.statistics"}}

| {{t "report.metric"}} | {{t "report.value"}} |
|------|------|
| {{t "report.return_on_spent"}} | {{.ReturnOnSpent}} |
| {{t "report.avg_holding_bars"}} | {{.AvgHoldingBars}} |
| {{t "report.max_holding_bars"}} | {{.MaxHoldingBars}} |
| {{t "report.max_concurrent"}} | {{.MaxConcurrentPositions}} |
| {{t "report.unrealized_pnl"}} | {{.UnrealizedPnL}} |
| {{t "report.max_drawdown"}} | {{.MaxDrawdown}} |
{{if .Trades}}
## {{t "report.trades"}}

| {{t "report.buy_time"}} | {{t "report.entry_price"}} | {{t "report.sell_time"}} | {{t "report.exit_price"}} |
|------|------|------|------|
{{range .Trades}}| {{.BuyTime}} | {{.EntryPrice}} | {{.SellTime}} | {{.ExitPrice}} |
{{end}}{{end}}
---

*{{t "report.footer"}}*
`

// RenderReport 渲染 Markdown 报告内容
func RenderReport(result *Result, lang string) (string, error) {
	if err := i18n.Ensure(); err != nil {
		return "", err
	}

	tmpl, err := template.New("report").
		Funcs(template.FuncMap{"t": i18n.Translator(lang)}).
		Parse(reportTemplate)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, prepareReportData(result, lang)); err != nil {
		return "", err
	}

	return buf.String(), nil
}
