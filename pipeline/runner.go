package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"smabot/backtest"
	"smabot/database"
	"smabot/event"
	"smabot/i18n"
	"smabot/indicators"
	"smabot/logger"
	"smabot/market"
	"smabot/marketdata"
	"smabot/metrics"
	"smabot/strategy"
	"smabot/utils"
)

// Publisher 事件发布接口，event.EventCenter 满足该接口
type Publisher interface {
	PublishEvent(eventType event.EventType, data map[string]interface{})
}

// Job 一次回测任务
type Job struct {
	Symbol   string
	Interval string
	Start    time.Time // 为零值时取最近 Limit 根
	End      time.Time
	Limit    int
	NoCache  bool

	// 直接提供的K线，设置后不访问行情源
	Candles []market.Candle

	Strategy   string
	Config     strategy.Config
	Indicators indicators.Options
}

// OutputOptions 结果输出选项
type OutputOptions struct {
	ReportDir  string // 为空时不生成任何文件
	Language   string
	SignalsCSV bool
	EquityCSV  bool
}

// Outcome 回测任务结果
type Outcome struct {
	Result      *backtest.Result `json:"result"`
	RunID       int64            `json:"run_id,omitempty"`
	ReportPath  string           `json:"report_path,omitempty"`
	SignalsPath string           `json:"signals_path,omitempty"`
	EquityPath  string           `json:"equity_path,omitempty"`
}

// Runner 串联行情获取、回测、输出、持久化与事件
type Runner struct {
	fetcher   *marketdata.Fetcher
	db        database.Database
	publisher Publisher
	output    OutputOptions
}

// Option Runner 选项
type Option func(*Runner)

// WithDatabase 保存回测记录
func WithDatabase(db database.Database) Option {
	return func(r *Runner) { r.db = db }
}

// WithPublisher 发布回测事件
func WithPublisher(p Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithOutput 生成报告与 CSV
func WithOutput(o OutputOptions) Option {
	return func(r *Runner) { r.output = o }
}

// NewRunner 创建任务执行器，fetcher 为 nil 时只能运行提供K线的任务
func NewRunner(fetcher *marketdata.Fetcher, opts ...Option) *Runner {
	r := &Runner{}
	r.fetcher = fetcher
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Database 回测记录存储，未配置时为 nil
func (r *Runner) Database() database.Database {
	return r.db
}

// Run 执行一次回测任务
func (r *Runner) Run(ctx context.Context, job Job) (*Outcome, error) {
	symbol := strings.ToUpper(job.Symbol)
	pm := metrics.GetPrometheusMetrics()

	r.publish(event.EventTypeBacktestStarted, map[string]interface{}{
		"symbol":   symbol,
		"interval": job.Interval,
		"source":   "pipeline",
	})

	result, err := r.run(ctx, job)
	if err != nil {
		pm.RecordBacktestFailure(symbol)
		r.publish(event.EventTypeBacktestFailed, map[string]interface{}{
			"symbol": symbol,
			"error":  err.Error(),
			"source": "pipeline",
		})
		return nil, err
	}

	rep := result.Report
	pm.RecordBacktest(result.Symbol, string(rep.Status), result.Elapsed,
		rep.BuyCount, rep.MatchedCount, rep.OpenPositions, rep.ProfitFloat())
	LogReport(result)

	outcome := &Outcome{Result: result}
	r.writeOutputs(outcome)

	if r.db != nil {
		run := database.NewBacktestRun(result)
		if err := r.db.SaveRun(ctx, run); err != nil {
			logger.Error("❌ 保存回测记录失败: %v", err)
		} else {
			outcome.RunID = run.ID
		}
	}

	r.publish(event.EventTypeBacktestCompleted, map[string]interface{}{
		"symbol":  result.Symbol,
		"status":  string(rep.Status),
		"buys":    rep.BuyCount,
		"sells":   rep.MatchedCount,
		"open":    rep.OpenPositions,
		"profit":  rep.Profit.String(),
		"run_id":  outcome.RunID,
		"elapsed": result.Elapsed.String(),
		"source":  "pipeline",
	})

	return outcome, nil
}

func (r *Runner) run(ctx context.Context, job Job) (*backtest.Result, error) {
	series, err := r.load(ctx, job)
	if err != nil {
		return nil, err
	}

	bt, err := backtest.NewBacktester(job.Config, job.Indicators)
	if err != nil {
		return nil, err
	}
	if bt, err = bt.WithStrategy(job.Strategy); err != nil {
		return nil, err
	}
	return bt.Run(ctx, series)
}

// load 获取K线序列
func (r *Runner) load(ctx context.Context, job Job) (*market.Series, error) {
	symbol := strings.ToUpper(job.Symbol)

	if len(job.Candles) > 0 {
		candles := make([]market.Candle, len(job.Candles))
		copy(candles, job.Candles)
		sort.SliceStable(candles, func(i, j int) bool {
			return candles[i].Timestamp < candles[j].Timestamp
		})
		return market.NewSeries(symbol, job.Interval, candles), nil
	}

	if r.fetcher == nil {
		return nil, errors.New("no market data source configured")
	}

	series, err := r.fetcher.Fetch(ctx, marketdata.Request{
		Symbol:   symbol,
		Interval: job.Interval,
		Start:    job.Start,
		End:      job.End,
		Limit:    job.Limit,
		NoCache:  job.NoCache,
	})
	if err != nil {
		return nil, fmt.Errorf("获取K线失败: %w", err)
	}

	r.publish(event.EventTypeDataFetched, map[string]interface{}{
		"symbol":   symbol,
		"interval": job.Interval,
		"candles":  series.Len(),
		"source":   "marketdata",
	})
	return series, nil
}

// writeOutputs 生成报告与 CSV，失败只记录日志
func (r *Runner) writeOutputs(outcome *Outcome) {
	if r.output.ReportDir == "" {
		return
	}
	result := outcome.Result

	path, err := backtest.GenerateReport(result, r.output.ReportDir, r.output.Language)
	if err != nil {
		logger.Error("❌ 生成报告失败: %v", err)
	} else {
		outcome.ReportPath = path
		logger.Info("📄 报告已生成: %s", path)
	}

	base := strings.TrimSuffix(filepath.Base(outcome.ReportPath), ".md")
	if base == "" || base == "." {
		base = fmt.Sprintf("%s_%s_%s_%s", result.Strategy, result.Symbol, result.Interval, time.Now().Format("20060102_150405"))
	}

	if r.output.SignalsCSV {
		p := filepath.Join(r.output.ReportDir, base+"_signals.csv")
		if err := backtest.WriteSignalsCSV(result, p); err != nil {
			logger.Error("❌ 导出信号失败: %v", err)
		} else {
			outcome.SignalsPath = p
		}
	}
	if r.output.EquityCSV {
		p := filepath.Join(r.output.ReportDir, base+"_equity.csv")
		if err := backtest.SaveEquityCurveCSV(result, p); err != nil {
			logger.Error("❌ 导出权益曲线失败: %v", err)
		} else {
			outcome.EquityPath = p
		}
	}
}

func (r *Runner) publish(t event.EventType, data map[string]interface{}) {
	if r.publisher != nil {
		r.publisher.PublishEvent(t, data)
	}
}

// LogReport 按控制台格式输出回测统计
func LogReport(result *backtest.Result) {
	rep := result.Report
	logger.Info("📊 交易对: %s (%s, %d 根K线)", result.Symbol, result.Interval, result.Candles)
	logger.Info("   时间范围: %s 至 %s", utils.FormatTime(result.StartTime), utils.FormatTime(result.EndTime))
	logger.Info("   状态: %s", i18n.T("status."+string(rep.Status)))

	switch rep.Status {
	case backtest.StatusNoSignals:
		logger.Info("ℹ️ 行情未触发策略，没有买入")
		return
	case backtest.StatusNoTrades:
		logger.Info("ℹ️ 共 %d 次买入，均未达到目标价卖出", rep.BuyCount)
	}

	logger.Info("   买入数量: %s", rep.CoinsBought.String())
	logger.Info("   卖出数量: %s", rep.CoinsSold.String())
	logger.Info("   平均买入价: %s", rep.AverageBuyPrice.StringFixed(2))
	logger.Info("   平均卖出价: %s", rep.AverageSellPrice.StringFixed(2))
	logger.Info("   总花费: %s", rep.MoneySpent.StringFixed(2))
	logger.Info("   总收入: %s", rep.MoneyEarned.StringFixed(2))
	logger.Info("💰 利润: %s", rep.Profit.StringFixed(2))
}
