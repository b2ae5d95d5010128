package backtest

import (
	"context"
	"time"

	"smabot/indicators"
	"smabot/market"
	"smabot/strategy"
)

// Result 回测结果
type Result struct {
	// 基本信息
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	Strategy  string    `json:"strategy"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Candles   int       `json:"candles"`

	// 参数
	Config     strategy.Config    `json:"config"`
	Indicators indicators.Options `json:"indicators"`

	// 附加了均线的序列
	Series *market.Series `json:"-"`

	// 信号
	Buys   []strategy.BuySignal  `json:"buy_signals"`
	Sells  []strategy.SellSignal `json:"sell_signals"`
	Trades []strategy.Trade      `json:"trades"`

	Report  Report        `json:"report"`
	Metrics Metrics       `json:"metrics"`
	Equity  []EquityPoint `json:"equity,omitempty"`

	Elapsed time.Duration `json:"elapsed"`
}

// Signals 信号集合
func (r *Result) Signals() strategy.Signals {
	return strategy.Signals{Buys: r.Buys, Sells: r.Sells}
}

// Backtester 回测器：附加指标 -> 生成信号 -> 汇总
type Backtester struct {
	cfg      strategy.Config
	opts     indicators.Options
	strategy string
}

// NewBacktester 创建回测器
func NewBacktester(cfg strategy.Config, opts indicators.Options) (*Backtester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Type == "" {
		opts.Type = indicators.TypeSMA
	}
	return &Backtester{cfg: cfg, opts: opts, strategy: strategy.NameSMAThreshold}, nil
}

// WithStrategy 指定注册表中的策略名称
func (bt *Backtester) WithStrategy(name string) (*Backtester, error) {
	if _, err := strategy.New(name, bt.cfg); err != nil {
		return nil, err
	}
	if name != "" {
		bt.strategy = name
	}
	return bt, nil
}

// Run 运行回测，输入序列不会被修改
func (bt *Backtester) Run(ctx context.Context, series *market.Series) (*Result, error) {
	started := time.Now()

	if series.Len() == 0 {
		return nil, market.ErrEmptySeries
	}

	augmented, err := indicators.Attach(series, bt.opts)
	if err != nil {
		return nil, err
	}

	strat, err := strategy.New(bt.strategy, bt.cfg)
	if err != nil {
		return nil, err
	}
	signals, err := strat.Generate(ctx, augmented)
	if err != nil {
		return nil, err
	}

	equity := CalculateEquity(augmented, signals)

	return &Result{
		Symbol:     augmented.Symbol,
		Interval:   augmented.Interval,
		Strategy:   strat.Name(),
		StartTime:  augmented.StartTime(),
		EndTime:    augmented.EndTime(),
		Candles:    augmented.Len(),
		Config:     bt.cfg,
		Indicators: bt.opts,
		Series:     augmented,
		Buys:       signals.Buys,
		Sells:      signals.Sells,
		Trades:     signals.Trades(),
		Report:     Aggregate(signals),
		Metrics:    CalculateMetrics(augmented, signals, equity),
		Equity:     equity,
		Elapsed:    time.Since(started),
	}, nil
}

// Run 使用给定参数运行一次回测
func Run(series *market.Series, cfg strategy.Config, opts indicators.Options) (*Result, error) {
	return RunContext(context.Background(), series, cfg, opts)
}

// RunContext 同 Run，可取消
func RunContext(ctx context.Context, series *market.Series, cfg strategy.Config, opts indicators.Options) (*Result, error) {
	bt, err := NewBacktester(cfg, opts)
	if err != nil {
		return nil, err
	}
	return bt.Run(ctx, series)
}
