package indicators

import (
	"errors"
	"fmt"

	"smabot/market"
)

// ErrUnknownType 均线类型未注册
var ErrUnknownType = errors.New("unknown moving average type")

// Options 指标附加参数
type Options struct {
	Type       string `yaml:"ma_type" json:"ma_type"`         // sma / ema / smma / wma
	FastWindow int    `yaml:"fast_window" json:"fast_window"` // 快线窗口
	SlowWindow int    `yaml:"slow_window" json:"slow_window"` // 慢线窗口
}

// DefaultOptions 默认参数：SMA 10 / 30
func DefaultOptions() Options {
	return Options{
		Type:       TypeSMA,
		FastWindow: 10,
		SlowWindow: 30,
	}
}

// Validate 校验窗口，n 为序列长度
func (o Options) Validate(n int) error {
	if o.FastWindow <= 0 || o.SlowWindow <= 0 {
		return fmt.Errorf("%w: fast=%d slow=%d must be positive", market.ErrInvalidWindow, o.FastWindow, o.SlowWindow)
	}
	if o.FastWindow >= o.SlowWindow {
		return fmt.Errorf("%w: fast=%d must be smaller than slow=%d", market.ErrInvalidWindow, o.FastWindow, o.SlowWindow)
	}
	if o.SlowWindow >= n {
		return fmt.Errorf("%w: slow=%d must be smaller than series length %d", market.ErrInvalidWindow, o.SlowWindow, n)
	}
	return nil
}

// Attach 计算快慢均线并按下标对齐到序列上
//
// 返回新序列，输入序列不被修改。
func Attach(series *market.Series, opts Options) (*market.Series, error) {
	if series.Len() == 0 {
		return nil, market.ErrEmptySeries
	}
	if opts.Type == "" {
		opts.Type = TypeSMA
	}
	if err := opts.Validate(series.Len()); err != nil {
		return nil, err
	}

	fast := GetIndicator(opts.Type, opts.FastWindow)
	slow := GetIndicator(opts.Type, opts.SlowWindow)
	if fast == nil || slow == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, opts.Type)
	}

	closes := series.Closes()
	fastValues := fast.Calculate(closes)
	slowValues := slow.Calculate(closes)

	out := series.Clone()
	for i := range out.Candles {
		out.Candles[i].FastMA = fastValues[i]
		out.Candles[i].SlowMA = slowValues[i]
	}
	out.FastWindow = opts.FastWindow
	out.SlowWindow = opts.SlowWindow

	return out, nil
}
