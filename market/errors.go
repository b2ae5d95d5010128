package market

import "errors"

// 引擎前置条件错误，调用方用 errors.Is 判断
var (
	// ErrEmptySeries K线序列为空
	ErrEmptySeries = errors.New("empty candle series")
	// ErrInvalidWindow 均线窗口非法（非正数、快线不小于慢线或不小于序列长度）
	ErrInvalidWindow = errors.New("invalid moving average window")
	// ErrMissingIndicator 预热区之外的K线缺少指标值
	ErrMissingIndicator = errors.New("missing indicator value")
)
