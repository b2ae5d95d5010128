// Package market K线数据模型
package market

import (
	"encoding/json"
	"math"
	"time"
)

// Candle K线数据
//
// FastMA / SlowMA 为 NaN 表示历史数据不足（预热区），不是 0。
type Candle struct {
	Timestamp int64   `json:"timestamp"` // 开盘时间（毫秒）
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	FastMA    float64 `json:"-"`
	SlowMA    float64 `json:"-"`
}

// NewCandle 创建未附加指标的K线
func NewCandle(timestamp int64, open, high, low, close, volume float64) Candle {
	return Candle{
		Timestamp: timestamp,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
		FastMA:    math.NaN(),
		SlowMA:    math.NaN(),
	}
}

// UnmarshalJSON 反序列化后均线保持缺失状态（NaN）
func (c *Candle) UnmarshalJSON(data []byte) error {
	type raw Candle
	r := raw(NewCandle(0, 0, 0, 0, 0, 0))
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*c = Candle(r)
	return nil
}

// Time 开盘时间
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// HasFastMA 快线是否已定义
func (c Candle) HasFastMA() bool {
	return !math.IsNaN(c.FastMA)
}

// HasSlowMA 慢线是否已定义
func (c Candle) HasSlowMA() bool {
	return !math.IsNaN(c.SlowMA)
}

// Series 按时间升序排列的K线序列
type Series struct {
	Symbol   string   `json:"symbol"`
	Interval string   `json:"interval"`
	Candles  []Candle `json:"candles"`

	// 附加指标时使用的窗口，0 表示尚未附加
	FastWindow int `json:"fast_window,omitempty"`
	SlowWindow int `json:"slow_window,omitempty"`
}

// NewSeries 创建K线序列
func NewSeries(symbol, interval string, candles []Candle) *Series {
	return &Series{
		Symbol:   symbol,
		Interval: interval,
		Candles:  candles,
	}
}

// Len 序列长度
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Candles)
}

// At 按下标取K线
func (s *Series) At(i int) Candle {
	return s.Candles[i]
}

// Closes 收盘价序列
func (s *Series) Closes() []float64 {
	closes := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		closes[i] = c.Close
	}
	return closes
}

// InWarmUp 下标 i 是否处于慢线预热区，未附加指标时不存在预热区
func (s *Series) InWarmUp(i int) bool {
	return s.SlowWindow > 0 && i < s.SlowWindow-1
}

// StartTime 第一根K线时间
func (s *Series) StartTime() time.Time {
	if s.Len() == 0 {
		return time.Time{}
	}
	return s.Candles[0].Time()
}

// EndTime 最后一根K线时间
func (s *Series) EndTime() time.Time {
	if s.Len() == 0 {
		return time.Time{}
	}
	return s.Candles[len(s.Candles)-1].Time()
}

// Clone 深拷贝，供下游阶段独占使用
func (s *Series) Clone() *Series {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Candles = make([]Candle, len(s.Candles))
	copy(cp.Candles, s.Candles)
	return &cp
}
