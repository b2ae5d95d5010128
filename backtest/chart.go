package backtest

// ChartPoint 折线上的一个点
type ChartPoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// ChartMarker 买卖标记
type ChartMarker struct {
	Time       int64   `json:"time"`
	Price      float64 `json:"price"`
	EntryIndex int     `json:"entry_index"`
}

// ChartCandle K线
type ChartCandle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// ChartData 图表数据，只输出数据不负责绘制
type ChartData struct {
	Symbol       string        `json:"symbol"`
	Interval     string        `json:"interval"`
	Candles      []ChartCandle `json:"candles"`
	FastMA       []ChartPoint  `json:"fast_ma"`
	SlowMA       []ChartPoint  `json:"slow_ma"`
	Buys         []ChartMarker `json:"buys"`
	DesiredSells []ChartMarker `json:"desired_sells"` // 买入时刻的目标卖出价
	Sells        []ChartMarker `json:"sells"`
	Equity       []ChartPoint  `json:"equity,omitempty"`
}

// Chart 从回测结果生成图表数据，缺失的均线值不输出
func Chart(result *Result) *ChartData {
	data := &ChartData{
		Symbol:       result.Symbol,
		Interval:     result.Interval,
		Candles:      make([]ChartCandle, 0),
		FastMA:       make([]ChartPoint, 0),
		SlowMA:       make([]ChartPoint, 0),
		Buys:         make([]ChartMarker, 0, len(result.Buys)),
		DesiredSells: make([]ChartMarker, 0, len(result.Buys)),
		Sells:        make([]ChartMarker, 0, len(result.Sells)),
	}

	if result.Series != nil {
		data.Candles = make([]ChartCandle, 0, result.Series.Len())
		for _, c := range result.Series.Candles {
			data.Candles = append(data.Candles, ChartCandle{
				Time:   c.Timestamp,
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: c.Volume,
			})
			if c.HasFastMA() {
				data.FastMA = append(data.FastMA, ChartPoint{Time: c.Timestamp, Value: c.FastMA})
			}
			if c.HasSlowMA() {
				data.SlowMA = append(data.SlowMA, ChartPoint{Time: c.Timestamp, Value: c.SlowMA})
			}
		}
	}

	for _, b := range result.Buys {
		data.Buys = append(data.Buys, ChartMarker{Time: b.Time, Price: b.EntryPrice, EntryIndex: b.EntryIndex})
		data.DesiredSells = append(data.DesiredSells, ChartMarker{Time: b.Time, Price: b.TargetPrice, EntryIndex: b.EntryIndex})
	}
	for _, s := range result.Sells {
		data.Sells = append(data.Sells, ChartMarker{Time: s.Time, Price: s.ExitPrice, EntryIndex: s.EntryIndex})
	}

	for _, p := range result.Equity {
		data.Equity = append(data.Equity, ChartPoint{Time: p.Timestamp, Value: p.Equity})
	}

	return data
}
