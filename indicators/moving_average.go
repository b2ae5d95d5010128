package indicators

// MA 类型
const (
	TypeSMA  = "sma"
	TypeEMA  = "ema"
	TypeSMMA = "smma"
	TypeWMA  = "wma"
)

// MovingAverage 均线指标
type MovingAverage struct {
	kind   string
	period int
	calc   func(values []float64, period int) []float64
}

// NewMovingAverage 创建均线指标，未知类型返回 nil
func NewMovingAverage(kind string, period int) *MovingAverage {
	var calc func([]float64, int) []float64
	switch kind {
	case TypeSMA:
		calc = SMA
	case TypeEMA:
		calc = EMA
	case TypeSMMA:
		calc = SMMA
	case TypeWMA:
		calc = WMA
	default:
		return nil
	}
	return &MovingAverage{kind: kind, period: period, calc: calc}
}

func (m *MovingAverage) Name() string {
	return m.kind
}

func (m *MovingAverage) Period() int {
	return m.period
}

func (m *MovingAverage) Calculate(values []float64) []float64 {
	return m.calc(values, m.period)
}

// 注册均线指标
func init() {
	for _, kind := range []string{TypeSMA, TypeEMA, TypeSMMA, TypeWMA} {
		RegisterIndicator(kind, func(period int) Indicator {
			return NewMovingAverage(kind, period)
		})
	}
}
