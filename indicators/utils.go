package indicators

import (
	"math"
)

// ========== 基础计算工具 ==========
//
// 所有均线函数返回与输入等长的切片，预热区（前 period-1 个位置）为 NaN。

// nanSlice 创建全 NaN 切片
func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA 简单移动平均
func SMA(values []float64, period int) []float64 {
	if period <= 0 {
		return nil
	}
	result := nanSlice(len(values))
	if len(values) < period {
		return result
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	result[period-1] = sum / float64(period)

	// 滑动计算后续 SMA
	for i := period; i < len(values); i++ {
		sum = sum - values[i-period] + values[i]
		result[i] = sum / float64(period)
	}

	return result
}

// EMA 指数移动平均，以首个窗口的 SMA 作为种子
func EMA(values []float64, period int) []float64 {
	return seededAverage(values, period, 2.0/(float64(period)+1.0))
}

// SMMA 平滑移动平均（Wilder），alpha = 1/period，以首个窗口的 SMA 作为种子
func SMMA(values []float64, period int) []float64 {
	return seededAverage(values, period, 1.0/float64(period))
}

func seededAverage(values []float64, period int, alpha float64) []float64 {
	if period <= 0 {
		return nil
	}
	result := nanSlice(len(values))
	if len(values) < period {
		return result
	}

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	result[period-1] = seed / float64(period)

	for i := period; i < len(values); i++ {
		result[i] = alpha*values[i] + (1-alpha)*result[i-1]
	}

	return result
}

// WMA 加权移动平均
func WMA(values []float64, period int) []float64 {
	if period <= 0 {
		return nil
	}
	result := nanSlice(len(values))
	if len(values) < period {
		return result
	}

	weightSum := float64(period * (period + 1) / 2)
	for i := period - 1; i < len(values); i++ {
		sum := 0.0
		for j := 0; j < period; j++ {
			sum += values[i-period+1+j] * float64(j+1)
		}
		result[i] = sum / weightSum
	}

	return result
}

// Mean 平均值
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// CountDefined 非 NaN 值的数量
func CountDefined(values []float64) int {
	n := 0
	for _, v := range values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}
