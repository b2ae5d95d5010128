package strategy

import (
	"fmt"
	"math"
)

// Config 均线阈值策略参数
type Config struct {
	// 最低价低于慢线的最小比例，超过才买入（严格大于）
	EntryThresholdRatio float64 `yaml:"entry_threshold_ratio" json:"entry_threshold_ratio"`
	// 目标卖出价相对买入价的加价比例
	ExitMarkupRatio float64 `yaml:"exit_markup_ratio" json:"exit_markup_ratio"`
	// 每个信号的固定数量
	Quantity float64 `yaml:"quantity" json:"quantity"`
	// 出场扫描并发数，<=1 时单线程
	Workers int `yaml:"workers" json:"workers"`
}

// DefaultConfig 默认参数：低于慢线 3% 买入，高于买入价 2% 卖出，数量 1
func DefaultConfig() Config {
	return Config{
		EntryThresholdRatio: 0.03,
		ExitMarkupRatio:     0.02,
		Quantity:            1,
		Workers:             1,
	}
}

// Validate 校验参数
func (c Config) Validate() error {
	if math.IsNaN(c.EntryThresholdRatio) || math.IsInf(c.EntryThresholdRatio, 0) || c.EntryThresholdRatio < 0 {
		return fmt.Errorf("entry_threshold_ratio must be a finite non-negative number, got %v", c.EntryThresholdRatio)
	}
	if math.IsNaN(c.ExitMarkupRatio) || math.IsInf(c.ExitMarkupRatio, 0) || c.ExitMarkupRatio < 0 {
		return fmt.Errorf("exit_markup_ratio must be a finite non-negative number, got %v", c.ExitMarkupRatio)
	}
	if math.IsNaN(c.Quantity) || math.IsInf(c.Quantity, 0) || c.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %v", c.Quantity)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// TargetPrice 根据买入价计算目标卖出价
func (c Config) TargetPrice(entryPrice float64) float64 {
	return entryPrice * (1 + c.ExitMarkupRatio)
}
