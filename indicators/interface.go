// Package indicators 均线指标与指标附加
package indicators

import (
	"sort"
	"strings"
)

// Indicator 指标接口
type Indicator interface {
	// Name 指标名称
	Name() string
	// Calculate 计算指标值，结果与输入等长，预热区为 NaN
	Calculate(values []float64) []float64
	// Period 计算所需的最小周期数
	Period() int
}

// IndicatorRegistry 指标注册表
type IndicatorRegistry struct {
	indicators map[string]func(period int) Indicator
}

// NewIndicatorRegistry 创建指标注册表
func NewIndicatorRegistry() *IndicatorRegistry {
	return &IndicatorRegistry{
		indicators: make(map[string]func(period int) Indicator),
	}
}

// Register 注册指标
func (r *IndicatorRegistry) Register(name string, factory func(period int) Indicator) {
	r.indicators[strings.ToLower(name)] = factory
}

// Get 获取指标
func (r *IndicatorRegistry) Get(name string, period int) Indicator {
	if factory, ok := r.indicators[strings.ToLower(name)]; ok {
		return factory(period)
	}
	return nil
}

// List 列出所有注册的指标
func (r *IndicatorRegistry) List() []string {
	names := make([]string, 0, len(r.indicators))
	for name := range r.indicators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry 默认指标注册表
var DefaultRegistry = NewIndicatorRegistry()

// RegisterIndicator 注册指标到默认注册表
func RegisterIndicator(name string, factory func(period int) Indicator) {
	DefaultRegistry.Register(name, factory)
}

// GetIndicator 从默认注册表获取指标
func GetIndicator(name string, period int) Indicator {
	return DefaultRegistry.Get(name, period)
}

// ListIndicators 列出默认注册表中的所有指标
func ListIndicators() []string {
	return DefaultRegistry.List()
}
