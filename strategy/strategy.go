package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"smabot/market"
)

// NameSMAThreshold 均线阈值策略名称
const NameSMAThreshold = "sma_threshold"

// ErrUnknownStrategy 策略名称未注册
var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy 策略接口
type Strategy interface {
	Name() string
	Generate(ctx context.Context, series *market.Series) (Signals, error)
}

// Factory 策略工厂
type Factory func(cfg Config) (Strategy, error)

var (
	factories = map[string]Factory{
		NameSMAThreshold: func(cfg Config) (Strategy, error) {
			return NewSMAThreshold(cfg)
		},
	}
	factoriesMu sync.RWMutex
)

// Register 注册策略工厂
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[strings.ToLower(name)] = factory
}

// New 按名称创建策略，名称为空时使用均线阈值策略
func New(name string, cfg Config) (Strategy, error) {
	if name == "" {
		name = NameSMAThreshold
	}
	factoriesMu.RLock()
	factory, ok := factories[strings.ToLower(name)]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return factory(cfg)
}

// Names 已注册的策略名称
func Names() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SMAThreshold 均线阈值策略：价格跌破慢线一定比例买入，反弹固定比例卖出
type SMAThreshold struct {
	*Generator
}

// NewSMAThreshold 创建均线阈值策略
func NewSMAThreshold(cfg Config) (*SMAThreshold, error) {
	g, err := NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	return &SMAThreshold{Generator: g}, nil
}

// Name 策略名称
func (s *SMAThreshold) Name() string {
	return NameSMAThreshold
}
