package strategy

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"smabot/market"
)

// 买入信号少于该数量时不启用并发扫描
const minParallelBuys = 64

// Generator 两阶段信号生成器
//
// 第一阶段扫描买入点，第二阶段从每个买入点向后寻找第一根触及目标价的K线。
// 第二阶段必须在第一阶段完成之后开始。
type Generator struct {
	cfg Config
}

// NewGenerator 创建信号生成器
func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg}, nil
}

// Config 返回生成器参数
func (g *Generator) Config() Config {
	return g.cfg
}

// Generate 生成买卖信号
//
// 卖出信号与其买入信号保持相同的相对顺序，未能卖出的买入信号没有对应的卖出信号。
func (g *Generator) Generate(ctx context.Context, series *market.Series) (Signals, error) {
	buys, err := g.ScanEntries(series)
	if err != nil {
		return Signals{}, err
	}
	sells, err := g.ScanExits(ctx, series, buys)
	if err != nil {
		return Signals{}, err
	}
	return Signals{Buys: buys, Sells: sells}, nil
}

// ScanEntries 第一阶段：最低价低于慢线超过阈值时买入
//
// 从下标 1 开始扫描；预热区内慢线缺失的K线直接跳过，
// 预热区外缺失返回 ErrMissingIndicator。
func (g *Generator) ScanEntries(series *market.Series) ([]BuySignal, error) {
	if series.Len() == 0 {
		return nil, market.ErrEmptySeries
	}
	if series.SlowWindow <= 0 {
		return nil, fmt.Errorf("%w: indicators not attached", market.ErrMissingIndicator)
	}

	buys := make([]BuySignal, 0)
	for i := 1; i < series.Len(); i++ {
		c := series.Candles[i]
		if math.IsNaN(c.SlowMA) {
			if series.InWarmUp(i) {
				continue
			}
			return nil, fmt.Errorf("%w: slow MA absent at index %d (slow window %d)", market.ErrMissingIndicator, i, series.SlowWindow)
		}

		if c.SlowMA > c.Low && c.SlowMA-c.Low > g.cfg.EntryThresholdRatio*c.Low {
			buys = append(buys, BuySignal{
				Time:        c.Timestamp,
				EntryPrice:  c.Low,
				TargetPrice: g.cfg.TargetPrice(c.Low),
				EntryIndex:  i,
				Quantity:    g.cfg.Quantity,
			})
		}
	}
	return buys, nil
}

// ScanExits 第二阶段：每个买入信号独立向后扫描
//
// 扫描包含买入K线本身。Workers > 1 时并发扫描，结果按买入顺序写入各自的槽位。
func (g *Generator) ScanExits(ctx context.Context, series *market.Series, buys []BuySignal) ([]SellSignal, error) {
	slots := make([]*SellSignal, len(buys))

	if g.cfg.Workers > 1 && len(buys) >= minParallelBuys {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(g.cfg.Workers)
		for k := range buys {
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				slots[k] = findExit(series, buys[k])
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	} else {
		for k := range buys {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			slots[k] = findExit(series, buys[k])
		}
	}

	sells := make([]SellSignal, 0, len(buys))
	for _, s := range slots {
		if s != nil {
			sells = append(sells, *s)
		}
	}
	return sells, nil
}

// findExit 返回第一根最高价不低于目标价的K线对应的卖出信号，没有则返回 nil
func findExit(series *market.Series, buy BuySignal) *SellSignal {
	for j := buy.EntryIndex; j < series.Len(); j++ {
		c := series.Candles[j]
		if c.High >= buy.TargetPrice {
			return &SellSignal{
				Time:       c.Timestamp,
				EntryPrice: buy.EntryPrice,
				ExitPrice:  buy.TargetPrice,
				EntryIndex: buy.EntryIndex,
				ExitIndex:  j,
				Quantity:   buy.Quantity,
			}
		}
	}
	return nil
}
