package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"smabot/market"
)

// MaxKlinesPerRequest Binance 单次最多返回的K线数量
const MaxKlinesPerRequest = 1000

// KlineSource K线数据源
type KlineSource interface {
	// Klines 获取 [start, end] 范围内最多 limit 根K线；start/end 为零值表示不限制
	Klines(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]market.Candle, error)
}

// BinanceConfig Binance 现货行情配置
type BinanceConfig struct {
	APIKey    string
	SecretKey string
	BaseURL   string // 为空时使用官方地址
	Testnet   bool
}

// BinanceSource Binance 现货 /api/v3/klines 数据源
type BinanceSource struct {
	client *binance.Client
}

// NewBinanceSource 创建 Binance 数据源
func NewBinanceSource(cfg BinanceConfig) *BinanceSource {
	binance.UseTestnet = cfg.Testnet
	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	return &BinanceSource{client: client}
}

// Klines 获取历史K线数据
func (b *BinanceSource) Klines(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]market.Candle, error) {
	svc := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval)
	if limit > 0 {
		svc = svc.Limit(limit)
	}
	if !start.IsZero() {
		svc = svc.StartTime(start.UnixMilli())
	}
	if !end.IsZero() {
		svc = svc.EndTime(end.UnixMilli())
	}

	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取历史K线失败: %w", err)
	}

	candles := make([]market.Candle, 0, len(klines))
	for _, k := range klines {
		c, err := parseKline(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, fmt.Errorf("解析K线 %d 失败: %w", k.OpenTime, err)
		}
		candles = append(candles, c)
	}

	return candles, nil
}

// parseKline 字符串价格转为 float64，任何字段解析失败都返回错误
func parseKline(openTime int64, fields ...string) (market.Candle, error) {
	names := []string{"open", "high", "low", "close", "volume"}
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("解析 %s 失败: %w", names[i], err)
		}
		values[i] = v
	}
	return market.NewCandle(openTime, values[0], values[1], values[2], values[3], values[4]), nil
}
