package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"smabot/indicators"
	"smabot/marketdata"
	"smabot/strategy"
)

// DateLayout 回测区间日期格式
const DateLayout = "2006-01-02"

// Config 回测系统配置
type Config struct {
	// 应用配置
	App struct {
		Name string `yaml:"name"`
	} `yaml:"app"`

	// 行情配置
	Market MarketConfig `yaml:"market"`

	// 策略配置
	Strategy StrategyConfig `yaml:"strategy"`

	// 币安配置（只读取公开K线，API Key 可留空）
	Binance struct {
		APIKey    string  `yaml:"api_key"`
		SecretKey string  `yaml:"secret_key"`
		BaseURL   string  `yaml:"base_url"`
		Testnet   bool    `yaml:"testnet"`
		RateLimit float64 `yaml:"rate_limit"` // 每秒请求数，0 表示不限速
		Burst     int     `yaml:"burst"`
	} `yaml:"binance"`

	// K线缓存配置
	Cache CacheConfig `yaml:"cache"`

	// 回测历史数据库
	Database struct {
		Enabled         bool   `yaml:"enabled"`
		Type            string `yaml:"type"` // sqlite, postgres, mysql
		DSN             string `yaml:"dsn"`
		MaxOpenConns    int    `yaml:"max_open_conns"`
		MaxIdleConns    int    `yaml:"max_idle_conns"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // 秒
		LogLevel        string `yaml:"log_level"`
	} `yaml:"database"`

	// 事件中心
	Events struct {
		Enabled         bool `yaml:"enabled"`
		BufferSize      int  `yaml:"buffer_size"`
		RetentionDays   int  `yaml:"retention_days"`
		CleanupInterval int  `yaml:"cleanup_interval"` // 小时
	} `yaml:"events"`

	// 输出配置
	Output struct {
		ReportDir  string `yaml:"report_dir"`  // 为空时不生成报告
		SignalsCSV bool   `yaml:"signals_csv"` // 同时导出信号 CSV
		EquityCSV  bool   `yaml:"equity_csv"`  // 同时导出权益曲线 CSV
	} `yaml:"output"`

	// Web 服务
	Web struct {
		Enabled    bool   `yaml:"enabled"`
		Host       string `yaml:"host"`
		Port       int    `yaml:"port"`
		APIKeyHash string `yaml:"api_key_hash"` // bcrypt 哈希，为空时不校验
	} `yaml:"web"`

	// 监控指标
	Metrics struct {
		Enabled         bool `yaml:"enabled"`
		CollectInterval int  `yaml:"collect_interval"` // 秒
	} `yaml:"metrics"`

	// 系统配置
	System struct {
		LogLevel string `yaml:"log_level"`
		Timezone string `yaml:"timezone"`
		Language string `yaml:"language"`
	} `yaml:"system"`
}

// MarketConfig 行情配置
type MarketConfig struct {
	Symbols  []string `yaml:"symbols"`
	Interval string   `yaml:"interval"`
	Start    string   `yaml:"start"` // YYYY-MM-DD，为空时取最近 limit 根
	End      string   `yaml:"end"`
	Limit    int      `yaml:"limit"`
	CSVPath  string   `yaml:"csv_path"` // 本地 CSV，设置后不访问交易所
}

// StrategyConfig 策略配置
type StrategyConfig struct {
	Name               string `yaml:"name"`
	strategy.Config    `yaml:",inline"`
	indicators.Options `yaml:",inline"`
}

// CacheConfig K线缓存配置
type CacheConfig struct {
	Type     string `yaml:"type"` // file, sqlite, redis, none
	Dir      string `yaml:"dir"`
	Path     string `yaml:"path"`
	TTLHours int    `yaml:"ttl_hours"` // 仅 redis

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`

	// 同一缓存键的并发拉取锁
	Lock struct {
		Enabled bool   `yaml:"enabled"`
		Type    string `yaml:"type"` // local, redis
		TTL     int    `yaml:"ttl"`  // 秒
	} `yaml:"lock"`
}

// StartTime 解析回测开始日期（UTC），未设置时返回零值
func (m MarketConfig) StartTime() (time.Time, error) {
	return parseDate(m.Start)
}

// EndTime 解析回测结束日期（UTC），未设置时返回零值
func (m MarketConfig) EndTime() (time.Time, error) {
	return parseDate(m.End)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Addr Web 监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Web.Host, c.Web.Port)
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes 从字节加载配置
func LoadConfigFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return cfg, nil
}

// SaveConfig 保存配置文件
func SaveConfig(cfg *Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}

	return nil
}

// DefaultConfig 默认配置：BTCUSDT 1h 最近 500 根，SMA 10/30，阈值 3%，加价 2%
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.App.Name = "smabot"

	cfg.Market.Symbols = []string{"BTCUSDT"}
	cfg.Market.Interval = "1h"
	cfg.Market.Limit = marketdata.DefaultLatestLimit

	cfg.Strategy.Name = strategy.NameSMAThreshold
	cfg.Strategy.Config = strategy.DefaultConfig()
	cfg.Strategy.Options = indicators.DefaultOptions()

	cfg.Binance.RateLimit = 10
	cfg.Binance.Burst = 1

	cfg.Cache.Type = "file"
	cfg.Cache.Dir = "backtest/cache"
	cfg.Cache.Path = "data/candles.db"
	cfg.Cache.TTLHours = 24 * 7
	cfg.Cache.Redis.Addr = "localhost:6379"
	cfg.Cache.Redis.Prefix = "smabot:candles:"
	cfg.Cache.Lock.Type = "local"
	cfg.Cache.Lock.TTL = 60

	cfg.Database.Type = "sqlite"
	cfg.Database.DSN = "data/smabot.db"
	cfg.Database.LogLevel = "silent"

	cfg.Events.Enabled = true
	cfg.Events.BufferSize = 1000
	cfg.Events.RetentionDays = 30
	cfg.Events.CleanupInterval = 24

	cfg.Web.Host = "0.0.0.0"
	cfg.Web.Port = 28888

	cfg.Metrics.CollectInterval = 15

	cfg.System.LogLevel = "INFO"
	cfg.System.Timezone = "Asia/Shanghai"
	cfg.System.Language = "zh-CN"
	return cfg
}

// Validate 验证配置并补齐默认值
func (c *Config) Validate() error {
	defaults := DefaultConfig()

	// 行情
	if len(c.Market.Symbols) == 0 && c.Market.CSVPath == "" {
		return fmt.Errorf("market.symbols 不能为空")
	}
	for i, s := range c.Market.Symbols {
		c.Market.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
		if c.Market.Symbols[i] == "" {
			return fmt.Errorf("market.symbols[%d] 不能为空", i)
		}
	}
	if c.Market.Interval == "" {
		c.Market.Interval = defaults.Market.Interval
	}
	if _, err := marketdata.IntervalDuration(c.Market.Interval); err != nil {
		return fmt.Errorf("market.interval: %w", err)
	}
	if c.Market.Limit <= 0 {
		c.Market.Limit = defaults.Market.Limit
	}
	start, err := c.Market.StartTime()
	if err != nil {
		return fmt.Errorf("market.start 格式错误（应为 %s）: %w", DateLayout, err)
	}
	end, err := c.Market.EndTime()
	if err != nil {
		return fmt.Errorf("market.end 格式错误（应为 %s）: %w", DateLayout, err)
	}
	if start.IsZero() != end.IsZero() {
		return fmt.Errorf("market.start 和 market.end 必须同时设置")
	}
	if !start.IsZero() && !end.After(start) {
		return fmt.Errorf("market.end 必须晚于 market.start")
	}

	// 策略
	if c.Strategy.Name == "" {
		c.Strategy.Name = strategy.NameSMAThreshold
	}
	if c.Strategy.Type == "" {
		c.Strategy.Type = indicators.TypeSMA
	}
	if err := c.Strategy.Config.Validate(); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	if c.Strategy.FastWindow <= 0 || c.Strategy.SlowWindow <= c.Strategy.FastWindow {
		return fmt.Errorf("strategy: fast_window(%d) 必须为正且小于 slow_window(%d)",
			c.Strategy.FastWindow, c.Strategy.SlowWindow)
	}

	// 币安
	if c.Binance.RateLimit < 0 {
		return fmt.Errorf("binance.rate_limit 不能为负数")
	}
	if c.Binance.Burst <= 0 {
		c.Binance.Burst = 1
	}

	// 缓存
	switch c.Cache.Type {
	case "":
		c.Cache.Type = defaults.Cache.Type
	case "file", "sqlite", "redis", "none":
	default:
		return fmt.Errorf("不支持的缓存类型: %s", c.Cache.Type)
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = defaults.Cache.Dir
	}
	if c.Cache.Path == "" {
		c.Cache.Path = defaults.Cache.Path
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = defaults.Cache.Redis.Prefix
	}
	if c.Cache.Lock.Type == "" {
		c.Cache.Lock.Type = "local"
	}
	if c.Cache.Lock.TTL <= 0 {
		c.Cache.Lock.TTL = defaults.Cache.Lock.TTL
	}

	// 数据库
	if c.Database.Enabled {
		switch c.Database.Type {
		case "sqlite", "postgres", "postgresql", "mysql":
		default:
			return fmt.Errorf("不支持的数据库类型: %s", c.Database.Type)
		}
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn 不能为空")
		}
	}

	// 事件
	if c.Events.BufferSize <= 0 {
		c.Events.BufferSize = defaults.Events.BufferSize
	}
	if c.Events.CleanupInterval <= 0 {
		c.Events.CleanupInterval = defaults.Events.CleanupInterval
	}

	// Web
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		c.Web.Port = defaults.Web.Port
	}

	if c.Metrics.CollectInterval <= 0 {
		c.Metrics.CollectInterval = defaults.Metrics.CollectInterval
	}

	// 系统
	if c.System.LogLevel == "" {
		c.System.LogLevel = defaults.System.LogLevel
	}
	if c.System.Language == "" {
		c.System.Language = defaults.System.Language
	}
	if c.System.Timezone != "" {
		if _, err := time.LoadLocation(c.System.Timezone); err != nil {
			return fmt.Errorf("system.timezone 无效: %w", err)
		}
	}

	return nil
}
