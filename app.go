package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"smabot/config"
	"smabot/database"
	"smabot/i18n"
	"smabot/lock"
	"smabot/logger"
	"smabot/marketdata"
	"smabot/pipeline"
	"smabot/storage"
)

// app 运行时组件
type app struct {
	cache   marketdata.CandleCache
	fetcher *marketdata.Fetcher
	db      database.Database

	closers []func()
}

// newApp 根据配置创建缓存、下载锁、行情获取器和数据库
func newApp(cfg *config.Config) (*app, error) {
	a := &app{}

	cache, closeCache, err := buildCache(cfg)
	if err != nil {
		return nil, err
	}
	a.cache = cache
	a.closers = append(a.closers, closeCache)

	l, err := lock.NewDistributedLock(&lock.Config{
		Enabled: cfg.Cache.Lock.Enabled,
		Type:    cfg.Cache.Lock.Type,
		Prefix:  "smabot:lock:",
		Redis:   redisOptions(cfg),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("创建下载锁失败: %w", err)
	}
	a.closers = append(a.closers, func() { l.Close() })

	source := marketdata.NewBinanceSource(marketdata.BinanceConfig{
		APIKey:    cfg.Binance.APIKey,
		SecretKey: cfg.Binance.SecretKey,
		BaseURL:   cfg.Binance.BaseURL,
		Testnet:   cfg.Binance.Testnet,
	})
	a.fetcher = marketdata.NewFetcher(source,
		marketdata.WithCache(cache, cfg.Cache.Type),
		marketdata.WithLock(l, time.Duration(cfg.Cache.Lock.TTL)*time.Second),
		marketdata.WithRateLimit(cfg.Binance.RateLimit, cfg.Binance.Burst),
	)

	if cfg.Database.Enabled {
		if cfg.Database.Type == "sqlite" {
			ensureDir(cfg.Database.DSN)
		}
		db, err := database.NewDatabase(&database.Config{
			Type:            cfg.Database.Type,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
			LogLevel:        cfg.Database.LogLevel,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("初始化数据库失败: %w", err)
		}
		a.db = db
		a.closers = append(a.closers, func() { db.Close() })
		logger.Info("✅ 数据库已连接: %s", cfg.Database.Type)
	}

	return a, nil
}

// runner 创建回测任务执行器
func (a *app) runner(cfg *config.Config, publisher pipeline.Publisher) *pipeline.Runner {
	opts := []pipeline.Option{
		pipeline.WithOutput(pipeline.OutputOptions{
			ReportDir:  cfg.Output.ReportDir,
			Language:   i18n.GetSystemLanguage(),
			SignalsCSV: cfg.Output.SignalsCSV,
			EquityCSV:  cfg.Output.EquityCSV,
		}),
	}
	if a.db != nil {
		opts = append(opts, pipeline.WithDatabase(a.db))
	}
	if publisher != nil {
		opts = append(opts, pipeline.WithPublisher(publisher))
	}
	return pipeline.NewRunner(a.fetcher, opts...)
}

// Close 按创建的逆序释放资源
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// buildCache 根据 cache.type 创建K线缓存
func buildCache(cfg *config.Config) (marketdata.CandleCache, func(), error) {
	switch cfg.Cache.Type {
	case "none":
		return marketdata.NopCache{}, func() {}, nil

	case "sqlite":
		ensureDir(cfg.Cache.Path)
		s, err := storage.NewSQLiteStorage(cfg.Cache.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("初始化 SQLite 缓存失败: %w", err)
		}
		logger.Info("✅ K线缓存: sqlite %s", cfg.Cache.Path)
		return s, func() { s.Close() }, nil

	case "redis":
		client := redis.NewClient(redisOptions(cfg))
		rc := marketdata.NewRedisCache(client, cfg.Cache.Redis.Prefix, time.Duration(cfg.Cache.TTLHours)*time.Hour)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rc.Ping(ctx); err != nil {
			rc.Close()
			return nil, nil, fmt.Errorf("连接 Redis 失败: %w", err)
		}
		logger.Info("✅ K线缓存: redis %s", cfg.Cache.Redis.Addr)
		return rc, func() { rc.Close() }, nil

	default:
		logger.Debug("K线缓存: file %s", cfg.Cache.Dir)
		return marketdata.NewFileCache(cfg.Cache.Dir), func() {}, nil
	}
}

func redisOptions(cfg *config.Config) *redis.Options {
	return &redis.Options{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	}
}

func ensureDir(path string) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Warn("⚠️ 创建目录 %s 失败: %v", dir, err)
		}
	}
}
