package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"smabot/config"
	"smabot/event"
	"smabot/i18n"
	"smabot/logger"
	"smabot/marketdata"
	"smabot/metrics"
	"smabot/pipeline"
	"smabot/utils"
	"smabot/web"
)

// Version 版本号
var Version = "1.0.0"

const usage = `smabot - 均线阈值策略回测

用法:
  smabot [-config config.yaml] [-debug] <命令> [参数]

命令:
  run                  按配置运行回测
  serve                启动 Web 服务（含回测 API）
  cache list           列出K线缓存
  cache stats          缓存统计
  cache clear          清空缓存
  cache clean DAYS     清理 DAYS 天前创建的缓存
  hash-key KEY         生成 web.api_key_hash
  version              显示版本号
`

func main() {
	fs := flag.NewFlagSet("smabot", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "配置文件路径")
	debugMode := fs.Bool("debug", false, "输出调试日志和全量请求日志")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		os.Exit(2)
	}

	switch args[0] {
	case "version", "-version", "--version":
		fmt.Printf("smabot %s\n", Version)
		return
	case "hash-key":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "用法: smabot hash-key KEY")
			os.Exit(2)
		}
		hash, err := web.HashAPIKey(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatalf("❌ 加载配置失败: %v", err)
	}
	setupSystem(cfg, *debugMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "run":
		err = runBacktests(ctx, cfg)
	case "serve":
		err = serve(ctx, cfg, *configPath, *debugMode)
	case "cache":
		err = cacheCommand(ctx, cfg, args[1:])
	default:
		fs.Usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("❌ %v", err)
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}

// loadConfig 加载配置，文件不存在时使用默认配置
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("ℹ️ 配置文件 %s 不存在，使用默认配置", path)
		cfg := config.DefaultConfig()
		return cfg, cfg.Validate()
	}
	return config.LoadConfig(path)
}

// setupSystem 时区、日志级别和语言
func setupSystem(cfg *config.Config, debugMode bool) {
	if err := utils.SetLocation(cfg.System.Timezone); err != nil {
		logger.Warn("⚠️ 加载时区 %s 失败: %v，将使用默认时区 Asia/Shanghai", cfg.System.Timezone, err)
		utils.SetLocation("Asia/Shanghai")
	}
	logger.SetLocation(utils.GlobalLocation)

	if debugMode {
		cfg.System.LogLevel = "debug"
	}
	logLevel := logger.ParseLogLevel(cfg.System.LogLevel)
	logger.SetLevel(logLevel)
	logger.Debug("日志级别设置为: %s", logLevel.String())

	if err := i18n.Init(cfg.System.Language); err != nil {
		logger.Warn("⚠️ 初始化 i18n 失败: %v，将使用默认语言", err)
	}
}

// runBacktests 对配置中的每个交易对运行一次回测
func runBacktests(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runner := a.runner(cfg, nil)

	jobs, err := jobsFromConfig(cfg)
	if err != nil {
		return err
	}

	logger.Info("🚀 开始回测: %d 个任务, 策略=%s", len(jobs), cfg.Strategy.Name)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			outcome, err := runner.Run(gctx, job)
			if err != nil {
				return fmt.Errorf("%s 回测失败: %w", job.Symbol, err)
			}
			if outcome.ReportPath != "" {
				logger.Info("📄 报告已生成: %s", outcome.ReportPath)
			}
			return nil
		})
	}
	return g.Wait()
}

// jobsFromConfig 根据配置生成回测任务
func jobsFromConfig(cfg *config.Config) ([]pipeline.Job, error) {
	start, err := cfg.Market.StartTime()
	if err != nil {
		return nil, err
	}
	end, err := cfg.Market.EndTime()
	if err != nil {
		return nil, err
	}

	base := pipeline.Job{
		Interval:   cfg.Market.Interval,
		Start:      start,
		End:        end,
		Limit:      cfg.Market.Limit,
		Strategy:   cfg.Strategy.Name,
		Config:     cfg.Strategy.Config,
		Indicators: cfg.Strategy.Options,
	}

	// 本地 CSV 只对应一个交易对
	if cfg.Market.CSVPath != "" {
		symbol := "CSV"
		if len(cfg.Market.Symbols) > 0 {
			symbol = cfg.Market.Symbols[0]
		}
		series, err := marketdata.LoadCSV(cfg.Market.CSVPath, symbol, cfg.Market.Interval)
		if err != nil {
			return nil, fmt.Errorf("导入 CSV 失败: %w", err)
		}
		logger.Info("📂 已导入 %s: %d 根K线", cfg.Market.CSVPath, series.Len())
		base.Symbol = series.Symbol
		base.Candles = series.Candles
		return []pipeline.Job{base}, nil
	}

	jobs := make([]pipeline.Job, 0, len(cfg.Market.Symbols))
	for _, symbol := range cfg.Market.Symbols {
		job := base
		job.Symbol = symbol
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// serve 启动 Web 服务，直到收到退出信号
func serve(ctx context.Context, cfg *config.Config, configPath string, debugMode bool) error {
	logger.Info("🚀 smabot 启动...")
	logger.Info("📦 版本号: %s", Version)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := web.NewWebSocketHub()
	go hub.Run(ctx)

	// 事件中心
	eventBus := event.NewEventBus(cfg.Events.BufferSize)
	var store event.EventStore
	if a.db != nil {
		store = a.db
	}
	eventCenter := event.NewEventCenter(store, eventBus, hub, &event.EventCenterConfig{
		Enabled:         cfg.Events.Enabled,
		CleanupInterval: cfg.Events.CleanupInterval,
		RetentionDays:   cfg.Events.RetentionDays,
	})
	if err := eventCenter.Start(); err != nil {
		return fmt.Errorf("启动事件中心失败: %w", err)
	}
	defer eventCenter.Stop()

	var publisher pipeline.Publisher
	if cfg.Events.Enabled {
		publisher = eventCenter
	}
	runner := a.runner(cfg, publisher)

	// 系统指标
	if cfg.Metrics.Enabled {
		collector := metrics.NewSystemMetricsCollector(time.Duration(cfg.Metrics.CollectInterval) * time.Second)
		collector.Start()
		defer collector.Stop()
		logger.Info("✅ 系统指标采集已启动")
	}

	// 配置热更新
	reloader := config.NewHotReloader(cfg)
	reloader.RegisterCallback(func(oldConfig, newConfig *config.Config, changes []config.ConfigChange) error {
		if newConfig.System.LogLevel != oldConfig.System.LogLevel {
			logger.SetLevel(logger.ParseLogLevel(newConfig.System.LogLevel))
		}
		if newConfig.System.Language != oldConfig.System.Language {
			i18n.SetSystemLanguage(newConfig.System.Language)
		}
		eventCenter.PublishEvent(event.EventTypeConfigReloaded, map[string]interface{}{
			"changes": len(changes),
			"source":  "config",
		})
		return nil
	})

	var watcher *config.ConfigWatcher
	if _, statErr := os.Stat(configPath); statErr == nil {
		watcher, err = config.NewConfigWatcher(configPath, reloader)
		if err != nil {
			logger.Warn("⚠️ 创建配置监听器失败: %v", err)
		} else if err := watcher.Start(ctx); err != nil {
			logger.Warn("⚠️ 启动配置监听失败: %v", err)
			watcher = nil
		} else {
			defer watcher.Stop()
			go watchConfig(ctx, watcher)
		}
	}

	if !cfg.Web.Enabled {
		logger.Warn("⚠️ web.enabled 为 false，仍按 serve 命令启动 Web 服务")
	}

	server := web.NewServer(cfg.Addr(), web.Deps{
		Runner:     runner,
		Cache:      a.cache,
		Database:   a.db,
		Reloader:   reloader,
		Backups:    config.NewBackupManager("backups", 10),
		Hub:        hub,
		ConfigPath: configPath,
		APIKeyHash: cfg.Web.APIKeyHash,
		Version:    Version,
		LogAll:     debugMode,
	})
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("启动 Web 服务失败: %w", err)
	}

	eventCenter.PublishEvent(event.EventTypeSystemStart, map[string]interface{}{
		"version": Version,
		"source":  "system",
	})

	logger.Info("💡 按 Ctrl+C 退出程序")
	<-ctx.Done()

	logger.Info("🛑 收到退出信号，开始优雅关闭...")
	eventCenter.PublishEvent(event.EventTypeSystemStop, map[string]interface{}{
		"reason": "收到退出信号",
		"source": "system",
	})

	server.Stop()
	// 等待事件中心处理完队列中的事件
	time.Sleep(200 * time.Millisecond)

	logger.Info("✅ 系统已安全退出")
	return nil
}

// watchConfig 输出需要重启才能生效的配置变更和监听错误
func watchConfig(ctx context.Context, watcher *config.ConfigWatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case diff := <-watcher.RestartChan():
			logger.Warn("⚠️ 以下配置需要重启后生效: %v", diff.Paths())
		case err := <-watcher.ErrorChan():
			logger.Error("❌ 配置重载失败: %v", err)
		}
	}
}

// cacheCommand K线缓存管理
func cacheCommand(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("用法: smabot cache list|stats|clear|clean DAYS")
	}

	cache, closeCache, err := buildCache(cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	switch args[0] {
	case "list":
		list, err := cache.List(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("暂无缓存")
			return nil
		}
		for _, info := range list {
			fmt.Printf("%-40s %-8s %6d 根  %.2f MB  %s\n",
				info.Name, info.Interval, info.Candles, info.SizeMB, utils.FormatTime(info.Created))
		}
	case "stats":
		stats, err := cache.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("后端: %s\n缓存数量: %d\n总大小: %.2f MB\n", stats.Backend, stats.Entries, stats.SizeMB)
	case "clear":
		if err := cache.Clear(ctx); err != nil {
			return err
		}
		logger.Info("🗑️ 已清空所有缓存")
	case "clean":
		if len(args) < 2 {
			return errors.New("用法: smabot cache clean DAYS")
		}
		days, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("无效的天数: %s", args[1])
		}
		n, err := marketdata.CleanOld(ctx, cache, days)
		if err != nil {
			return err
		}
		logger.Info("🧹 已清理 %d 个过期缓存（%d 天前）", n, days)
	default:
		return fmt.Errorf("未知的缓存命令: %s", args[0])
	}
	return nil
}
