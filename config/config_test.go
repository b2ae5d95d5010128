package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
market:
  symbols: [btcusdt, ethusdt]
  interval: 4h
  start: "2024-01-01"
  end: "2024-02-01"
strategy:
  entry_threshold_ratio: 0.05
  exit_markup_ratio: 0.01
  quantity: 2
  ma_type: ema
  fast_window: 5
  slow_window: 20
cache:
  type: sqlite
  path: data/test.db
web:
  port: 9000
`

func TestLoadConfigFromBytes(t *testing.T) {
	cfg, err := LoadConfigFromBytes([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Market.Symbols)
	assert.Equal(t, "4h", cfg.Market.Interval)
	assert.Equal(t, 0.05, cfg.Strategy.EntryThresholdRatio)
	assert.Equal(t, 0.01, cfg.Strategy.ExitMarkupRatio)
	assert.Equal(t, 2.0, cfg.Strategy.Quantity)
	assert.Equal(t, "ema", cfg.Strategy.Type)
	assert.Equal(t, 5, cfg.Strategy.FastWindow)
	assert.Equal(t, 20, cfg.Strategy.SlowWindow)
	assert.Equal(t, "sqlite", cfg.Cache.Type)
	assert.Equal(t, 9000, cfg.Web.Port)

	// 未设置的字段保留默认值
	assert.Equal(t, "sma_threshold", cfg.Strategy.Name)
	assert.Equal(t, 1, cfg.Strategy.Workers)
	assert.Equal(t, "backtest/cache", cfg.Cache.Dir)
	assert.Equal(t, "zh-CN", cfg.System.Language)

	start, err := cfg.Market.StartTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.03, cfg.Strategy.EntryThresholdRatio)
	assert.Equal(t, 0.02, cfg.Strategy.ExitMarkupRatio)
	assert.Equal(t, 10, cfg.Strategy.FastWindow)
	assert.Equal(t, 30, cfg.Strategy.SlowWindow)
	assert.Equal(t, 500, cfg.Market.Limit)
	assert.Equal(t, "0.0.0.0:28888", cfg.Addr())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no symbols", func(c *Config) { c.Market.Symbols = nil }},
		{"bad interval", func(c *Config) { c.Market.Interval = "7m" }},
		{"bad start", func(c *Config) { c.Market.Start = "2024/01/01"; c.Market.End = "2024-02-01" }},
		{"start without end", func(c *Config) { c.Market.Start = "2024-01-01" }},
		{"end before start", func(c *Config) { c.Market.Start = "2024-02-01"; c.Market.End = "2024-01-01" }},
		{"negative threshold", func(c *Config) { c.Strategy.EntryThresholdRatio = -0.1 }},
		{"zero quantity", func(c *Config) { c.Strategy.Quantity = 0 }},
		{"fast >= slow", func(c *Config) { c.Strategy.FastWindow = 30 }},
		{"bad cache", func(c *Config) { c.Cache.Type = "memcached" }},
		{"bad database", func(c *Config) { c.Database.Enabled = true; c.Database.Type = "oracle" }},
		{"bad timezone", func(c *Config) { c.System.Timezone = "Mars/Olympus" }},
		{"negative rate", func(c *Config) { c.Binance.RateLimit = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Strategy.EntryThresholdRatio = 0.04
	cfg.Market.Symbols = []string{"SOLUSDT"}
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.04, loaded.Strategy.EntryThresholdRatio)
	assert.Equal(t, []string{"SOLUSDT"}, loaded.Market.Symbols)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigDiff(t *testing.T) {
	oldCfg := DefaultConfig()
	newCfg := DefaultConfig()
	newCfg.Strategy.EntryThresholdRatio = 0.05
	newCfg.Strategy.SlowWindow = 50

	diff := DiffConfig(oldCfg, newCfg)
	require.Len(t, diff.Changes, 2)
	assert.ElementsMatch(t, []string{"strategy.entry_threshold_ratio", "strategy.slow_window"}, diff.Paths())
	assert.False(t, diff.RequiresRestart)

	newCfg.Web.Port = 9999
	diff = DiffConfig(oldCfg, newCfg)
	assert.True(t, diff.RequiresRestart)

	newCfg.Market.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	diff = DiffConfig(oldCfg, newCfg)
	assert.Contains(t, diff.Paths(), "market.symbols")

	assert.False(t, DiffConfig(oldCfg, DefaultConfig()).HasChanges())
}

func TestHotReloader(t *testing.T) {
	initial := DefaultConfig()
	hr := NewHotReloader(initial)

	var called int
	hr.RegisterCallback(func(oldConfig, newConfig *Config, changes []ConfigChange) error {
		called++
		assert.Equal(t, 0.03, oldConfig.Strategy.EntryThresholdRatio)
		assert.Equal(t, 0.06, newConfig.Strategy.EntryThresholdRatio)
		return nil
	})

	// 策略变更立即生效，端口变更等待重启
	next := DefaultConfig()
	next.Strategy.EntryThresholdRatio = 0.06
	next.Web.Port = 9999

	diff, err := hr.UpdateConfig(next)
	require.NoError(t, err)
	assert.True(t, diff.RequiresRestart)
	assert.Equal(t, 1, called)

	current := hr.GetCurrentConfig()
	assert.Equal(t, 0.06, current.Strategy.EntryThresholdRatio)
	assert.Equal(t, 28888, current.Web.Port)
	// 原配置未被修改
	assert.Equal(t, 0.03, initial.Strategy.EntryThresholdRatio)
}

func TestConfigBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, SaveConfig(DefaultConfig(), path))

	bm := NewBackupManager(filepath.Join(dir, "backups"), 2)
	var last *BackupInfo
	for i := 0; i < 3; i++ {
		info, err := bm.CreateBackup(path)
		require.NoError(t, err)
		last = info
		time.Sleep(2 * time.Millisecond)
	}

	backups, err := bm.ListBackups()
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, last.ID, backups[0].ID)

	// 覆盖后恢复
	require.NoError(t, os.WriteFile(path, []byte("market: {symbols: []}"), 0644))
	require.NoError(t, bm.RestoreBackup(last.ID, path))
	_, err = LoadConfig(path)
	assert.NoError(t, err)

	assert.Error(t, bm.RestoreBackup("../config.yaml", path))
}

func TestConfigWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, SaveConfig(DefaultConfig(), path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	hr := NewHotReloader(cfg)

	cw, err := NewConfigWatcher(path, hr)
	require.NoError(t, err)
	cw.pollEvery = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, cw.Start(ctx))
	defer cw.Stop()

	// 保证修改时间前进
	time.Sleep(20 * time.Millisecond)
	updated := DefaultConfig()
	updated.Strategy.ExitMarkupRatio = 0.05
	require.NoError(t, SaveConfig(updated, path))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	require.Eventually(t, func() bool {
		return hr.GetCurrentConfig().Strategy.ExitMarkupRatio == 0.05
	}, 3*time.Second, 20*time.Millisecond)
}
