package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smabot/config"
	"smabot/marketdata"
	"smabot/storage"
)

func TestJobsFromConfig_Symbols(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Market.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	cfg.Market.Start = "2024-01-01"
	cfg.Market.End = "2024-02-01"

	jobs, err := jobsFromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "ETHUSDT", jobs[1].Symbol)
	assert.Equal(t, 2024, jobs[0].Start.Year())
	assert.Equal(t, cfg.Strategy.Config, jobs[0].Config)
	assert.Empty(t, jobs[0].Candles)
}

func TestJobsFromConfig_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klines.csv")
	data := "timestamp,open,high,low,close,volume\n" +
		"1704070800000,101,102,100,101,5\n" +
		"1704067200000,100,101,99,100,10\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg := config.DefaultConfig()
	cfg.Market.CSVPath = path

	jobs, err := jobsFromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "BTCUSDT", jobs[0].Symbol)
	require.Len(t, jobs[0].Candles, 2)
	assert.Equal(t, int64(1704067200000), jobs[0].Candles[0].Timestamp)

	cfg.Market.CSVPath = filepath.Join(t.TempDir(), "missing.csv")
	_, err = jobsFromConfig(cfg)
	assert.Error(t, err)
}

func TestBuildCache(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()

	cfg.Cache.Type = "none"
	cache, closeCache, err := buildCache(cfg)
	require.NoError(t, err)
	assert.IsType(t, marketdata.NopCache{}, cache)
	closeCache()

	cfg.Cache.Type = "file"
	cfg.Cache.Dir = filepath.Join(dir, "files")
	cache, closeCache, err = buildCache(cfg)
	require.NoError(t, err)
	assert.IsType(t, &marketdata.FileCache{}, cache)
	closeCache()

	cfg.Cache.Type = "sqlite"
	cfg.Cache.Path = filepath.Join(dir, "nested", "candles.db")
	cache, closeCache, err = buildCache(cfg)
	require.NoError(t, err)
	defer closeCache()
	assert.IsType(t, &storage.SQLiteStorage{}, cache)

	stats, err := cache.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
}

func TestNewApp_WithDatabase(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.Type = "none"
	cfg.Database.Enabled = true
	cfg.Database.DSN = filepath.Join(t.TempDir(), "data", "runs.db")

	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.db)
	assert.NoError(t, a.db.Ping(context.Background()))
	assert.NotNil(t, a.runner(cfg, nil).Database())
}
