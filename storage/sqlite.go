package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"smabot/market"
	"smabot/marketdata"
)

// SQLiteStorage SQLite K线存档，实现 marketdata.CandleCache
type SQLiteStorage struct {
	db     *sql.DB
	closed bool
}

var _ marketdata.CandleCache = (*SQLiteStorage)(nil)

// NewSQLiteStorage 创建 SQLite 存储
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	// 使用 WAL 模式提高并发性能
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// SQLite 并发限制
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("创建表失败: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// createTables 创建表
func createTables(db *sql.DB) error {
	// 每个缓存键一条记录
	setsSQL := `
	CREATE TABLE IF NOT EXISTS candle_sets (
		cache_key TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		start_time TIMESTAMP,
		end_time TIMESTAMP,
		candles INTEGER NOT NULL,
		size_bytes INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);`

	candlesSQL := `
	CREATE TABLE IF NOT EXISTS candles (
		cache_key TEXT NOT NULL REFERENCES candle_sets(cache_key) ON DELETE CASCADE,
		timestamp BIGINT NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		PRIMARY KEY (cache_key, timestamp)
	);`

	for _, stmt := range []string{setsSQL, candlesSQL} {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Load 读取缓存
func (s *SQLiteStorage) Load(ctx context.Context, key string) ([]market.Candle, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT candles FROM candle_sets WHERE cache_key = ?`, key).Scan(&count)
	if err == sql.ErrNoRows {
		return nil, marketdata.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("查询缓存失败: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, open, high, low, close, volume FROM candles WHERE cache_key = ? ORDER BY timestamp`, key)
	if err != nil {
		return nil, fmt.Errorf("查询K线失败: %w", err)
	}
	defer rows.Close()

	candles := make([]market.Candle, 0, count)
	for rows.Next() {
		var ts int64
		var o, h, l, c, v float64
		if err := rows.Scan(&ts, &o, &h, &l, &c, &v); err != nil {
			return nil, err
		}
		candles = append(candles, market.NewCandle(ts, o, h, l, c, v))
	}
	return candles, rows.Err()
}

// Save 写入缓存，已有同名缓存会被替换
func (s *SQLiteStorage) Save(ctx context.Context, key string, candles []market.Candle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM candle_sets WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("删除旧缓存失败: %w", err)
	}

	// 每根K线 7 个字段约 56 字节
	info := marketdata.NewCacheInfo(key, candles, int64(len(candles))*56)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO candle_sets (cache_key, symbol, interval, start_time, end_time, candles, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key, info.Symbol, info.Interval, info.Start, info.End, info.Candles, int64(len(candles))*56, info.Created)
	if err != nil {
		return fmt.Errorf("保存缓存信息失败: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (cache_key, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, key, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("保存K线失败: %w", err)
		}
	}

	return tx.Commit()
}

// Delete 删除缓存
func (s *SQLiteStorage) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM candle_sets WHERE cache_key = ?`, key)
	return err
}

// List 列出缓存
func (s *SQLiteStorage) List(ctx context.Context) ([]marketdata.CacheInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cache_key, symbol, interval, start_time, end_time, candles, size_bytes, created_at
		FROM candle_sets ORDER BY cache_key`)
	if err != nil {
		return nil, fmt.Errorf("查询缓存列表失败: %w", err)
	}
	defer rows.Close()

	caches := make([]marketdata.CacheInfo, 0)
	for rows.Next() {
		var info marketdata.CacheInfo
		var start, end sql.NullTime
		var size int64
		if err := rows.Scan(&info.Name, &info.Symbol, &info.Interval, &start, &end, &info.Candles, &size, &info.Created); err != nil {
			return nil, err
		}
		info.Start = start.Time
		info.End = end.Time
		info.SizeMB = float64(size) / 1024 / 1024
		caches = append(caches, info)
	}
	return caches, rows.Err()
}

// Clear 清空缓存
func (s *SQLiteStorage) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM candle_sets`)
	return err
}

// Stats 缓存统计
func (s *SQLiteStorage) Stats(ctx context.Context) (marketdata.CacheStats, error) {
	var entries int
	var size sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), SUM(size_bytes) FROM candle_sets`).Scan(&entries, &size)
	if err != nil {
		return marketdata.CacheStats{}, err
	}
	return marketdata.CacheStats{
		Backend:   "sqlite",
		Entries:   entries,
		TotalSize: size.Int64,
		SizeMB:    float64(size.Int64) / 1024 / 1024,
	}, nil
}

// CleanupBefore 删除创建时间早于 before 的缓存
func (s *SQLiteStorage) CleanupBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM candle_sets WHERE created_at < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close 关闭数据库
func (s *SQLiteStorage) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
