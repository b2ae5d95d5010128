package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	applog "smabot/logger"
)

// GormDatabase GORM 数据库实现
type GormDatabase struct {
	db *gorm.DB
}

var _ Database = (*GormDatabase)(nil)

// DBConfig 数据库配置
type DBConfig struct {
	Type            string        // sqlite, postgres, mysql
	DSN             string        // 数据源名称
	MaxOpenConns    int           // 最大打开连接数
	MaxIdleConns    int           // 最大空闲连接数
	ConnMaxLifetime time.Duration // 连接最大生命周期
	LogLevel        string        // 日志级别: silent, error, warn, info
}

// NewGormDatabase 创建 GORM 数据库实例并迁移表结构
func NewGormDatabase(config *DBConfig) (*GormDatabase, error) {
	dialector, err := openDialector(config)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(config.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取连接池失败: %w", err)
	}
	if config.Type == "sqlite" {
		// SQLite 单写者
		sqlDB.SetMaxOpenConns(1)
	} else if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&BacktestRun{}, &SignalRecord{}, &EventRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("迁移表结构失败: %w", err)
	}

	return &GormDatabase{db: db}, nil
}

func openDialector(config *DBConfig) (gorm.Dialector, error) {
	switch config.Type {
	case "sqlite":
		dsn := config.DSN
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
		}
		return sqlite.Open(dsn), nil
	case "postgres", "postgresql":
		return postgres.Open(config.DSN), nil
	case "mysql":
		return mysql.Open(config.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}
}

// gormWriter 把 GORM 日志写入系统日志
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...interface{}) {
	applog.Debug("[GORM] "+format, args...)
}

func newGormLogger(level string) gormlogger.Interface {
	logLevel := gormlogger.Silent
	switch strings.ToLower(level) {
	case "error":
		logLevel = gormlogger.Error
	case "warn":
		logLevel = gormlogger.Warn
	case "info":
		logLevel = gormlogger.Info
	}
	return gormlogger.New(gormWriter{}, gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logLevel,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// paginate limit/offset 为 0 时不限制
func paginate(limit, offset int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if limit > 0 {
			db = db.Limit(limit)
		}
		if offset > 0 {
			db = db.Offset(offset)
		}
		return db
	}
}

// SaveRun 保存回测记录及其信号
func (g *GormDatabase) SaveRun(ctx context.Context, run *BacktestRun) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		signals := run.Signals
		run.Signals = nil
		if err := tx.Create(run).Error; err != nil {
			run.Signals = signals
			return err
		}
		run.Signals = signals

		for i := range run.Signals {
			run.Signals[i].RunID = run.ID
		}
		if len(run.Signals) > 0 {
			if err := tx.CreateInBatches(run.Signals, 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRun 获取回测记录（含信号）
func (g *GormDatabase) GetRun(ctx context.Context, id int64) (*BacktestRun, error) {
	var run BacktestRun
	err := g.db.WithContext(ctx).
		Preload("Signals", func(db *gorm.DB) *gorm.DB { return db.Order("entry_index") }).
		First(&run, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns 获取回测记录（不含信号），按创建时间倒序
func (g *GormDatabase) ListRuns(ctx context.Context, filter *RunFilter) ([]*BacktestRun, error) {
	query := g.db.WithContext(ctx).Model(&BacktestRun{})

	if filter != nil {
		if filter.Symbol != "" {
			query = query.Where("symbol = ?", filter.Symbol)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		query = query.Scopes(paginate(filter.Limit, filter.Offset))
	}

	var runs []*BacktestRun
	if err := query.Order("created_at DESC").Order("id DESC").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// DeleteRun 删除回测记录及其信号
func (g *GormDatabase) DeleteRun(ctx context.Context, id int64) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&SignalRecord{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&BacktestRun{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// SaveEvent 保存事件记录
func (g *GormDatabase) SaveEvent(ctx context.Context, event *EventRecord) error {
	return g.db.WithContext(ctx).Create(event).Error
}

// GetEvents 获取事件记录
func (g *GormDatabase) GetEvents(ctx context.Context, filter *EventFilter) ([]*EventRecord, error) {
	query := g.db.WithContext(ctx).Model(&EventRecord{})

	if filter != nil {
		if filter.Type != "" {
			query = query.Where("type = ?", filter.Type)
		}
		if filter.Symbol != "" {
			query = query.Where("symbol = ?", filter.Symbol)
		}
		if filter.StartTime != nil {
			query = query.Where("created_at >= ?", filter.StartTime)
		}
		if filter.EndTime != nil {
			query = query.Where("created_at <= ?", filter.EndTime)
		}
		query = query.Scopes(paginate(filter.Limit, filter.Offset))
	}

	var events []*EventRecord
	if err := query.Order("created_at DESC").Order("id DESC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// CleanupEvents 删除早于 before 的事件
func (g *GormDatabase) CleanupEvents(ctx context.Context, before time.Time) (int64, error) {
	res := g.db.WithContext(ctx).Where("created_at < ?", before).Delete(&EventRecord{})
	return res.RowsAffected, res.Error
}

// Ping 检查连接
func (g *GormDatabase) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭连接
func (g *GormDatabase) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
