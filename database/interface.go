package database

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// Database 回测历史存储接口
type Database interface {
	// 回测记录
	SaveRun(ctx context.Context, run *BacktestRun) error
	GetRun(ctx context.Context, id int64) (*BacktestRun, error)
	ListRuns(ctx context.Context, filter *RunFilter) ([]*BacktestRun, error)
	DeleteRun(ctx context.Context, id int64) error

	// 事件记录
	SaveEvent(ctx context.Context, event *EventRecord) error
	GetEvents(ctx context.Context, filter *EventFilter) ([]*EventRecord, error)
	CleanupEvents(ctx context.Context, before time.Time) (int64, error)

	// 健康检查
	Ping(ctx context.Context) error

	// 关闭连接
	Close() error
}

// 数据模型

// BacktestRun 一次回测的参数和统计
type BacktestRun struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol   string `gorm:"index:idx_symbol_time;size:50" json:"symbol"`
	Interval string `gorm:"size:10" json:"interval"`
	Strategy string `gorm:"size:50" json:"strategy"`

	// 参数
	MAType              string  `gorm:"size:10" json:"ma_type"`
	FastWindow          int     `json:"fast_window"`
	SlowWindow          int     `json:"slow_window"`
	EntryThresholdRatio float64 `json:"entry_threshold_ratio"`
	ExitMarkupRatio     float64 `json:"exit_markup_ratio"`
	Quantity            float64 `json:"quantity"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Candles   int       `json:"candles"`

	// 统计
	Status           string          `gorm:"index;size:20" json:"status"`
	BuyCount         int             `json:"buy_count"`
	MatchedCount     int             `json:"matched_count"`
	OpenPositions    int             `json:"open_positions"`
	CoinsBought      decimal.Decimal `gorm:"type:decimal(36,18)" json:"coins_bought"`
	CoinsSold        decimal.Decimal `gorm:"type:decimal(36,18)" json:"coins_sold"`
	AverageBuyPrice  decimal.Decimal `gorm:"type:decimal(36,18)" json:"average_buy_price"`
	AverageSellPrice decimal.Decimal `gorm:"type:decimal(36,18)" json:"average_sell_price"`
	MoneySpent       decimal.Decimal `gorm:"type:decimal(36,18)" json:"money_spent"`
	MoneyEarned      decimal.Decimal `gorm:"type:decimal(36,18)" json:"money_earned"`
	Profit           decimal.Decimal `gorm:"type:decimal(36,18)" json:"profit"`

	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `gorm:"index:idx_symbol_time" json:"created_at"`

	Signals []SignalRecord `gorm:"foreignKey:RunID" json:"signals,omitempty"`
}

// SignalRecord 买入信号及其配对的卖出信号
type SignalRecord struct {
	ID          int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID       int64   `gorm:"index" json:"run_id"`
	EntryIndex  int     `json:"entry_index"`
	BuyTime     int64   `json:"buy_time"`
	EntryPrice  float64 `json:"entry_price"`
	TargetPrice float64 `json:"target_price"`
	Quantity    float64 `json:"quantity"`
	Matched     bool    `json:"matched"`
	ExitIndex   int     `json:"exit_index"` // 未卖出时为 -1
	SellTime    int64   `json:"sell_time"`
	ExitPrice   float64 `json:"exit_price"`
}

// RunFilter 回测记录过滤条件
type RunFilter struct {
	Symbol string
	Status string
	Limit  int
	Offset int
}

// EventRecord 事件记录
type EventRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Type      string    `gorm:"index;size:50" json:"type"`
	Source    string    `gorm:"size:50" json:"source"`
	Symbol    string    `gorm:"index;size:50" json:"symbol"`
	Message   string    `gorm:"type:text" json:"message"`
	Data      string    `gorm:"type:text" json:"data"` // JSON
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// EventFilter 事件过滤条件
type EventFilter struct {
	Type      string
	Symbol    string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}
