package event

import (
	"time"

	"smabot/logger"
)

// EventType 事件类型
type EventType string

const (
	EventTypeBacktestStarted   EventType = "backtest_started"
	EventTypeBacktestCompleted EventType = "backtest_completed"
	EventTypeBacktestFailed    EventType = "backtest_failed"
	EventTypeDataFetched       EventType = "data_fetched"
	EventTypeConfigReloaded    EventType = "config_reloaded"
	EventTypeSystemStart       EventType = "system_start"
	EventTypeSystemStop        EventType = "system_stop"
)

// Event 事件结构
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// GetEventTitle 事件标题
func GetEventTitle(t EventType) string {
	switch t {
	case EventTypeBacktestStarted:
		return "回测开始"
	case EventTypeBacktestCompleted:
		return "回测完成"
	case EventTypeBacktestFailed:
		return "回测失败"
	case EventTypeDataFetched:
		return "行情数据已获取"
	case EventTypeConfigReloaded:
		return "配置已重新加载"
	case EventTypeSystemStart:
		return "系统启动"
	case EventTypeSystemStop:
		return "系统停止"
	default:
		return string(t)
	}
}

// EventBus 事件总线
type EventBus struct {
	eventCh    chan *Event
	bufferSize int
}

// NewEventBus 创建事件总线
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 1000 // 默认1000
	}
	return &EventBus{
		eventCh:    make(chan *Event, bufferSize),
		bufferSize: bufferSize,
	}
}

// Publish 发布事件（非阻塞），队列满时返回 false
func (eb *EventBus) Publish(event *Event) bool {
	if event == nil {
		return false
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case eb.eventCh <- event:
		return true
	default:
		// Channel 满了，记录警告但不阻塞
		logger.Warn("⚠️ 事件队列已满，丢弃事件: %s", event.Type)
		return false
	}
}

// Subscribe 订阅事件（返回 channel）
func (eb *EventBus) Subscribe() <-chan *Event {
	return eb.eventCh
}

// Close 关闭事件总线
func (eb *EventBus) Close() {
	close(eb.eventCh)
}
