package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"smabot/database"
	"smabot/logger"
)

// EventStore 事件持久化接口，database.Database 满足该接口
type EventStore interface {
	SaveEvent(ctx context.Context, event *database.EventRecord) error
	CleanupEvents(ctx context.Context, before time.Time) (int64, error)
}

// EventCenter 事件中心：持久化事件并推送给订阅者
type EventCenter struct {
	store       EventStore
	eventBus    *EventBus
	broadcaster Broadcaster
	config      *EventCenterConfig
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// EventCenterConfig 事件中心配置
type EventCenterConfig struct {
	Enabled         bool
	CleanupInterval int // 小时
	RetentionDays   int
}

// NewEventCenter 创建事件中心，store 与 broadcaster 均可为 nil
func NewEventCenter(store EventStore, eventBus *EventBus, broadcaster Broadcaster, config *EventCenterConfig) *EventCenter {
	ctx, cancel := context.WithCancel(context.Background())
	if config == nil {
		config = &EventCenterConfig{Enabled: true}
	}
	return &EventCenter{
		store:       store,
		eventBus:    eventBus,
		broadcaster: broadcaster,
		config:      config,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start 启动事件中心
func (ec *EventCenter) Start() error {
	if !ec.config.Enabled {
		logger.Info("⏸️ 事件中心未启用")
		return nil
	}

	logger.Info("🚀 启动事件中心...")

	ec.wg.Add(1)
	go ec.processEvents()

	if ec.store != nil && ec.config.RetentionDays > 0 {
		ec.wg.Add(1)
		go ec.cleanupTask()
	}

	logger.Info("✅ 事件中心已启动")
	return nil
}

// Stop 停止事件中心
func (ec *EventCenter) Stop() {
	logger.Info("🛑 停止事件中心...")
	ec.cancel()
	ec.wg.Wait()
	logger.Info("✅ 事件中心已停止")
}

// processEvents 处理事件
func (ec *EventCenter) processEvents() {
	defer ec.wg.Done()

	eventCh := ec.eventBus.Subscribe()

	for {
		select {
		case <-ec.ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			ec.handleEvent(event)
		}
	}
}

// handleEvent 处理单个事件
func (ec *EventCenter) handleEvent(event *Event) {
	if event == nil {
		return
	}

	if ec.store != nil {
		detailsJSON, err := json.Marshal(event.Data)
		if err != nil {
			logger.Warn("⚠️ 序列化事件详情失败: %v", err)
			detailsJSON = []byte("{}")
		}

		record := &database.EventRecord{
			Type:      string(event.Type),
			Source:    extractString(event.Data, "source"),
			Symbol:    extractString(event.Data, "symbol"),
			Message:   buildMessage(event),
			Data:      string(detailsJSON),
			CreatedAt: event.Timestamp,
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = ec.store.SaveEvent(ctx, record)
		cancel()
		if err != nil {
			logger.Error("❌ 保存事件失败: %v", err)
		}
	}

	if ec.broadcaster != nil {
		ec.broadcaster.Broadcast(event)
	}
}

// extractString 从事件数据中提取字符串字段
func extractString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// buildMessage 构建事件消息
func buildMessage(event *Event) string {
	symbol := extractString(event.Data, "symbol")
	switch event.Type {
	case EventTypeBacktestCompleted:
		return fmt.Sprintf("%s 回测完成: 状态=%v 买入=%v 卖出=%v 利润=%v",
			symbol, event.Data["status"], event.Data["buys"], event.Data["sells"], event.Data["profit"])
	case EventTypeDataFetched:
		return fmt.Sprintf("%s %s 获取 %v 根K线",
			symbol, extractString(event.Data, "interval"), event.Data["candles"])
	default:
		if msg, ok := event.Data["message"].(string); ok {
			return msg
		}
		if err, ok := event.Data["error"].(string); ok {
			return err
		}
		if symbol != "" {
			return fmt.Sprintf("%s %s", symbol, GetEventTitle(event.Type))
		}
		return GetEventTitle(event.Type)
	}
}

// cleanupTask 清理任务
func (ec *EventCenter) cleanupTask() {
	defer ec.wg.Done()

	interval := time.Duration(ec.config.CleanupInterval) * time.Hour
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ec.ctx.Done():
			return
		case <-ticker.C:
			ec.performCleanup()
		}
	}
}

// performCleanup 执行清理
func (ec *EventCenter) performCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	before := time.Now().AddDate(0, 0, -ec.config.RetentionDays)
	n, err := ec.store.CleanupEvents(ctx, before)
	if err != nil {
		logger.Error("❌ 清理旧事件失败: %v", err)
		return
	}
	logger.Info("🧹 已清理 %d 条旧事件", n)
}

// PublishEvent 发布事件（便捷方法）
func (ec *EventCenter) PublishEvent(eventType EventType, data map[string]interface{}) {
	ec.eventBus.Publish(&Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	})
}
