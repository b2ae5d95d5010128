package event

// Broadcaster 事件推送接口（WebSocket Hub 实现，避免循环依赖）
type Broadcaster interface {
	Broadcast(event *Event)
}

// BroadcasterFunc 函数适配器
type BroadcasterFunc func(event *Event)

// Broadcast 实现 Broadcaster
func (f BroadcasterFunc) Broadcast(event *Event) {
	f(event)
}
