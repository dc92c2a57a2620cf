// Package events 提供进程内的事件订阅/发布
//
// 引擎的所有可观测信号（指标记录、告警生命周期、规则增删、健康检查、
// 启停）都经由 Bus 广播给注册的处理器，取代隐式的全局事件发射器。
package events

import (
	"log"
	"runtime/debug"
	"sync"
	"time"
)

// Kind 事件类型
type Kind string

const (
	MetricRecorded Kind = "metric.recorded"

	AlertCreated      Kind = "alert.created"
	AlertUpdated      Kind = "alert.updated"
	AlertAcknowledged Kind = "alert.acknowledged"
	AlertResolved     Kind = "alert.resolved"
	AlertSuppressed   Kind = "alert.suppressed"
	AlertEscalated    Kind = "alert.escalated"

	RuleAdded   Kind = "rule.added"
	RuleRemoved Kind = "rule.removed"

	HealthCheck Kind = "health.check"

	MonitorStarted Kind = "monitor.started"
	MonitorStopped Kind = "monitor.stopped"
	MonitorError   Kind = "monitor.error"
)

// Event 一条事件记录
type Event struct {
	Kind      Kind        `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Handler 事件处理器
type Handler func(Event)

// Bus 事件总线
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	all      []Handler
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[Kind][]Handler),
	}
}

// Subscribe 订阅指定类型的事件
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// SubscribeAll 订阅所有事件
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish 同步分发事件，处理器中的 panic 被隔离并记录
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Kind])+len(b.all))
	handlers = append(handlers, b.handlers[event.Kind]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(event, h)
	}
}

func (b *Bus) invoke(event Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Events] handler panicked on %s: %v\n%s", event.Kind, r, debug.Stack())
		}
	}()
	h(event)
}
