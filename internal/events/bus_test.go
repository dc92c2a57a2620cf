package events

import (
	"testing"
	"time"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := NewBus()

	var created, all []Event
	bus.Subscribe(AlertCreated, func(e Event) { created = append(created, e) })
	bus.SubscribeAll(func(e Event) { all = append(all, e) })

	bus.Publish(Event{Kind: AlertCreated, Timestamp: time.Now(), Payload: "a"})
	bus.Publish(Event{Kind: AlertResolved, Timestamp: time.Now(), Payload: "b"})

	// 按类型订阅只收到匹配事件
	if len(created) != 1 || created[0].Payload != "a" {
		t.Errorf("typed handler received %v events, want 1", len(created))
	}
	// 全量订阅收到所有事件
	if len(all) != 2 {
		t.Errorf("all handler received %v events, want 2", len(all))
	}
}

func TestPublishNoSubscribers(t *testing.T) {
	bus := NewBus()
	// 无订阅者时 Publish 是安全的空操作
	bus.Publish(Event{Kind: MetricRecorded})
}

func TestHandlerPanicIsolation(t *testing.T) {
	bus := NewBus()

	var called bool
	bus.Subscribe(AlertCreated, func(Event) { panic("handler bug") })
	bus.Subscribe(AlertCreated, func(Event) { called = true })

	bus.Publish(Event{Kind: AlertCreated})

	// 前一个处理器 panic 不影响后一个
	if !called {
		t.Error("second handler should run despite first handler panicking")
	}
}

func TestMultipleHandlersSameKind(t *testing.T) {
	bus := NewBus()

	count := 0
	for i := 0; i < 3; i++ {
		bus.Subscribe(HealthCheck, func(Event) { count++ })
	}
	bus.Publish(Event{Kind: HealthCheck})

	if count != 3 {
		t.Errorf("handlers called %v times, want 3", count)
	}
}
