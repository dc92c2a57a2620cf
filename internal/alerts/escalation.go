package alerts

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/AnalyseDeCircuit/opspulse/internal/events"
	"github.com/AnalyseDeCircuit/opspulse/internal/sched"
)

// Escalator 升级调度器
//
// 每个告警同一时刻至多一个待触发的一次性定时器，链式推进策略步骤。
// 确认/解决会取消定时器；即便定时器已并发触发，fire 也会在管理器锁下
// 复查告警状态，对已解决的告警保证不产生任何修改。
type Escalator struct {
	mu     sync.Mutex
	timers map[string]*sched.Task

	manager   *Manager
	scheduler *sched.Scheduler
}

func newEscalator(m *Manager, scheduler *sched.Scheduler) *Escalator {
	return &Escalator{
		timers:    make(map[string]*sched.Task),
		manager:   m,
		scheduler: scheduler,
	}
}

// Schedule 为告警安排下一个升级步骤
// 取当前级别之上最小的步骤；不存在则结束升级链。
// 只为活跃告警布防：确认/解决与步骤触发并发时，链不会被重新拉起。
func (e *Escalator) Schedule(alertID string, policy *EscalationPolicy) {
	alert, ok := e.manager.Get(alertID)
	if !ok || alert.Status != StatusActive {
		e.Cancel(alertID)
		return
	}

	step, ok := nextStep(policy, alert.EscalationLevel)
	if !ok {
		e.Cancel(alertID)
		return
	}

	delay := time.Duration(step.DelayMinutes) * time.Minute

	// 布防与登记在同一临界区内完成：零延迟步骤可能在本调用返回前就触发，
	// 其 fire 内的链式 Schedule/Cancel 会阻塞到这里释放锁，不会撤销新定时器。
	e.mu.Lock()
	if prev, exists := e.timers[alertID]; exists {
		prev.Stop()
	}
	task := e.scheduler.After(delay, fmt.Sprintf("escalation:%s:%d", alertID, step.Level), func() {
		e.fire(alertID, policy, step)
	})
	if task == nil {
		// 调度器已停止
		delete(e.timers, alertID)
		e.mu.Unlock()
		return
	}
	e.timers[alertID] = task
	e.mu.Unlock()
}

// Cancel 取消告警的待触发升级定时器
func (e *Escalator) Cancel(alertID string) {
	e.mu.Lock()
	if task, ok := e.timers[alertID]; ok {
		task.Stop()
		delete(e.timers, alertID)
	}
	e.mu.Unlock()
}

// fire 执行一个升级步骤
func (e *Escalator) fire(alertID string, policy *EscalationPolicy, step EscalationStep) {
	m := e.manager
	now := m.clk.Now()

	m.mu.Lock()
	a, ok := m.alerts[alertID]
	if !ok || a.Status == StatusResolved {
		// 已解决告警上的定时器触发必须是空操作
		m.mu.Unlock()
		e.Cancel(alertID)
		return
	}

	if step.Condition != nil {
		if step.Condition.Unacknowledged && a.Status != StatusActive {
			m.mu.Unlock()
			e.Cancel(alertID)
			return
		}
		minAge := time.Duration(step.Condition.AlertAgeMinutes) * time.Minute
		if now.Sub(a.Timestamp) < minAge {
			m.mu.Unlock()
			e.Cancel(alertID)
			return
		}
	}

	// EscalationLevel 单调不减，且受策略最大级别约束
	if step.Level > a.EscalationLevel {
		a.EscalationLevel = step.Level
	}
	a.EscalatedAt = &now
	m.syncHistoryLocked(a)
	escalated := cloneAlert(a)
	m.mu.Unlock()

	log.Printf("[Alerts] ESCALATED: %s to level %d", escalated.Title, escalated.EscalationLevel)

	m.notifier.Dispatch(escalated, step.Channels)
	m.publish(events.AlertEscalated, escalated)

	e.Schedule(alertID, policy)
}

// PendingCount 当前待触发的升级定时器数量
func (e *Escalator) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

// nextStep 返回 level 之上最小的策略步骤
func nextStep(policy *EscalationPolicy, level int) (EscalationStep, bool) {
	for _, step := range policy.Steps {
		if step.Level > level {
			return step, true
		}
	}
	return EscalationStep{}, false
}
