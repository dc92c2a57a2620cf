package alerts

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/AnalyseDeCircuit/opspulse/internal/events"
	"github.com/AnalyseDeCircuit/opspulse/internal/metrics"
	"github.com/AnalyseDeCircuit/opspulse/internal/sched"
)

// Engine 告警规则引擎
//
// 每条启用的规则有独立的评估定时器，按条件窗口查询 Metric Store、
// 聚合后与阈值比较。单条规则的评估错误被隔离，不影响其他规则。
// 引擎从不自动解决告警，解决始终是显式的生命周期调用。
type Engine struct {
	mu sync.RWMutex

	rules map[string]*Rule
	tasks map[string]*sched.Task

	store     *metrics.Store
	manager   *Manager
	scheduler *sched.Scheduler
	bus       *events.Bus
	clk       clock.Clock
}

// NewEngine 创建规则引擎
func NewEngine(store *metrics.Store, manager *Manager, scheduler *sched.Scheduler, bus *events.Bus) *Engine {
	return &Engine{
		rules:     make(map[string]*Rule),
		tasks:     make(map[string]*sched.Task),
		store:     store,
		manager:   manager,
		scheduler: scheduler,
		bus:       bus,
		clk:       scheduler.Clock(),
	}
}

// AddRule 添加规则，启用状态下立即启动评估定时器
func (e *Engine) AddRule(rule *Rule) error {
	if err := ValidateRule(rule); err != nil {
		return err
	}

	e.mu.Lock()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if _, exists := e.rules[rule.ID]; exists {
		e.mu.Unlock()
		return ErrRuleExists
	}

	now := e.clk.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	cp := *rule
	e.rules[rule.ID] = &cp
	if cp.Enabled {
		e.startLocked(&cp)
	}
	e.mu.Unlock()

	e.publishRule(events.RuleAdded, cp)
	log.Printf("[Rules] added rule %s (%s %s %.2f over %dm, every %ds)",
		cp.Name, cp.Condition.Metric, cp.Condition.Operator, cp.Condition.Threshold,
		cp.Condition.TimeWindowMinutes, cp.Condition.EvalIntervalSeconds)
	return nil
}

// RemoveRule 移除规则并取消其定时器
// 评估中途调用也是安全的，在途的一次评估会自行完成。
func (e *Engine) RemoveRule(id string) error {
	e.mu.Lock()
	rule, ok := e.rules[id]
	if !ok {
		e.mu.Unlock()
		return ErrRuleNotFound
	}
	e.stopLocked(id)
	delete(e.rules, id)
	removed := *rule
	e.mu.Unlock()

	e.publishRule(events.RuleRemoved, removed)
	log.Printf("[Rules] removed rule %s", removed.Name)
	return nil
}

// EnableRule 启用规则并启动定时器
func (e *Engine) EnableRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, ok := e.rules[id]
	if !ok {
		return ErrRuleNotFound
	}
	if !rule.Enabled {
		rule.Enabled = true
		rule.UpdatedAt = e.clk.Now()
		e.startLocked(rule)
	}
	return nil
}

// DisableRule 禁用规则并取消定时器
func (e *Engine) DisableRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, ok := e.rules[id]
	if !ok {
		return ErrRuleNotFound
	}
	if rule.Enabled {
		rule.Enabled = false
		rule.UpdatedAt = e.clk.Now()
		e.stopLocked(id)
	}
	return nil
}

// Rule 获取单条规则副本
func (e *Engine) Rule(id string) (Rule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rule, ok := e.rules[id]
	if !ok {
		return Rule{}, false
	}
	return *rule, true
}

// Rules 获取所有规则副本，按 ID 排序
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	rules := make([]Rule, 0, len(e.rules))
	for _, r := range e.rules {
		rules = append(rules, *r)
	}
	e.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool {
		return rules[i].ID < rules[j].ID
	})
	return rules
}

// Counts 规则总数与启用数
func (e *Engine) Counts() (total, enabled int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.rules {
		total++
		if r.Enabled {
			enabled++
		}
	}
	return total, enabled
}

// Stop 取消所有评估定时器
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.tasks {
		e.stopLocked(id)
	}
}

// Resume 为所有启用但没有定时器的规则重建评估定时器
// 与 Stop 配对，支持运行时整体停启规则评估。
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rule := range e.rules {
		if rule.Enabled {
			if _, running := e.tasks[rule.ID]; !running {
				e.startLocked(rule)
			}
		}
	}
}

// startLocked 启动规则的评估定时器（需持有锁）
func (e *Engine) startLocked(rule *Rule) {
	interval := time.Duration(rule.Condition.EvalIntervalSeconds) * time.Second
	id := rule.ID
	task := e.scheduler.Every(interval, "rule:"+id, func() {
		e.evaluateByID(id)
	})
	if task != nil {
		e.tasks[id] = task
	}
}

// stopLocked 取消规则的评估定时器（需持有锁）
func (e *Engine) stopLocked(id string) {
	if task, ok := e.tasks[id]; ok {
		task.Stop()
		delete(e.tasks, id)
	}
}

// evaluateByID 一次定时评估
func (e *Engine) evaluateByID(id string) {
	e.mu.RLock()
	rule, ok := e.rules[id]
	var cp Rule
	if ok {
		cp = *rule
	}
	e.mu.RUnlock()

	if !ok || !cp.Enabled {
		return
	}
	e.evaluate(cp)
}

// evaluate 查询窗口、聚合、比较阈值，违反且来源无活跃告警时创建告警
//
// 窗口内没有数据时不采取任何动作：缺数据既不算健康也不算故障。
func (e *Engine) evaluate(rule Rule) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Rules] evaluation of %s panicked: %v", rule.Name, r)
			if e.bus != nil {
				e.bus.Publish(events.Event{
					Kind:      events.MonitorError,
					Timestamp: e.clk.Now(),
					Payload:   fmt.Sprintf("rule %s evaluation: %v", rule.ID, r),
				})
			}
		}
	}()

	now := e.clk.Now()
	since := now.Add(-time.Duration(rule.Condition.TimeWindowMinutes) * time.Minute)

	// 先按指标名匹配，再退回类别匹配
	matched := e.store.Query(metrics.Query{Name: rule.Condition.Metric, Since: since})
	if len(matched) == 0 {
		matched = e.store.Query(metrics.Query{Category: rule.Condition.Metric, Since: since})
	}
	if len(matched) == 0 {
		return
	}

	value := aggregate(matched, rule.Condition.Operator)
	if !Compare(value, rule.Condition.Operator, rule.Condition.Threshold) {
		return
	}

	// 来源已有活跃告警时不再创建，合并交给去重窗口处理
	if e.manager.ActiveFromSource(rule.ID) {
		return
	}

	alertType := rule.Type
	if alertType == "" {
		alertType = "rule_violation"
	}

	_, err := e.manager.CreateAlert(Draft{
		Type:     alertType,
		Severity: rule.Severity,
		Title:    rule.Name,
		Description: fmt.Sprintf("%s %s %.2f (observed %.2f over %dm)",
			rule.Condition.Metric, rule.Condition.Operator, rule.Condition.Threshold,
			value, rule.Condition.TimeWindowMinutes),
		Source:             rule.ID,
		Metrics:            map[string]float64{rule.Condition.Metric: value},
		EscalationPolicyID: rule.EscalationPolicyID,
		Channels:           rule.NotificationChannels,
	})
	if err != nil {
		log.Printf("[Rules] rule %s fired but alert creation failed: %v", rule.Name, err)
	}
}

// aggregate 按运算符选择聚合方式：> 和 >= 取最大，< 和 <= 取最小，其余取均值
func aggregate(ms []metrics.Metric, op Operator) float64 {
	switch op {
	case OpGreaterThan, OpGTE:
		max := ms[0].Value
		for _, m := range ms[1:] {
			if m.Value > max {
				max = m.Value
			}
		}
		return max
	case OpLessThan, OpLTE:
		min := ms[0].Value
		for _, m := range ms[1:] {
			if m.Value < min {
				min = m.Value
			}
		}
		return min
	default:
		var sum float64
		for _, m := range ms {
			sum += m.Value
		}
		return sum / float64(len(ms))
	}
}

// Compare 按运算符比较值与阈值
func Compare(value float64, op Operator, threshold float64) bool {
	switch op {
	case OpGreaterThan:
		return value > threshold
	case OpLessThan:
		return value < threshold
	case OpGTE:
		return value >= threshold
	case OpLTE:
		return value <= threshold
	case OpEqual:
		return value == threshold
	case OpNotEqual:
		return value != threshold
	}
	return false
}

func (e *Engine) publishRule(kind events.Kind, rule Rule) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.Event{Kind: kind, Timestamp: e.clk.Now(), Payload: rule})
}
