// Package monitor 组装并驱动整个监控引擎
package monitor

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/AnalyseDeCircuit/opspulse/internal/alerts"
	"github.com/AnalyseDeCircuit/opspulse/internal/config"
	"github.com/AnalyseDeCircuit/opspulse/internal/events"
	"github.com/AnalyseDeCircuit/opspulse/internal/health"
	"github.com/AnalyseDeCircuit/opspulse/internal/metrics"
	"github.com/AnalyseDeCircuit/opspulse/internal/sched"
)

// DefaultPolicyID 默认升级策略 ID
const DefaultPolicyID = "default"

var (
	ErrAlreadyStarted = errors.New("monitor already started")
	ErrStopped        = errors.New("monitor has been stopped")
)

// Monitor 监控引擎总控
//
// 显式构造、显式启停，持有全部子组件；不存在隐式的全局实例。
// Stop 同步取消所有定时任务（规则评估、升级链、清扫、健康检查），
// 返回后不再发生任何指标或告警修改。
type Monitor struct {
	mu  sync.Mutex
	cfg *config.Config

	scheduler *sched.Scheduler
	bus       *events.Bus

	store      *metrics.Store
	manager    *alerts.Manager
	engine     *alerts.Engine
	aggregator *health.Aggregator

	healthTask *sched.Task

	started bool
	stopped bool
}

// New 创建监控引擎
func New(cfg *config.Config, clk clock.Clock) *Monitor {
	if cfg == nil {
		cfg = config.Default()
	}
	if clk == nil {
		clk = clock.New()
	}

	scheduler := sched.NewWithClock(clk)
	bus := events.NewBus()

	store := metrics.NewStore(clk, bus, cfg.MaxMetrics, cfg.RetentionDays)
	manager := alerts.NewManager(clk, bus, scheduler, cfg.MaxActiveAlerts, cfg.RetentionDays)
	engine := alerts.NewEngine(store, manager, scheduler, bus)
	aggregator := health.NewAggregator(store, manager, clk, bus)

	m := &Monitor{
		cfg:        cfg.Clone(),
		scheduler:  scheduler,
		bus:        bus,
		store:      store,
		manager:    manager,
		engine:     engine,
		aggregator: aggregator,
	}

	if cfg.EnableEscalation {
		m.registerDefaultPolicy(cfg.DefaultEscalationDelayMinutes)
	}

	return m
}

// registerDefaultPolicy 注册（或刷新）默认升级策略
func (m *Monitor) registerDefaultPolicy(delayMinutes int) {
	_ = m.manager.RegisterPolicy(&alerts.EscalationPolicy{
		ID:   DefaultPolicyID,
		Name: "Default escalation",
		Steps: []alerts.EscalationStep{
			{
				Level:        1,
				DelayMinutes: delayMinutes,
				Condition:    &alerts.StepCondition{Unacknowledged: true},
			},
		},
	})
}

// Start 启动清扫任务与健康检查循环
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true

	// 指标小时级清扫，告警天级清扫
	m.scheduler.Every(time.Hour, "metrics-sweep", func() {
		m.store.EvictByAge()
	})
	m.scheduler.Every(24*time.Hour, "alerts-cleanup", func() {
		m.manager.Cleanup()
	})

	if m.cfg.EnableRuleEngine {
		m.engine.LoadBuiltinRules()
	}

	if m.cfg.EnableHealthCheck {
		m.startHealthLocked()
	}

	m.bus.Publish(events.Event{Kind: events.MonitorStarted, Timestamp: m.scheduler.Now()})
	log.Printf("[Monitor] started (retention %dd, max alerts %d, health every %ds)",
		m.cfg.RetentionDays, m.cfg.MaxActiveAlerts, m.cfg.HealthCheckIntervalSeconds)
	return nil
}

// Stop 同步停止所有定时任务，返回后不再有任何修改发生
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.started = false
	m.mu.Unlock()

	m.engine.Stop()
	m.scheduler.Stop()

	m.bus.Publish(events.Event{Kind: events.MonitorStopped, Timestamp: m.scheduler.Now()})
	log.Printf("[Monitor] stopped")
}

// ============================================================================
//  采集入口
// ============================================================================

// Record 记录一条指标，永不向调用方抛出异常
func (m *Monitor) Record(category string, typ metrics.Type, name string, value float64, tags map[string]string, context map[string]string) {
	m.store.Record(category, typ, name, value, tags, context)
}

// RecordError 错误上报的便捷封装
// 缺省严重度补在副本上，调用方的标签映射不被修改。
func (m *Monitor) RecordError(name string, tags map[string]string) {
	t := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		t[k] = v
	}
	if t["severity"] == "" {
		t["severity"] = "error"
	}
	m.store.Record(metrics.CategoryError, metrics.TypeCounter, name, 1, t, nil)
}

// ============================================================================
//  子组件访问
// ============================================================================

// Store 指标存储
func (m *Monitor) Store() *metrics.Store { return m.store }

// Alerts 告警管理器
func (m *Monitor) Alerts() *alerts.Manager { return m.manager }

// Rules 规则引擎
func (m *Monitor) Rules() *alerts.Engine { return m.engine }

// Health 健康聚合器
func (m *Monitor) Health() *health.Aggregator { return m.aggregator }

// Bus 事件总线
func (m *Monitor) Bus() *events.Bus { return m.bus }

// Config 当前配置副本
func (m *Monitor) Config() *config.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Clone()
}

// startHealthLocked 启动健康检查循环（需持有锁）
func (m *Monitor) startHealthLocked() {
	interval := time.Duration(m.cfg.HealthCheckIntervalSeconds) * time.Second
	m.healthTask = m.scheduler.Every(interval, "health-check", func() {
		m.aggregator.Check()
	})
}

// UpdateConfig 运行时调整配置
//
// 容量与保留参数立即生效；默认升级延迟作用于之后布防的升级链；
// 规则引擎与健康检查的启用开关在引擎运行中切换对应的定时任务。
// 健康检查间隔只在构造/启动时生效。
func (m *Monitor) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}

	m.mu.Lock()
	prev := m.cfg
	m.cfg = cfg.Clone()

	if m.started && !m.stopped {
		if cfg.EnableRuleEngine != prev.EnableRuleEngine {
			if cfg.EnableRuleEngine {
				m.engine.LoadBuiltinRules()
				m.engine.Resume()
			} else {
				m.engine.Stop()
			}
		}
		if cfg.EnableHealthCheck != prev.EnableHealthCheck {
			if cfg.EnableHealthCheck {
				m.startHealthLocked()
			} else if m.healthTask != nil {
				m.healthTask.Stop()
				m.healthTask = nil
			}
		}
	}
	m.mu.Unlock()

	m.store.SetLimits(cfg.MaxMetrics, cfg.RetentionDays)
	m.manager.SetLimits(cfg.MaxActiveAlerts, cfg.RetentionDays)

	if cfg.EnableEscalation && cfg.DefaultEscalationDelayMinutes != prev.DefaultEscalationDelayMinutes {
		m.registerDefaultPolicy(cfg.DefaultEscalationDelayMinutes)
	}
}
