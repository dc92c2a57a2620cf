package alerts

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/AnalyseDeCircuit/opspulse/internal/events"
	"github.com/AnalyseDeCircuit/opspulse/internal/sched"
)

// DedupWindow 去重窗口：同一 type+source 在窗口内的重复触发合并进已有告警
const DedupWindow = 5 * time.Minute

// DefaultMaxActiveAlerts 默认活跃告警上限
const DefaultMaxActiveAlerts = 100

// Manager 告警生命周期管理器
//
// 持有告警表与历史，所有修改都经过同一把锁。
// 升级链与通知分发分别委托给 Escalator 和 Notifier。
type Manager struct {
	mu sync.RWMutex

	clk clock.Clock
	bus *events.Bus

	alerts   map[string]*Alert
	history  []Alert
	policies map[string]*EscalationPolicy

	escalator *Escalator
	notifier  *Notifier

	maxActive int
	retention time.Duration
}

// NewManager 创建告警管理器
func NewManager(clk clock.Clock, bus *events.Bus, scheduler *sched.Scheduler, maxActive, retentionDays int) *Manager {
	if maxActive <= 0 {
		maxActive = DefaultMaxActiveAlerts
	}
	if retentionDays <= 0 {
		retentionDays = 7
	}
	m := &Manager{
		clk:       clk,
		bus:       bus,
		alerts:    make(map[string]*Alert),
		policies:  make(map[string]*EscalationPolicy),
		maxActive: maxActive,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
	m.notifier = NewNotifier()
	m.escalator = newEscalator(m, scheduler)
	return m
}

// Notifier 返回通知分发器，供宿主应用注册渠道
func (m *Manager) Notifier() *Notifier {
	return m.notifier
}

// ============================================================================
//  升级策略管理
// ============================================================================

// RegisterPolicy 注册升级策略
func (m *Manager) RegisterPolicy(policy *EscalationPolicy) error {
	if policy == nil || policy.ID == "" || len(policy.Steps) == 0 {
		return ErrInvalidPolicy
	}

	p := *policy
	p.Steps = append([]EscalationStep(nil), policy.Steps...)
	// 步骤按 Level 升序，升级链按序前进
	sort.Slice(p.Steps, func(i, j int) bool {
		return p.Steps[i].Level < p.Steps[j].Level
	})

	m.mu.Lock()
	m.policies[p.ID] = &p
	m.mu.Unlock()
	return nil
}

// Policy 获取升级策略副本
func (m *Manager) Policy(id string) (*EscalationPolicy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[id]
	if !ok {
		return nil, false
	}
	cp := *p
	cp.Steps = append([]EscalationStep(nil), p.Steps...)
	return &cp, true
}

// ============================================================================
//  生命周期操作
// ============================================================================

// CreateAlert 创建告警
//
// 去重：5 分钟窗口内已存在同 type+source 的活跃告警时，合并指标并发出
// updated 信号而不是新建。容量：活跃数达到上限时返回 ErrAlertCapacity。
func (m *Manager) CreateAlert(draft Draft) (Alert, error) {
	now := m.clk.Now()

	m.mu.Lock()

	// 去重窗口内合并
	for _, a := range m.alerts {
		if a.Status != StatusActive || a.Type != draft.Type || a.Source != draft.Source {
			continue
		}
		if now.Sub(a.Timestamp) > DedupWindow {
			continue
		}
		if a.Metrics == nil {
			a.Metrics = make(map[string]float64, len(draft.Metrics))
		}
		for k, v := range draft.Metrics {
			a.Metrics[k] = v
		}
		m.syncHistoryLocked(a)
		merged := cloneAlert(a)
		m.mu.Unlock()

		m.publish(events.AlertUpdated, merged)
		return merged, nil
	}

	if m.activeCountLocked() >= m.maxActive {
		m.mu.Unlock()
		return Alert{}, ErrAlertCapacity
	}

	alert := &Alert{
		ID:          uuid.NewString(),
		Type:        draft.Type,
		Severity:    draft.Severity,
		Title:       draft.Title,
		Description: draft.Description,
		Timestamp:   now,
		Source:      draft.Source,
		Metrics:     cloneMetrics(draft.Metrics),
		Tags:        cloneStrings(draft.Tags),
		Status:      StatusActive,
	}
	m.alerts[alert.ID] = alert
	m.history = append(m.history, cloneAlert(alert))

	policy := m.policies[draft.EscalationPolicyID]
	created := cloneAlert(alert)
	m.mu.Unlock()

	if draft.EscalationPolicyID != "" {
		if policy != nil {
			m.escalator.Schedule(created.ID, policy)
		} else {
			log.Printf("[Alerts] unknown escalation policy %q for alert %s", draft.EscalationPolicyID, created.ID)
		}
	}

	m.publish(events.AlertCreated, created)
	m.notifier.Dispatch(created, draft.Channels)

	log.Printf("[Alerts] CREATED: %s [%s] from %s", created.Title, created.Severity, created.Source)
	return created, nil
}

// Acknowledge 确认告警，仅活跃状态有效，同时取消待触发的升级定时器
func (m *Manager) Acknowledge(id, by string) bool {
	m.mu.Lock()
	a, ok := m.alerts[id]
	if !ok || a.Status != StatusActive {
		m.mu.Unlock()
		return false
	}

	now := m.clk.Now()
	a.Status = StatusAcknowledged
	a.AcknowledgedBy = by
	a.AcknowledgedAt = &now
	m.syncHistoryLocked(a)
	acked := cloneAlert(a)
	m.mu.Unlock()

	m.escalator.Cancel(id)
	m.publish(events.AlertAcknowledged, acked)

	log.Printf("[Alerts] ACKNOWLEDGED: %s by %s", acked.Title, by)
	return true
}

// Resolve 解决告警，任何未解决状态都有效，同时取消待触发的升级定时器
func (m *Manager) Resolve(id string) bool {
	m.mu.Lock()
	a, ok := m.alerts[id]
	if !ok || a.Status == StatusResolved {
		m.mu.Unlock()
		return false
	}

	now := m.clk.Now()
	a.Status = StatusResolved
	a.ResolvedAt = &now
	m.syncHistoryLocked(a)
	resolved := cloneAlert(a)
	m.mu.Unlock()

	m.escalator.Cancel(id)
	m.publish(events.AlertResolved, resolved)

	log.Printf("[Alerts] RESOLVED: %s", resolved.Title)
	return true
}

// Suppress 抑制告警 minutes 分钟，不改变状态
func (m *Manager) Suppress(id string, minutes int) bool {
	if minutes <= 0 {
		return false
	}

	m.mu.Lock()
	a, ok := m.alerts[id]
	if !ok {
		m.mu.Unlock()
		return false
	}

	until := m.clk.Now().Add(time.Duration(minutes) * time.Minute)
	a.SuppressUntil = &until
	m.syncHistoryLocked(a)
	suppressed := cloneAlert(a)
	m.mu.Unlock()

	m.publish(events.AlertSuppressed, suppressed)
	return true
}

// ============================================================================
//  查询
// ============================================================================

// Get 获取告警副本
func (m *Manager) Get(id string) (Alert, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return Alert{}, false
	}
	return cloneAlert(a), true
}

// ActiveAlerts 活跃告警，抑制期内的不出现在结果中，按时间倒序
func (m *Manager) ActiveAlerts() []Alert {
	now := m.clk.Now()

	m.mu.RLock()
	active := make([]Alert, 0)
	for _, a := range m.alerts {
		if a.Status == StatusActive && !a.Suppressed(now) {
			active = append(active, cloneAlert(a))
		}
	}
	m.mu.RUnlock()

	sort.Slice(active, func(i, j int) bool {
		return active[i].Timestamp.After(active[j].Timestamp)
	})
	return active
}

// ActiveFromSource 指定来源是否已有活跃告警
func (m *Manager) ActiveFromSource(source string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.alerts {
		if a.Status == StatusActive && a.Source == source {
			return true
		}
	}
	return false
}

// ActiveCounts 按严重级别统计活跃告警（critical 数、warning 数）
func (m *Manager) ActiveCounts() (critical, warnings int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.alerts {
		if a.Status != StatusActive {
			continue
		}
		switch a.Severity {
		case SeverityCritical:
			critical++
		case SeverityWarning:
			warnings++
		}
	}
	return critical, warnings
}

// History 过滤并分页查询历史
func (m *Manager) History(q HistoryQuery) []Alert {
	m.mu.RLock()
	filtered := make([]Alert, 0)
	for _, e := range m.history {
		if q.Source != "" && e.Source != q.Source {
			continue
		}
		if q.Type != "" && e.Type != q.Type {
			continue
		}
		if q.Status != "" && e.Status != q.Status {
			continue
		}
		if q.Severity != "" && e.Severity != q.Severity {
			continue
		}
		if q.Since != nil && e.Timestamp.Before(*q.Since) {
			continue
		}
		filtered = append(filtered, e)
	}
	m.mu.RUnlock()

	// 按时间倒序
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(filtered) {
		offset = len(filtered)
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[offset:end]
}

// Summary 告警摘要
func (m *Manager) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Summary{TotalAlerts: len(m.alerts)}
	for _, a := range m.alerts {
		switch a.Status {
		case StatusActive:
			s.ActiveAlerts++
			switch a.Severity {
			case SeverityCritical:
				s.ActiveCritical++
			case SeverityWarning:
				s.ActiveWarnings++
			}
		case StatusAcknowledged:
			s.Acknowledged++
		}
	}
	return s
}

// ============================================================================
//  维护
// ============================================================================

// Cleanup 清理已解决且超过保留期的告警，返回清除数量
// 由天级清扫任务调用；活跃和已确认的告警永不按龄回收。
func (m *Manager) Cleanup() int {
	cutoff := m.clk.Now().Add(-m.retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, a := range m.alerts {
		if a.Status == StatusResolved && a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
			delete(m.alerts, id)
			removed++
		}
	}

	kept := m.history[:0]
	for _, e := range m.history {
		if e.Status == StatusResolved && e.ResolvedAt != nil && e.ResolvedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	m.history = kept

	if removed > 0 {
		log.Printf("[Alerts] cleaned up %d resolved alerts past retention", removed)
	}
	return removed
}

// SetLimits 运行时调整容量与保留期
func (m *Manager) SetLimits(maxActive, retentionDays int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if maxActive > 0 {
		m.maxActive = maxActive
	}
	if retentionDays > 0 {
		m.retention = time.Duration(retentionDays) * 24 * time.Hour
	}
}

// syncHistoryLocked 把活动表上的状态变化同步到对应的历史条目（需持有锁）
func (m *Manager) syncHistoryLocked(a *Alert) {
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].ID == a.ID {
			m.history[i] = cloneAlert(a)
			return
		}
	}
}

func (m *Manager) activeCountLocked() int {
	n := 0
	for _, a := range m.alerts {
		if a.Status == StatusActive {
			n++
		}
	}
	return n
}

func (m *Manager) publish(kind events.Kind, alert Alert) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.Event{Kind: kind, Timestamp: m.clk.Now(), Payload: alert})
}

// ============================================================================
//  拷贝辅助
// ============================================================================

func cloneAlert(a *Alert) Alert {
	cp := *a
	cp.Metrics = cloneMetrics(a.Metrics)
	cp.Tags = cloneStrings(a.Tags)
	return cp
}

func cloneMetrics(in map[string]float64) map[string]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneStrings(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
