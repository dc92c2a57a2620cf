// Package health 把各路监控信号聚合为一个综合健康分
package health

import (
	"log"
	"math"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/AnalyseDeCircuit/opspulse/internal/alerts"
	"github.com/AnalyseDeCircuit/opspulse/internal/events"
	"github.com/AnalyseDeCircuit/opspulse/internal/metrics"
	"github.com/AnalyseDeCircuit/opspulse/pkg/types"
)

// AggregatorSource 健康聚合器自建告警的来源标识
const AggregatorSource = "health_aggregator"

// FleetProvider 服务集群健康探针
type FleetProvider interface {
	FleetHealth() (types.FleetHealthSummary, error)
}

// PerformanceProvider 性能采样探针
type PerformanceProvider interface {
	Performance() (types.PerformanceSnapshot, error)
}

// UXProvider 用户体验追踪探针
type UXProvider interface {
	UserExperience() (types.UXSummary, error)
}

// 组件状态到分值的映射
const (
	scoreHealthy   = 100
	scoreDegraded  = 60
	scoreUnhealthy = 20
	// 协作方缺失或查询失败记 unknown，计分与 degraded 相同
	scoreUnknown = 60
)

// Aggregator 健康聚合器
//
// 按固定间隔轮询 Metric Store 与协作方摘要，把每路信号映射为
// 状态档位，取无权重平均作为 0-100 综合分。综合状态跌到 critical
// 时自建一条 critical 告警，与其他告警走同样的去重。
type Aggregator struct {
	mu sync.RWMutex

	store   *metrics.Store
	manager *alerts.Manager
	clk     clock.Clock
	bus     *events.Bus

	fleet FleetProvider
	perf  PerformanceProvider
	ux    UXProvider

	last       types.HealthReport
	lastExport map[string]float64
}

// NewAggregator 创建健康聚合器
func NewAggregator(store *metrics.Store, manager *alerts.Manager, clk clock.Clock, bus *events.Bus) *Aggregator {
	return &Aggregator{
		store:      store,
		manager:    manager,
		clk:        clk,
		bus:        bus,
		lastExport: make(map[string]float64),
	}
}

// SetFleetProvider 注入集群健康探针
func (a *Aggregator) SetFleetProvider(p FleetProvider) {
	a.mu.Lock()
	a.fleet = p
	a.mu.Unlock()
}

// SetPerformanceProvider 注入性能探针
func (a *Aggregator) SetPerformanceProvider(p PerformanceProvider) {
	a.mu.Lock()
	a.perf = p
	a.mu.Unlock()
}

// SetUXProvider 注入用户体验探针
func (a *Aggregator) SetUXProvider(p UXProvider) {
	a.mu.Lock()
	a.ux = p
	a.mu.Unlock()
}

// Check 执行一轮健康检查
func (a *Aggregator) Check() types.HealthReport {
	a.mu.RLock()
	fleet, perf, ux := a.fleet, a.perf, a.ux
	a.mu.RUnlock()

	export := make(map[string]float64)
	components := make(map[string]types.ComponentStatus, 5)

	// 1. 指标信号：近一小时错误量
	snap := a.store.Snapshot(60, nil)
	components["metrics"] = metricsStatus(snap.ErrorCount)
	export["errors.total"] = float64(snap.ErrorCount)
	export["metrics.total"] = float64(snap.TotalMetrics)
	export["metrics.health_score"] = snap.HealthScore

	// 2. 集群信号
	components["fleet"] = a.fleetStatus(fleet, export)

	// 3. 用户体验信号
	components["user_experience"] = a.uxStatus(ux, export)

	// 4. 性能信号
	components["performance"] = a.performanceStatus(perf, export)

	// 5. 告警信号
	critical, warnings := a.manager.ActiveCounts()
	components["alerting"] = alertingStatus(critical, warnings)
	export["alerts.active.critical"] = float64(critical)
	export["alerts.active.warnings"] = float64(warnings)

	// 无权重平均
	var sum float64
	for name, status := range components {
		s := statusScore(status)
		sum += s
		export["system.health.components."+name] = s
	}
	score := math.Round(sum / float64(len(components)))
	overall := overallStatus(score)
	export["system.health.overall"] = score

	report := types.HealthReport{
		Timestamp:  a.clk.Now(),
		Overall:    overall,
		Score:      score,
		Components: components,
	}

	a.mu.Lock()
	a.last = report
	a.lastExport = export
	a.mu.Unlock()

	if a.bus != nil {
		a.bus.Publish(events.Event{Kind: events.HealthCheck, Timestamp: report.Timestamp, Payload: report})
	}

	// 系统崩塌时自建 critical 告警，去重窗口保证重复 tick 合并而不是刷屏
	if overall == types.StatusCritical {
		_, err := a.manager.CreateAlert(alerts.Draft{
			Type:        "system_health",
			Severity:    alerts.SeverityCritical,
			Title:       "System health critical",
			Description: "composite health score collapsed",
			Source:      AggregatorSource,
			Metrics:     map[string]float64{"health_score": score},
		})
		if err != nil {
			log.Printf("[Health] failed to create critical alert: %v", err)
		}
	}

	return report
}

// Last 最近一次健康检查结果
func (a *Aggregator) Last() types.HealthReport {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// Export 导出扁平的点分键数值表，键集合是对外抓取的稳定契约
func (a *Aggregator) Export() map[string]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]float64, len(a.lastExport))
	for k, v := range a.lastExport {
		out[k] = v
	}
	return out
}

// ============================================================================
//  各路信号的状态映射
// ============================================================================

func metricsStatus(errorCount int) types.ComponentStatus {
	switch {
	case errorCount > 100:
		return types.StatusUnhealthy
	case errorCount > 20:
		return types.StatusDegraded
	default:
		return types.StatusHealthy
	}
}

func (a *Aggregator) fleetStatus(p FleetProvider, export map[string]float64) types.ComponentStatus {
	if p == nil {
		return types.StatusUnknown
	}
	summary, err := p.FleetHealth()
	if err != nil {
		log.Printf("[Health] fleet provider failed: %v", err)
		return types.StatusUnknown
	}

	export["mcp.servers.total"] = float64(summary.TotalServers)
	export["mcp.servers.healthy"] = float64(summary.HealthyServers)
	export["mcp.servers.degraded"] = float64(summary.DegradedServers)
	export["mcp.servers.unhealthy"] = float64(summary.UnhealthyServers)
	export["mcp.health.score"] = summary.OverallHealthScore
	export["mcp.response_time.avg"] = summary.AvgResponseTime
	export["mcp.availability.avg"] = summary.AvgAvailability

	switch {
	case summary.OverallHealthScore < 50:
		return types.StatusUnhealthy
	case summary.OverallHealthScore < 80:
		return types.StatusDegraded
	default:
		return types.StatusHealthy
	}
}

func (a *Aggregator) uxStatus(p UXProvider, export map[string]float64) types.ComponentStatus {
	if p == nil {
		return types.StatusUnknown
	}
	summary, err := p.UserExperience()
	if err != nil {
		log.Printf("[Health] ux provider failed: %v", err)
		return types.StatusUnknown
	}

	export["ux.satisfaction.avg"] = summary.AvgSatisfactionScore
	export["ux.users.active"] = float64(summary.ActiveUsers)
	export["ux.users.high_risk"] = float64(summary.HighRiskUsers)
	export["ux.task_completion.rate"] = summary.TaskCompletionRate

	switch {
	case summary.AvgSatisfactionScore < 2:
		return types.StatusUnhealthy
	case summary.AvgSatisfactionScore < 3.5:
		return types.StatusDegraded
	default:
		return types.StatusHealthy
	}
}

func (a *Aggregator) performanceStatus(p PerformanceProvider, export map[string]float64) types.ComponentStatus {
	if p == nil {
		return types.StatusUnknown
	}
	snapshot, err := p.Performance()
	if err != nil {
		log.Printf("[Health] performance provider failed: %v", err)
		return types.StatusUnknown
	}

	export["performance.cpu.usage"] = snapshot.CPUUsage
	export["performance.memory.used"] = float64(snapshot.MemoryUsed)
	export["performance.memory.total"] = float64(snapshot.MemoryTotal)
	export["performance.response_time.avg"] = snapshot.AvgResponseTime
	export["performance.requests.total"] = float64(snapshot.TotalRequests)
	export["performance.requests.failed"] = float64(snapshot.FailedRequests)

	// 延迟阈值单位为毫秒：10s 不可用，5s 降级
	switch {
	case snapshot.CPUUsage > 90 || snapshot.AvgResponseTime > 10000:
		return types.StatusUnhealthy
	case snapshot.CPUUsage > 70 || snapshot.AvgResponseTime > 5000:
		return types.StatusDegraded
	default:
		return types.StatusHealthy
	}
}

func alertingStatus(critical, warnings int) types.ComponentStatus {
	switch {
	case critical > 0:
		return types.StatusUnhealthy
	case warnings > 5:
		return types.StatusDegraded
	default:
		return types.StatusHealthy
	}
}

func statusScore(s types.ComponentStatus) float64 {
	switch s {
	case types.StatusHealthy:
		return scoreHealthy
	case types.StatusDegraded:
		return scoreDegraded
	case types.StatusUnhealthy:
		return scoreUnhealthy
	default:
		return scoreUnknown
	}
}

func overallStatus(score float64) types.ComponentStatus {
	switch {
	case score >= 80:
		return types.StatusHealthy
	case score >= 60:
		return types.StatusDegraded
	case score >= 20:
		return types.StatusUnhealthy
	default:
		return types.StatusCritical
	}
}
