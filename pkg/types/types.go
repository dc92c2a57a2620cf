// Package types 定义整个项目中使用的公共类型
package types

import (
	"time"
)

// --- 协作方摘要类型 ---
// 这些结构体由外部探针（服务健康探测、性能采样、用户体验追踪）
// 按 Health Aggregator 的节奏拉取，引擎本身不产生它们。

// FleetHealthSummary 服务集群健康摘要
type FleetHealthSummary struct {
	TotalServers       int     `json:"total_servers"`
	HealthyServers     int     `json:"healthy_servers"`
	DegradedServers    int     `json:"degraded_servers"`
	UnhealthyServers   int     `json:"unhealthy_servers"`
	OverallHealthScore float64 `json:"overall_health_score"` // 0-100
	AvgResponseTime    float64 `json:"avg_response_time"`    // 毫秒
	AvgAvailability    float64 `json:"avg_availability"`     // 0-100
}

// PerformanceSnapshot 性能快照
type PerformanceSnapshot struct {
	CPUUsage        float64 `json:"cpu_usage"`         // Percent
	MemoryUsed      uint64  `json:"memory_used"`       // 字节
	MemoryTotal     uint64  `json:"memory_total"`      // 字节
	AvgResponseTime float64 `json:"avg_response_time"` // 毫秒
	FailedRequests  int64   `json:"failed_requests"`
	TotalRequests   int64   `json:"total_requests"`
}

// UXSummary 用户体验摘要
type UXSummary struct {
	AvgSatisfactionScore    float64        `json:"avg_satisfaction_score"` // 1-5
	ActiveUsers             int            `json:"active_users"`
	HighRiskUsers           int            `json:"high_risk_users"`
	ErrorImpactDistribution map[string]int `json:"error_impact_distribution,omitempty"`
	TaskCompletionRate      float64        `json:"task_completion_rate"` // 0-100
}

// --- 健康状态类型 ---

// ComponentStatus 组件健康状态
type ComponentStatus string

const (
	StatusHealthy   ComponentStatus = "healthy"
	StatusDegraded  ComponentStatus = "degraded"
	StatusUnhealthy ComponentStatus = "unhealthy"
	StatusCritical  ComponentStatus = "critical"
	StatusUnknown   ComponentStatus = "unknown"
)

// HealthReport 一次健康检查的完整结果
type HealthReport struct {
	Timestamp  time.Time                  `json:"timestamp"`
	Overall    ComponentStatus            `json:"overall"`
	Score      float64                    `json:"score"` // 0-100 综合分
	Components map[string]ComponentStatus `json:"components"`
}
