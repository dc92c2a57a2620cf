// Package alerts 提供告警生命周期管理、规则评估与定时升级
package alerts

import (
	"time"
)

// Severity 告警严重级别
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Status 告警状态
// 合法迁移：active → acknowledged → resolved 或 active → resolved，不可回退。
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Operator 比较运算符
type Operator string

const (
	OpGreaterThan Operator = ">"
	OpLessThan    Operator = "<"
	OpGTE         Operator = ">="
	OpLTE         Operator = "<="
	OpEqual       Operator = "=="
	OpNotEqual    Operator = "!="
)

// Condition 规则触发条件
type Condition struct {
	Metric              string   `json:"metric"` // 指标名或类别
	Operator            Operator `json:"operator"`
	Threshold           float64  `json:"threshold"`
	TimeWindowMinutes   int      `json:"time_window_minutes"`
	EvalIntervalSeconds int      `json:"eval_interval_seconds"`
}

// Rule 告警规则
// 除启用/禁用外，规则在生命周期内是静态的。
type Rule struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Type                 string    `json:"type"`
	Enabled              bool      `json:"enabled"`
	Condition            Condition `json:"condition"`
	Severity             Severity  `json:"severity"`
	EscalationPolicyID   string    `json:"escalation_policy_id,omitempty"`
	NotificationChannels []string  `json:"notification_channels,omitempty"`
	Builtin              bool      `json:"builtin"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Alert 告警记录
// 仅通过生命周期操作修改；resolved 且超过保留期后从活动表回收。
type Alert struct {
	ID              string             `json:"id"`
	Type            string             `json:"type"`
	Severity        Severity           `json:"severity"`
	Title           string             `json:"title"`
	Description     string             `json:"description,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
	Source          string             `json:"source"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
	Tags            map[string]string  `json:"tags,omitempty"`
	Status          Status             `json:"status"`
	AcknowledgedBy  string             `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time         `json:"acknowledged_at,omitempty"`
	ResolvedAt      *time.Time         `json:"resolved_at,omitempty"`
	EscalationLevel int                `json:"escalation_level"`
	EscalatedAt     *time.Time         `json:"escalated_at,omitempty"`
	SuppressUntil   *time.Time         `json:"suppress_until,omitempty"`
}

// Suppressed 告警当前是否处于抑制期
// 抑制只影响活跃视图的可见性，与状态正交。
func (a *Alert) Suppressed(now time.Time) bool {
	return a.SuppressUntil != nil && now.Before(*a.SuppressUntil)
}

// Draft 创建告警的输入
type Draft struct {
	Type               string             `json:"type"`
	Severity           Severity           `json:"severity"`
	Title              string             `json:"title"`
	Description        string             `json:"description,omitempty"`
	Source             string             `json:"source"`
	Metrics            map[string]float64 `json:"metrics,omitempty"`
	Tags               map[string]string  `json:"tags,omitempty"`
	EscalationPolicyID string             `json:"escalation_policy_id,omitempty"`
	Channels           []string           `json:"channels,omitempty"`
}

// StepCondition 升级步骤的前置条件
type StepCondition struct {
	AlertAgeMinutes int  `json:"alert_age_minutes,omitempty"`
	Unacknowledged  bool `json:"unacknowledged,omitempty"`
}

// EscalationStep 升级策略中的一级
type EscalationStep struct {
	Level        int            `json:"level"`
	DelayMinutes int            `json:"delay_minutes"`
	Channels     []string       `json:"channels,omitempty"`
	Condition    *StepCondition `json:"condition,omitempty"`
}

// EscalationPolicy 升级策略，步骤按 Level 升序
type EscalationPolicy struct {
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Steps []EscalationStep `json:"steps"`
}

// HistoryQuery 历史查询参数
type HistoryQuery struct {
	Source   string     `json:"source,omitempty"`
	Type     string     `json:"type,omitempty"`
	Status   Status     `json:"status,omitempty"`
	Severity Severity   `json:"severity,omitempty"`
	Since    *time.Time `json:"since,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}

// Summary 告警摘要（用于 API 响应）
type Summary struct {
	TotalAlerts    int `json:"total_alerts"`
	ActiveAlerts   int `json:"active_alerts"`
	Acknowledged   int `json:"acknowledged"`
	ActiveCritical int `json:"active_critical"`
	ActiveWarnings int `json:"active_warnings"`
	TotalRules     int `json:"total_rules"`
	EnabledRules   int `json:"enabled_rules"`
}

// Channel 通知渠道
// 实际的传输实现（聊天、邮件、寻呼）由宿主应用注册。
type Channel interface {
	Name() string
	Send(alert Alert) error
}
