// Package metrics 提供带标签的指标存储与聚合查询
package metrics

import (
	"time"
)

// Type 指标类型
type Type string

const (
	TypeCounter   Type = "counter"
	TypeGauge     Type = "gauge"
	TypeHistogram Type = "histogram"
	TypeTimer     Type = "timer"
)

// 常用指标类别
const (
	CategoryError       = "error"
	CategoryPerformance = "performance"
	CategoryUsage       = "usage"
	CategorySystem      = "system"
)

// Metric 一条指标观测记录，入库后不可变
type Metric struct {
	ID        string            `json:"id"`
	Category  string            `json:"category"`
	Type      Type              `json:"type"`
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Context   map[string]string `json:"context,omitempty"`
}

// Query 指标查询条件，零值字段不参与过滤
type Query struct {
	Category string            `json:"category,omitempty"`
	Type     Type              `json:"type,omitempty"`
	Name     string            `json:"name,omitempty"`
	Since    time.Time         `json:"since,omitempty"`
	Until    time.Time         `json:"until,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"` // 全部键值精确匹配
	Limit    int               `json:"limit,omitempty"`
}

// Snapshot 一个时间窗口内的聚合视图
type Snapshot struct {
	Timestamp      time.Time      `json:"timestamp"`
	WindowMinutes  int            `json:"window_minutes"`
	TotalMetrics   int            `json:"total_metrics"`
	ErrorCount     int            `json:"error_count"`
	ByCategory     map[string]int `json:"by_category"`
	BySeverity     map[string]int `json:"by_severity"`
	PerformanceAvg float64        `json:"performance_avg"`
	HealthScore    float64        `json:"health_score"` // 0-100
}
