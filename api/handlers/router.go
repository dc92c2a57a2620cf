// Package handlers 提供引擎的 HTTP API
package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AnalyseDeCircuit/opspulse/internal/export"
	"github.com/AnalyseDeCircuit/opspulse/internal/monitor"
	"github.com/AnalyseDeCircuit/opspulse/internal/websocket"
)

// API HTTP 处理器集合，显式持有引擎引用
type API struct {
	monitor *monitor.Monitor
	hub     *websocket.Hub
}

// New 创建 API
func New(m *monitor.Monitor, hub *websocket.Hub) *API {
	return &API{monitor: m, hub: hub}
}

// Routes 注册所有路由
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// 告警
	mux.HandleFunc("/api/alerts", a.CreateAlertHandler)
	mux.HandleFunc("/api/alerts/active", a.ActiveAlertsHandler)
	mux.HandleFunc("/api/alerts/history", a.AlertHistoryHandler)
	mux.HandleFunc("/api/alerts/summary", a.AlertSummaryHandler)
	mux.HandleFunc("/api/alerts/", a.AlertActionHandler)

	// 规则
	mux.HandleFunc("/api/rules", a.RulesHandler)
	mux.HandleFunc("/api/rules/", a.RuleActionHandler)

	// 指标
	mux.HandleFunc("/api/metrics", a.RecordMetricHandler)
	mux.HandleFunc("/api/metrics/query", a.QueryMetricsHandler)
	mux.HandleFunc("/api/metrics/snapshot", a.SnapshotHandler)

	// 健康与导出
	mux.HandleFunc("/api/health", a.HealthHandler)
	mux.HandleFunc("/api/export", a.ExportHandler)

	// Prometheus 抓取端点
	registry := export.NewRegistry(a.monitor.Health(), a.monitor.Store())
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// 事件实时推送
	if a.hub != nil {
		mux.HandleFunc("/ws", a.hub.ServeWS)
	}

	return mux
}
