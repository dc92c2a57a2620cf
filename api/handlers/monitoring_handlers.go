package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/AnalyseDeCircuit/opspulse/internal/metrics"
)

// RecordMetricHandler 接收一条指标上报
func (a *API) RecordMetricHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var body struct {
		Category string            `json:"category"`
		Type     metrics.Type      `json:"type"`
		Name     string            `json:"name"`
		Value    float64           `json:"value"`
		Tags     map[string]string `json:"tags,omitempty"`
		Context  map[string]string `json:"context,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Category == "" || body.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "category and name are required")
		return
	}
	if body.Type == "" {
		body.Type = metrics.TypeGauge
	}

	metric := a.monitor.Store().Record(body.Category, body.Type, body.Name, body.Value, body.Tags, body.Context)
	writeJSON(w, http.StatusCreated, metric)
}

// QueryMetricsHandler 按条件查询指标，结果按时间倒序
func (a *API) QueryMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	q := metrics.Query{
		Category: r.URL.Query().Get("category"),
		Type:     metrics.Type(r.URL.Query().Get("type")),
		Name:     r.URL.Query().Get("name"),
		Limit:    queryInt(r, "limit"),
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid since, expect RFC3339")
			return
		}
		q.Since = since
	}
	if raw := r.URL.Query().Get("until"); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid until, expect RFC3339")
			return
		}
		q.Until = until
	}
	if q.Limit <= 0 {
		q.Limit = 100
	}

	result := a.monitor.Store().Query(q)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metrics": result,
		"count":   len(result),
	})
}

// SnapshotHandler 最近时间窗的指标聚合摘要
func (a *API) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	window := queryInt(r, "window_minutes")
	snap := a.monitor.Store().Snapshot(window, nil)
	writeJSON(w, http.StatusOK, snap)
}

// HealthHandler 最近一次健康检查结果，没有则立即执行一轮
func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	report := a.monitor.Health().Last()
	if report.Timestamp.IsZero() {
		report = a.monitor.Health().Check()
	}

	writeJSON(w, http.StatusOK, report)
}

// ExportHandler 扁平的点分键数值表（JSON 形式的导出契约）
func (a *API) ExportHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, a.monitor.Health().Export())
}
