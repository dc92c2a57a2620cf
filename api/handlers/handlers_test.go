package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/AnalyseDeCircuit/opspulse/internal/config"
	"github.com/AnalyseDeCircuit/opspulse/internal/monitor"
)

func newTestServer(t *testing.T) (*httptest.Server, *monitor.Monitor) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	m := monitor.New(config.Default(), mock)
	t.Cleanup(m.Stop)

	srv := httptest.NewServer(New(m, nil).Routes())
	t.Cleanup(srv.Close)
	return srv, m
}

func doJSON(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestRecordAndQueryMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/metrics", map[string]interface{}{
		"category": "error",
		"type":     "counter",
		"name":     "db_timeout",
		"value":    1,
		"tags":     map[string]string{"severity": "error"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /api/metrics status = %v, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	var result struct {
		Count int `json:"count"`
	}
	decode(t, doJSON(t, http.MethodGet, srv.URL+"/api/metrics/query?category=error", nil), &result)
	if result.Count != 1 {
		t.Errorf("query count = %v, want 1", result.Count)
	}
}

func TestRecordMetricValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	// 缺少必填字段
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/metrics", map[string]interface{}{"value": 1})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %v, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	// 方法不匹配
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/metrics", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %v, want 405", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAlertLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	var alert struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decode(t, doJSON(t, http.MethodPost, srv.URL+"/api/alerts", map[string]interface{}{
		"type": "error_rate", "severity": "critical", "title": "Error rate high", "source": "manual",
	}), &alert)
	if alert.ID == "" || alert.Status != "active" {
		t.Fatalf("created alert = %+v", alert)
	}

	var active struct {
		Count int `json:"count"`
	}
	decode(t, doJSON(t, http.MethodGet, srv.URL+"/api/alerts/active", nil), &active)
	if active.Count != 1 {
		t.Errorf("active count = %v, want 1", active.Count)
	}

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/alerts/"+alert.ID+"/acknowledge", map[string]string{"by": "ops"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("acknowledge status = %v, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// 重复确认返回冲突
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/alerts/"+alert.ID+"/acknowledge", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second acknowledge status = %v, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/alerts/"+alert.ID+"/resolve", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %v, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	var got struct {
		Status string `json:"status"`
	}
	decode(t, doJSON(t, http.MethodGet, srv.URL+"/api/alerts/"+alert.ID, nil), &got)
	if got.Status != "resolved" {
		t.Errorf("alert status = %v, want resolved", got.Status)
	}

	var history struct {
		Count int `json:"count"`
	}
	decode(t, doJSON(t, http.MethodGet, srv.URL+"/api/alerts/history?status=resolved", nil), &history)
	if history.Count != 1 {
		t.Errorf("history count = %v, want 1", history.Count)
	}
}

func TestSuppressOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	var alert struct {
		ID string `json:"id"`
	}
	decode(t, doJSON(t, http.MethodPost, srv.URL+"/api/alerts", map[string]interface{}{
		"type": "latency", "severity": "warning", "title": "Slow", "source": "manual",
	}), &alert)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/alerts/"+alert.ID+"/suppress", map[string]int{"minutes": 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("suppress with 0 minutes status = %v, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/alerts/"+alert.ID+"/suppress", map[string]int{"minutes": 10})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("suppress status = %v, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	var active struct {
		Count int `json:"count"`
	}
	decode(t, doJSON(t, http.MethodGet, srv.URL+"/api/alerts/active", nil), &active)
	if active.Count != 0 {
		t.Errorf("active count after suppress = %v, want 0", active.Count)
	}
}

func TestRulesOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	var rule struct {
		ID string `json:"id"`
	}
	decode(t, doJSON(t, http.MethodPost, srv.URL+"/api/rules", map[string]interface{}{
		"name":    "Error count high",
		"enabled": false,
		"condition": map[string]interface{}{
			"metric": "error_count", "operator": ">", "threshold": 10,
			"time_window_minutes": 5, "eval_interval_seconds": 30,
		},
		"severity": "critical",
	}), &rule)
	if rule.ID == "" {
		t.Fatal("created rule should get an ID")
	}

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/rules/"+rule.ID+"/enable", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("enable status = %v, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	var summary struct {
		TotalRules   int `json:"total_rules"`
		EnabledRules int `json:"enabled_rules"`
	}
	decode(t, doJSON(t, http.MethodGet, srv.URL+"/api/alerts/summary", nil), &summary)
	if summary.TotalRules != 1 || summary.EnabledRules != 1 {
		t.Errorf("summary rules = %+v, want 1/1", summary)
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/rules/"+rule.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %v, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// 无效规则被拒绝
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/rules", map[string]interface{}{"name": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid rule status = %v, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHealthAndExportOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	var report struct {
		Overall    string            `json:"overall"`
		Components map[string]string `json:"components"`
	}
	decode(t, doJSON(t, http.MethodGet, srv.URL+"/api/health", nil), &report)
	if report.Overall == "" {
		t.Error("health report should have an overall status")
	}
	if len(report.Components) != 5 {
		t.Errorf("components = %v entries, want 5", len(report.Components))
	}

	var export map[string]float64
	decode(t, doJSON(t, http.MethodGet, srv.URL+"/api/export", nil), &export)
	if _, ok := export["system.health.overall"]; !ok {
		t.Error(`export missing "system.health.overall"`)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	srv, m := newTestServer(t)

	m.Health().Check()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %v, want 200", resp.StatusCode)
	}
}
