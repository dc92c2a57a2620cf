package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AnalyseDeCircuit/opspulse/internal/alerts"
)

// ActiveAlertsHandler 获取活跃告警（抑制期内的不出现）
func (a *API) ActiveAlertsHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	active := a.monitor.Alerts().ActiveAlerts()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": active,
		"count":  len(active),
	})
}

// AlertHistoryHandler 按条件分页查询告警历史
func (a *API) AlertHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	q := alerts.HistoryQuery{
		Source:   r.URL.Query().Get("source"),
		Type:     r.URL.Query().Get("type"),
		Status:   alerts.Status(r.URL.Query().Get("status")),
		Severity: alerts.Severity(r.URL.Query().Get("severity")),
		Limit:    queryInt(r, "limit"),
		Offset:   queryInt(r, "offset"),
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid since, expect RFC3339")
			return
		}
		q.Since = &since
	}

	history := a.monitor.Alerts().History(q)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": history,
		"count":  len(history),
	})
}

// AlertSummaryHandler 告警与规则的汇总统计
func (a *API) AlertSummaryHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	summary := a.monitor.Alerts().Summary()
	summary.TotalRules, summary.EnabledRules = a.monitor.Rules().Counts()
	writeJSON(w, http.StatusOK, summary)
}

// CreateAlertHandler 手工创建告警
func (a *API) CreateAlertHandler(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var draft alerts.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if draft.Title == "" || draft.Source == "" {
		writeJSONError(w, http.StatusBadRequest, "title and source are required")
		return
	}

	alert, err := a.monitor.Alerts().CreateAlert(draft)
	if err != nil {
		if errors.Is(err, alerts.ErrAlertCapacity) {
			writeJSONError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

// AlertActionHandler 单条告警的查询与生命周期操作
// GET  /api/alerts/{id}
// POST /api/alerts/{id}/acknowledge
// POST /api/alerts/{id}/resolve
// POST /api/alerts/{id}/suppress
func (a *API) AlertActionHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "alert id required")
		return
	}

	if len(parts) == 1 {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		alert, ok := a.monitor.Alerts().Get(id)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeJSON(w, http.StatusOK, alert)
		return
	}

	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	switch parts[1] {
	case "acknowledge":
		var body struct {
			By string `json:"by"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.By == "" {
			body.By = "api"
		}
		if !a.monitor.Alerts().Acknowledge(id, body.By) {
			writeJSONError(w, http.StatusConflict, "alert not found or not active")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})

	case "resolve":
		if !a.monitor.Alerts().Resolve(id) {
			writeJSONError(w, http.StatusConflict, "alert not found or already resolved")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})

	case "suppress":
		var body struct {
			Minutes int `json:"minutes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Minutes <= 0 {
			writeJSONError(w, http.StatusBadRequest, "minutes must be a positive integer")
			return
		}
		if !a.monitor.Alerts().Suppress(id, body.Minutes) {
			writeJSONError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "suppressed"})

	default:
		writeJSONError(w, http.StatusNotFound, "unknown alert action")
	}
}

// RulesHandler 规则列表与创建
func (a *API) RulesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rules := a.monitor.Rules().Rules()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"rules": rules,
			"count": len(rules),
		})

	case http.MethodPost:
		var rule alerts.Rule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := a.monitor.Rules().AddRule(&rule); err != nil {
			if errors.Is(err, alerts.ErrRuleExists) {
				writeJSONError(w, http.StatusConflict, err.Error())
				return
			}
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, rule)

	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// RuleActionHandler 单条规则的查询、删除与启停，以及预设组
// GET    /api/rules/{id}
// DELETE /api/rules/{id}
// POST   /api/rules/{id}/enable
// POST   /api/rules/{id}/disable
// GET    /api/rules/presets
// POST   /api/rules/presets/{id}/enable
func (a *API) RuleActionHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/rules/")
	parts := strings.SplitN(rest, "/", 3)

	if parts[0] == "presets" {
		a.rulePresets(w, r, parts)
		return
	}

	id := parts[0]
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "rule id required")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			rule, ok := a.monitor.Rules().Rule(id)
			if !ok {
				writeJSONError(w, http.StatusNotFound, "rule not found")
				return
			}
			writeJSON(w, http.StatusOK, rule)
		case http.MethodDelete:
			if err := a.monitor.Rules().RemoveRule(id); err != nil {
				writeJSONError(w, http.StatusNotFound, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
		default:
			writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var err error
	switch parts[1] {
	case "enable":
		err = a.monitor.Rules().EnableRule(id)
	case "disable":
		err = a.monitor.Rules().DisableRule(id)
	default:
		writeJSONError(w, http.StatusNotFound, "unknown rule action")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": parts[1] + "d"})
}

func (a *API) rulePresets(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 1 {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"presets": alerts.BuiltinPresets,
		})
		return
	}

	if len(parts) == 3 && parts[2] == "enable" {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		if err := a.monitor.Rules().EnablePreset(parts[1]); err != nil {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "enabled"})
		return
	}

	writeJSONError(w, http.StatusNotFound, "unknown preset action")
}

func queryInt(r *http.Request, key string) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
