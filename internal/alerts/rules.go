package alerts

// BuiltinRules 预置告警规则，默认全部禁用，由运维按需启用
var BuiltinRules = []Rule{
	{
		ID:       "error_rate_high",
		Name:     "Error Rate High",
		Type:     "error_rate",
		Severity: SeverityCritical,
		Condition: Condition{
			Metric:              "error",
			Operator:            OpGreaterThan,
			Threshold:           100,
			TimeWindowMinutes:   5,
			EvalIntervalSeconds: 60,
		},
	},
	{
		ID:       "error_rate_warning",
		Name:     "Error Rate Warning",
		Type:     "error_rate",
		Severity: SeverityWarning,
		Condition: Condition{
			Metric:              "error",
			Operator:            OpGreaterThan,
			Threshold:           20,
			TimeWindowMinutes:   10,
			EvalIntervalSeconds: 60,
		},
	},
	{
		ID:       "latency_high",
		Name:     "Response Time High",
		Type:     "latency",
		Severity: SeverityWarning,
		Condition: Condition{
			Metric:              "response_time",
			Operator:            OpGreaterThan,
			Threshold:           5000, // 毫秒
			TimeWindowMinutes:   5,
			EvalIntervalSeconds: 60,
		},
	},
	{
		ID:       "cpu_high",
		Name:     "CPU High Usage",
		Type:     "resource",
		Severity: SeverityCritical,
		Condition: Condition{
			Metric:              "cpu_usage",
			Operator:            OpGreaterThan,
			Threshold:           90,
			TimeWindowMinutes:   5,
			EvalIntervalSeconds: 60,
		},
	},
}

// RulePreset 规则预设组
type RulePreset struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	RuleIDs     []string `json:"rule_ids"`
}

// BuiltinPresets 预置规则组
var BuiltinPresets = []RulePreset{
	{
		ID:          "essential",
		Name:        "Essential",
		Description: "Critical-only rules for errors and CPU",
		RuleIDs:     []string{"error_rate_high", "cpu_high"},
	},
	{
		ID:          "standard",
		Name:        "Standard",
		Description: "All builtin rules with warning and critical levels",
		RuleIDs:     []string{"error_rate_high", "error_rate_warning", "latency_high", "cpu_high"},
	},
}

// LoadBuiltinRules 将预置规则注册进引擎（保持禁用状态）
func (e *Engine) LoadBuiltinRules() {
	for _, builtin := range BuiltinRules {
		rule := builtin
		rule.Builtin = true
		rule.Enabled = false
		if err := e.AddRule(&rule); err != nil && err != ErrRuleExists {
			continue
		}
	}
}

// EnablePreset 启用预设组中的所有规则
func (e *Engine) EnablePreset(presetID string) error {
	var preset *RulePreset
	for i := range BuiltinPresets {
		if BuiltinPresets[i].ID == presetID {
			preset = &BuiltinPresets[i]
			break
		}
	}
	if preset == nil {
		return ErrRuleNotFound
	}

	for _, id := range preset.RuleIDs {
		if err := e.EnableRule(id); err != nil && err != ErrRuleNotFound {
			return err
		}
	}
	return nil
}

// ValidateRule 验证规则配置
func ValidateRule(rule *Rule) error {
	if rule == nil {
		return ErrInvalidRuleID
	}
	if rule.Name == "" {
		return ErrInvalidRuleName
	}
	if rule.Condition.Metric == "" {
		return ErrInvalidMetric
	}
	if !isValidOperator(rule.Condition.Operator) {
		return ErrInvalidOperator
	}
	if rule.Condition.TimeWindowMinutes <= 0 {
		return ErrInvalidWindow
	}
	if rule.Condition.EvalIntervalSeconds <= 0 {
		return ErrInvalidInterval
	}
	return nil
}

func isValidOperator(op Operator) bool {
	switch op {
	case OpGreaterThan, OpLessThan, OpGTE, OpLTE, OpEqual, OpNotEqual:
		return true
	}
	return false
}
