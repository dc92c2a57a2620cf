package alerts

import "errors"

var (
	// 规则相关错误
	ErrRuleNotFound     = errors.New("alert rule not found")
	ErrRuleExists       = errors.New("alert rule already exists")
	ErrInvalidRuleID    = errors.New("invalid rule ID")
	ErrInvalidRuleName  = errors.New("invalid rule name")
	ErrInvalidMetric    = errors.New("invalid condition metric")
	ErrInvalidOperator  = errors.New("invalid operator")
	ErrInvalidInterval  = errors.New("invalid evaluation interval")
	ErrInvalidWindow    = errors.New("invalid time window")

	// 告警相关错误
	ErrAlertNotFound = errors.New("alert not found")
	ErrAlertCapacity = errors.New("active alert capacity reached")

	// 策略相关错误
	ErrPolicyNotFound = errors.New("escalation policy not found")
	ErrInvalidPolicy  = errors.New("invalid escalation policy")
)
