package config

import (
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.RetentionDays != 7 {
		t.Errorf("RetentionDays = %v, want 7", cfg.RetentionDays)
	}
	if cfg.MaxMetrics != 10000 {
		t.Errorf("MaxMetrics = %v, want 10000", cfg.MaxMetrics)
	}
	if cfg.MaxActiveAlerts != 100 {
		t.Errorf("MaxActiveAlerts = %v, want 100", cfg.MaxActiveAlerts)
	}
	if cfg.HealthCheckIntervalSeconds != 30 {
		t.Errorf("HealthCheckIntervalSeconds = %v, want 30", cfg.HealthCheckIntervalSeconds)
	}
	if !cfg.EnableRuleEngine || !cfg.EnableEscalation || !cfg.EnableHealthCheck {
		t.Error("all modules should be enabled by default")
	}
	if cfg.ListenAddr != ":8000" {
		t.Errorf("ListenAddr = %v, want :8000", cfg.ListenAddr)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("RETENTION_DAYS", "3")
	t.Setenv("MAX_ACTIVE_ALERTS", "50")
	t.Setenv("ENABLE_RULE_ENGINE", "false")
	t.Setenv("MONITORED_SERVERS", "web-1, web-2 ,, db-1")
	t.Setenv("PORT", "9090")

	cfg := FromEnv()
	if cfg.RetentionDays != 3 {
		t.Errorf("RetentionDays = %v, want 3", cfg.RetentionDays)
	}
	if cfg.MaxActiveAlerts != 50 {
		t.Errorf("MaxActiveAlerts = %v, want 50", cfg.MaxActiveAlerts)
	}
	if cfg.EnableRuleEngine {
		t.Error("EnableRuleEngine should be false")
	}
	// 未设置的项保持默认
	if !cfg.EnableEscalation {
		t.Error("EnableEscalation should keep default true")
	}
	if len(cfg.MonitoredServers) != 3 || cfg.MonitoredServers[1] != "web-2" {
		t.Errorf("MonitoredServers = %v, want 3 trimmed entries", cfg.MonitoredServers)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %v, want :9090", cfg.ListenAddr)
	}
}

func TestFromEnvInvalidValues(t *testing.T) {
	t.Setenv("MAX_METRICS", "not-a-number")

	cfg := FromEnv()
	if cfg.MaxMetrics != 10000 {
		t.Errorf("MaxMetrics with invalid env = %v, want default 10000", cfg.MaxMetrics)
	}
}

func TestClone(t *testing.T) {
	cfg := Default()
	cfg.MonitoredServers = []string{"web-1"}

	clone := cfg.Clone()
	clone.MonitoredServers[0] = "mutated"
	clone.RetentionDays = 99

	if cfg.MonitoredServers[0] != "web-1" {
		t.Error("Clone() should deep-copy MonitoredServers")
	}
	if cfg.RetentionDays != 7 {
		t.Error("Clone() should not share scalar fields")
	}
}
