// Package config 提供监控引擎的运行配置
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config 引擎配置
// 在构造时传入 Orchestrator，运行期间可通过 Orchestrator.UpdateConfig 调整。
type Config struct {
	// 指标保留天数，影响 Metric Store 的小时级清扫和告警的天级清扫
	RetentionDays int

	// Metric Store 最大存量，超过后立即触发清扫
	MaxMetrics int

	// 活跃告警数量上限，达到后 CreateAlert 返回容量错误
	MaxActiveAlerts int

	// 无策略告警的默认升级延迟（分钟）
	DefaultEscalationDelayMinutes int

	// 健康检查间隔（秒）
	HealthCheckIntervalSeconds int

	// Module flags
	EnableRuleEngine  bool
	EnableEscalation  bool
	EnableHealthCheck bool

	// 被监控的服务器 ID 列表（供集群健康探针参考）
	MonitoredServers []string

	// HTTP 服务监听地址
	ListenAddr string
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		RetentionDays:                 7,
		MaxMetrics:                    10000,
		MaxActiveAlerts:               100,
		DefaultEscalationDelayMinutes: 15,
		HealthCheckIntervalSeconds:    30,
		EnableRuleEngine:              true,
		EnableEscalation:              true,
		EnableHealthCheck:             true,
		ListenAddr:                    ":8000",
	}
}

// FromEnv 从环境变量加载配置，未设置的项取默认值
func FromEnv() *Config {
	cfg := Default()

	cfg.RetentionDays = getEnvInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.MaxMetrics = getEnvInt("MAX_METRICS", cfg.MaxMetrics)
	cfg.MaxActiveAlerts = getEnvInt("MAX_ACTIVE_ALERTS", cfg.MaxActiveAlerts)
	cfg.DefaultEscalationDelayMinutes = getEnvInt("DEFAULT_ESCALATION_DELAY_MINUTES", cfg.DefaultEscalationDelayMinutes)
	cfg.HealthCheckIntervalSeconds = getEnvInt("HEALTH_CHECK_INTERVAL_SECONDS", cfg.HealthCheckIntervalSeconds)

	cfg.EnableRuleEngine = getEnvBool("ENABLE_RULE_ENGINE", cfg.EnableRuleEngine)
	cfg.EnableEscalation = getEnvBool("ENABLE_ESCALATION", cfg.EnableEscalation)
	cfg.EnableHealthCheck = getEnvBool("ENABLE_HEALTH_CHECK", cfg.EnableHealthCheck)

	if servers := getEnv("MONITORED_SERVERS", ""); servers != "" {
		for _, s := range strings.Split(servers, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.MonitoredServers = append(cfg.MonitoredServers, s)
			}
		}
	}

	if port := getEnv("PORT", ""); port != "" {
		cfg.ListenAddr = ":" + port
	}

	return cfg
}

// Clone 返回配置的深拷贝
func (c *Config) Clone() *Config {
	clone := *c
	clone.MonitoredServers = append([]string(nil), c.MonitoredServers...)
	return &clone
}

// getEnv 获取环境变量，如果为空则返回默认值
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		value = strings.ToLower(value)
		return value == "true" || value == "1" || value == "yes" || value == "on"
	}
	return defaultValue
}

// getEnvInt 获取整数类型环境变量
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
