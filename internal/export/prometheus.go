// Package export 把引擎的扁平数值表导出为 Prometheus 指标
package export

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AnalyseDeCircuit/opspulse/internal/health"
	"github.com/AnalyseDeCircuit/opspulse/internal/metrics"
)

const namespace = "opspulse"

// Collector 实现 prometheus.Collector
// 每次抓取时读取健康聚合器的导出表和 Metric Store 的聚合缓存，
// 点分键转换为下划线指标名。
type Collector struct {
	aggregator *health.Aggregator
	store      *metrics.Store
}

// NewCollector 创建导出器
func NewCollector(aggregator *health.Aggregator, store *metrics.Store) *Collector {
	return &Collector{aggregator: aggregator, store: store}
}

// Describe 动态指标集，不预先声明描述符
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	// 键集合随运行状态变化，按 unchecked collector 处理
}

// Collect 输出当前所有导出值
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	seen := make(map[string]struct{})
	for key, value := range c.aggregator.Export() {
		emit(ch, seen, key, value, "engine export value")
	}
	for key, value := range c.store.Aggregates() {
		emit(ch, seen, "aggregated."+key, value, "incremental metric aggregate")
	}
}

func emit(ch chan<- prometheus.Metric, seen map[string]struct{}, key string, value float64, help string) {
	name := prometheus.BuildFQName(namespace, "", sanitize(key))
	// 不同的点分键净化后可能撞出同一个指标名，重名的只输出第一个，
	// 否则 Gather 会因描述符重复而整体报错。
	if _, dup := seen[name]; dup {
		return
	}
	seen[name] = struct{}{}

	desc := prometheus.NewDesc(name, help, nil, nil)
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, value)
	if err != nil {
		return
	}
	ch <- m
}

// sanitize 点分键转合法的 Prometheus 指标名
func sanitize(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9' && i > 0:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// NewRegistry 创建包含引擎导出器的注册表
func NewRegistry(aggregator *health.Aggregator, store *metrics.Store) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(aggregator, store))
	return registry
}
