// Package collectors 提供内置的协作方探针实现
//
// 探针本身不属于引擎：宿主应用通常注入自己的实现。
// 这里只提供一个基于 gopsutil 的本机性能探针作为默认兜底。
package collectors

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/AnalyseDeCircuit/opspulse/internal/metrics"
	"github.com/AnalyseDeCircuit/opspulse/pkg/types"
)

// SystemPerformanceProvider 本机性能探针
// CPU 与内存来自 gopsutil，请求统计来自 Metric Store 的聚合缓存。
type SystemPerformanceProvider struct {
	store *metrics.Store
}

// NewSystemPerformanceProvider 创建本机性能探针
func NewSystemPerformanceProvider(store *metrics.Store) *SystemPerformanceProvider {
	return &SystemPerformanceProvider{store: store}
}

// Performance 采集一次性能快照
func (p *SystemPerformanceProvider) Performance() (types.PerformanceSnapshot, error) {
	var snapshot types.PerformanceSnapshot

	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		return snapshot, fmt.Errorf("cpu sample failed: %w", err)
	}
	if len(cpuPercent) > 0 {
		snapshot.CPUUsage = cpuPercent[0]
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		return snapshot, fmt.Errorf("memory sample failed: %w", err)
	}
	snapshot.MemoryUsed = memInfo.Used
	snapshot.MemoryTotal = memInfo.Total

	if p.store != nil {
		if v, ok := p.store.AggregatedValue("performance.response_time"); ok {
			snapshot.AvgResponseTime = v
		}
		if v, ok := p.store.AggregatedValue("usage.requests_total"); ok {
			snapshot.TotalRequests = int64(v)
		}
		if v, ok := p.store.AggregatedValue("error.requests_failed"); ok {
			snapshot.FailedRequests = int64(v)
		}
	}

	return snapshot, nil
}
