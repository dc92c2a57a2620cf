package metrics

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/AnalyseDeCircuit/opspulse/internal/events"
)

// DefaultMaxMetrics 默认指标存量上限
const DefaultMaxMetrics = 10000

// Store 指标存储
//
// 所有写入经过同一把锁，读取方不会观察到构造了一半的 Metric。
// 存量受 maxMetrics 约束：超限时同步清扫，先按保留期淘汰，仍超限则淘汰最旧。
type Store struct {
	mu sync.RWMutex

	clk clock.Clock
	bus *events.Bus

	// 按时间顺序追加
	metrics []Metric

	// 增量聚合缓存，键为 "category.name"
	// counter 累加，其余类型覆盖写入
	aggregates map[string]float64

	maxMetrics int
	retention  time.Duration
}

// NewStore 创建指标存储
func NewStore(clk clock.Clock, bus *events.Bus, maxMetrics, retentionDays int) *Store {
	if maxMetrics <= 0 {
		maxMetrics = DefaultMaxMetrics
	}
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &Store{
		clk:        clk,
		bus:        bus,
		aggregates: make(map[string]float64),
		maxMetrics: maxMetrics,
		retention:  time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// Record 记录一条指标
// 不阻塞、不拒绝合法输入，也不会向调用方抛出 panic。
func (s *Store) Record(category string, typ Type, name string, value float64, tags map[string]string, context map[string]string) Metric {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Metrics] record panicked: %v", r)
		}
	}()

	metric := Metric{
		ID:        uuid.NewString(),
		Category:  category,
		Type:      typ,
		Name:      name,
		Value:     value,
		Tags:      copyTags(tags),
		Timestamp: s.clk.Now(),
		Context:   copyTags(context),
	}

	s.mu.Lock()
	s.metrics = append(s.metrics, metric)

	key := category + "." + name
	if typ == TypeCounter {
		s.aggregates[key] += value
	} else {
		s.aggregates[key] = value
	}

	if len(s.metrics) > s.maxMetrics {
		s.evictLocked()
	}
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(events.Event{
			Kind:      events.MetricRecorded,
			Timestamp: metric.Timestamp,
			Payload:   metric,
		})
	}

	return metric
}

// Query 按条件查询指标，结果按时间倒序，截断到 Limit
func (s *Store) Query(q Query) []Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLocked(q)
}

func (s *Store) queryLocked(q Query) []Metric {
	var result []Metric
	// 切片按时间顺序追加，倒序遍历即为 newest-first
	for i := len(s.metrics) - 1; i >= 0; i-- {
		m := &s.metrics[i]
		if !matches(m, q) {
			continue
		}
		result = append(result, *m)
		if q.Limit > 0 && len(result) >= q.Limit {
			break
		}
	}
	return result
}

func matches(m *Metric, q Query) bool {
	if q.Category != "" && m.Category != q.Category {
		return false
	}
	if q.Type != "" && m.Type != q.Type {
		return false
	}
	if q.Name != "" && m.Name != q.Name {
		return false
	}
	if !q.Since.IsZero() && m.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && m.Timestamp.After(q.Until) {
		return false
	}
	for k, v := range q.Tags {
		if m.Tags[k] != v {
			return false
		}
	}
	return true
}

// Snapshot 聚合最近 windowMinutes 分钟内匹配 filter 的指标
// 没有数据时健康分记为 100。
func (s *Store) Snapshot(windowMinutes int, filter *Query) Snapshot {
	if windowMinutes <= 0 {
		windowMinutes = 60
	}

	now := s.clk.Now()
	q := Query{}
	if filter != nil {
		q = *filter
	}
	q.Since = now.Add(-time.Duration(windowMinutes) * time.Minute)
	q.Limit = 0

	s.mu.RLock()
	matched := s.queryLocked(q)
	s.mu.RUnlock()

	snap := Snapshot{
		Timestamp:     now,
		WindowMinutes: windowMinutes,
		TotalMetrics:  len(matched),
		ByCategory:    make(map[string]int),
		BySeverity:    make(map[string]int),
		HealthScore:   100,
	}

	var perfSum float64
	var perfCount int
	for _, m := range matched {
		snap.ByCategory[m.Category]++
		if sev := m.Tags["severity"]; sev != "" {
			snap.BySeverity[sev]++
		}
		if m.Category == CategoryError {
			snap.ErrorCount++
		}
		if m.Category == CategoryPerformance {
			perfSum += m.Value
			perfCount++
		}
	}
	if perfCount > 0 {
		snap.PerformanceAvg = perfSum / float64(perfCount)
	}
	if snap.TotalMetrics > 0 {
		score := 100 - float64(snap.ErrorCount)/float64(snap.TotalMetrics)*100
		snap.HealthScore = math.Round(math.Max(0, score))
	}

	return snap
}

// AggregatedValue O(1) 读取增量聚合缓存，键为 "category.name"
func (s *Store) AggregatedValue(key string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.aggregates[key]
	return v, ok
}

// Aggregates 返回聚合缓存的副本
func (s *Store) Aggregates() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.aggregates))
	for k, v := range s.aggregates {
		out[k] = v
	}
	return out
}

// Len 当前存量
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metrics)
}

// EvictByAge 清扫超过保留期的指标，返回清除数量
// 由小时级清扫任务调用。
func (s *Store) EvictByAge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.metrics)
	cutoff := s.clk.Now().Add(-s.retention)
	s.metrics = dropBefore(s.metrics, cutoff)
	removed := before - len(s.metrics)
	if removed > 0 {
		log.Printf("[Metrics] evicted %d metrics past retention", removed)
	}
	return removed
}

// SetLimits 运行时调整存量上限与保留期
func (s *Store) SetLimits(maxMetrics, retentionDays int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if maxMetrics > 0 {
		s.maxMetrics = maxMetrics
	}
	if retentionDays > 0 {
		s.retention = time.Duration(retentionDays) * 24 * time.Hour
	}
	if len(s.metrics) > s.maxMetrics {
		s.evictLocked()
	}
}

// evictLocked 超限清扫：先按保留期淘汰，仍超限则丢弃最旧的记录
func (s *Store) evictLocked() {
	cutoff := s.clk.Now().Add(-s.retention)
	s.metrics = dropBefore(s.metrics, cutoff)

	if over := len(s.metrics) - s.maxMetrics; over > 0 {
		s.metrics = append(s.metrics[:0:0], s.metrics[over:]...)
	}
}

// dropBefore 去掉 cutoff 之前的记录，保持原有顺序
func dropBefore(ms []Metric, cutoff time.Time) []Metric {
	// 切片按时间有序，找到第一个保留位置即可
	idx := 0
	for idx < len(ms) && ms[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return ms
	}
	return append(ms[:0:0], ms[idx:]...)
}

func copyTags(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
