package metrics

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func newTestStore(maxMetrics, retentionDays int) (*Store, *clock.Mock) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	return NewStore(mock, nil, maxMetrics, retentionDays), mock
}

func TestRecordAssignsDistinctIDs(t *testing.T) {
	store, _ := newTestStore(100, 7)

	// 同一毫秒内的两条记录也必须有不同 ID
	m1 := store.Record(CategoryError, TypeCounter, "db_timeout", 1, nil, nil)
	m2 := store.Record(CategoryError, TypeCounter, "db_timeout", 1, nil, nil)

	if m1.ID == "" || m2.ID == "" {
		t.Fatal("Record() should assign non-empty IDs")
	}
	if m1.ID == m2.ID {
		t.Errorf("Record() IDs should be distinct, both = %v", m1.ID)
	}
	if store.Len() != 2 {
		t.Errorf("Len() = %v, want 2", store.Len())
	}
}

func TestQueryFilters(t *testing.T) {
	store, mock := newTestStore(100, 7)

	store.Record(CategoryError, TypeCounter, "db_timeout", 1, map[string]string{"severity": "error"}, nil)
	mock.Add(time.Minute)
	store.Record(CategoryPerformance, TypeTimer, "response_time", 120, nil, nil)
	mock.Add(time.Minute)
	store.Record(CategoryError, TypeCounter, "api_failure", 1, map[string]string{"severity": "warning"}, nil)

	tests := []struct {
		name  string
		query Query
		want  int
	}{
		{"按类别过滤", Query{Category: CategoryError}, 2},
		{"按名称过滤", Query{Name: "response_time"}, 1},
		{"按类型过滤", Query{Type: TypeCounter}, 2},
		{"按标签过滤", Query{Tags: map[string]string{"severity": "error"}}, 1},
		{"组合过滤取交集", Query{Category: CategoryError, Tags: map[string]string{"severity": "warning"}}, 1},
		{"无匹配", Query{Category: CategoryUsage}, 0},
		{"Limit截断", Query{Limit: 2}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := store.Query(tt.query)
			if len(got) != tt.want {
				t.Errorf("Query(%+v) returned %v metrics, want %v", tt.query, len(got), tt.want)
			}
		})
	}
}

func TestQueryNewestFirst(t *testing.T) {
	store, mock := newTestStore(100, 7)

	store.Record(CategoryError, TypeCounter, "first", 1, nil, nil)
	mock.Add(time.Minute)
	store.Record(CategoryError, TypeCounter, "second", 1, nil, nil)

	got := store.Query(Query{Category: CategoryError})
	if len(got) != 2 {
		t.Fatalf("Query() returned %v metrics, want 2", len(got))
	}
	if got[0].Name != "second" || got[1].Name != "first" {
		t.Errorf("Query() order = [%v, %v], want newest first", got[0].Name, got[1].Name)
	}
}

func TestQuerySinceWindow(t *testing.T) {
	store, mock := newTestStore(100, 7)

	store.Record(CategoryError, TypeCounter, "old", 1, nil, nil)
	mock.Add(10 * time.Minute)
	store.Record(CategoryError, TypeCounter, "recent", 1, nil, nil)

	since := mock.Now().Add(-5 * time.Minute)
	got := store.Query(Query{Category: CategoryError, Since: since})
	if len(got) != 1 || got[0].Name != "recent" {
		t.Errorf("Query(Since) = %v metrics, want only the recent one", len(got))
	}
}

func TestSnapshotIsReadOnly(t *testing.T) {
	store, _ := newTestStore(100, 7)

	for i := 0; i < 3; i++ {
		store.Record(CategoryError, TypeCounter, "db_timeout", 1, nil, nil)
	}
	store.Record(CategoryPerformance, TypeTimer, "response_time", 200, nil, nil)
	store.Record(CategoryPerformance, TypeTimer, "response_time", 400, nil, nil)

	snap1 := store.Snapshot(60, nil)
	snap2 := store.Snapshot(60, nil)

	// 快照是只读聚合，连续两次结果一致
	if snap1.TotalMetrics != snap2.TotalMetrics || snap1.ErrorCount != snap2.ErrorCount {
		t.Errorf("Snapshot() should be idempotent: %+v vs %+v", snap1, snap2)
	}
	if snap1.TotalMetrics != 5 {
		t.Errorf("TotalMetrics = %v, want 5", snap1.TotalMetrics)
	}
	if snap1.ErrorCount != 3 {
		t.Errorf("ErrorCount = %v, want 3", snap1.ErrorCount)
	}
	if snap1.PerformanceAvg != 300 {
		t.Errorf("PerformanceAvg = %v, want 300", snap1.PerformanceAvg)
	}
	// 5 条中 3 条错误：100 - 60 = 40
	if snap1.HealthScore != 40 {
		t.Errorf("HealthScore = %v, want 40", snap1.HealthScore)
	}
}

func TestSnapshotEmptyWindow(t *testing.T) {
	store, _ := newTestStore(100, 7)

	snap := store.Snapshot(60, nil)
	if snap.TotalMetrics != 0 {
		t.Errorf("TotalMetrics = %v, want 0", snap.TotalMetrics)
	}
	if snap.HealthScore != 100 {
		t.Errorf("HealthScore on empty window = %v, want 100", snap.HealthScore)
	}
}

func TestAggregates(t *testing.T) {
	store, _ := newTestStore(100, 7)

	// counter 累加
	store.Record(CategoryError, TypeCounter, "db_timeout", 1, nil, nil)
	store.Record(CategoryError, TypeCounter, "db_timeout", 2, nil, nil)
	// gauge 覆盖
	store.Record(CategorySystem, TypeGauge, "cpu_usage", 40, nil, nil)
	store.Record(CategorySystem, TypeGauge, "cpu_usage", 75, nil, nil)

	if v, ok := store.AggregatedValue("error.db_timeout"); !ok || v != 3 {
		t.Errorf("AggregatedValue(error.db_timeout) = %v, %v, want 3, true", v, ok)
	}
	if v, ok := store.AggregatedValue("system.cpu_usage"); !ok || v != 75 {
		t.Errorf("AggregatedValue(system.cpu_usage) = %v, %v, want 75, true", v, ok)
	}
	if _, ok := store.AggregatedValue("missing.key"); ok {
		t.Error("AggregatedValue() on missing key should return false")
	}
}

func TestEvictOverCapacity(t *testing.T) {
	store, mock := newTestStore(5, 7)

	for i := 0; i < 8; i++ {
		store.Record(CategoryUsage, TypeCounter, "requests_total", 1, nil, nil)
		mock.Add(time.Second)
	}

	// 超限后丢弃最旧记录，存量回到上限
	if store.Len() != 5 {
		t.Errorf("Len() after overflow = %v, want 5", store.Len())
	}
}

func TestEvictByAge(t *testing.T) {
	store, mock := newTestStore(100, 1)

	store.Record(CategoryError, TypeCounter, "stale", 1, nil, nil)
	mock.Add(25 * time.Hour)
	store.Record(CategoryError, TypeCounter, "fresh", 1, nil, nil)

	removed := store.EvictByAge()
	if removed != 1 {
		t.Errorf("EvictByAge() = %v, want 1", removed)
	}
	if store.Len() != 1 {
		t.Errorf("Len() after eviction = %v, want 1", store.Len())
	}
	got := store.Query(Query{})
	if len(got) != 1 || got[0].Name != "fresh" {
		t.Error("EvictByAge() should keep the fresh metric")
	}
}

func TestRecordDoesNotShareTagMap(t *testing.T) {
	store, _ := newTestStore(100, 7)

	tags := map[string]string{"severity": "error"}
	store.Record(CategoryError, TypeCounter, "db_timeout", 1, tags, nil)
	tags["severity"] = "mutated"

	got := store.Query(Query{Name: "db_timeout"})
	if len(got) != 1 {
		t.Fatalf("Query() returned %v metrics, want 1", len(got))
	}
	if got[0].Tags["severity"] != "error" {
		t.Errorf("stored tags mutated by caller: %v", got[0].Tags)
	}
}
