package memory

import (
	"context"
	"testing"
	"time"

	"ais-diff-events/internal/vessel"
)

func TestLatestSnapshotWinsByFetchTime(t *testing.T) {
	s := New()
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).UnixMilli()
	for _, at := range []int64{base, base + 1000, base + 2000} {
		if err := s.SaveSnapshot(ctx, vessel.Snapshot{PortCode: "CNSHA", FetchedAt: at}); err != nil {
			t.Fatalf("写入快照失败: %v", err)
		}
	}

	got, err := s.GetLatestSnapshot(ctx, "CNSHA")
	if err != nil {
		t.Fatalf("读取快照失败: %v", err)
	}
	if got == nil || got.FetchedAt != base+2000 {
		t.Fatalf("应返回最新快照: %+v", got)
	}

	if other, _ := s.GetLatestSnapshot(ctx, "CNNGB"); other != nil {
		t.Fatal("未知港口应返回 nil")
	}
}

func TestEventQueries(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	events := []vessel.Event{
		{ID: "a", MMSI: "1", Type: vessel.EventArrivingSoon, DetectedAt: base + 3000},
		{ID: "b", MMSI: "1", Type: vessel.EventArrivingSoon, DetectedAt: base + 1000},
		{ID: "c", MMSI: "2", Type: vessel.EventStaleSignal, DetectedAt: base + 2000},
	}
	if err := s.SaveEvents(ctx, events); err != nil {
		t.Fatalf("写入事件失败: %v", err)
	}

	// [from, to) 半开区间。
	between, err := s.ListEventsBetween(ctx, base+1000, base+3000)
	if err != nil {
		t.Fatalf("区间查询失败: %v", err)
	}
	if len(between) != 2 || between[0].ID != "b" || between[1].ID != "c" {
		t.Fatalf("区间查询结果不正确: %+v", between)
	}

	recent, err := s.ListRecentEvents(ctx, 2)
	if err != nil {
		t.Fatalf("最近事件查询失败: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "a" {
		t.Fatalf("最近事件应按时间倒序: %+v", recent)
	}

	last, err := s.LastEventAt(ctx, "1", vessel.EventArrivingSoon)
	if err != nil {
		t.Fatalf("LastEventAt 失败: %v", err)
	}
	if last == nil || *last != base+3000 {
		t.Fatalf("应返回该类型最近一次时间: %v", last)
	}
	if none, _ := s.LastEventAt(ctx, "1", vessel.EventDraughtSpike); none != nil {
		t.Fatal("无历史事件应返回 nil")
	}
}

func TestAggregateUpserts(t *testing.T) {
	s := New()
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	row := vessel.AggregateRow{WindowStart: start, WindowEnd: start.AddDate(0, 0, 1), ArrivalEventCount: 1}
	if err := s.UpsertDailyAggregate(ctx, "CNSHA", row); err != nil {
		t.Fatalf("写入日汇总失败: %v", err)
	}

	// 同键重写应覆盖。
	row.ArrivalEventCount = 5
	if err := s.UpsertDailyAggregate(ctx, "CNSHA", row); err != nil {
		t.Fatalf("重写日汇总失败: %v", err)
	}

	got, ok := s.DailyAggregate("CNSHA", "2025-03-01")
	if !ok || got.ArrivalEventCount != 5 {
		t.Fatalf("日汇总应被覆盖: %+v", got)
	}

	listed, err := s.ListDailyAggregates(ctx, "CNSHA", start.AddDate(0, 0, -1), start.AddDate(0, 0, 2))
	if err != nil || len(listed) != 1 {
		t.Fatalf("区间列举不正确: %v %v", listed, err)
	}
}
