package aggregate

import (
	"testing"
	"time"

	"ais-diff-events/internal/vessel"
)

var loc = time.FixedZone("UTC+8", 8*3600)

func TestDayWindow(t *testing.T) {
	ref := time.Date(2025, 3, 1, 23, 30, 0, 0, loc)
	w := Day(ref, loc)

	wantStart := time.Date(2025, 3, 1, 0, 0, 0, 0, loc)
	if !w.Start.Equal(wantStart) || !w.End.Equal(wantStart.AddDate(0, 0, 1)) {
		t.Fatalf("日窗口不正确: %v - %v", w.Start, w.End)
	}
	if !w.Contains(ref.UnixMilli()) {
		t.Fatal("参考时刻应落在窗口内")
	}
	if w.Contains(w.End.UnixMilli()) {
		t.Fatal("窗口为左闭右开, 终点不应包含")
	}
}

func TestWeekWindowStartsMonday(t *testing.T) {
	cases := []struct {
		ref  time.Time
		want time.Time
	}{
		// 2025-03-05 为周三。
		{time.Date(2025, 3, 5, 10, 0, 0, 0, loc), time.Date(2025, 3, 3, 0, 0, 0, 0, loc)},
		// 周一当天。
		{time.Date(2025, 3, 3, 0, 0, 0, 0, loc), time.Date(2025, 3, 3, 0, 0, 0, 0, loc)},
		// 周日回退 6 天。
		{time.Date(2025, 3, 9, 23, 59, 0, 0, loc), time.Date(2025, 3, 3, 0, 0, 0, 0, loc)},
	}
	for _, c := range cases {
		w := Week(c.ref, loc)
		if !w.Start.Equal(c.want) {
			t.Fatalf("Week(%v) 起点期望 %v, 实际 %v", c.ref, c.want, w.Start)
		}
		if !w.End.Equal(c.want.AddDate(0, 0, 7)) {
			t.Fatalf("周窗口长度应为 7 天: %v", w.End)
		}
	}
}

func TestFoldCountsAndFilters(t *testing.T) {
	w := Day(time.Date(2025, 3, 1, 12, 0, 0, 0, loc), loc)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, loc).UnixMilli()
	now := time.Now()

	events := []vessel.Event{
		{MMSI: "1", Type: vessel.EventArrivingSoon, Flag: "PA", DetectedAt: at},
		{MMSI: "1", Type: vessel.EventArrivingImminent, Flag: "PA", DetectedAt: at},
		{MMSI: "2", Type: vessel.EventArrivingUrgent, Flag: "SG", DetectedAt: at},
		// 国内旗不计入。
		{MMSI: "3", Type: vessel.EventArrivingSoon, Flag: "CN", DetectedAt: at},
		{MMSI: "4", Type: vessel.EventRiskLevelChange, Flag: "PA", DetectedAt: at},
		{MMSI: "4", Type: vessel.EventRiskLevelChange, Flag: "PA", DetectedAt: at},
		// 非到港非风险类型不计入。
		{MMSI: "5", Type: vessel.EventDraughtSpike, Flag: "PA", DetectedAt: at},
		// 窗口外不计入。
		{MMSI: "6", Type: vessel.EventArrivingSoon, Flag: "PA", DetectedAt: w.End.UnixMilli()},
	}

	row := Fold(events, w, now)
	if row.ArrivalEventCount != 3 {
		t.Fatalf("到港事件数期望 3, 实际 %d", row.ArrivalEventCount)
	}
	if row.ArrivalShipCount != 2 {
		t.Fatalf("到港船舶数期望 2, 实际 %d", row.ArrivalShipCount)
	}
	if row.RiskEventCount != 2 || row.RiskShipCount != 1 {
		t.Fatalf("风险计数不正确: %d/%d", row.RiskEventCount, row.RiskShipCount)
	}
	if row.Key() != "2025-03-01" {
		t.Fatalf("行键应为窗口起始日期: %s", row.Key())
	}
}

func TestFoldIdempotent(t *testing.T) {
	w := Day(time.Date(2025, 3, 1, 12, 0, 0, 0, loc), loc)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, loc).UnixMilli()
	now := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	events := []vessel.Event{
		{MMSI: "1", Type: vessel.EventArrivingSoon, Flag: "PA", DetectedAt: at},
		{MMSI: "2", Type: vessel.EventRiskLevelChange, Flag: "SG", DetectedAt: at},
	}

	a := Fold(events, w, now)
	b := Fold(events, w, now)
	if a != b {
		t.Fatalf("相同输入应得到相同结果: %+v vs %+v", a, b)
	}
}

func TestBuildArrivals(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	etaIn := func(d time.Duration) *float64 {
		v := float64(now.Add(d).Unix())
		return &v
	}

	s := vessel.Snapshot{
		PortCode: "CNSHA",
		Vessels: []vessel.Record{
			{MMSI: "1", Name: "EVER GIVEN", Flag: "PA", EtaTs: etaIn(-2 * time.Hour), PrevPortName: "Singapore"},
			// ETA 在未来, 尚未到港。
			{MMSI: "2", Flag: "PA", EtaTs: etaIn(3 * time.Hour)},
			// 超出回看窗口。
			{MMSI: "3", Flag: "PA", EtaTs: etaIn(-30 * time.Hour)},
			// 国内旗不计入。
			{MMSI: "4", Flag: "CN", EtaTs: etaIn(-2 * time.Hour)},
			// 无法解析 ETA。
			{MMSI: "5", Flag: "PA"},
		},
	}

	got := BuildArrivals(s, now, 24*time.Hour, time.UTC)
	if len(got) != 1 {
		t.Fatalf("仅 1 条应入选, 实际 %d: %+v", len(got), got)
	}
	r := got[0]
	if r.PortCode != "CNSHA" || r.MMSI != "1" || r.Name != "EVER GIVEN" || r.PrevPort != "Singapore" {
		t.Fatalf("到港记录字段不匹配: %+v", r)
	}
	if r.EtaMs != now.Add(-2*time.Hour).UnixMilli() {
		t.Fatalf("EtaMs 不匹配: %d", r.EtaMs)
	}
	if r.UpdatedAt != now.UnixMilli() {
		t.Fatalf("UpdatedAt 应为 now: %d", r.UpdatedAt)
	}
}
