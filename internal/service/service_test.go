package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ais-diff-events/internal/config"
	"ais-diff-events/internal/diff"
	"ais-diff-events/internal/risk"
	"ais-diff-events/internal/storage/memory"
	"ais-diff-events/internal/vessel"
)

type fakeFeed struct {
	mu      sync.Mutex
	records []vessel.Record
	err     error
	calls   int

	started chan struct{}
	release chan struct{}
}

func (f *fakeFeed) FetchVessels(_ context.Context, _ string, _, _ int64) ([]vessel.Record, error) {
	f.mu.Lock()
	f.calls++
	records, err := f.records, f.err
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		close(started)
		<-release
	}
	return records, err
}

func (f *fakeFeed) set(records []vessel.Record, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
	f.err = err
}

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testConfig() *config.Config {
	return &config.Config{
		Port: config.PortConfig{
			Code:      "CNSHA",
			Timezone:  "UTC",
			Lookback:  24 * time.Hour,
			Lookahead: 72 * time.Hour,
		},
		Rules: config.RulesConfig{ArrivedWindow: 24 * time.Hour},
	}
}

func newTestService(feed *fakeFeed, store *memory.Store) *Service {
	cfg := testConfig()
	dcfg := diff.DefaultConfig()
	dcfg.Location = time.UTC
	engine := diff.New(dcfg, risk.New(risk.DefaultRules(), time.UTC), store, noopLogger())
	return New(cfg, nil, feed, store, engine, noopLogger())
}

func epochS(t time.Time) *float64 {
	v := float64(t.Unix())
	return &v
}

var tick1 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func TestProcessTickBaseline(t *testing.T) {
	store := memory.New()
	feed := &fakeFeed{}
	svc := newTestService(feed, store)
	ctx := context.Background()

	feed.set([]vessel.Record{
		// 外轮, ETA 已过 1h, 应进入到港投影。
		{MMSI: "1", Name: "MAERSK ESSEX", Flag: "DK", EtaTs: epochS(tick1.Add(-time.Hour)), LastUpdateTs: epochS(tick1.Add(-30 * time.Minute))},
		{MMSI: "2", Flag: "CN", LastUpdateTs: epochS(tick1.Add(-time.Hour))},
	}, nil)

	if err := svc.ProcessTick(ctx, tick1); err != nil {
		t.Fatalf("首轮不应报错: %v", err)
	}

	snap, err := store.GetLatestSnapshot(ctx, "CNSHA")
	if err != nil || snap == nil {
		t.Fatalf("首轮应写入快照: %v", err)
	}
	if snap.FetchedAt != tick1.UnixMilli() || len(snap.Vessels) != 2 {
		t.Fatalf("快照内容不正确: %+v", snap)
	}

	events, err := store.ListRecentEvents(ctx, 0)
	if err != nil {
		t.Fatalf("读取事件失败: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("首轮仅建立基线, 不应产生事件: %v", events)
	}

	if _, ok := store.Arrival("CNSHA", "1"); !ok {
		t.Fatal("外轮到港记录应被写入")
	}
	if _, ok := store.Arrival("CNSHA", "2"); ok {
		t.Fatal("国内旗不应进入到港投影")
	}

	row, ok := store.DailyAggregate("CNSHA", "2025-03-01")
	if !ok {
		t.Fatal("日汇总应被写入")
	}
	if row.ArrivalEventCount != 0 || row.RiskEventCount != 0 {
		t.Fatalf("基线汇总应为零: %+v", row)
	}
	if _, ok := store.WeeklyAggregate("CNSHA", "2025-02-24"); !ok {
		t.Fatal("周汇总应落在周一起始键上")
	}
}

func TestProcessTickDetectsEvents(t *testing.T) {
	store := memory.New()
	feed := &fakeFeed{}
	svc := newTestService(feed, store)
	ctx := context.Background()

	eta := tick1.Add(7 * time.Hour)
	rec := vessel.Record{MMSI: "3", Flag: "PA", EtaTs: epochS(eta), LastUpdateTs: epochS(tick1.Add(-time.Hour))}

	feed.set([]vessel.Record{rec}, nil)
	if err := svc.ProcessTick(ctx, tick1); err != nil {
		t.Fatalf("首轮不应报错: %v", err)
	}

	// 第二轮: 距 ETA 5.5h, 跨入 soon 窗口。
	tick2 := tick1.Add(90 * time.Minute)
	feed.set([]vessel.Record{rec}, nil)
	if err := svc.ProcessTick(ctx, tick2); err != nil {
		t.Fatalf("第二轮不应报错: %v", err)
	}

	events, err := store.ListRecentEvents(ctx, 0)
	if err != nil {
		t.Fatalf("读取事件失败: %v", err)
	}
	if len(events) != 1 || events[0].Type != vessel.EventArrivingSoon {
		t.Fatalf("期望 1 个 ARRIVING_SOON, 实际 %v", events)
	}

	row, ok := store.DailyAggregate("CNSHA", "2025-03-01")
	if !ok {
		t.Fatal("日汇总应被写入")
	}
	if row.ArrivalEventCount != 1 || row.ArrivalShipCount != 1 {
		t.Fatalf("日汇总计数不正确: %+v", row)
	}
	week, ok := store.WeeklyAggregate("CNSHA", "2025-02-24")
	if !ok || week.ArrivalEventCount != 1 {
		t.Fatalf("周汇总计数不正确: %+v", week)
	}
}

func TestProcessTickFetchFailureKeepsSnapshot(t *testing.T) {
	store := memory.New()
	feed := &fakeFeed{}
	svc := newTestService(feed, store)
	ctx := context.Background()

	feed.set([]vessel.Record{{MMSI: "4", Flag: "CN", LastUpdateTs: epochS(tick1)}}, nil)
	if err := svc.ProcessTick(ctx, tick1); err != nil {
		t.Fatalf("首轮不应报错: %v", err)
	}

	feed.set(nil, errors.New("upstream down"))
	if err := svc.ProcessTick(ctx, tick1.Add(30*time.Minute)); err == nil {
		t.Fatal("抓取失败应返回错误")
	}

	snap, err := store.GetLatestSnapshot(ctx, "CNSHA")
	if err != nil || snap == nil {
		t.Fatalf("读取快照失败: %v", err)
	}
	if snap.FetchedAt != tick1.UnixMilli() {
		t.Fatal("抓取失败不应写入新快照")
	}
}

func TestProcessTickOverlapGuard(t *testing.T) {
	store := memory.New()
	feed := &fakeFeed{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := newTestService(feed, store)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- svc.ProcessTick(ctx, tick1)
	}()

	<-feed.started
	// 上一轮仍在运行, 本轮应直接跳过。
	if err := svc.ProcessTick(ctx, tick1.Add(time.Minute)); err != nil {
		t.Fatalf("重叠 tick 应跳过而非报错: %v", err)
	}

	feed.mu.Lock()
	calls := feed.calls
	feed.mu.Unlock()
	if calls != 1 {
		t.Fatalf("重叠 tick 不应触发抓取, 调用次数 %d", calls)
	}

	close(feed.release)
	if err := <-done; err != nil {
		t.Fatalf("首轮不应报错: %v", err)
	}
}
