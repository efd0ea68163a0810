package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"ais-diff-events/internal/diff"
	"ais-diff-events/internal/vessel"
)

// SimulateDiff 读取两个快照 JSON 文件并离线执行一次对比，
// 仅打印结果，不写入任何存储。
func (a *App) SimulateDiff(ctx context.Context, opts SimulateOptions) error {
	prev, err := readSnapshotFile(opts.PrevPath)
	if err != nil {
		return fmt.Errorf("read previous snapshot: %w", err)
	}
	cur, err := readSnapshotFile(opts.CurPath)
	if err != nil {
		return fmt.Errorf("read current snapshot: %w", err)
	}

	now := time.Now().UTC()
	if cur.FetchedAt > 0 {
		now = time.UnixMilli(cur.FetchedAt).UTC()
	}

	var prevFetchedAt *int64
	if prev.FetchedAt > 0 {
		prevFetchedAt = &prev.FetchedAt
	}

	engine := a.newEngine(diff.NopIndex{})
	events, err := engine.Diff(ctx, prev, *cur, prevFetchedAt, now)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "no events detected")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "MMSI\tType\tFlag\tDetail")
	for _, ev := range events {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", ev.MMSI, ev.Type, ev.Flag, sanitizeInline(ev.Detail))
	}
	writer.Flush()
	return nil
}

func readSnapshotFile(path string) (*vessel.Snapshot, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap vessel.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &snap, nil
}
