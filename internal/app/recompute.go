package app

import (
	"context"
	"errors"

	"ais-diff-events/internal/service"
)

// Recompute re-derives daily and weekly aggregates for a historical date
// range from the stored event log. Aggregates are a pure function of the
// events in their window, so re-running over the same range is harmless.
func (a *App) Recompute(ctx context.Context, opts RecomputeOptions) error {
	loc := a.Config.Port.Location()
	start := opts.From.In(loc)
	end := opts.To.In(loc)
	if !start.Before(end) {
		return errors.New("重算范围为空，请检查 --from/--to")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := service.New(a.Config, nil, nil, store, nil, a.Logger)

	processed := 0
	failed := 0
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := svc.RecomputeAggregates(ctx, day); err != nil {
			failed++
			a.Logger.Error().Err(err).Time("day", day).Msg("重算失败")
			continue
		}
		processed++
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("重算完成")
	if failed > 0 {
		return errors.New("部分窗口重算失败，请检查日志")
	}
	return nil
}
