package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"ais-diff-events/internal/vessel"
)

// Export renders the daily aggregate series as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.AddDate(0, 0, -opts.MaxPoints)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	rows, err := store.ListDailyAggregates(ctx, a.Config.Port.Code, from, to)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.Logger.Info().Msg("no aggregates found for export window")
		return nil
	}

	downsampled := downsampleRows(rows, opts.MaxPoints)
	a.Logger.Info().Int("total", len(rows)).Int("exported", len(downsampled)).Msg("exporting daily aggregates")

	if opts.CSVPath != "" {
		if err := writeAggregatesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeAggregatesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRows(rows []vessel.AggregateRow, max int) []vessel.AggregateRow {
	if max <= 0 || len(rows) <= max {
		return rows
	}

	result := make([]vessel.AggregateRow, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

func writeAggregatesCSV(path string, rows []vessel.AggregateRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"day", "arrival_event_count", "arrival_ship_count", "risk_event_count", "risk_ship_count", "updated_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.Key(),
			strconv.Itoa(row.ArrivalEventCount),
			strconv.Itoa(row.ArrivalShipCount),
			strconv.Itoa(row.RiskEventCount),
			strconv.Itoa(row.RiskShipCount),
			row.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeAggregatesPNG(path string, rows []vessel.AggregateRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(rows))
	arrivalEvents := make([]float64, len(rows))
	arrivalShips := make([]float64, len(rows))
	riskEvents := make([]float64, len(rows))

	for i, row := range rows {
		x[i] = row.WindowStart
		arrivalEvents[i] = float64(row.ArrivalEventCount)
		arrivalShips[i] = float64(row.ArrivalShipCount)
		riskEvents[i] = float64(row.RiskEventCount)
	}

	countFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Events / Ships",
			ValueFormatter: countFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Arrival events",
				XValues: x,
				YValues: arrivalEvents,
			},
			chart.TimeSeries{
				Name:    "Arrived ships",
				XValues: x,
				YValues: arrivalShips,
			},
			chart.TimeSeries{
				Name:    "Risk changes",
				XValues: x,
				YValues: riskEvents,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
