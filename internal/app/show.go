package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent detected events.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	events, err := store.ListRecentEvents(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "no events found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Detected (UTC)\tMMSI\tType\tFlag\tDetail")

	for _, ev := range events {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			time.UnixMilli(ev.DetectedAt).UTC().Format(time.RFC3339),
			ev.MMSI,
			ev.Type,
			ev.Flag,
			sanitizeInline(ev.Detail),
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
