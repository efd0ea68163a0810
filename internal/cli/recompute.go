package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ais-diff-events/internal/app"
)

var (
	recomputeFrom string
	recomputeTo   string
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute daily/weekly aggregates from the stored event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		if recomputeFrom == "" || recomputeTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}

		from, err := time.Parse(time.RFC3339, recomputeFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}

		to, err := time.Parse(time.RFC3339, recomputeTo)
		if err != nil {
			return fmt.Errorf("invalid --to value: %w", err)
		}

		if !from.Before(to) {
			return fmt.Errorf("--from must be before --to")
		}

		opts := app.RecomputeOptions{
			From: from,
			To:   to,
		}

		return getApp().Recompute(cmd.Context(), opts)
	},
}

func init() {
	recomputeCmd.Flags().StringVar(&recomputeFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	recomputeCmd.Flags().StringVar(&recomputeTo, "to", "", "End timestamp (RFC3339, exclusive)")
}
