package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"ais-diff-events/internal/app"
)

var (
	simulatePrev string
	simulateCur  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-diff",
	Short: "对比两个快照 JSON 文件并打印检测到的事件",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrev == "" || simulateCur == "" {
			return errors.New("--prev 与 --cur 必须提供")
		}

		opts := app.SimulateOptions{
			PrevPath: simulatePrev,
			CurPath:  simulateCur,
		}

		return getApp().SimulateDiff(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePrev, "prev", "", "上一轮快照 JSON 文件")
	simulateCmd.Flags().StringVar(&simulateCur, "cur", "", "当前快照 JSON 文件")
}
