package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"morpho-rate-alerts/internal/alerting"
	"morpho-rate-alerts/internal/app"
)

var (
	simulateAPY         float64
	simulateUtilization float64
	simulateDirection   string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "发送一条模拟告警以验证通知通道",
	RunE: func(cmd *cobra.Command, args []string) error {
		direction := alerting.Direction(simulateDirection)
		switch direction {
		case alerting.DirectionNone, alerting.DirectionAbove, alerting.DirectionBelow:
		default:
			return fmt.Errorf("--direction must be %q or %q", alerting.DirectionAbove, alerting.DirectionBelow)
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			BorrowAPY:   simulateAPY,
			Utilization: simulateUtilization,
			Direction:   direction,
		})
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateAPY, "apy", 0.08, "Borrow APY as a fraction")
	simulateCmd.Flags().Float64Var(&simulateUtilization, "utilization", 0.9, "Utilization as a fraction")
	simulateCmd.Flags().StringVar(&simulateDirection, "direction", "", "above or below (derived from --apy when empty)")
}
