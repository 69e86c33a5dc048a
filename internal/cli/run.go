package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Check the market once and notify on a threshold crossing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Check(cmd.Context())
	},
}
