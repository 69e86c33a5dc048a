package cli

import (
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run checks on the configured schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Watch(cmd.Context())
	},
}
