package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"morpho-rate-alerts/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	// version must work without any configuration present
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), version.String())
	},
}
