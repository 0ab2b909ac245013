package cli

import (
	"runtime"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the saira version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printf(cmd.OutOrStdout(), "saira %s (%s, %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
