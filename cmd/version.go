package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chaos-io/fitroom/version"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.VERSION)
	},
}
