package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tasting version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tasting %s\n", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
