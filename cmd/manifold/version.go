package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/manifold"
	"github.com/aretw0/manifold/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of manifold",
	Run: func(cmd *cobra.Command, args []string) {
		short, _ := cmd.Flags().GetBool("short")
		if short {
			fmt.Fprintf(cmd.OutOrStdout(), "manifold version %s\n", strings.TrimSpace(manifold.Version))
			return
		}
		tui.PrintBanner(cmd.OutOrStdout(), strings.TrimSpace(manifold.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("short", false, "Print only the version line")
}
