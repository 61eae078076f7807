package main

import (
	"github.com/aretw0/manifold/internal/cli"
	"github.com/aretw0/manifold/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect ADDR",
	Short: "Show the live process tree of a running manifold",
	Long:  `Fetches /tree from the control endpoint of a running manifold and prints pids, states and restart counts.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := cli.FetchTree(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		tui.NewTreePrinter(cmd.OutOrStdout()).PrintTree(tree)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
