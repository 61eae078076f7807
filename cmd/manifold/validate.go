package main

import (
	"fmt"

	"github.com/aretw0/manifold/internal/cli"
	"github.com/aretw0/manifold/internal/presentation/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the pipeline config and print its stage tree",
	Long:  `Loads the config, reports every stage without a command, and prints the tree that would be spawned.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		report, _ := cmd.Flags().GetBool("report")

		cfg, err := cli.LoadConfig(configPath)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !report {
			tui.NewTreePrinter(out).PrintConfig(cfg)
			fmt.Fprintln(out, "Pipeline is valid! ✅")
			return nil
		}

		md := tui.Report(cfg)
		width := 80
		if w, _, err := term.GetSize(0); err == nil && w > 0 {
			width = w
		}
		render, err := tui.NewRenderer(width)
		if err != nil {
			return err
		}
		rendered, err := render(md)
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("report", false, "Print a markdown report instead of the tree")
}
