package main

import (
	"fmt"

	"github.com/aretw0/manifold/internal/cli"
	"github.com/aretw0/manifold/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the pipeline visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of the configured pipeline, or of a
running one when --addr points at its control endpoint.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr != "" {
			tree, err := cli.FetchTree(cmd.Context(), addr)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateTreeMermaid(tree))
			return nil
		}

		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := cli.LoadConfig(configPath)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(cfg))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("addr", "", "Control endpoint of a running manifold (host:port)")
}
