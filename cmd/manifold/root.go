package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/manifold/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "manifold -c pipeline.yaml",
	Short: "Manifold supervises a tree of piped processes",
	Long: `Manifold feeds the output of one producer (its own stdin, or a command) to
a tree of stages, respawns the stages that crash, and shuts the tree down
children first when the producer is done.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		mcpAddr, _ := cmd.Flags().GetString("mcp-addr")
		logLevel, _ := cmd.Flags().GetString("log-level")
		logFormat, _ := cmd.Flags().GetString("log-format")

		return cli.Execute(cmd.Context(), cli.RunOptions{
			ConfigPath:  configPath,
			MetricsAddr: metricsAddr,
			MCPAddr:     mcpAddr,
			LogLevel:    logLevel,
			LogFormat:   logFormat,
		})
	},
}

// Execute adds all child commands to the root command and exits with the pipeline's code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		code := cli.ExitUsage
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.Code
			if exitErr.Err == nil {
				os.Exit(code)
			}
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(code)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Pipeline config file (YAML or JSON)")

	rootCmd.Flags().String("metrics-addr", "", "Serve /metrics, /tree and control endpoints on this address (overrides metrics.addr)")
	rootCmd.Flags().String("mcp-addr", "", "Serve the MCP tools (get_tree, get_node, shutdown...) on this address (overrides mcp.addr)")
	rootCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error (overrides log.level)")
	rootCmd.Flags().String("log-format", "", "Log format: text or json (overrides log.format)")
}
