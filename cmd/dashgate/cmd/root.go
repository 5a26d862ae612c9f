// Package cmd provides the CLI commands for DashGate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dash-gate/dashgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dashgate",
	Short: "DashGate - access-controlled MCP server for Grafana",
	Long: `DashGate exposes Grafana dashboard operations as MCP tools behind a
tag-based access policy and a folder boundary. Dashboards outside the
policy are invisible to the connected agent, reads and writes alike.

Quick start:
  1. Create a config file: dashgate.yaml
  2. Run: dashgate serve

Configuration:
  Config is loaded from dashgate.yaml in the current directory,
  $HOME/.dashgate/, or /etc/dashgate/.

  Environment variables can override config values with the DASHGATE_ prefix.
  Example: DASHGATE_SERVER_LOG_LEVEL=debug`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./dashgate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
