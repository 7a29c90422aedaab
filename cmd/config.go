package main

import (
	"github.com/spf13/cobra"

	"github.com/cwbudde/odts/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Prints the configuration after applying defaults, the --config file and
ODTS_* environment variables (e.g. ODTS_SOLVER_MAX_ITERATIONS=100).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.Dump(cmd.OutOrStdout(), settings)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
