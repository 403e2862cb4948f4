package cli

import (
	"github.com/spf13/cobra"

	"github.com/lakeforge-io/lakeforge/internal/logging"
)

var (
	configPath string
	statePath  string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "lakeforge",
	Short: "Declarative AWS data lake provisioning",
	Long: `Lakeforge converges an AWS data lake toward a declared configuration.

It reconciles the lake bucket, Glue catalog, streaming ingest, query
workgroup, private networking, and Lake Formation governance from a
single TOML file, re-running safely until everything matches.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel)
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "datalake.toml", "Path to the lake configuration file")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", ".lakeforge/state.json", "Path to the deployment state file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}
