// Package commands provides the CLI commands for Lodestar.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lodestar-ai/lodestar/internal/logging"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	logLevel string
	quietLog bool
)

var rootCmd = &cobra.Command{
	Use:   "lodestar",
	Short: "Lodestar - session engine for AI coding assistants",
	Long: `Lodestar runs agentic coding sessions: it keeps conversation
history, calls the configured model provider, executes tools under a
permission policy and snapshots the workspace before edits.

Run 'lodestar run' to send a prompt, or 'lodestar serve' to expose
the engine over HTTP.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := logging.DefaultConfig()
		cfg.Level = logging.ParseLevel(logLevel)
		if quietLog {
			cfg.Level = logging.ErrorLevel
		}
		logging.Init(cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVarP(&quietLog, "quiet", "q", false, "Only log errors")

	rootCmd.SetVersionTemplate(fmt.Sprintf("lodestar %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(modelsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// workingDir returns dir when set, the process working directory otherwise.
func workingDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
