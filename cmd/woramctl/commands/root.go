// Package commands implements the CLI commands for inspecting and
// exercising configured WORAM stacks.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/woram/internal/logger"
	"github.com/marmos91/woram/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "woramctl",
	Short: "woramctl - assemble and exercise write-only ORAM stacks",
	Long: `woramctl assembles a write-only ORAM stack from a configuration file
and lets you inspect its geometry or run a quick synthetic workload
against it. The stack hides its write access pattern from anyone
observing the backing store; woramctl exists to check that a given
configuration actually fits together before exporting it as a device.

Use "woramctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(benchCmd)
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// loadConfig loads the configuration from the --config flag (or the
// defaults) and applies its logging section.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}
