package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/glitch.report/internal/config"
	"github.com/banshee-data/glitch.report/internal/monitoring"
	"github.com/banshee-data/glitch.report/internal/version"
)

var (
	// Global flags
	logLevel string
	dbPath   string

	environ config.Environment
)

var rootCmd = &cobra.Command{
	Use:   "glitchctl",
	Short: "Fault-injection campaign controller",
	Long: `Drive a capture scope and a target board through a sweep of glitch
settings, classify every trial and store the results for reporting.

Settings left off the command line are read from GLITCH_* environment
variables.

Examples:
  glitchctl devices                                   # List scopes and serial ports
  glitchctl run --config config/campaign.example.json --simulate
  glitchctl campaigns                                 # List stored campaigns
  glitchctl report <id> --html report.html            # Render a stored campaign`,
	Version:           version.String(),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); default $GLITCH_LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "campaign database path; default $GLITCH_DB_PATH")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	if environ, err = config.LoadEnvironment(); err != nil {
		return err
	}
	if logLevel == "" {
		logLevel = environ.LogLevel
	}
	if dbPath == "" {
		dbPath = environ.DBPath
	}
	if _, err := monitoring.UseLogrus(logLevel); err != nil {
		return err
	}
	return nil
}
