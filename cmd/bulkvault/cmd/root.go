package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile     string
	logLevel    string
	logFormat   string
	maxDepth    int
	recordLimit int
	noProgress  bool
)

var rootCmd = &cobra.Command{
	Use:   "bulkvault",
	Short: "Bulk export driver for remote tabular data",
	Long: `A CLI tool for exporting entity data from a remote bulk-query API
into local CSV files or a relational database.

Features:
  - Asynchronous bulk-query jobs with cursor-based chunked download
  - Relationship-aware traversal of dependent entity types
  - Automatic large-binary content fetching
  - Pool-shutdown fault recovery with versioned reconnects`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "bulkvault.yaml",
		"Path to configuration file")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	rootCmd.PersistentFlags().IntVar(&maxDepth, "max-depth", 0,
		"Override relationship traversal depth (1-3)")
	rootCmd.PersistentFlags().IntVar(&recordLimit, "record-limit", 0,
		"Override per-entity record limit")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false,
		"Disable terminal progress output")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel    string
	LogFormat   string
	MaxDepth    int
	RecordLimit int
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:    logLevel,
		LogFormat:   logFormat,
		MaxDepth:    maxDepth,
		RecordLimit: recordLimit,
	}
}
