package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datalift/bulkvault/internal/bulk"
	"github.com/datalift/bulkvault/internal/config"
	"github.com/datalift/bulkvault/internal/logger"
	"github.com/datalift/bulkvault/internal/transport"
)

var validateRemote bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and optionally check remote access",
	Long: `Validate checks the configuration file for syntax errors, missing
required fields and inconsistent settings. With --remote, it also verifies
that the remote endpoint accepts the configured credentials by describing the
first configured entity.

Example:
  bulkvault validate --config bulkvault.yaml --remote`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateRemote, "remote", false,
		"Also verify remote endpoint access")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	cmd.Printf("Configuration OK: %s\n", configFile)
	cmd.Printf("  Remote:  %s (API v%s)\n", cfg.Remote.BaseURL, cfg.Remote.APIVersion)
	cmd.Printf("  Output:  %s sink, folder %s\n", cfg.Output.Sink, cfg.Output.Folder)
	cmd.Printf("  Jobs:    %d\n", len(cfg.Jobs))

	if !validateRemote {
		return nil
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	tm := transport.NewManager(cfg.Remote, log)
	defer tm.Close()
	client := bulk.NewClient(cfg.Remote, cfg.Processing, tm, log)

	entity := firstEntity(cfg)
	if entity == "" {
		return fmt.Errorf("no entities configured, cannot verify remote access")
	}

	desc, err := client.Describe(context.Background(), entity)
	if err != nil {
		return fmt.Errorf("remote check failed: %w", err)
	}

	cmd.Printf("Remote OK: described %s (%d fields, %d child relationships)\n",
		entity, len(desc.Fields), len(desc.ChildRelationships))
	return nil
}

func firstEntity(cfg *config.Config) string {
	for _, name := range cfg.ListJobs() {
		job, err := cfg.GetJob(name)
		if err != nil {
			continue
		}
		if len(job.Entities) > 0 {
			return job.Entities[0]
		}
	}
	return ""
}
