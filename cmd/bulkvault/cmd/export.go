package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datalift/bulkvault/internal/config"
	"github.com/datalift/bulkvault/internal/exporter"
	"github.com/datalift/bulkvault/internal/lock"
	"github.com/datalift/bulkvault/internal/logger"
	"github.com/datalift/bulkvault/internal/sink"
)

var exportJob string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run an export job against the remote bulk-query API",
	Long: `Export submits one bulk-query job per configured entity, waits for
completion, downloads the chunked results and stores them in the configured
sink. With include_related enabled, records of dependent entity types are
exported as well, following discovered relationships down to max_depth.

Example:
  bulkvault export --config bulkvault.yaml --job nightly_backup`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportJob, "job", "j", "",
		"Job name from configuration file (required)")
	exportCmd.MarkFlagRequired("job")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat,
		overrides.MaxDepth, overrides.RecordLimit)

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Infow("Starting export",
		"job", exportJob,
		"config", configFile,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := sink.New(ctx, cfg.Output, log)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}
	defer store.Close()

	svc, err := exporter.NewService(cfg, exportJob, store, log)
	if err != nil {
		return fmt.Errorf("failed to create export service: %w", err)
	}
	defer svc.Close()

	if !noProgress {
		svc.EnableProgress()
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Warn("Received shutdown signal - stopping after current chunk...")
		cancel()
	}()

	result, err := svc.Execute(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Export cancelled by user")
			return nil
		}
		if errors.Is(err, lock.ErrAlreadyLocked) {
			return fmt.Errorf("output directory is in use by another run: %w", err)
		}
		return fmt.Errorf("export failed: %w", err)
	}

	cmd.Printf("\n=== Export Complete ===\n")
	cmd.Printf("Job: %s\n", result.JobName)
	cmd.Printf("Session: %s\n", result.SessionID)
	cmd.Printf("Duration: %s\n", result.Duration)
	cmd.Printf("Entities Exported: %d\n", result.Stats.EntitiesExported)
	cmd.Printf("Entities Skipped: %d\n", result.Stats.EntitiesSkipped)
	cmd.Printf("Records Exported: %d\n", result.Stats.RecordsExported)
	cmd.Printf("Related Tasks: %d\n", result.Stats.RelatedTasksRun)
	if result.Stats.BlobsDownloaded+result.Stats.BlobsSkipped+result.Stats.BlobsFailed > 0 {
		cmd.Printf("Blobs: %d downloaded, %d skipped, %d failed\n",
			result.Stats.BlobsDownloaded, result.Stats.BlobsSkipped, result.Stats.BlobsFailed)
	}
	cmd.Printf("Success: %v\n", result.Success)

	if len(result.Errors) > 0 {
		cmd.Printf("\nErrors:\n")
		for _, e := range result.Errors {
			cmd.Printf("  - %v\n", e)
		}
		return fmt.Errorf("export completed with errors")
	}

	return nil
}
