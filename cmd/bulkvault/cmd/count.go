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

var countJob string

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Show remote record counts for a job's entities",
	Long: `Count runs a count-only query for each root entity of the job and
prints the number of records the remote holds. Useful for estimating export
size before running.

Example:
  bulkvault count --config bulkvault.yaml --job nightly_backup`,
	RunE: runCount,
}

func init() {
	countCmd.Flags().StringVarP(&countJob, "job", "j", "",
		"Job name from configuration file (required)")
	countCmd.MarkFlagRequired("job")

	rootCmd.AddCommand(countCmd)
}

func runCount(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	jobCfg, err := cfg.GetJob(countJob)
	if err != nil {
		return err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	tm := transport.NewManager(cfg.Remote, log)
	defer tm.Close()
	client := bulk.NewClient(cfg.Remote, jobCfg.GetJobProcessing(cfg.Processing), tm, log)

	ctx := context.Background()
	var total int64
	for _, entity := range jobCfg.Entities {
		n, err := client.RecordCount(ctx, entity)
		if err != nil {
			return fmt.Errorf("failed to count %s: %w", entity, err)
		}
		cmd.Printf("%-40s %12d\n", entity, n)
		total += n
	}
	cmd.Printf("%-40s %12d\n", "Total", total)
	return nil
}
