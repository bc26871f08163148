package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/datalift/bulkvault/internal/bulk"
	"github.com/datalift/bulkvault/internal/config"
	"github.com/datalift/bulkvault/internal/logger"
	"github.com/datalift/bulkvault/internal/relationship"
	"github.com/datalift/bulkvault/internal/transport"
)

var planJob string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the dependency tree an export job would traverse",
	Long: `Plan queries the remote schema and displays, for each root entity of
the job, the tree of child entity types the export would visit. Priority
entities (which are expanded recursively) are highlighted.

No export jobs are submitted; only schema descriptions are fetched.

Example:
  bulkvault plan --config bulkvault.yaml --job nightly_backup`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planJob, "job", "j", "",
		"Job name from configuration file (required)")
	planCmd.MarkFlagRequired("job")

	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat,
		overrides.MaxDepth, overrides.RecordLimit)

	jobCfg, err := cfg.GetJob(planJob)
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
	analyzer := relationship.NewAnalyzer(client, log)

	depth := jobCfg.MaxDepth
	if depth < 1 {
		depth = 1
	}

	printHeader(cmd, "Traversal Plan: %s", planJob)
	cmd.Println()
	cmd.Printf("Include Related: %v\n", jobCfg.IncludeRelated)
	cmd.Printf("Max Depth:       %d\n", depth)
	cmd.Printf("Priority Only:   %v\n", jobCfg.PriorityOnly)
	cmd.Println()

	ctx := context.Background()
	totalNodes := 0
	for _, entity := range jobCfg.Entities {
		if bulk.IsKnownUnsupported(entity) {
			cmd.Printf("%s  (skipped: not supported by the bulk protocol)\n\n", entity)
			continue
		}

		tree, err := analyzer.BuildTree(ctx, entity, depth)
		if err != nil {
			return fmt.Errorf("failed to build tree for %s: %w", entity, err)
		}
		cmd.Print(tree.Render())
		cmd.Println()
		totalNodes += tree.CountNodes()
	}

	cmd.Printf("Total: %d entity type(s) across %d root(s)\n", totalNodes, len(jobCfg.Entities))
	return nil
}

// printHeader prints a formatted header
func printHeader(cmd *cobra.Command, format string, args ...interface{}) {
	title := fmt.Sprintf(format, args...)
	width := len(title) + 4
	cmd.Println(strings.Repeat("=", width))
	cmd.Printf("  %s\n", title)
	cmd.Println(strings.Repeat("=", width))
}
