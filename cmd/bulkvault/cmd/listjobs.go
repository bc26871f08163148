package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/datalift/bulkvault/internal/config"
)

var listJobsCmd = &cobra.Command{
	Use:   "list-jobs",
	Short: "List all jobs defined in configuration",
	Long: `List-jobs displays all export jobs defined in the configuration file
along with their basic settings.

Example:
  bulkvault list-jobs --config bulkvault.yaml`,
	RunE: runListJobs,
}

func init() {
	rootCmd.AddCommand(listJobsCmd)
}

func runListJobs(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	jobNames := cfg.ListJobs()
	if len(jobNames) == 0 {
		cmd.Printf("No jobs defined in %s\n", configFile)
		return nil
	}

	// Sort job names for consistent output
	sort.Strings(jobNames)

	cmd.Printf("Jobs defined in %s:\n\n", configFile)

	for i, jobName := range jobNames {
		job, err := cfg.GetJob(jobName)
		if err != nil {
			return fmt.Errorf("failed to get job %q: %w", jobName, err)
		}

		cmd.Printf("%d. %s\n", i+1, jobName)
		cmd.Printf("   Entities:        %s\n", strings.Join(job.Entities, ", "))

		if job.Where != "" {
			cmd.Printf("   WHERE:           %s\n", job.Where)
		} else {
			cmd.Printf("   WHERE:           (none)\n")
		}

		cmd.Printf("   Include Related: %v\n", job.IncludeRelated)
		if job.IncludeRelated {
			cmd.Printf("   Max Depth:       %d\n", job.MaxDepth)
			cmd.Printf("   Priority Only:   %v\n", job.PriorityOnly)
		}
		cmd.Printf("   Fetch Blobs:     %v\n", job.FetchBlobs)
		if job.RecordLimit > 0 {
			cmd.Printf("   Record Limit:    %d\n", job.RecordLimit)
		}

		if job.Processing != nil {
			cmd.Printf("   Processing:      Custom (poll_interval=%ds, max_poll_attempts=%d)\n",
				job.Processing.PollIntervalSeconds, job.Processing.MaxPollAttempts)
		}

		if i < len(jobNames)-1 {
			cmd.Println()
		}
	}

	cmd.Printf("\nTotal: %d job(s)\n", len(jobNames))
	return nil
}
