package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strrl/statement-agent/internal/db"
	"github.com/strrl/statement-agent/internal/history"
	"github.com/strrl/statement-agent/internal/report"
)

var (
	runsTarget   string
	runsDir      string
	runsMarkdown bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Summarize past agent runs",
	Long: `Query the JSONL run logs and print per-run statistics and per-tool call
counts. Use --markdown for a report suitable for pasting into an issue.`,
	RunE: runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().StringVarP(&runsTarget, "target", "t", "", "Only show runs for this target")
	runsCmd.Flags().StringVar(&runsDir, "runs-dir", "", "Directory holding run logs")
	runsCmd.Flags().BoolVar(&runsMarkdown, "markdown", false, "Print a markdown report")
}

func runRuns(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("runs-dir") {
		cfg.RunsDir = runsDir
	}
	if cfg.RunsDir == "" {
		return fmt.Errorf("runs directory is not configured")
	}

	conn, err := db.GetDB()
	if err != nil {
		return fmt.Errorf("failed to get database: %w", err)
	}

	store := history.NewStore(conn, cfg.RunsDir)

	runs, err := store.ListRuns(cmd.Context(), runsTarget)
	if err != nil {
		return err
	}

	tools, err := store.ToolStats(cmd.Context(), runsTarget)
	if err != nil {
		return err
	}

	summary := history.Summarize(runs, tools)

	if runsMarkdown {
		fmt.Print(report.RenderHistory(summary, runs))
		return nil
	}

	if summary.Runs == 0 {
		fmt.Printf("No runs found in %s\n", cfg.RunsDir)
		return nil
	}

	fmt.Printf("Found %d runs from %s to %s\n", summary.Runs,
		summary.TimeRange.Start.Format("2006-01-02"), summary.TimeRange.End.Format("2006-01-02"))
	fmt.Printf("  - %d passed (%.0f%%)\n", summary.Passed, summary.PassRate*100)
	fmt.Printf("  - %d finished\n", summary.Finished)
	fmt.Printf("  - %d aborted at the iteration limit\n", summary.Aborted)
	fmt.Printf("  - %d ended with an error\n", summary.Failed)

	fmt.Println("\nRuns:")
	for _, r := range runs {
		result := "failed"
		if r.Passed {
			result = "passed"
		}
		fmt.Printf("  %s  %-12s %s  messages=%d writes=%d tests=%d  %s\n",
			r.RunID, r.Target, r.First.Format("2006-01-02 15:04"), r.Messages, r.Writes, r.Tests, result)
	}

	if len(tools) > 0 {
		fmt.Println("\nTool calls:")
		for _, tc := range tools {
			fmt.Printf("  - %s: %d\n", tc.Tool, tc.Calls)
		}
	}

	return nil
}
