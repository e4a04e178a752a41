package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/strrl/statement-agent/internal/agent"
	"github.com/strrl/statement-agent/internal/codegen"
	"github.com/strrl/statement-agent/internal/history"
)

type Generator struct {
	outputDir string
}

const maxTestLines = 40

func NewGenerator(outputDir string) *Generator {
	return &Generator{
		outputDir: outputDir,
	}
}

// Path returns where the report for target is written.
func (g *Generator) Path(target string) string {
	return filepath.Join(g.outputDir, codegen.SanitizeTarget(target)+"_report.md")
}

func (g *Generator) GenerateRun(outcome *agent.Outcome, runID string) (string, error) {
	if err := os.MkdirAll(g.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", g.outputDir, err)
	}

	filename := g.Path(outcome.Target)
	if err := os.WriteFile(filename, []byte(RenderRun(outcome, runID)), 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return filename, nil
}

func RenderRun(outcome *agent.Outcome, runID string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Parser run: %s\n\n", outcome.Target))
	if runID != "" {
		sb.WriteString(fmt.Sprintf("**Run:** %s\n", runID))
	}
	sb.WriteString(fmt.Sprintf("**Outcome:** %s\n", outcomeLabel(outcome)))
	sb.WriteString(fmt.Sprintf("**Iterations:** %d\n", outcome.Iterations))
	sb.WriteString(fmt.Sprintf("**Write attempts:** %d\n", outcome.Attempts))
	sb.WriteString(fmt.Sprintf("**Tokens:** %d in / %d out\n", outcome.Usage.InputTokens, outcome.Usage.OutputTokens))
	if outcome.Error != "" {
		sb.WriteString(fmt.Sprintf("**Error:** %s\n", truncate(outcome.Error, 200)))
	}
	sb.WriteString("\n")

	sb.WriteString("## Final test\n\n")
	if outcome.FinalTest == nil {
		sb.WriteString("No final test was run.\n\n")
	} else {
		sb.WriteString("```\n")
		sb.WriteString(limitLines(outcome.FinalTest.Message, maxTestLines))
		sb.WriteString("\n```\n\n")
	}

	sb.WriteString("## Tool calls\n\n")
	if len(outcome.ToolCalls) == 0 {
		sb.WriteString("None.\n")
		return sb.String()
	}

	names := make([]string, 0, len(outcome.ToolCalls))
	for name := range outcome.ToolCalls {
		names = append(names, name)
	}
	sort.Strings(names)

	sb.WriteString("| Tool | Calls |\n|---|---|\n")
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("| %s | %d |\n", name, outcome.ToolCalls[name]))
	}

	return sb.String()
}

// RenderHistory renders the aggregated run history.
func RenderHistory(summary *history.Summary, runs []history.RunStats) string {
	var sb strings.Builder
	sb.WriteString("# Parser runs\n\n")

	if summary.Runs == 0 {
		sb.WriteString("No runs recorded.\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("**Runs:** %d (%d passed, %.0f%%)\n", summary.Runs, summary.Passed, summary.PassRate*100))
	sb.WriteString(fmt.Sprintf("**Finished:** %d, **Aborted:** %d, **Errored:** %d\n", summary.Finished, summary.Aborted, summary.Failed))
	if !summary.TimeRange.Start.IsZero() {
		sb.WriteString(fmt.Sprintf("**Period:** %s to %s\n",
			summary.TimeRange.Start.Format("2006-01-02"), summary.TimeRange.End.Format("2006-01-02")))
	}
	sb.WriteString("\n")

	sb.WriteString("## Targets\n\n")
	sb.WriteString("| Target | Runs | Passed | Avg writes | Last run | Last result |\n|---|---|---|---|---|---|\n")
	for _, t := range summary.Targets {
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %.1f | %s | %s |\n",
			t.Target, t.Runs, t.Passed, t.AvgWrites, formatTime(t.LastRun), passLabel(t.LastPassed)))
	}
	sb.WriteString("\n")

	if len(summary.Tools) > 0 {
		sb.WriteString("## Tools\n\n")
		sb.WriteString("| Tool | Calls |\n|---|---|\n")
		for _, tc := range summary.Tools {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", tc.Tool, tc.Calls))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Runs\n\n")
	sb.WriteString("| Run | Target | Started | Messages | Writes | Tests | Phase | Result |\n|---|---|---|---|---|---|---|---|\n")
	for _, r := range runs {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %d | %d | %s | %s |\n",
			r.RunID, r.Target, formatTime(r.First), r.Messages, r.Writes, r.Tests,
			emptyFallback(r.Phase, "error"), passLabel(r.Passed)))
	}

	return sb.String()
}

func outcomeLabel(outcome *agent.Outcome) string {
	switch {
	case outcome.Error != "":
		return "error"
	case outcome.Phase == agent.PhaseAborted:
		return "aborted (iteration limit)"
	case outcome.Passed():
		return "passed"
	default:
		return "failed"
	}
}

func passLabel(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

func emptyFallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func limitLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-n)
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
