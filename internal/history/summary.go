package history

import (
	"sort"
	"time"
)

type TargetSummary struct {
	Target     string
	Runs       int
	Passed     int
	AvgWrites  float64
	LastRun    time.Time
	LastPassed bool
}

// Summary aggregates run statistics across targets.
type Summary struct {
	Runs      int
	Passed    int
	Finished  int
	Aborted   int
	Failed    int
	PassRate  float64
	TimeRange TimeRange
	Targets   []TargetSummary
	Tools     []ToolCount
}

type TimeRange struct {
	Start time.Time
	End   time.Time
}

func Summarize(runs []RunStats, tools []ToolCount) *Summary {
	summary := &Summary{
		Runs:  len(runs),
		Tools: tools,
	}

	grouped := groupByTarget(runs)

	for _, run := range runs {
		if run.Passed {
			summary.Passed++
		}
		switch run.Phase {
		case "finished":
			summary.Finished++
		case "aborted":
			summary.Aborted++
		default:
			summary.Failed++
		}
		summary.TimeRange.extend(run.First, run.Last)
	}

	if summary.Runs > 0 {
		summary.PassRate = float64(summary.Passed) / float64(summary.Runs)
	}

	for target, targetRuns := range grouped {
		summary.Targets = append(summary.Targets, summarizeTarget(target, targetRuns))
	}

	sort.Slice(summary.Targets, func(i, j int) bool {
		if summary.Targets[i].Runs != summary.Targets[j].Runs {
			return summary.Targets[i].Runs > summary.Targets[j].Runs
		}
		return summary.Targets[i].Target < summary.Targets[j].Target
	})

	return summary
}

func groupByTarget(runs []RunStats) map[string][]RunStats {
	groups := make(map[string][]RunStats)

	for _, run := range runs {
		groups[run.Target] = append(groups[run.Target], run)
	}

	return groups
}

func summarizeTarget(target string, runs []RunStats) TargetSummary {
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].First.After(runs[j].First)
	})

	ts := TargetSummary{
		Target:     target,
		Runs:       len(runs),
		LastRun:    runs[0].First,
		LastPassed: runs[0].Passed,
	}

	writes := 0
	for _, run := range runs {
		if run.Passed {
			ts.Passed++
		}
		writes += run.Writes
	}
	ts.AvgWrites = float64(writes) / float64(len(runs))

	return ts
}

func (r *TimeRange) extend(first, last time.Time) {
	if !first.IsZero() && (r.Start.IsZero() || first.Before(r.Start)) {
		r.Start = first
	}
	if !last.IsZero() && last.After(r.End) {
		r.End = last
	}
}
