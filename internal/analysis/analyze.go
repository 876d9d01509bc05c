package analysis

import (
	"sort"
	"strings"
	"time"

	"github.com/snowops/discovery-agent/internal/discovery"
)

// RunAnalysis summarizes one scan run and its log entries.
type RunAnalysis struct {
	RunID       string             `json:"run_id"`
	Name        string             `json:"name"`
	State       discovery.RunState `json:"state"`
	CICount     int                `json:"ci_count"`
	ErrorCount  int                `json:"error_count"`
	ErrorRate   float64            `json:"error_rate"`
	Breakdown   map[Category]int   `json:"breakdown"`
	Duration    time.Duration      `json:"duration_seconds"`
	LevelCounts map[string]int     `json:"level_counts"`
}

// Analyze computes the summary for a single run. ErrorRate divides errors
// by max(ci+errors, 1) so a run with no CIs and no errors reports 0, not a
// division failure.
func Analyze(run discovery.Run, entries []discovery.LogEntry) RunAnalysis {
	levelCounts := make(map[string]int)
	errorCount := 0
	for _, entry := range entries {
		level := strings.ToLower(entry.Level)
		if level == "" {
			level = "unknown"
		}
		levelCounts[level]++
		if entry.IsError() {
			errorCount++
		}
	}

	denominator := run.CICount + errorCount
	if denominator < 1 {
		denominator = 1
	}

	return RunAnalysis{
		RunID:       run.SysID,
		Name:        run.Name,
		State:       run.State,
		CICount:     run.CICount,
		ErrorCount:  errorCount,
		ErrorRate:   float64(errorCount) / float64(denominator),
		Breakdown:   CategoryCounts(entries),
		Duration:    run.Duration(),
		LevelCounts: levelCounts,
	}
}

// Trend direction labels.
const (
	TrendImproving        = "improving"
	TrendDegrading        = "degrading"
	TrendStable           = "stable"
	TrendInsufficientData = "insufficient_data"
)

// RunSummary is one run inside a trend report.
type RunSummary struct {
	SysID    string             `json:"sys_id"`
	Name     string             `json:"name"`
	State    discovery.RunState `json:"state"`
	CICount  int                `json:"ci_count"`
	CIDelta  int                `json:"ci_delta"`
	Started  time.Time          `json:"started"`
	Duration time.Duration      `json:"duration_seconds"`
}

// TrendReport describes how scans developed over a window of runs.
type TrendReport struct {
	ScanCount          int          `json:"scan_count"`
	TotalCIs           int          `json:"total_cis_discovered"`
	Completed          int          `json:"completed"`
	Errors             int          `json:"errors"`
	SuccessRatePercent float64      `json:"success_rate_percent"`
	AvgDurationSeconds float64      `json:"avg_duration_seconds"`
	Direction          string       `json:"trend_direction"`
	Runs               []RunSummary `json:"scans"`
}

// Trend computes a trend report. Runs are ordered ascending by start time
// with ties broken by sys_id, so the report is deterministic regardless of
// input order. Fewer than two runs yields insufficient_data.
func Trend(runs []discovery.Run) TrendReport {
	ordered := make([]discovery.Run, len(runs))
	copy(ordered, runs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Started.Equal(ordered[j].Started) {
			return ordered[i].Started.Before(ordered[j].Started)
		}
		return ordered[i].SysID < ordered[j].SysID
	})

	report := TrendReport{
		ScanCount: len(ordered),
		Direction: TrendInsufficientData,
	}

	var durations []float64
	for i, run := range ordered {
		report.TotalCIs += run.CICount
		switch run.State {
		case discovery.RunStateComplete:
			report.Completed++
		case discovery.RunStateError:
			report.Errors++
		}
		if d := run.Duration(); d > 0 {
			durations = append(durations, d.Seconds())
		}

		summary := RunSummary{
			SysID:    run.SysID,
			Name:     run.Name,
			State:    run.State,
			CICount:  run.CICount,
			Started:  run.Started,
			Duration: run.Duration(),
		}
		if i > 0 {
			summary.CIDelta = run.CICount - ordered[i-1].CICount
		}
		report.Runs = append(report.Runs, summary)
	}

	if len(ordered) > 0 {
		report.SuccessRatePercent = float64(report.Completed) / float64(len(ordered)) * 100
	}
	if len(durations) > 0 {
		var sum float64
		for _, d := range durations {
			sum += d
		}
		report.AvgDurationSeconds = sum / float64(len(durations))
	}

	if len(ordered) >= 2 {
		report.Direction = trendDirection(ordered)
	}
	return report
}

// trendDirection compares average CI counts between the older and newer
// halves of the window, with a 10% dead band to call it stable.
func trendDirection(ordered []discovery.Run) string {
	mid := len(ordered) / 2
	older := ordered[:mid]
	newer := ordered[mid:]

	avgOlder := avgCICount(older)
	avgNewer := avgCICount(newer)

	switch {
	case avgNewer > avgOlder*1.1:
		return TrendImproving
	case avgNewer < avgOlder*0.9:
		return TrendDegrading
	default:
		return TrendStable
	}
}

func avgCICount(runs []discovery.Run) float64 {
	if len(runs) == 0 {
		return 0
	}
	total := 0
	for _, run := range runs {
		total += run.CICount
	}
	return float64(total) / float64(len(runs))
}

// CoverageReport relates scanned targets to the expected total.
type CoverageReport struct {
	Scanned  int     `json:"scanned"`
	Expected int     `json:"expected"`
	Percent  float64 `json:"percent"`
	Complete bool    `json:"complete"`
}

// Coverage computes the scanned-vs-expected percentage, clamped to
// [0, 100]. Zero expected targets means there was nothing to miss, which
// reports as 100% rather than poisoning downstream averages with a
// division artifact.
func Coverage(scanned, expected int) CoverageReport {
	report := CoverageReport{Scanned: scanned, Expected: expected}
	if expected <= 0 {
		report.Percent = 100
		report.Complete = true
		return report
	}

	percent := float64(scanned) / float64(expected) * 100
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	report.Percent = percent
	report.Complete = percent >= 100
	return report
}
