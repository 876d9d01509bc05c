// Package health computes a composite 0-100 health score for the
// discovery subsystem from scan runs, schedules, credentials and ranges.
// Pure computation; the tool layer fetches the inputs.
package health

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/snowops/discovery-agent/internal/discovery"
)

// Sub-metric weights. Fixed constants summing to 1.0; scan outcomes carry
// double the weight of each configuration dimension.
const (
	WeightScan       = 0.4
	WeightSchedule   = 0.2
	WeightCredential = 0.2
	WeightRange      = 0.2
)

// NeutralScore is the sub-score used when a dimension has no data: an
// empty instance is moderate, not failing. With zero runs and every
// configuration dimension empty this yields a composite of 50.
const NeutralScore = 0.5

// Status labels by composite score.
const (
	StatusHealthy  = "healthy"  // >= 80
	StatusWarning  = "warning"  // >= 50
	StatusCritical = "critical" // < 50
)

// SubScores are the weighted components, each in [0, 1].
type SubScores struct {
	Scan       float64 `json:"scan"`
	Schedule   float64 `json:"schedule"`
	Credential float64 `json:"credential"`
	Range      float64 `json:"range"`
}

// ErrorCount is one grouped error message with its occurrence count.
type ErrorCount struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// Summary is the full health report.
type Summary struct {
	Score              int          `json:"score"`
	Status             string       `json:"status"`
	SubScores          SubScores    `json:"sub_scores"`
	TotalRuns          int          `json:"total_runs"`
	Completed          int          `json:"completed"`
	Failed             int          `json:"failed"`
	Cancelled          int          `json:"cancelled"`
	ErrorRatePercent   float64      `json:"error_rate_percent"`
	AvgDurationSeconds float64      `json:"avg_duration_seconds"`
	TotalCIs           int          `json:"total_cis_discovered"`
	TotalSchedules     int          `json:"total_schedules"`
	ActiveSchedules    int          `json:"active_schedules"`
	TotalCredentials   int          `json:"total_credentials"`
	ActiveCredentials  int          `json:"active_credentials"`
	TotalRanges        int          `json:"total_ranges"`
	HealthyRanges      int          `json:"healthy_ranges"`
	TopErrors          []ErrorCount `json:"top_errors,omitempty"`
	Recommendations    []string     `json:"recommendations,omitempty"`
}

// Input bundles everything Compute needs.
type Input struct {
	Runs        []discovery.Run
	Schedules   []discovery.Schedule
	Credentials []discovery.CredentialRef
	Ranges      []discovery.Range
	ErrorLogs   []discovery.LogEntry
	Period      string
}

// Compute produces the composite health summary. Every triggered
// recommendation threshold emits; they are not mutually exclusive.
func Compute(in Input, includeRecommendations bool) Summary {
	s := Summary{
		TotalRuns: len(in.Runs),
	}

	// Scan dimension: success ratio over terminal runs
	var durationSum float64
	var durationN int
	terminal := 0
	for _, run := range in.Runs {
		s.TotalCIs += run.CICount
		switch run.State {
		case discovery.RunStateComplete:
			s.Completed++
		case discovery.RunStateError:
			s.Failed++
		case discovery.RunStateCancelled:
			s.Cancelled++
		}
		if run.Terminal() {
			terminal++
		}
		if d := run.Duration(); d > 0 {
			durationSum += d.Seconds()
			durationN++
		}
	}
	if len(in.Runs) > 0 {
		s.ErrorRatePercent = float64(s.Failed) / float64(len(in.Runs)) * 100
	}
	if durationN > 0 {
		s.AvgDurationSeconds = durationSum / float64(durationN)
	}
	if terminal > 0 {
		s.SubScores.Scan = float64(s.Completed) / float64(terminal)
	} else {
		s.SubScores.Scan = NeutralScore
	}

	// Schedule dimension: active ratio
	s.TotalSchedules = len(in.Schedules)
	for _, sched := range in.Schedules {
		if sched.Active {
			s.ActiveSchedules++
		}
	}
	s.SubScores.Schedule = ratioOrNeutral(s.ActiveSchedules, s.TotalSchedules)

	// Credential dimension: active ratio
	s.TotalCredentials = len(in.Credentials)
	for _, cred := range in.Credentials {
		if cred.Active {
			s.ActiveCredentials++
		}
	}
	s.SubScores.Credential = ratioOrNeutral(s.ActiveCredentials, s.TotalCredentials)

	// Range dimension: active ranges that also validate
	s.TotalRanges = len(in.Ranges)
	for _, r := range in.Ranges {
		if r.Active && r.Validate() == nil {
			s.HealthyRanges++
		}
	}
	s.SubScores.Range = ratioOrNeutral(s.HealthyRanges, s.TotalRanges)

	s.TopErrors = topErrors(in.ErrorLogs, 10)

	composite := WeightScan*s.SubScores.Scan +
		WeightSchedule*s.SubScores.Schedule +
		WeightCredential*s.SubScores.Credential +
		WeightRange*s.SubScores.Range
	s.Score = clampScore(int(math.Round(composite * 100)))

	switch {
	case s.Score >= 80:
		s.Status = StatusHealthy
	case s.Score >= 50:
		s.Status = StatusWarning
	default:
		s.Status = StatusCritical
	}

	if includeRecommendations {
		s.Recommendations = recommendations(s, in.Period)
	}
	return s
}

func ratioOrNeutral(active, total int) float64 {
	if total == 0 {
		return NeutralScore
	}
	return float64(active) / float64(total)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// topErrors groups error messages (truncated to 100 characters so minor
// variations collapse) and returns the n most frequent. Ties order by
// message so the output is deterministic.
func topErrors(entries []discovery.LogEntry, n int) []ErrorCount {
	counter := make(map[string]int)
	for _, entry := range entries {
		if !entry.IsError() {
			continue
		}
		key := entry.Message
		if key == "" {
			key = "Unknown error"
		}
		if len(key) > 100 {
			key = key[:100]
		}
		counter[key]++
	}
	if len(counter) == 0 {
		return nil
	}

	grouped := make([]ErrorCount, 0, len(counter))
	for msg, count := range counter {
		grouped = append(grouped, ErrorCount{Message: msg, Count: count})
	}
	sort.Slice(grouped, func(i, j int) bool {
		if grouped[i].Count != grouped[j].Count {
			return grouped[i].Count > grouped[j].Count
		}
		return grouped[i].Message < grouped[j].Message
	})
	if len(grouped) > n {
		grouped = grouped[:n]
	}
	return grouped
}

// recommendations emits one entry per triggered threshold
func recommendations(s Summary, period string) []string {
	var recs []string

	if s.ErrorRatePercent > 20 {
		recs = append(recs, fmt.Sprintf(
			"High error rate (%.0f%%). Review failed scans and use the 'remediate_discovery_failures' tool to diagnose issues.",
			s.ErrorRatePercent))
	}
	inactiveSchedules := s.TotalSchedules - s.ActiveSchedules
	if s.TotalSchedules > 0 && inactiveSchedules > s.ActiveSchedules {
		recs = append(recs, fmt.Sprintf(
			"%d inactive schedule(s) detected. Review and activate needed schedules.", inactiveSchedules))
	}
	if inactiveCreds := s.TotalCredentials - s.ActiveCredentials; inactiveCreds > 0 {
		recs = append(recs, fmt.Sprintf(
			"%d inactive credential(s). Verify they are no longer needed or re-activate.", inactiveCreds))
	}
	if s.TotalRanges == 0 {
		recs = append(recs, "No discovery ranges configured. Add IP ranges to enable discovery.")
	}
	if broken := s.TotalRanges - s.HealthyRanges; broken > 0 {
		recs = append(recs, fmt.Sprintf(
			"%d range(s) are inactive or fail validation. Fix or remove them.", broken))
	}
	if s.TotalRuns == 0 {
		label := strings.TrimSpace(period)
		if label == "" {
			label = "the selected period"
		}
		recs = append(recs, fmt.Sprintf("No scans in the last %s. Check schedule configuration.", label))
	}
	if s.Score >= 80 {
		recs = append(recs, "Discovery health is good. Continue monitoring.")
	}
	return recs
}
