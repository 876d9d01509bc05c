// Package compare diffs discovery runs: which CIs appeared or vanished
// between two scans, which errors are new, resolved or persistent, and how
// counts and durations moved. Pure computation over normalized records.
package compare

import (
	"sort"
	"time"

	"github.com/snowops/discovery-agent/internal/discovery"
)

// CIChange is a CI present in both runs whose identity-adjacent fields
// (name or class) differ.
type CIChange struct {
	SysID     string `json:"sys_id"`
	FromName  string `json:"from_name,omitempty"`
	ToName    string `json:"to_name,omitempty"`
	FromClass string `json:"from_class,omitempty"`
	ToClass   string `json:"to_class,omitempty"`
}

// ErrorDelta is one grouped error message with its per-run counts.
type ErrorDelta struct {
	Message string `json:"message"`
	CountA  int    `json:"count_a"`
	CountB  int    `json:"count_b"`
}

// Result is the full diff between run A (baseline) and run B.
type Result struct {
	RunA             string         `json:"run_a"`
	RunB             string         `json:"run_b"`
	Added            []discovery.CI `json:"added"`
	Removed          []discovery.CI `json:"removed"`
	Changed          []CIChange     `json:"changed"`
	ErrorsNew        []ErrorDelta   `json:"errors_new"`
	ErrorsResolved   []ErrorDelta   `json:"errors_resolved"`
	ErrorsPersistent []ErrorDelta   `json:"errors_persistent"`
	CICountDelta     int            `json:"ci_count_delta"`
	DurationDelta    time.Duration  `json:"duration_delta_seconds"`
}

// Compare diffs two runs. CI identity is the stable sys_id: added means
// present in B only, removed present in A only, so
// Compare(A,B).Added == Compare(B,A).Removed by construction.
func Compare(runA, runB discovery.Run, cisA, cisB []discovery.CI, errsA, errsB []discovery.LogEntry) Result {
	result := Result{
		RunA:          runA.SysID,
		RunB:          runB.SysID,
		CICountDelta:  runB.CICount - runA.CICount,
		DurationDelta: runB.Duration() - runA.Duration(),
	}

	byIDA := indexCIs(cisA)
	byIDB := indexCIs(cisB)

	for id, ciB := range byIDB {
		ciA, ok := byIDA[id]
		if !ok {
			result.Added = append(result.Added, ciB)
			continue
		}
		if ciA.Name != ciB.Name || ciA.Class != ciB.Class {
			change := CIChange{SysID: id}
			if ciA.Name != ciB.Name {
				change.FromName = ciA.Name
				change.ToName = ciB.Name
			}
			if ciA.Class != ciB.Class {
				change.FromClass = ciA.Class
				change.ToClass = ciB.Class
			}
			result.Changed = append(result.Changed, change)
		}
	}
	for id, ciA := range byIDA {
		if _, ok := byIDB[id]; !ok {
			result.Removed = append(result.Removed, ciA)
		}
	}

	sortCIs(result.Added)
	sortCIs(result.Removed)
	sort.Slice(result.Changed, func(i, j int) bool {
		return result.Changed[i].SysID < result.Changed[j].SysID
	})

	result.ErrorsNew, result.ErrorsResolved, result.ErrorsPersistent = errorDeltas(errsA, errsB)
	return result
}

// indexCIs deduplicates by sys_id; a CI reported twice in one run is still
// one CI
func indexCIs(cis []discovery.CI) map[string]discovery.CI {
	byID := make(map[string]discovery.CI, len(cis))
	for _, ci := range cis {
		if ci.SysID == "" {
			continue
		}
		byID[ci.SysID] = ci
	}
	return byID
}

func sortCIs(cis []discovery.CI) {
	sort.Slice(cis, func(i, j int) bool { return cis[i].SysID < cis[j].SysID })
}

// errorDeltas groups error-severity messages and splits them into new
// (B only), resolved (A only) and persistent (both)
func errorDeltas(errsA, errsB []discovery.LogEntry) (added, resolved, persistent []ErrorDelta) {
	countsA := countErrors(errsA)
	countsB := countErrors(errsB)

	for msg, countB := range countsB {
		if countA, ok := countsA[msg]; ok {
			persistent = append(persistent, ErrorDelta{Message: msg, CountA: countA, CountB: countB})
		} else {
			added = append(added, ErrorDelta{Message: msg, CountB: countB})
		}
	}
	for msg, countA := range countsA {
		if _, ok := countsB[msg]; !ok {
			resolved = append(resolved, ErrorDelta{Message: msg, CountA: countA})
		}
	}

	sortDeltas(added)
	sortDeltas(resolved)
	sortDeltas(persistent)
	return added, resolved, persistent
}

func countErrors(entries []discovery.LogEntry) map[string]int {
	counts := make(map[string]int)
	for _, entry := range entries {
		if !entry.IsError() {
			continue
		}
		msg := entry.Message
		if len(msg) > 100 {
			msg = msg[:100]
		}
		counts[msg]++
	}
	return counts
}

func sortDeltas(deltas []ErrorDelta) {
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Message < deltas[j].Message })
}

// Overall trend labels for Sequential.
const (
	TrendImproving = "improving"
	TrendDegrading = "degrading"
	TrendStable    = "stable"
	TrendNoData    = "insufficient_data"
)

// SequentialResult chains pairwise comparisons over a run series.
type SequentialResult struct {
	Comparisons []Result `json:"comparisons"`
	Trend       string   `json:"trend"`
}

// Sequential compares consecutive runs in chronological order (ascending
// start time, ties by sys_id). Fewer than two runs degrades gracefully to
// an empty comparison list, not an error. The overall trend compares first
// and last CI counts with a 10% dead band.
func Sequential(runs []discovery.Run, cisByRun map[string][]discovery.CI, errsByRun map[string][]discovery.LogEntry) SequentialResult {
	ordered := make([]discovery.Run, len(runs))
	copy(ordered, runs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Started.Equal(ordered[j].Started) {
			return ordered[i].Started.Before(ordered[j].Started)
		}
		return ordered[i].SysID < ordered[j].SysID
	})

	result := SequentialResult{Trend: TrendNoData}
	if len(ordered) < 2 {
		return result
	}

	for i := 1; i < len(ordered); i++ {
		prev, curr := ordered[i-1], ordered[i]
		result.Comparisons = append(result.Comparisons, Compare(
			prev, curr,
			cisByRun[prev.SysID], cisByRun[curr.SysID],
			errsByRun[prev.SysID], errsByRun[curr.SysID],
		))
	}

	first := float64(ordered[0].CICount)
	last := float64(ordered[len(ordered)-1].CICount)
	switch {
	case last > first*1.1:
		result.Trend = TrendImproving
	case last < first*0.9:
		result.Trend = TrendDegrading
	default:
		result.Trend = TrendStable
	}
	return result
}
