package compare

import (
	"testing"
	"time"

	"github.com/snowops/discovery-agent/internal/discovery"
)

func ci(id, name, class string) discovery.CI {
	return discovery.CI{SysID: id, Name: name, Class: class}
}

func errEntry(msg string) discovery.LogEntry {
	return discovery.LogEntry{Level: "Error", Message: msg}
}

func ids(cis []discovery.CI) []string {
	out := make([]string, len(cis))
	for i, c := range cis {
		out[i] = c.SysID
	}
	return out
}

func TestCompareAddedRemoved(t *testing.T) {
	runA := discovery.Run{SysID: "a", CICount: 3}
	runB := discovery.Run{SysID: "b", CICount: 3}
	cisA := []discovery.CI{ci("1", "h1", "srv"), ci("2", "h2", "srv"), ci("3", "h3", "srv")}
	cisB := []discovery.CI{ci("2", "h2", "srv"), ci("3", "h3", "srv"), ci("4", "h4", "srv")}

	result := Compare(runA, runB, cisA, cisB, nil, nil)

	if got := ids(result.Added); len(got) != 1 || got[0] != "4" {
		t.Errorf("Added = %v, want [4]", got)
	}
	if got := ids(result.Removed); len(got) != 1 || got[0] != "1" {
		t.Errorf("Removed = %v, want [1]", got)
	}
	if len(result.Changed) != 0 {
		t.Errorf("Changed = %v, want empty", result.Changed)
	}
}

func TestCompareSymmetry(t *testing.T) {
	runA := discovery.Run{SysID: "a"}
	runB := discovery.Run{SysID: "b"}
	cisA := []discovery.CI{ci("1", "h1", "srv"), ci("2", "h2", "srv")}
	cisB := []discovery.CI{ci("2", "h2", "srv"), ci("3", "h3", "srv")}

	ab := Compare(runA, runB, cisA, cisB, nil, nil)
	ba := Compare(runB, runA, cisB, cisA, nil, nil)

	if len(ab.Added) != len(ba.Removed) {
		t.Fatalf("added/removed not symmetric: %v vs %v", ab.Added, ba.Removed)
	}
	for i := range ab.Added {
		if ab.Added[i].SysID != ba.Removed[i].SysID {
			t.Errorf("compare(A,B).added != compare(B,A).removed: %v vs %v", ab.Added, ba.Removed)
		}
	}
}

func TestCompareSelfIsEmpty(t *testing.T) {
	run := discovery.Run{SysID: "a", CICount: 2}
	cis := []discovery.CI{ci("1", "h1", "srv"), ci("2", "h2", "srv")}
	errs := []discovery.LogEntry{errEntry("timeout")}

	result := Compare(run, run, cis, cis, errs, errs)

	if len(result.Added)+len(result.Removed)+len(result.Changed) != 0 {
		t.Errorf("self-comparison must be empty: %+v", result)
	}
	if len(result.ErrorsNew)+len(result.ErrorsResolved) != 0 {
		t.Errorf("self-comparison has no new or resolved errors: %+v", result)
	}
	if len(result.ErrorsPersistent) != 1 {
		t.Errorf("identical errors are persistent: %+v", result.ErrorsPersistent)
	}
	if result.CICountDelta != 0 || result.DurationDelta != 0 {
		t.Errorf("deltas must be zero: %+v", result)
	}
}

func TestCompareChanged(t *testing.T) {
	runA := discovery.Run{SysID: "a"}
	runB := discovery.Run{SysID: "b"}
	cisA := []discovery.CI{ci("1", "web-01", "cmdb_ci_server")}
	cisB := []discovery.CI{ci("1", "web-01-renamed", "cmdb_ci_linux_server")}

	result := Compare(runA, runB, cisA, cisB, nil, nil)

	if len(result.Changed) != 1 {
		t.Fatalf("Changed = %v, want one entry", result.Changed)
	}
	change := result.Changed[0]
	if change.FromName != "web-01" || change.ToName != "web-01-renamed" {
		t.Errorf("name change not captured: %+v", change)
	}
	if change.FromClass != "cmdb_ci_server" || change.ToClass != "cmdb_ci_linux_server" {
		t.Errorf("class change not captured: %+v", change)
	}
}

func TestCompareErrorDeltas(t *testing.T) {
	runA := discovery.Run{SysID: "a"}
	runB := discovery.Run{SysID: "b"}
	errsA := []discovery.LogEntry{
		errEntry("auth failed"),
		errEntry("timeout on 10.0.0.1"),
		errEntry("timeout on 10.0.0.1"),
		{Level: "Warning", Message: "ignored"},
	}
	errsB := []discovery.LogEntry{
		errEntry("timeout on 10.0.0.1"),
		errEntry("snmp unreachable"),
	}

	result := Compare(runA, runB, nil, nil, errsA, errsB)

	if len(result.ErrorsNew) != 1 || result.ErrorsNew[0].Message != "snmp unreachable" {
		t.Errorf("ErrorsNew = %v", result.ErrorsNew)
	}
	if len(result.ErrorsResolved) != 1 || result.ErrorsResolved[0].Message != "auth failed" {
		t.Errorf("ErrorsResolved = %v", result.ErrorsResolved)
	}
	if len(result.ErrorsPersistent) != 1 {
		t.Fatalf("ErrorsPersistent = %v", result.ErrorsPersistent)
	}
	p := result.ErrorsPersistent[0]
	if p.CountA != 2 || p.CountB != 1 {
		t.Errorf("persistent counts = %+v", p)
	}
}

func TestCompareCountAndDurationDeltas(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	runA := discovery.Run{SysID: "a", CICount: 100, Started: start, Completed: start.Add(time.Hour)}
	runB := discovery.Run{SysID: "b", CICount: 80, Started: start.Add(24 * time.Hour), Completed: start.Add(24*time.Hour + 90*time.Minute)}

	result := Compare(runA, runB, nil, nil, nil, nil)

	if result.CICountDelta != -20 {
		t.Errorf("CICountDelta = %d, want -20", result.CICountDelta)
	}
	if result.DurationDelta != 30*time.Minute {
		t.Errorf("DurationDelta = %v, want 30m", result.DurationDelta)
	}
}

func TestSequential(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	runs := []discovery.Run{
		// Supplied out of order on purpose
		{SysID: "r3", CICount: 150, Started: base.Add(48 * time.Hour)},
		{SysID: "r1", CICount: 100, Started: base},
		{SysID: "r2", CICount: 120, Started: base.Add(24 * time.Hour)},
	}
	cis := map[string][]discovery.CI{
		"r1": {ci("1", "h1", "srv")},
		"r2": {ci("1", "h1", "srv"), ci("2", "h2", "srv")},
		"r3": {ci("2", "h2", "srv")},
	}

	result := Sequential(runs, cis, nil)

	if len(result.Comparisons) != 2 {
		t.Fatalf("Comparisons = %d, want 2", len(result.Comparisons))
	}
	if result.Comparisons[0].RunA != "r1" || result.Comparisons[0].RunB != "r2" {
		t.Errorf("first comparison pair wrong: %+v", result.Comparisons[0])
	}
	if result.Comparisons[1].RunA != "r2" || result.Comparisons[1].RunB != "r3" {
		t.Errorf("second comparison pair wrong: %+v", result.Comparisons[1])
	}
	if result.Trend != TrendImproving {
		t.Errorf("Trend = %q, want improving (100 -> 150)", result.Trend)
	}
}

func TestSequentialFewRuns(t *testing.T) {
	result := Sequential(nil, nil, nil)
	if len(result.Comparisons) != 0 || result.Trend != TrendNoData {
		t.Errorf("no runs: %+v", result)
	}

	result = Sequential([]discovery.Run{{SysID: "r1"}}, nil, nil)
	if len(result.Comparisons) != 0 || result.Trend != TrendNoData {
		t.Errorf("single run must not error: %+v", result)
	}
}
