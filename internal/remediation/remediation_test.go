package remediation

import (
	"context"
	"errors"
	"testing"

	"github.com/snowops/discovery-agent/internal/analysis"
	"github.com/snowops/discovery-agent/internal/discovery"
	"github.com/snowops/discovery-agent/internal/snow"
)

type fakeUpdater struct {
	calls  []string
	failOn map[string]error
}

func (f *fakeUpdater) Update(_ context.Context, table, sysID string, fields snow.Record) (snow.Record, error) {
	f.calls = append(f.calls, table+"/"+sysID)
	if err, ok := f.failOn[sysID]; ok {
		return nil, err
	}
	out := snow.Record{"sys_id": sysID}
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}

func errEntry(msg string) discovery.LogEntry {
	return discovery.LogEntry{Level: "Error", Message: msg}
}

func TestDiagnose(t *testing.T) {
	run := discovery.Run{SysID: "run1", Name: "Nightly", State: discovery.RunStateError, IPAddress: "10.0.0.5"}
	entries := []discovery.LogEntry{
		errEntry("Authentication failed"),
		errEntry("password rejected"),
		errEntry("credential expired"),
		errEntry("connection timed out"),
	}

	diag := Diagnose(run, entries)

	if diag.TotalErrors != 4 {
		t.Errorf("TotalErrors = %d, want 4", diag.TotalErrors)
	}
	if diag.PrimaryRootCause != analysis.CategoryCredentialFailure {
		t.Errorf("PrimaryRootCause = %q", diag.PrimaryRootCause)
	}
	if diag.Confidence != ConfidenceHigh {
		t.Errorf("Confidence = %q, want high (3 of 4 = 75%%)", diag.Confidence)
	}
	if diag.Breakdown[0].Category != analysis.CategoryCredentialFailure || diag.Breakdown[0].Count != 3 {
		t.Errorf("Breakdown not ordered by count: %v", diag.Breakdown)
	}
	if len(diag.Suggestions) == 0 {
		t.Error("expected suggestions for credential failures")
	}
}

func TestDiagnoseConfidenceLevels(t *testing.T) {
	run := discovery.Run{SysID: "run1"}

	// 2 of 5 credential = 40% -> medium
	diag := Diagnose(run, []discovery.LogEntry{
		errEntry("credential bad"), errEntry("credential bad"),
		errEntry("timed out"), errEntry("snmp fail"), errEntry("wmi fail"),
	})
	if diag.Confidence != ConfidenceMedium {
		t.Errorf("Confidence = %q, want medium", diag.Confidence)
	}

	// 1 of 4 = 25% -> low
	diag = Diagnose(run, []discovery.LogEntry{
		errEntry("credential bad"), errEntry("timed out"),
		errEntry("snmp fail"), errEntry("wmi fail"),
	})
	if diag.Confidence != ConfidenceLow {
		t.Errorf("Confidence = %q, want low", diag.Confidence)
	}
}

func TestDiagnoseNoErrors(t *testing.T) {
	diag := Diagnose(discovery.Run{SysID: "run1"}, nil)
	if diag.PrimaryRootCause != "none" || diag.TotalErrors != 0 {
		t.Errorf("clean run: %+v", diag)
	}
	if diag.Confidence != ConfidenceLow {
		t.Errorf("Confidence = %q", diag.Confidence)
	}
}

func credDiagnosis() Diagnosis {
	return Diagnose(discovery.Run{SysID: "run1"}, []discovery.LogEntry{
		errEntry("Authentication failed"),
		errEntry("connection timed out"),
	})
}

func TestBuildPlanActivatesInactiveRecords(t *testing.T) {
	creds := []discovery.CredentialRef{
		{SysID: "11111111111111111111111111111111", Name: "prod-ssh", Active: false},
		{SysID: "22222222222222222222222222222222", Name: "prod-snmp", Active: true},
	}
	ranges := []discovery.Range{
		{SysID: "33333333333333333333333333333333", Name: "dc-1", Active: false, Type: discovery.RangeTypeIPNetwork, RangeStart: "10.0.0.0/24"},
	}

	plan := BuildPlan(credDiagnosis(), creds, ranges, nil)

	if len(plan.Actions) != 2 {
		t.Fatalf("Actions = %v, want credential + range activation", plan.Actions)
	}
	for _, action := range plan.Actions {
		if action.ID == "" {
			t.Error("action missing generated id")
		}
		if action.Fields["active"] != "true" {
			t.Errorf("action should set active=true: %+v", action)
		}
		if action.SysID == "" {
			t.Error("actions must reference records by id")
		}
	}
}

func TestBuildPlanSkipsInvalidRange(t *testing.T) {
	ranges := []discovery.Range{
		{SysID: "33333333333333333333333333333333", Name: "broken", Active: false, Type: "Subnet", RangeStart: "bad"},
	}

	plan := BuildPlan(credDiagnosis(), nil, ranges, nil)

	for _, action := range plan.Actions {
		if action.Table == discovery.TableRange {
			t.Errorf("invalid range must not be reactivated: %+v", action)
		}
	}
	if len(plan.Notes) == 0 {
		t.Error("expected a note about the invalid range")
	}
}

func TestExecuteDryRunIssuesNoWrites(t *testing.T) {
	updater := &fakeUpdater{}
	plan := BuildPlan(credDiagnosis(), []discovery.CredentialRef{
		{SysID: "11111111111111111111111111111111", Name: "a", Active: false},
	}, nil, nil)

	result := Execute(context.Background(), updater, plan, false)

	if len(updater.calls) != 0 {
		t.Fatalf("dry-run must never call the client, got %v", updater.calls)
	}
	if !result.DryRun {
		t.Error("result should be marked dry-run")
	}
	if result.Skipped != len(plan.Actions) || result.Applied != 0 || result.Failed != 0 {
		t.Errorf("dry-run tallies wrong: %+v", result)
	}
	for _, outcome := range result.Outcomes {
		if outcome.Status != OutcomeSkipped {
			t.Errorf("dry-run outcome = %q, want skipped", outcome.Status)
		}
	}
}

func TestExecuteConfirmedAppliesIndependently(t *testing.T) {
	plan := Plan{
		ID: "plan1",
		Actions: []Action{
			{ID: "a1", Table: discovery.TableCredential, SysID: "sysA", Fields: snow.Record{"active": "true"}},
			{ID: "a2", Table: discovery.TableCredential, SysID: "sysB", Fields: snow.Record{"active": "true"}},
			{ID: "a3", Table: discovery.TableRange, SysID: "sysC", Fields: snow.Record{"active": "true"}},
		},
	}
	updater := &fakeUpdater{failOn: map[string]error{"sysB": errors.New("boom")}}

	result := Execute(context.Background(), updater, plan, true)

	if result.DryRun {
		t.Error("confirmed execution must not be dry-run")
	}
	if len(updater.calls) != 3 {
		t.Errorf("all actions attempted despite the failure: %v", updater.calls)
	}
	if result.Applied != 2 || result.Failed != 1 || result.Skipped != 0 {
		t.Errorf("tallies = %+v", result)
	}
	if result.Outcomes[1].Status != OutcomeFailed {
		t.Errorf("second outcome = %+v", result.Outcomes[1])
	}
}

func TestExecuteSkipsMalformedAction(t *testing.T) {
	plan := Plan{ID: "p", Actions: []Action{{ID: "a1", Table: discovery.TableCredential}}}
	updater := &fakeUpdater{}

	result := Execute(context.Background(), updater, plan, true)

	if len(updater.calls) != 0 {
		t.Error("malformed action must not reach the client")
	}
	if result.Skipped != 1 {
		t.Errorf("tallies = %+v", result)
	}
}

func TestBulkRemediateIsolation(t *testing.T) {
	runs := []RunInput{
		{Run: discovery.Run{SysID: "run1"}, Entries: []discovery.LogEntry{errEntry("credential bad")}},
		{Run: discovery.Run{SysID: "run2"}}, // nothing wrong
		{Run: discovery.Run{SysID: "run3"}, Entries: []discovery.LogEntry{errEntry("timed out")}},
	}
	creds := []discovery.CredentialRef{{SysID: "11111111111111111111111111111111", Active: false}}
	updater := &fakeUpdater{failOn: map[string]error{"11111111111111111111111111111111": errors.New("instance down")}}

	results := BulkRemediate(context.Background(), updater, runs, creds, nil, nil, true)

	if len(results) != 3 {
		t.Fatalf("every run gets a result: %d", len(results))
	}
	if results[0].Execution.Failed != 1 {
		t.Errorf("run1 should record its failure: %+v", results[0].Execution)
	}
	if results[1].Diagnosis.PrimaryRootCause != "none" {
		t.Errorf("run2 diagnosis: %+v", results[1].Diagnosis)
	}
	if results[2].RunID != "run3" {
		t.Errorf("run3 must still be processed after run1's failure")
	}
}
