// Package remediation diagnoses failed discovery runs and builds and
// executes remediation plans. Execution is gated behind an explicit
// confirm flag: without it a plan is previewed and no write ever reaches
// the instance.
package remediation

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/snowops/discovery-agent/internal/analysis"
	"github.com/snowops/discovery-agent/internal/discovery"
	"github.com/snowops/discovery-agent/internal/logging"
	"github.com/snowops/discovery-agent/internal/snow"
)

var logger = logging.GetLogger("remediation")

// Confidence labels for the primary root cause, by its share of all
// categorized errors.
const (
	ConfidenceHigh   = "high"   // >= 60% of errors
	ConfidenceMedium = "medium" // >= 30%
	ConfidenceLow    = "low"
)

// CategoryCount is one failure category with its error count.
type CategoryCount struct {
	Category analysis.Category `json:"category"`
	Count    int               `json:"count"`
}

// Diagnosis is the structured result of analyzing a run's failures.
type Diagnosis struct {
	RunID            string             `json:"run_id"`
	RunName          string             `json:"run_name"`
	State            discovery.RunState `json:"state"`
	TotalErrors      int                `json:"total_errors"`
	PrimaryRootCause analysis.Category  `json:"primary_root_cause"`
	Confidence       string             `json:"confidence"`
	Breakdown        []CategoryCount    `json:"error_breakdown"`
	Suggestions      []string           `json:"suggestions"`
	AffectedIP       string             `json:"affected_ip,omitempty"`
}

// Diagnose categorizes a run's error entries and names the most likely
// root cause. With no errors the root cause is "none" at low confidence.
func Diagnose(run discovery.Run, entries []discovery.LogEntry) Diagnosis {
	counts := analysis.CategoryCounts(entries)

	breakdown := make([]CategoryCount, 0, len(counts))
	total := 0
	for category, count := range counts {
		breakdown = append(breakdown, CategoryCount{Category: category, Count: count})
		total += count
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].Count != breakdown[j].Count {
			return breakdown[i].Count > breakdown[j].Count
		}
		return breakdown[i].Category < breakdown[j].Category
	})

	diag := Diagnosis{
		RunID:            run.SysID,
		RunName:          run.Name,
		State:            run.State,
		TotalErrors:      total,
		PrimaryRootCause: "none",
		Confidence:       ConfidenceLow,
		AffectedIP:       run.IPAddress,
		Breakdown:        breakdown,
	}
	if total == 0 {
		return diag
	}

	diag.PrimaryRootCause = breakdown[0].Category
	share := float64(breakdown[0].Count) / float64(total)
	switch {
	case share >= 0.6:
		diag.Confidence = ConfidenceHigh
	case share >= 0.3:
		diag.Confidence = ConfidenceMedium
	}

	diag.Suggestions = suggestions(counts)
	return diag
}

func suggestions(counts map[analysis.Category]int) []string {
	var out []string
	if counts[analysis.CategoryCredentialFailure] > 0 {
		out = append(out, "Credential failures detected. Run the credential_fix action to check credential status and ordering.")
	}
	if counts[analysis.CategorySNMPFailure] > 0 || counts[analysis.CategorySSHFailure] > 0 || counts[analysis.CategoryWMIFailure] > 0 {
		out = append(out, "Protocol-level failures detected. Verify the matching credential type is active and ordered first.")
	}
	if counts[analysis.CategoryNetworkTimeout] > 0 || counts[analysis.CategoryPortScanFailure] > 0 {
		out = append(out, "Network failures detected. Run the network_fix action to verify IP ranges and connectivity.")
	}
	if counts[analysis.CategoryClassificationFailure] > 0 {
		out = append(out, "Classification failures detected. Run the classification_fix action to check CI patterns.")
	}
	return out
}

// Action is one planned mutation. Records are only ever referenced by id;
// the fields map holds the absolute values to apply.
type Action struct {
	ID     string      `json:"id"`
	Table  string      `json:"table"`
	SysID  string      `json:"sys_id"`
	Fields snow.Record `json:"fields"`
	Reason string      `json:"reason"`
}

// Plan is an ordered list of remediation actions for one run.
type Plan struct {
	ID        string   `json:"id"`
	RunID     string   `json:"run_id"`
	RootCause string   `json:"root_cause"`
	Actions   []Action `json:"actions"`
	Notes     []string `json:"notes,omitempty"`
}

// BuildPlan derives concrete actions from a diagnosis and the current
// configuration. Conservative by design: it only proposes reactivating
// existing inactive records, never creating or deleting anything.
func BuildPlan(diag Diagnosis, creds []discovery.CredentialRef, ranges []discovery.Range, patterns []discovery.Pattern) Plan {
	plan := Plan{
		ID:        uuid.NewString(),
		RunID:     diag.RunID,
		RootCause: string(diag.PrimaryRootCause),
	}

	counts := make(map[analysis.Category]int, len(diag.Breakdown))
	for _, entry := range diag.Breakdown {
		counts[entry.Category] = entry.Count
	}

	credentialRelated := counts[analysis.CategoryCredentialFailure] +
		counts[analysis.CategorySNMPFailure] +
		counts[analysis.CategorySSHFailure] +
		counts[analysis.CategoryWMIFailure]
	if credentialRelated > 0 {
		activeCreds := 0
		for _, cred := range creds {
			if cred.Active {
				activeCreds++
				continue
			}
			plan.Actions = append(plan.Actions, Action{
				ID:     uuid.NewString(),
				Table:  discovery.TableCredential,
				SysID:  cred.SysID,
				Fields: snow.Record{"active": "true"},
				Reason: fmt.Sprintf("credential %q is inactive while the run shows %d credential-related failure(s)", cred.Name, credentialRelated),
			})
		}
		if activeCreds == 0 && len(creds) == 0 {
			plan.Notes = append(plan.Notes, "No credentials configured. Add credentials for the scanned device types.")
		}
	}

	networkRelated := counts[analysis.CategoryNetworkTimeout] + counts[analysis.CategoryPortScanFailure]
	if networkRelated > 0 {
		activeRanges := 0
		for _, r := range ranges {
			if r.Active {
				activeRanges++
				continue
			}
			if r.Validate() != nil {
				plan.Notes = append(plan.Notes, fmt.Sprintf("Range %q is inactive and fails validation; fix its definition before reactivating.", r.Name))
				continue
			}
			plan.Actions = append(plan.Actions, Action{
				ID:     uuid.NewString(),
				Table:  discovery.TableRange,
				SysID:  r.SysID,
				Fields: snow.Record{"active": "true"},
				Reason: fmt.Sprintf("range %q is inactive while the run shows %d network failure(s)", r.Name, networkRelated),
			})
		}
		if activeRanges == 0 && len(ranges) == 0 {
			plan.Notes = append(plan.Notes, "No discovery ranges configured. Add IP ranges for discovery.")
		}
	}

	if counts[analysis.CategoryClassificationFailure] > 0 {
		activePatterns := 0
		for _, p := range patterns {
			if p.Active {
				activePatterns++
				continue
			}
			plan.Actions = append(plan.Actions, Action{
				ID:     uuid.NewString(),
				Table:  discovery.TablePattern,
				SysID:  p.SysID,
				Fields: snow.Record{"active": "true"},
				Reason: fmt.Sprintf("classification pattern %q is inactive while the run shows unclassified devices", p.Name),
			})
		}
		if activePatterns == 0 && len(patterns) == 0 {
			plan.Notes = append(plan.Notes, "No active CI patterns configured. Create patterns for the target device types.")
		}
	}

	if len(plan.Actions) == 0 {
		plan.Notes = append(plan.Notes, "No automatic remediation available; review the diagnosis suggestions.")
	}
	return plan
}

// Outcome statuses per action.
const (
	OutcomeApplied = "applied"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// ActionOutcome is the result of one action during execution.
type ActionOutcome struct {
	ActionID string `json:"action_id"`
	SysID    string `json:"sys_id"`
	Table    string `json:"table"`
	Status   string `json:"status"`
	Detail   string `json:"detail,omitempty"`
}

// ExecutionResult reports what Execute did (or would do).
type ExecutionResult struct {
	PlanID   string          `json:"plan_id"`
	DryRun   bool            `json:"dry_run"`
	Applied  int             `json:"applied"`
	Failed   int             `json:"failed"`
	Skipped  int             `json:"skipped"`
	Outcomes []ActionOutcome `json:"outcomes"`
	Notes    []string        `json:"notes,omitempty"`
}

// Updater is the single write operation Execute needs from the client.
type Updater interface {
	Update(ctx context.Context, table, sysID string, fields snow.Record) (snow.Record, error)
}

// Execute applies a plan. With confirm=false every action is reported as
// skipped and the client is never called; this is the default and the
// safety contract of the whole engine. With confirm=true actions are
// applied independently: one failure does not stop the rest.
func Execute(ctx context.Context, client Updater, plan Plan, confirm bool) ExecutionResult {
	result := ExecutionResult{
		PlanID: plan.ID,
		DryRun: !confirm,
		Notes:  plan.Notes,
	}

	if !confirm {
		result.Notes = append(result.Notes,
			"This is a dry-run. Set confirm=true to execute changes. Modifications require explicit confirmation.")
		for _, action := range plan.Actions {
			result.Skipped++
			result.Outcomes = append(result.Outcomes, ActionOutcome{
				ActionID: action.ID,
				SysID:    action.SysID,
				Table:    action.Table,
				Status:   OutcomeSkipped,
				Detail:   "dry-run: " + action.Reason,
			})
		}
		return result
	}

	for _, action := range plan.Actions {
		outcome := ActionOutcome{
			ActionID: action.ID,
			SysID:    action.SysID,
			Table:    action.Table,
		}
		switch {
		case action.SysID == "" || len(action.Fields) == 0:
			outcome.Status = OutcomeSkipped
			outcome.Detail = "action has no target or no fields to apply"
			result.Skipped++
		default:
			if _, err := client.Update(ctx, action.Table, action.SysID, action.Fields); err != nil {
				outcome.Status = OutcomeFailed
				outcome.Detail = err.Error()
				result.Failed++
				logger.ErrorWithErr("remediation action failed", err)
			} else {
				outcome.Status = OutcomeApplied
				outcome.Detail = action.Reason
				result.Applied++
			}
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result
}

// RunInput bundles one run with its log entries for bulk remediation.
type RunInput struct {
	Run     discovery.Run
	Entries []discovery.LogEntry
}

// RunResult is the per-run outcome of a bulk remediation.
type RunResult struct {
	RunID     string          `json:"run_id"`
	Diagnosis Diagnosis       `json:"diagnosis"`
	Plan      Plan            `json:"plan"`
	Execution ExecutionResult `json:"execution"`
}

// BulkRemediate diagnoses, plans and executes across several runs. Batch
// isolation: each run is processed independently and a fatal diagnosis or
// execution failure in one run never aborts the rest.
func BulkRemediate(ctx context.Context, client Updater, runs []RunInput, creds []discovery.CredentialRef, ranges []discovery.Range, patterns []discovery.Pattern, confirm bool) []RunResult {
	results := make([]RunResult, 0, len(runs))
	for _, in := range runs {
		diag := Diagnose(in.Run, in.Entries)
		plan := BuildPlan(diag, creds, ranges, patterns)
		exec := Execute(ctx, client, plan, confirm)
		results = append(results, RunResult{
			RunID:     in.Run.SysID,
			Diagnosis: diag,
			Plan:      plan,
			Execution: exec,
		})
	}
	return results
}
