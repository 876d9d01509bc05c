package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/snowops/discovery-agent/internal/discovery"
	"github.com/snowops/discovery-agent/internal/remediation"
	"github.com/snowops/discovery-agent/internal/snow"
)

const (
	defaultBulkScans = 5
	maxBulkScans     = 20
)

// RemediateInput is the parameter shape of remediate_discovery_failures.
// Confirm defaults to false: every fix action previews its plan without
// writing until the caller explicitly confirms.
type RemediateInput struct {
	Action  string `json:"action"`
	ScanID  string `json:"scan_id,omitempty"`
	Confirm bool   `json:"confirm,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// RemediateTool diagnoses failed scans and applies conservative fixes
// through the remediation engine.
type RemediateTool struct {
	client TableClient
}

func NewRemediateTool(client TableClient) *RemediateTool {
	return &RemediateTool{client: client}
}

func (t *RemediateTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var params RemediateInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail("", snow.InvalidParameter("invalid input: %v", err)), nil
	}

	action := normalizeAction(params.Action)
	switch action {
	case "diagnose", "":
		return t.diagnose(ctx, params), nil
	case "credential_fix":
		return t.fix(ctx, params, "credential_fix"), nil
	case "network_fix":
		return t.fix(ctx, params, "network_fix"), nil
	case "classification_fix":
		return t.fix(ctx, params, "classification_fix"), nil
	case "bulk_remediate":
		return t.bulk(ctx, params), nil
	default:
		return invalidAction(action, []string{
			"diagnose", "credential_fix", "network_fix", "classification_fix", "bulk_remediate"}), nil
	}
}

func (t *RemediateTool) diagnoseRun(ctx context.Context, sysID string) (remediation.Diagnosis, error) {
	run, err := fetchRun(ctx, t.client, sysID)
	if err != nil {
		return remediation.Diagnosis{}, err
	}
	entries, err := fetchRunErrors(ctx, t.client, sysID, maxAnalysisLogs)
	if err != nil {
		return remediation.Diagnosis{}, err
	}
	return remediation.Diagnose(run, entries), nil
}

func (t *RemediateTool) diagnose(ctx context.Context, params RemediateInput) *Response {
	sysID, err := requireSysID(params.ScanID, "scan_id")
	if err != nil {
		return fail("diagnose", err)
	}
	diag, err := t.diagnoseRun(ctx, sysID)
	if err != nil {
		return fail("diagnose", err)
	}
	return ok("diagnose",
		fmt.Sprintf("Root cause: %s (%s confidence, %s)", diag.PrimaryRootCause, diag.Confidence,
			fmtCount(diag.TotalErrors, "error", "errors")),
		diag)
}

// FixResult bundles the diagnosis, the plan and its execution outcome.
type FixResult struct {
	Diagnosis remediation.Diagnosis       `json:"diagnosis"`
	Plan      remediation.Plan            `json:"plan"`
	Execution remediation.ExecutionResult `json:"execution"`
}

// fix runs the diagnose-plan-execute pipeline with only the configuration
// family matching the requested fix in scope.
func (t *RemediateTool) fix(ctx context.Context, params RemediateInput, action string) *Response {
	sysID, err := requireSysID(params.ScanID, "scan_id")
	if err != nil {
		return fail(action, err)
	}
	diag, err := t.diagnoseRun(ctx, sysID)
	if err != nil {
		return fail(action, err)
	}

	var (
		creds    []discovery.CredentialRef
		ranges   []discovery.Range
		patterns []discovery.Pattern
	)
	switch action {
	case "credential_fix":
		creds, err = fetchCredentials(ctx, t.client, snow.NewQuery().OrderBy("order"), 0)
	case "network_fix":
		ranges, err = fetchRanges(ctx, t.client, snow.NewQuery().OrderBy("name"), 0)
	case "classification_fix":
		patterns, err = fetchPatterns(ctx, t.client, snow.NewQuery().OrderBy("name"), maxPatternFetch)
	}
	if err != nil {
		return fail(action, err)
	}

	plan := remediation.BuildPlan(diag, creds, ranges, patterns)
	execution := remediation.Execute(ctx, t.client, plan, params.Confirm)

	result := FixResult{Diagnosis: diag, Plan: plan, Execution: execution}
	message := fmt.Sprintf("Plan %s: %s", plan.ID, fmtCount(len(plan.Actions), "action", "actions"))
	if execution.DryRun {
		message += " (dry-run, set confirm=true to apply)"
	} else {
		message += fmt.Sprintf(", %d applied, %d failed", execution.Applied, execution.Failed)
	}
	return ok(action, message, result)
}

func (t *RemediateTool) bulk(ctx context.Context, params RemediateInput) *Response {
	limit := clampLimit(params.Limit, defaultBulkScans, maxBulkScans)
	runs, err := fetchRuns(ctx, t.client, snow.NewQuery().
		Where("state", snow.OpEquals, "Error").
		OrderByDesc("sys_created_on"), limit)
	if err != nil {
		return fail("bulk_remediate", err)
	}
	if len(runs) == 0 {
		return ok("bulk_remediate", "No failed scans found", map[string]interface{}{
			"results": []remediation.RunResult{},
			"count":   0,
		})
	}

	inputs := make([]remediation.RunInput, 0, len(runs))
	for _, run := range runs {
		entries, err := fetchRunErrors(ctx, t.client, run.SysID, maxAnalysisLogs)
		if err != nil {
			// A run whose logs cannot be fetched is diagnosed on the run
			// record alone rather than aborting the batch.
			entries = nil
		}
		inputs = append(inputs, remediation.RunInput{Run: run, Entries: entries})
	}

	creds, err := fetchCredentials(ctx, t.client, snow.NewQuery().OrderBy("order"), 0)
	if err != nil {
		return fail("bulk_remediate", err)
	}
	ranges, err := fetchRanges(ctx, t.client, snow.NewQuery().OrderBy("name"), 0)
	if err != nil {
		return fail("bulk_remediate", err)
	}
	patterns, err := fetchPatterns(ctx, t.client, snow.NewQuery().OrderBy("name"), maxPatternFetch)
	if err != nil {
		return fail("bulk_remediate", err)
	}

	results := remediation.BulkRemediate(ctx, t.client, inputs, creds, ranges, patterns, params.Confirm)

	applied, failed := 0, 0
	for _, r := range results {
		applied += r.Execution.Applied
		failed += r.Execution.Failed
	}
	message := fmt.Sprintf("Processed %s", fmtCount(len(results), "failed scan", "failed scans"))
	if params.Confirm {
		message += fmt.Sprintf(": %d action(s) applied, %d failed", applied, failed)
	} else {
		message += " (dry-run, set confirm=true to apply)"
	}
	return ok("bulk_remediate", message, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}
