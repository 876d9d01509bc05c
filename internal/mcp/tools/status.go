package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/snowops/discovery-agent/internal/discovery"
	"github.com/snowops/discovery-agent/internal/snow"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxLogFetch      = 100
)

// StatusInput is the parameter shape of get_discovery_status.
type StatusInput struct {
	Action string `json:"action"`
	ScanID string `json:"scan_id,omitempty"`
	State  string `json:"state,omitempty"`
	Source string `json:"source,omitempty"`
	Since  string `json:"since,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// StatusTool reads scan run status from the discovery_status table.
type StatusTool struct {
	client TableClient
}

func NewStatusTool(client TableClient) *StatusTool {
	return &StatusTool{client: client}
}

func (t *StatusTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var params StatusInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail("", snow.InvalidParameter("invalid input: %v", err)), nil
	}

	action := normalizeAction(params.Action)
	switch action {
	case "get":
		return t.get(ctx, params), nil
	case "list", "":
		return t.list(ctx, params), nil
	case "details":
		return t.details(ctx, params), nil
	case "poll":
		return t.poll(ctx, params), nil
	default:
		return invalidAction(action, []string{"get", "list", "details", "poll"}), nil
	}
}

func (t *StatusTool) get(ctx context.Context, params StatusInput) *Response {
	sysID, err := requireSysID(params.ScanID, "scan_id")
	if err != nil {
		return fail("get", err)
	}
	run, err := fetchRun(ctx, t.client, sysID)
	if err != nil {
		return fail("get", err)
	}
	return ok("get", fmt.Sprintf("Scan %q is %s", run.Name, run.State), runView(run))
}

func (t *StatusTool) list(ctx context.Context, params StatusInput) *Response {
	q := snow.NewQuery().OrderByDesc("started")
	if params.State != "" {
		q = q.Where("state", snow.OpEquals, params.State)
	}
	if params.Source != "" {
		q = q.Where("source", snow.OpEquals, params.Source)
	}
	if params.Since != "" {
		since, err := parseDateParam(params.Since, "since")
		if err != nil {
			return fail("list", err)
		}
		q = q.Where("started", snow.OpGreaterEq, since)
	}

	limit := clampLimit(params.Limit, defaultListLimit, maxListLimit)
	runs, err := fetchRuns(ctx, t.client, q, limit)
	if err != nil {
		return fail("list", err)
	}
	return ok("list", fmt.Sprintf("Found %s", fmtCount(len(runs), "scan", "scans")), map[string]interface{}{
		"scans": runViews(runs),
		"count": len(runs),
	})
}

// RunDetails is the details action payload: the run plus its most recent
// log entries.
type RunDetails struct {
	Scan       RunView   `json:"scan"`
	Logs       []LogView `json:"logs"`
	LogCount   int       `json:"log_count"`
	ErrorCount int       `json:"error_count"`
}

func (t *StatusTool) details(ctx context.Context, params StatusInput) *Response {
	sysID, err := requireSysID(params.ScanID, "scan_id")
	if err != nil {
		return fail("details", err)
	}
	run, err := fetchRun(ctx, t.client, sysID)
	if err != nil {
		return fail("details", err)
	}
	logs, err := fetchRunLogs(ctx, t.client, sysID, maxLogFetch)
	if err != nil {
		return fail("details", err)
	}

	errorCount := 0
	for _, entry := range logs {
		if entry.IsError() {
			errorCount++
		}
	}
	details := RunDetails{
		Scan:       runView(run),
		Logs:       logViews(logs),
		LogCount:   len(logs),
		ErrorCount: errorCount,
	}
	return ok("details", fmt.Sprintf("Scan %q: %s, %d error(s)", run.Name, run.State, errorCount), details)
}

// PollStatus is the poll action payload, built for agents looping until a
// scan reaches a terminal state.
type PollStatus struct {
	ScanID     string             `json:"scan_id"`
	State      discovery.RunState `json:"state"`
	IsComplete bool               `json:"is_complete"`
	CICount    int                `json:"ci_count"`
	Started    string             `json:"started,omitempty"`
	Completed  string             `json:"completed,omitempty"`
	Guidance   string             `json:"guidance"`
}

func (t *StatusTool) poll(ctx context.Context, params StatusInput) *Response {
	sysID, err := requireSysID(params.ScanID, "scan_id")
	if err != nil {
		return fail("poll", err)
	}
	run, err := fetchRun(ctx, t.client, sysID)
	if err != nil {
		return fail("poll", err)
	}

	status := PollStatus{
		ScanID:     run.SysID,
		State:      run.State,
		IsComplete: run.Terminal(),
		CICount:    run.CICount,
		Started:    fmtTime(run.Started),
		Completed:  fmtTime(run.Completed),
	}
	switch run.State {
	case discovery.RunStateComplete:
		status.Guidance = fmt.Sprintf("Scan completed with %d CI(s). Use the details action for the full log.", run.CICount)
	case discovery.RunStateError:
		status.Guidance = "Scan finished with errors. Use analyze_discovery_results or remediate_discovery_failures to investigate."
	case discovery.RunStateCancelled:
		status.Guidance = "Scan was cancelled."
	case discovery.RunStateRunning:
		status.Guidance = "Scan still running. Poll again in 30-60 seconds."
	default:
		status.Guidance = fmt.Sprintf("Scan state %q is not recognized; treat it as in progress and poll again.", run.RawState)
	}
	return ok("poll", status.Guidance, status)
}
