package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/snowops/discovery-agent/internal/compare"
	"github.com/snowops/discovery-agent/internal/discovery"
	"github.com/snowops/discovery-agent/internal/snow"
)

const (
	defaultSequentialScans = 5
	maxSequentialScans     = 20
	maxCIFetch             = 1000
)

// CompareInput is the parameter shape of compare_discovery_runs.
type CompareInput struct {
	Action     string `json:"action"`
	ScanA      string `json:"scan_a,omitempty"`
	ScanB      string `json:"scan_b,omitempty"`
	ScheduleID string `json:"schedule_id,omitempty"`
	LastN      int    `json:"last_n,omitempty"`
}

// CompareTool diffs scan runs: discovered CI sets, error populations and
// headline metrics.
type CompareTool struct {
	client TableClient
}

func NewCompareTool(client TableClient) *CompareTool {
	return &CompareTool{client: client}
}

func (t *CompareTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var params CompareInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail("", snow.InvalidParameter("invalid input: %v", err)), nil
	}

	action := normalizeAction(params.Action)
	switch action {
	case "compare", "":
		return t.compare(ctx, params), nil
	case "sequential":
		return t.sequential(ctx, params), nil
	default:
		return invalidAction(action, []string{"compare", "sequential"}), nil
	}
}

func (t *CompareTool) loadRun(ctx context.Context, sysID string) (discovery.Run, []discovery.CI, []discovery.LogEntry, error) {
	run, err := fetchRun(ctx, t.client, sysID)
	if err != nil {
		return discovery.Run{}, nil, nil, err
	}
	cis, err := fetchRunCIs(ctx, t.client, sysID, maxCIFetch)
	if err != nil {
		return discovery.Run{}, nil, nil, err
	}
	errs, err := fetchRunErrors(ctx, t.client, sysID, maxAnalysisLogs)
	if err != nil {
		return discovery.Run{}, nil, nil, err
	}
	return run, cis, errs, nil
}

func (t *CompareTool) compare(ctx context.Context, params CompareInput) *Response {
	sysA, err := requireSysID(params.ScanA, "scan_a")
	if err != nil {
		return fail("compare", err)
	}
	sysB, err := requireSysID(params.ScanB, "scan_b")
	if err != nil {
		return fail("compare", err)
	}

	runA, cisA, errsA, err := t.loadRun(ctx, sysA)
	if err != nil {
		return fail("compare", err)
	}
	runB, cisB, errsB, err := t.loadRun(ctx, sysB)
	if err != nil {
		return fail("compare", err)
	}

	result := compare.Compare(runA, runB, cisA, cisB, errsA, errsB)
	return ok("compare",
		fmt.Sprintf("Compared %q and %q: %d added, %d removed, %d changed CI(s)",
			runA.Name, runB.Name, len(result.Added), len(result.Removed), len(result.Changed)),
		result)
}

func (t *CompareTool) sequential(ctx context.Context, params CompareInput) *Response {
	scheduleID, err := requireSysID(params.ScheduleID, "schedule_id")
	if err != nil {
		return fail("sequential", err)
	}

	limit := clampLimit(params.LastN, defaultSequentialScans, maxSequentialScans)
	runs, err := fetchRuns(ctx, t.client, snow.NewQuery().
		Where("source", snow.OpEquals, scheduleID).
		OrderByDesc("sys_created_on"), limit)
	if err != nil {
		return fail("sequential", err)
	}
	if len(runs) < 2 {
		return ok("sequential",
			fmt.Sprintf("Need at least 2 scans to compare, found %d for schedule %s", len(runs), scheduleID),
			compare.Sequential(runs, nil, nil))
	}

	cisByRun := make(map[string][]discovery.CI, len(runs))
	errsByRun := make(map[string][]discovery.LogEntry, len(runs))
	for _, run := range runs {
		cis, err := fetchRunCIs(ctx, t.client, run.SysID, maxCIFetch)
		if err != nil {
			return fail("sequential", err)
		}
		cisByRun[run.SysID] = cis
		errs, err := fetchRunErrors(ctx, t.client, run.SysID, maxAnalysisLogs)
		if err != nil {
			return fail("sequential", err)
		}
		errsByRun[run.SysID] = errs
	}

	result := compare.Sequential(runs, cisByRun, errsByRun)
	return ok("sequential",
		fmt.Sprintf("Sequential comparison of %d scans: trend=%s", len(runs), result.Trend),
		result)
}
