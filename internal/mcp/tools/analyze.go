package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/snowops/discovery-agent/internal/analysis"
	"github.com/snowops/discovery-agent/internal/discovery"
	"github.com/snowops/discovery-agent/internal/snow"
)

const (
	maxAnalysisLogs    = 500
	maxCategorizedOut  = 50
	defaultTrendScans  = 10
	maxTrendScans      = 100
	maxCoverageScans   = 50
	maxCoverageRanges  = 200
	maxCoverageIPsOut  = 100
	errMessageTruncate = 200
)

// AnalyzeInput is the parameter shape of analyze_discovery_results.
type AnalyzeInput struct {
	Action     string `json:"action"`
	ScanID     string `json:"scan_id,omitempty"`
	ScheduleID string `json:"schedule_id,omitempty"`
	LastNScans int    `json:"last_n_scans,omitempty"`
	DateFrom   string `json:"date_from,omitempty"`
	DateTo     string `json:"date_to,omitempty"`
}

// AnalyzeTool computes scan summaries, error categorization, trend reports
// and coverage over the discovery tables.
type AnalyzeTool struct {
	client TableClient
}

func NewAnalyzeTool(client TableClient) *AnalyzeTool {
	return &AnalyzeTool{client: client}
}

func (t *AnalyzeTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var params AnalyzeInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail("", snow.InvalidParameter("invalid input: %v", err)), nil
	}

	action := normalizeAction(params.Action)
	switch action {
	case "analyze", "":
		return t.analyze(ctx, params), nil
	case "errors":
		return t.errors(ctx, params), nil
	case "trend":
		return t.trend(ctx, params), nil
	case "coverage":
		return t.coverage(ctx, params), nil
	default:
		return invalidAction(action, []string{"analyze", "errors", "trend", "coverage"}), nil
	}
}

func (t *AnalyzeTool) analyze(ctx context.Context, params AnalyzeInput) *Response {
	sysID, err := requireSysID(params.ScanID, "scan_id")
	if err != nil {
		return fail("analyze", err)
	}
	run, err := fetchRun(ctx, t.client, sysID)
	if err != nil {
		return fail("analyze", err)
	}
	logs, err := fetchRunLogs(ctx, t.client, sysID, maxAnalysisLogs)
	if err != nil {
		return fail("analyze", err)
	}

	result := analysis.Analyze(run, logs)
	return ok("analyze",
		fmt.Sprintf("Analyzed scan %q: %d CIs, %s", run.Name, run.CICount,
			fmtCount(result.ErrorCount, "error", "errors")),
		result)
}

// CategorizedError is one log entry with its failure category attached.
type CategorizedError struct {
	Message  string            `json:"message"`
	Level    string            `json:"level"`
	Category analysis.Category `json:"category"`
	Source   string            `json:"source,omitempty"`
}

// ErrorsReport is the errors action payload.
type ErrorsReport struct {
	ScanID      string             `json:"scan_id"`
	TotalErrors int                `json:"total_errors"`
	ByCategory  []CategoryTally    `json:"by_category"`
	Errors      []CategorizedError `json:"errors"`
}

// CategoryTally is one category with its count, ordered by count.
type CategoryTally struct {
	Category analysis.Category `json:"category"`
	Count    int               `json:"count"`
}

func (t *AnalyzeTool) errors(ctx context.Context, params AnalyzeInput) *Response {
	sysID, err := requireSysID(params.ScanID, "scan_id")
	if err != nil {
		return fail("errors", err)
	}

	records, err := t.client.ListAll(ctx, discovery.TableLog, snow.ListOptions{
		Query: snow.NewQuery().
			Where("status", snow.OpEquals, sysID).
			Where("level", snow.OpIn, "Error,Warning").
			OrderByDesc("sys_created_on"),
		Fields: logFields,
	}, maxAnalysisLogs)
	if err != nil {
		return fail("errors", err)
	}

	counts := make(map[analysis.Category]int)
	categorized := make([]CategorizedError, 0, len(records))
	for _, rec := range records {
		entry := discovery.LogEntryFromRecord(rec)
		category := analysis.CategorizeMessage(entry.Message)
		counts[category]++
		message := entry.Message
		if len(message) > errMessageTruncate {
			message = message[:errMessageTruncate]
		}
		categorized = append(categorized, CategorizedError{
			Message:  message,
			Level:    entry.Level,
			Category: category,
			Source:   entry.Source,
		})
	}

	byCategory := make([]CategoryTally, 0, len(counts))
	for category, count := range counts {
		byCategory = append(byCategory, CategoryTally{Category: category, Count: count})
	}
	sort.Slice(byCategory, func(i, j int) bool {
		if byCategory[i].Count != byCategory[j].Count {
			return byCategory[i].Count > byCategory[j].Count
		}
		return byCategory[i].Category < byCategory[j].Category
	})

	if len(categorized) > maxCategorizedOut {
		categorized = categorized[:maxCategorizedOut]
	}
	report := ErrorsReport{
		ScanID:      sysID,
		TotalErrors: len(records),
		ByCategory:  byCategory,
		Errors:      categorized,
	}
	return ok("errors",
		fmt.Sprintf("Found %d error/warning entries in %d categories", report.TotalErrors, len(byCategory)),
		report)
}

func (t *AnalyzeTool) trend(ctx context.Context, params AnalyzeInput) *Response {
	q := snow.NewQuery().OrderByDesc("sys_created_on")
	if params.ScheduleID != "" {
		scheduleID, err := requireSysID(params.ScheduleID, "schedule_id")
		if err != nil {
			return fail("trend", err)
		}
		q = q.Where("source", snow.OpEquals, scheduleID)
	}
	if params.DateFrom != "" {
		from, err := parseDateParam(params.DateFrom, "date_from")
		if err != nil {
			return fail("trend", err)
		}
		q = q.Where("started", snow.OpGreaterEq, from)
	}
	if params.DateTo != "" {
		to, err := parseDateParam(params.DateTo, "date_to")
		if err != nil {
			return fail("trend", err)
		}
		q = q.Where("started", snow.OpLessEq, to)
	}

	limit := clampLimit(params.LastNScans, defaultTrendScans, maxTrendScans)
	runs, err := fetchRuns(ctx, t.client, q, limit)
	if err != nil {
		return fail("trend", err)
	}
	if len(runs) == 0 {
		return ok("trend", "No scans found for the specified criteria", analysis.TrendReport{
			Direction: analysis.TrendInsufficientData,
		})
	}

	report := analysis.Trend(runs)
	return ok("trend",
		fmt.Sprintf("Trend analysis: %d scans, %.0f%% success rate, trend=%s",
			report.ScanCount, report.SuccessRatePercent, report.Direction),
		report)
}

// CoverageSummary is the coverage action payload: what one schedule's
// completed scans actually reached versus what is configured.
type CoverageSummary struct {
	ScheduleID         string                  `json:"schedule_id"`
	TotalScansAnalyzed int                     `json:"total_scans_analyzed"`
	UniqueIPs          int                     `json:"unique_ips_discovered"`
	ConfiguredRanges   int                     `json:"configured_ranges"`
	DiscoveredIPs      []string                `json:"discovered_ips"`
	Report             analysis.CoverageReport `json:"report"`
}

func (t *AnalyzeTool) coverage(ctx context.Context, params AnalyzeInput) *Response {
	scheduleID, err := requireSysID(params.ScheduleID, "schedule_id")
	if err != nil {
		return fail("coverage", err)
	}

	runs, err := fetchRuns(ctx, t.client, snow.NewQuery().
		Where("source", snow.OpEquals, scheduleID).
		Where("state", snow.OpEquals, "Completed").
		OrderByDesc("sys_created_on"), maxCoverageScans)
	if err != nil {
		return fail("coverage", err)
	}

	seen := make(map[string]struct{})
	for _, run := range runs {
		if run.IPAddress != "" {
			seen[run.IPAddress] = struct{}{}
		}
	}
	ips := make([]string, 0, len(seen))
	for ip := range seen {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	if len(ips) > maxCoverageIPsOut {
		ips = ips[:maxCoverageIPsOut]
	}

	ranges, err := fetchRanges(ctx, t.client,
		snow.NewQuery().Where("active", snow.OpEquals, "true"), maxCoverageRanges)
	if err != nil {
		return fail("coverage", err)
	}

	summary := CoverageSummary{
		ScheduleID:         scheduleID,
		TotalScansAnalyzed: len(runs),
		UniqueIPs:          len(seen),
		ConfiguredRanges:   len(ranges),
		DiscoveredIPs:      ips,
		Report:             analysis.Coverage(len(seen), len(ranges)),
	}
	return ok("coverage",
		fmt.Sprintf("Coverage: %d unique IPs from %d scans, %d configured ranges",
			summary.UniqueIPs, summary.TotalScansAnalyzed, summary.ConfiguredRanges),
		summary)
}
