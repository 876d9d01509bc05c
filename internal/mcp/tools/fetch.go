package tools

import (
	"context"

	"github.com/snowops/discovery-agent/internal/discovery"
	"github.com/snowops/discovery-agent/internal/snow"
)

// TableClient is the subset of the table API client the tools consume.
// *snow.Client satisfies it; tests substitute fakes.
type TableClient interface {
	List(ctx context.Context, table string, opts snow.ListOptions) ([]snow.Record, error)
	ListAll(ctx context.Context, table string, opts snow.ListOptions, maxRecords int) ([]snow.Record, error)
	Get(ctx context.Context, table, sysID string, fields []string) (snow.Record, error)
	Create(ctx context.Context, table string, fields snow.Record) (snow.Record, error)
	Update(ctx context.Context, table, sysID string, fields snow.Record) (snow.Record, error)
	Delete(ctx context.Context, table, sysID string) error
	Count(ctx context.Context, table string, q *snow.Query) (int, error)
	TestConnection(ctx context.Context) error
}

// Field projections per table, mirroring what the engines consume.
var (
	runFields = []string{
		"sys_id", "name", "state", "source", "dscl_status", "log",
		"started", "completed", "ci_count", "ip_address", "mid_server",
	}
	logFields = []string{
		"sys_id", "status", "level", "message", "source", "sys_created_on",
	}
	scheduleFields = []string{
		"sys_id", "name", "active", "discover", "max_run_time",
		"run_dayofweek", "run_time", "mid_select_method", "location",
	}
	credentialFields = []string{
		"sys_id", "name", "type", "active", "tag", "order", "affinity",
	}
	rangeFields = []string{
		"sys_id", "name", "type", "active", "range_start", "range_end", "include",
	}
	patternFields = []string{
		"sys_id", "name", "active", "ci_type", "criteria", "description",
	}
	ciFields = []string{
		"sys_id", "cmdb_ci", "name", "sys_class_name", "source", "status", "issues",
	}
)

func fetchRun(ctx context.Context, client TableClient, sysID string) (discovery.Run, error) {
	rec, err := client.Get(ctx, discovery.TableRun, sysID, runFields)
	if err != nil {
		return discovery.Run{}, err
	}
	return discovery.RunFromRecord(rec), nil
}

func fetchRuns(ctx context.Context, client TableClient, q *snow.Query, limit int) ([]discovery.Run, error) {
	records, err := client.ListAll(ctx, discovery.TableRun, snow.ListOptions{
		Query:  q,
		Fields: runFields,
	}, limit)
	if err != nil {
		return nil, err
	}
	runs := make([]discovery.Run, 0, len(records))
	for _, rec := range records {
		runs = append(runs, discovery.RunFromRecord(rec))
	}
	return runs, nil
}

func fetchRunLogs(ctx context.Context, client TableClient, runID string, limit int) ([]discovery.LogEntry, error) {
	records, err := client.ListAll(ctx, discovery.TableLog, snow.ListOptions{
		Query:  snow.NewQuery().Where("status", snow.OpEquals, runID).OrderByDesc("sys_created_on"),
		Fields: logFields,
	}, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]discovery.LogEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, discovery.LogEntryFromRecord(rec))
	}
	return entries, nil
}

func fetchRunErrors(ctx context.Context, client TableClient, runID string, limit int) ([]discovery.LogEntry, error) {
	records, err := client.ListAll(ctx, discovery.TableLog, snow.ListOptions{
		Query: snow.NewQuery().
			Where("status", snow.OpEquals, runID).
			Where("level", snow.OpEquals, "Error").
			OrderByDesc("sys_created_on"),
		Fields: logFields,
	}, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]discovery.LogEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, discovery.LogEntryFromRecord(rec))
	}
	return entries, nil
}

func fetchSchedules(ctx context.Context, client TableClient, q *snow.Query, limit int) ([]discovery.Schedule, error) {
	records, err := client.ListAll(ctx, discovery.TableSchedule, snow.ListOptions{
		Query:  q,
		Fields: scheduleFields,
	}, limit)
	if err != nil {
		return nil, err
	}
	schedules := make([]discovery.Schedule, 0, len(records))
	for _, rec := range records {
		schedules = append(schedules, discovery.ScheduleFromRecord(rec))
	}
	return schedules, nil
}

func fetchCredentials(ctx context.Context, client TableClient, q *snow.Query, limit int) ([]discovery.CredentialRef, error) {
	records, err := client.ListAll(ctx, discovery.TableCredential, snow.ListOptions{
		Query:  q,
		Fields: credentialFields,
	}, limit)
	if err != nil {
		return nil, err
	}
	creds := make([]discovery.CredentialRef, 0, len(records))
	for _, rec := range records {
		creds = append(creds, discovery.CredentialRefFromRecord(rec))
	}
	return creds, nil
}

func fetchRanges(ctx context.Context, client TableClient, q *snow.Query, limit int) ([]discovery.Range, error) {
	records, err := client.ListAll(ctx, discovery.TableRange, snow.ListOptions{
		Query:  q,
		Fields: rangeFields,
	}, limit)
	if err != nil {
		return nil, err
	}
	ranges := make([]discovery.Range, 0, len(records))
	for _, rec := range records {
		ranges = append(ranges, discovery.RangeFromRecord(rec))
	}
	return ranges, nil
}

func fetchPatterns(ctx context.Context, client TableClient, q *snow.Query, limit int) ([]discovery.Pattern, error) {
	records, err := client.ListAll(ctx, discovery.TablePattern, snow.ListOptions{
		Query:  q,
		Fields: patternFields,
	}, limit)
	if err != nil {
		return nil, err
	}
	patterns := make([]discovery.Pattern, 0, len(records))
	for _, rec := range records {
		patterns = append(patterns, discovery.PatternFromRecord(rec))
	}
	return patterns, nil
}

func fetchRunCIs(ctx context.Context, client TableClient, runID string, limit int) ([]discovery.CI, error) {
	records, err := client.ListAll(ctx, discovery.TableDeviceHistory, snow.ListOptions{
		Query:  snow.NewQuery().Where("status", snow.OpEquals, runID),
		Fields: ciFields,
	}, limit)
	if err != nil {
		return nil, err
	}
	cis := make([]discovery.CI, 0, len(records))
	for _, rec := range records {
		cis = append(cis, discovery.CIFromRecord(rec))
	}
	return cis, nil
}
