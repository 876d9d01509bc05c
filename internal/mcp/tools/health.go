package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/snowops/discovery-agent/internal/discovery"
	"github.com/snowops/discovery-agent/internal/health"
	"github.com/snowops/discovery-agent/internal/snow"
)

var periodDays = map[string]int{
	"day":   1,
	"week":  7,
	"month": 30,
}

const maxHealthScans = 200

// HealthInput is the parameter shape of get_discovery_health.
type HealthInput struct {
	Period                 string `json:"period,omitempty"`
	IncludeRecommendations *bool  `json:"include_recommendations,omitempty"`
}

// HealthTool computes the composite health summary over a trailing window.
type HealthTool struct {
	client TableClient
	now    func() time.Time
}

func NewHealthTool(client TableClient) *HealthTool {
	return &HealthTool{client: client, now: time.Now}
}

func (t *HealthTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var params HealthInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail("", snow.InvalidParameter("invalid input: %v", err)), nil
	}

	period := normalizeAction(params.Period)
	if period == "" {
		period = "week"
	}
	days, valid := periodDays[period]
	if !valid {
		return fail("health", snow.InvalidParameter(
			"invalid period %q, valid periods: day, week, month", period)), nil
	}

	includeRecommendations := true
	if params.IncludeRecommendations != nil {
		includeRecommendations = *params.IncludeRecommendations
	}

	cutoff := t.now().UTC().Add(-time.Duration(days) * 24 * time.Hour).Format(discovery.DateTimeFormat)

	// The five table reads are independent; fan out and fail fast on the
	// first error.
	var (
		runs      []discovery.Run
		schedules []discovery.Schedule
		creds     []discovery.CredentialRef
		ranges    []discovery.Range
		errorLogs []discovery.LogEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		runs, err = fetchRuns(gctx, t.client, snow.NewQuery().
			Where("started", snow.OpGreaterEq, cutoff).
			OrderByDesc("started"), maxHealthScans)
		return err
	})
	g.Go(func() error {
		var err error
		schedules, err = fetchSchedules(gctx, t.client, snow.NewQuery().OrderBy("name"), 0)
		return err
	})
	g.Go(func() error {
		var err error
		creds, err = fetchCredentials(gctx, t.client, snow.NewQuery().OrderBy("order"), 0)
		return err
	})
	g.Go(func() error {
		var err error
		ranges, err = fetchRanges(gctx, t.client, snow.NewQuery().OrderBy("name"), 0)
		return err
	})
	g.Go(func() error {
		var err error
		errorLogs, err = fetchErrorLogsSince(gctx, t.client, cutoff)
		return err
	})
	if err := g.Wait(); err != nil {
		return fail("health", err), nil
	}

	summary := health.Compute(health.Input{
		Runs:        runs,
		Schedules:   schedules,
		Credentials: creds,
		Ranges:      ranges,
		ErrorLogs:   errorLogs,
		Period:      period,
	}, includeRecommendations)

	return ok("health",
		fmt.Sprintf("Discovery health: %d/100 (%s) for %s", summary.Score, summary.Status, period),
		summary), nil
}

func fetchErrorLogsSince(ctx context.Context, client TableClient, cutoff string) ([]discovery.LogEntry, error) {
	records, err := client.ListAll(ctx, discovery.TableLog, snow.ListOptions{
		Query: snow.NewQuery().
			Where("level", snow.OpEquals, "Error").
			Where("sys_created_on", snow.OpGreaterEq, cutoff).
			OrderByDesc("sys_created_on"),
		Fields: logFields,
	}, maxAnalysisLogs)
	if err != nil {
		return nil, err
	}
	entries := make([]discovery.LogEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, discovery.LogEntryFromRecord(rec))
	}
	return entries, nil
}
