package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/snowops/discovery-agent/internal/discovery"
	"github.com/snowops/discovery-agent/internal/snow"
)

// SchedulesInput is the parameter shape of list_discovery_schedules.
type SchedulesInput struct {
	Action     string `json:"action"`
	ScheduleID string `json:"schedule_id,omitempty"`
	ActiveOnly bool   `json:"active_only,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// SchedulesTool reads discovery_schedule configuration.
type SchedulesTool struct {
	client TableClient
}

func NewSchedulesTool(client TableClient) *SchedulesTool {
	return &SchedulesTool{client: client}
}

func (t *SchedulesTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var params SchedulesInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail("", snow.InvalidParameter("invalid input: %v", err)), nil
	}

	action := normalizeAction(params.Action)
	switch action {
	case "list", "":
		return t.list(ctx, params), nil
	case "get":
		return t.get(ctx, params), nil
	case "summary":
		return t.summary(ctx), nil
	default:
		return invalidAction(action, []string{"list", "get", "summary"}), nil
	}
}

func (t *SchedulesTool) list(ctx context.Context, params SchedulesInput) *Response {
	q := snow.NewQuery().OrderBy("name")
	if params.ActiveOnly {
		q = q.Where("active", snow.OpEquals, "true")
	}
	limit := clampLimit(params.Limit, defaultListLimit, maxListLimit)
	schedules, err := fetchSchedules(ctx, t.client, q, limit)
	if err != nil {
		return fail("list", err)
	}
	return ok("list", fmt.Sprintf("Found %s", fmtCount(len(schedules), "schedule", "schedules")), map[string]interface{}{
		"schedules": scheduleViews(schedules),
		"count":     len(schedules),
	})
}

func (t *SchedulesTool) get(ctx context.Context, params SchedulesInput) *Response {
	sysID, err := requireSysID(params.ScheduleID, "schedule_id")
	if err != nil {
		return fail("get", err)
	}
	rec, err := t.client.Get(ctx, discovery.TableSchedule, sysID, scheduleFields)
	if err != nil {
		return fail("get", err)
	}
	schedule := discovery.ScheduleFromRecord(rec)
	return ok("get", fmt.Sprintf("Schedule %q", schedule.Name), scheduleView(schedule))
}

// ScheduleSummary aggregates the schedule population by state and type.
type ScheduleSummary struct {
	Total    int            `json:"total"`
	Active   int            `json:"active"`
	Inactive int            `json:"inactive"`
	ByType   map[string]int `json:"by_type"`
}

func (t *SchedulesTool) summary(ctx context.Context) *Response {
	schedules, err := fetchSchedules(ctx, t.client, snow.NewQuery().OrderBy("name"), 0)
	if err != nil {
		return fail("summary", err)
	}

	summary := ScheduleSummary{
		Total:  len(schedules),
		ByType: make(map[string]int),
	}
	for _, s := range schedules {
		if s.Active {
			summary.Active++
		} else {
			summary.Inactive++
		}
		kind := s.DiscoverType
		if kind == "" {
			kind = "unspecified"
		}
		summary.ByType[kind]++
	}
	return ok("summary",
		fmt.Sprintf("%d schedule(s): %d active, %d inactive", summary.Total, summary.Active, summary.Inactive),
		summary)
}
