package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/snowops/discovery-agent/internal/discovery"
	"github.com/snowops/discovery-agent/internal/logging"
	"github.com/snowops/discovery-agent/internal/snow"
)

var triggerLogger = logging.GetLogger("tools.trigger")

// Discovery types the instance accepts for a schedule's discover field.
var validDiscoverTypes = []string{"IP", "CI", "Network", "Cloud", "Configuration"}

const defaultMaxRunTime = "02:00:00"

// TriggerInput is the parameter shape of schedule_discovery_scan.
type TriggerInput struct {
	Action       string   `json:"action"`
	ScheduleID   string   `json:"schedule_id,omitempty"`
	Name         string   `json:"name,omitempty"`
	DiscoverType string   `json:"discover_type,omitempty"`
	IPRanges     []string `json:"ip_ranges,omitempty"`
	MIDServer    string   `json:"mid_server,omitempty"`
	MaxRunTime   string   `json:"max_run_time,omitempty"`
}

// TriggerTool activates existing schedules and creates new ones. These are
// the only unconditional writes in the tool surface; everything they touch
// is schedule configuration, never scan data.
type TriggerTool struct {
	client TableClient
}

func NewTriggerTool(client TableClient) *TriggerTool {
	return &TriggerTool{client: client}
}

func (t *TriggerTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var params TriggerInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail("", snow.InvalidParameter("invalid input: %v", err)), nil
	}

	action := normalizeAction(params.Action)
	switch action {
	case "trigger":
		return t.trigger(ctx, params), nil
	case "create":
		return t.create(ctx, params), nil
	default:
		return invalidAction(action, []string{"trigger", "create"}), nil
	}
}

// TriggerResult reports the activated schedule and, when one already
// exists, the newest scan it started.
type TriggerResult struct {
	Schedule   ScheduleView `json:"schedule"`
	LatestScan *RunView     `json:"latest_scan,omitempty"`
}

func (t *TriggerTool) trigger(ctx context.Context, params TriggerInput) *Response {
	sysID, err := requireSysID(params.ScheduleID, "schedule_id")
	if err != nil {
		return fail("trigger", err)
	}

	// Verify the schedule exists before writing anything.
	rec, err := t.client.Get(ctx, discovery.TableSchedule, sysID, scheduleFields)
	if err != nil {
		return fail("trigger", err)
	}
	schedule := discovery.ScheduleFromRecord(rec)

	// The instance starts an immediate scan when a schedule transitions
	// to active.
	if _, err := t.client.Update(ctx, discovery.TableSchedule, sysID, snow.Record{"active": "true"}); err != nil {
		return fail("trigger", err)
	}
	triggerLogger.InfoWithFields("activated discovery schedule",
		logging.Field("schedule_id", sysID),
		logging.Field("name", schedule.Name))

	result := TriggerResult{Schedule: scheduleView(schedule)}
	result.Schedule.Active = true

	// Best effort: report the newest scan this schedule started. The scan
	// may not exist yet when the instance is slow to react.
	runs, err := t.client.List(ctx, discovery.TableRun, snow.ListOptions{
		Query: snow.NewQuery().
			Where("source", snow.OpEquals, sysID).
			OrderByDesc("sys_created_on"),
		Fields: runFields,
		Limit:  1,
	})
	if err == nil && len(runs) > 0 {
		view := runView(discovery.RunFromRecord(runs[0]))
		result.LatestScan = &view
	}

	message := fmt.Sprintf("Triggered discovery schedule %q (%s)", schedule.Name, sysID)
	if result.LatestScan == nil {
		message += ". No scan visible yet; poll get_discovery_status shortly."
	}
	return ok("trigger", message, result)
}

// CreateScheduleResult reports the created schedule plus any ranges that
// were attached to it.
type CreateScheduleResult struct {
	Schedule       ScheduleView `json:"schedule"`
	AttachedRanges []string     `json:"attached_ranges,omitempty"`
	Notes          []string     `json:"notes,omitempty"`
}

func (t *TriggerTool) create(ctx context.Context, params TriggerInput) *Response {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return fail("create", snow.InvalidParameter("name is required for the create action"))
	}
	discoverType := strings.TrimSpace(params.DiscoverType)
	if discoverType == "" {
		return fail("create", snow.InvalidParameter("discover_type is required for the create action"))
	}
	if !validDiscoverType(discoverType) {
		return fail("create", snow.InvalidParameter(
			"invalid discover_type %q, valid types: %s", discoverType, strings.Join(validDiscoverTypes, ", ")))
	}
	for i, rangeID := range params.IPRanges {
		if _, err := requireSysID(rangeID, fmt.Sprintf("ip_ranges[%d]", i)); err != nil {
			return fail("create", err)
		}
	}

	maxRunTime := strings.TrimSpace(params.MaxRunTime)
	if maxRunTime == "" {
		maxRunTime = defaultMaxRunTime
	}

	fields := snow.Record{
		"name":         name,
		"discover":     discoverType,
		"active":       "true",
		"max_run_time": maxRunTime,
	}
	if mid := strings.TrimSpace(params.MIDServer); mid != "" {
		fields["mid_select_method"] = "Specific"
		fields["mid_server"] = mid
	}

	created, err := t.client.Create(ctx, discovery.TableSchedule, fields)
	if err != nil {
		return fail("create", err)
	}
	schedule := discovery.ScheduleFromRecord(created)
	triggerLogger.InfoWithFields("created discovery schedule",
		logging.Field("schedule_id", schedule.SysID),
		logging.Field("name", schedule.Name),
		logging.Field("discover_type", discoverType))

	result := CreateScheduleResult{Schedule: scheduleView(schedule)}

	// Ranges reference their schedule, not the other way around, so each
	// provided range gets its schedule field pointed at the new record.
	// Attachment failures are reported per range and do not undo the
	// schedule creation.
	for _, rangeID := range params.IPRanges {
		id := strings.TrimSpace(rangeID)
		if _, err := t.client.Update(ctx, discovery.TableRange, id, snow.Record{"schedule": schedule.SysID}); err != nil {
			result.Notes = append(result.Notes, fmt.Sprintf("Range %s could not be attached: %v", id, err))
			continue
		}
		result.AttachedRanges = append(result.AttachedRanges, id)
	}

	return ok("create",
		fmt.Sprintf("Created discovery schedule %q (%s)", schedule.Name, schedule.SysID),
		result)
}

func validDiscoverType(value string) bool {
	for _, v := range validDiscoverTypes {
		if v == value {
			return true
		}
	}
	return false
}
