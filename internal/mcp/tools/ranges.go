package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/snowops/discovery-agent/internal/discovery"
	"github.com/snowops/discovery-agent/internal/logging"
	"github.com/snowops/discovery-agent/internal/snow"
)

var rangesLogger = logging.GetLogger("tools.ranges")

var validRangeTypes = []string{
	discovery.RangeTypeIPAddress,
	discovery.RangeTypeIPNetwork,
	discovery.RangeTypeIPRange,
}

// RangesInput is the parameter shape of manage_discovery_ranges.
type RangesInput struct {
	Action     string `json:"action"`
	RangeID    string `json:"range_id,omitempty"`
	Name       string `json:"name,omitempty"`
	RangeType  string `json:"range_type,omitempty"`
	RangeStart string `json:"range_start,omitempty"`
	RangeEnd   string `json:"range_end,omitempty"`
	Active     *bool  `json:"active,omitempty"`
	Include    *bool  `json:"include,omitempty"`
	FilterType string `json:"filter_type,omitempty"`
	ActiveOnly bool   `json:"active_only,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// RangesTool manages discovery_range records. The validate action is pure
// and never contacts the instance.
type RangesTool struct {
	client TableClient
}

func NewRangesTool(client TableClient) *RangesTool {
	return &RangesTool{client: client}
}

func (t *RangesTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var params RangesInput
	if err := json.Unmarshal(input, &params); err != nil {
		return fail("", snow.InvalidParameter("invalid input: %v", err)), nil
	}

	action := normalizeAction(params.Action)
	switch action {
	case "list", "":
		return t.list(ctx, params), nil
	case "get":
		return t.get(ctx, params), nil
	case "create":
		return t.create(ctx, params), nil
	case "update":
		return t.update(ctx, params), nil
	case "delete":
		return t.delete(ctx, params), nil
	case "validate":
		return t.validate(params), nil
	default:
		return invalidAction(action, []string{"list", "get", "create", "update", "delete", "validate"}), nil
	}
}

func (t *RangesTool) list(ctx context.Context, params RangesInput) *Response {
	q := snow.NewQuery().OrderBy("name")
	if params.FilterType != "" {
		q = q.Where("type", snow.OpEquals, params.FilterType)
	}
	if params.ActiveOnly {
		q = q.Where("active", snow.OpEquals, "true")
	}
	limit := clampLimit(params.Limit, maxListLimit, maxListLimit)
	ranges, err := fetchRanges(ctx, t.client, q, limit)
	if err != nil {
		return fail("list", err)
	}

	views := rangeViews(ranges)
	overlaps := overlapWarnings(ranges)
	data := map[string]interface{}{
		"ranges": views,
		"count":  len(views),
	}
	if len(overlaps) > 0 {
		data["overlap_warnings"] = overlaps
	}
	return ok("list", fmt.Sprintf("Found %s", fmtCount(len(views), "range", "ranges")), data)
}

// overlapWarnings flags pairs of active include ranges that cover common
// addresses. Overlap wastes scan time but is not an error.
func overlapWarnings(ranges []discovery.Range) []string {
	var warnings []string
	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			a, b := ranges[i], ranges[j]
			if !a.Active || !b.Active || !a.Include || !b.Include {
				continue
			}
			if discovery.Overlaps(a, b) {
				warnings = append(warnings, fmt.Sprintf("Ranges %q and %q overlap", a.Name, b.Name))
			}
		}
	}
	return warnings
}

func (t *RangesTool) get(ctx context.Context, params RangesInput) *Response {
	sysID, err := requireSysID(params.RangeID, "range_id")
	if err != nil {
		return fail("get", err)
	}
	rec, err := t.client.Get(ctx, discovery.TableRange, sysID, rangeFields)
	if err != nil {
		return fail("get", err)
	}
	r := discovery.RangeFromRecord(rec)
	return ok("get", fmt.Sprintf("Retrieved range %q (%s)", r.Name, sysID), rangeView(r))
}

func (t *RangesTool) create(ctx context.Context, params RangesInput) *Response {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return fail("create", snow.InvalidParameter("name is required for the create action"))
	}
	def := discovery.Range{
		Name:       name,
		Type:       strings.TrimSpace(params.RangeType),
		RangeStart: strings.TrimSpace(params.RangeStart),
		RangeEnd:   strings.TrimSpace(params.RangeEnd),
	}
	if def.Type == "" {
		return fail("create", snow.InvalidParameter("range_type is required for the create action"))
	}
	if def.RangeStart == "" {
		return fail("create", snow.InvalidParameter("range_start is required for the create action"))
	}
	if err := def.Validate(); err != nil {
		return fail("create", err)
	}

	fields := snow.Record{
		"name":        def.Name,
		"type":        def.Type,
		"range_start": def.RangeStart,
		"active":      boolField(params.Active, true),
		"include":     boolField(params.Include, true),
	}
	if def.RangeEnd != "" {
		fields["range_end"] = def.RangeEnd
	}

	created, err := t.client.Create(ctx, discovery.TableRange, fields)
	if err != nil {
		return fail("create", err)
	}
	r := discovery.RangeFromRecord(created)
	rangesLogger.InfoWithFields("created discovery range",
		logging.Field("range_id", r.SysID),
		logging.Field("name", r.Name),
		logging.Field("type", r.Type))
	return ok("create", fmt.Sprintf("Created range %q (%s)", r.Name, r.SysID), rangeView(r))
}

func (t *RangesTool) update(ctx context.Context, params RangesInput) *Response {
	sysID, err := requireSysID(params.RangeID, "range_id")
	if err != nil {
		return fail("update", err)
	}

	fields := snow.Record{}
	if params.Name != "" {
		fields["name"] = strings.TrimSpace(params.Name)
	}
	if params.RangeType != "" {
		rt := strings.TrimSpace(params.RangeType)
		if !validRangeType(rt) {
			return fail("update", snow.InvalidParameter(
				"invalid range_type %q, valid types: %s", rt, strings.Join(validRangeTypes, ", ")))
		}
		fields["type"] = rt
	}
	if params.RangeStart != "" {
		fields["range_start"] = strings.TrimSpace(params.RangeStart)
	}
	if params.RangeEnd != "" {
		fields["range_end"] = strings.TrimSpace(params.RangeEnd)
	}
	if params.Active != nil {
		fields["active"] = strconv.FormatBool(*params.Active)
	}
	if params.Include != nil {
		fields["include"] = strconv.FormatBool(*params.Include)
	}
	if len(fields) == 0 {
		return fail("update", snow.InvalidParameter("at least one field must be provided for update"))
	}

	// When the update touches the definition, fetch the current record
	// and validate the merged result before writing.
	if fields["type"] != nil || fields["range_start"] != nil || fields["range_end"] != nil {
		rec, err := t.client.Get(ctx, discovery.TableRange, sysID, rangeFields)
		if err != nil {
			return fail("update", err)
		}
		merged := discovery.RangeFromRecord(rec)
		if v, ok := fields["type"].(string); ok {
			merged.Type = v
		}
		if v, ok := fields["range_start"].(string); ok {
			merged.RangeStart = v
		}
		if v, ok := fields["range_end"].(string); ok {
			merged.RangeEnd = v
		}
		if err := merged.Validate(); err != nil {
			return fail("update", err)
		}
	}

	updated, err := t.client.Update(ctx, discovery.TableRange, sysID, fields)
	if err != nil {
		return fail("update", err)
	}
	r := discovery.RangeFromRecord(updated)
	rangesLogger.InfoWithFields("updated discovery range",
		logging.Field("range_id", sysID),
		logging.Field("fields", len(fields)))
	return ok("update", fmt.Sprintf("Updated range %q (%s)", r.Name, sysID), rangeView(r))
}

func (t *RangesTool) delete(ctx context.Context, params RangesInput) *Response {
	sysID, err := requireSysID(params.RangeID, "range_id")
	if err != nil {
		return fail("delete", err)
	}
	if err := t.client.Delete(ctx, discovery.TableRange, sysID); err != nil {
		return fail("delete", err)
	}
	rangesLogger.InfoWithFields("deleted discovery range", logging.Field("range_id", sysID))
	return ok("delete", fmt.Sprintf("Deleted range (%s)", sysID), map[string]string{"sys_id": sysID})
}

// ValidationResult is the validate action payload.
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Issues    []string `json:"issues,omitempty"`
	Validated *struct {
		RangeType  string `json:"range_type"`
		RangeStart string `json:"range_start"`
		RangeEnd   string `json:"range_end,omitempty"`
	} `json:"validated,omitempty"`
}

// validate checks a range definition without touching the instance.
func (t *RangesTool) validate(params RangesInput) *Response {
	var issues []string

	rt := strings.TrimSpace(params.RangeType)
	switch {
	case rt == "":
		issues = append(issues, "range_type is required")
	case !validRangeType(rt):
		issues = append(issues, fmt.Sprintf("invalid range_type %q, valid types: %s", rt, strings.Join(validRangeTypes, ", ")))
	}

	start := strings.TrimSpace(params.RangeStart)
	if start == "" {
		issues = append(issues, "range_start is required")
	}
	end := strings.TrimSpace(params.RangeEnd)
	if rt == discovery.RangeTypeIPRange && end == "" {
		issues = append(issues, "range_end is required for 'IP Range' type")
	}

	if len(issues) == 0 {
		def := discovery.Range{Name: "candidate", Type: rt, RangeStart: start, RangeEnd: end}
		if err := def.Validate(); err != nil {
			var serr *snow.Error
			if errors.As(err, &serr) {
				issues = append(issues, serr.Message)
			} else {
				issues = append(issues, err.Error())
			}
		}
	}

	result := ValidationResult{Valid: len(issues) == 0, Issues: issues}
	if !result.Valid {
		return &Response{
			Success: false,
			Action:  "validate",
			Message: fmt.Sprintf("Validation failed: %s", fmtCount(len(issues), "issue", "issues")),
			Data:    result,
			Err:     &ErrorPayload{Error: strings.Join(issues, "; "), ErrorCode: snow.CodeInvalidParameter},
		}
	}
	result.Validated = &struct {
		RangeType  string `json:"range_type"`
		RangeStart string `json:"range_start"`
		RangeEnd   string `json:"range_end,omitempty"`
	}{RangeType: rt, RangeStart: start, RangeEnd: end}
	return ok("validate", "Validation passed", result)
}

func validRangeType(value string) bool {
	for _, v := range validRangeTypes {
		if v == value {
			return true
		}
	}
	return false
}

func boolField(v *bool, def bool) string {
	if v == nil {
		return strconv.FormatBool(def)
	}
	return strconv.FormatBool(*v)
}
