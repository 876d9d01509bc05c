// Package tools implements the MCP tool surface. Each tool is a struct
// holding the table API client; all domain logic lives in the engine
// packages, the tools only fetch, delegate and shape responses.
package tools

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"
	"github.com/snowops/discovery-agent/internal/discovery"
	"github.com/snowops/discovery-agent/internal/snow"
)

// ErrorPayload is the structured error arm of a tool response.
type ErrorPayload struct {
	Error      string `json:"error"`
	ErrorCode  string `json:"error_code"`
	StatusCode int    `json:"status_code,omitempty"`
}

// Response is the envelope every tool returns. Exactly one of Data and
// Err is populated; callers can branch on Success without parsing text.
type Response struct {
	Success bool          `json:"success"`
	Action  string        `json:"action"`
	Message string        `json:"message,omitempty"`
	Data    interface{}   `json:"data,omitempty"`
	Err     *ErrorPayload `json:"error,omitempty"`
}

func ok(action, message string, data interface{}) *Response {
	return &Response{Success: true, Action: action, Message: message, Data: data}
}

// fail converts any error into the structured error arm, surfacing the
// typed client taxonomy when present
func fail(action string, err error) *Response {
	payload := &ErrorPayload{
		Error:     err.Error(),
		ErrorCode: snow.CodeUnknown,
	}
	var serr *snow.Error
	if errors.As(err, &serr) {
		payload.Error = serr.Message
		payload.ErrorCode = serr.Code
		payload.StatusCode = serr.Status
	}
	return &Response{Success: false, Action: action, Message: payload.Error, Err: payload}
}

func invalidAction(action string, valid []string) *Response {
	return fail(action, snow.InvalidParameter(
		"invalid action %q, valid actions: %s", action, strings.Join(valid, ", ")))
}

func normalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}

// requireSysID validates a required 32-hex identifier parameter
func requireSysID(value, label string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", snow.InvalidParameter("%s is required for this action", label)
	}
	if err := snow.ValidateSysID(value); err != nil {
		return "", snow.InvalidParameter("invalid %s: must be a 32-character hexadecimal sys_id", label)
	}
	return value, nil
}

// clampLimit applies a default and a hard ceiling to caller-supplied limits
func clampLimit(requested, def, max int) int {
	if requested <= 0 {
		return def
	}
	if requested > max {
		return max
	}
	return requested
}

// parseDateParam accepts a Unix timestamp (seconds) or a human-readable
// date and renders it in the instance's native datetime format.
func parseDateParam(value, fieldName string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}

	if unix, err := strconv.ParseInt(value, 10, 64); err == nil {
		if unix < 0 {
			return "", snow.InvalidParameter("%s timestamp must be non-negative", fieldName)
		}
		return time.Unix(unix, 0).UTC().Format(discovery.DateTimeFormat), nil
	}

	parser := dps.Parser{}
	cfg := &dps.Configuration{
		PreferredDateSource: dps.CurrentPeriod,
	}
	parsed, err := parser.Parse(cfg, value)
	if err != nil || parsed.IsZero() {
		return "", snow.InvalidParameter("%s must be a Unix timestamp or a parseable date, got %q", fieldName, value)
	}
	return parsed.Time.UTC().Format(discovery.DateTimeFormat), nil
}

func fmtCount(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}
