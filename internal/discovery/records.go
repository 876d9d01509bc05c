// Package discovery normalizes raw table API records into typed domain
// values: scan runs, log entries, schedules, IP ranges, credential
// references, classification patterns and discovered CIs. Normalization is
// lenient on data (bad values degrade to zero values) and strict on
// secrets (credential secret fields never leave this package).
package discovery

import (
	"strings"
	"time"

	"github.com/snowops/discovery-agent/internal/snow"
)

// Table names in the remote instance.
const (
	TableRun           = "discovery_status"
	TableLog           = "discovery_log"
	TableSchedule      = "discovery_schedule"
	TableCredential    = "discovery_credential"
	TableRange         = "discovery_range"
	TablePattern       = "cmdb_ci_pattern"
	TableDeviceHistory = "discovery_device_history"
)

// RunState is the normalized lifecycle state of a scan run.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateComplete  RunState = "complete"
	RunStateError     RunState = "error"
	RunStateCancelled RunState = "cancelled"
	RunStateUnknown   RunState = "unknown"
)

// NormalizeRunState maps the instance's state labels onto the normalized
// set. Unrecognized labels map to unknown; RawState keeps the original.
func NormalizeRunState(raw string) RunState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "starting", "active":
		return RunStateRunning
	case "completed":
		return RunStateComplete
	case "error":
		return RunStateError
	case "cancelled", "canceled":
		return RunStateCancelled
	default:
		return RunStateUnknown
	}
}

// Run is one scan run from the discovery_status table.
type Run struct {
	SysID                string
	Name                 string
	State                RunState
	RawState             string
	Source               string
	ClassificationStatus string
	LogSummary           string
	Started              time.Time
	Completed            time.Time
	CICount              int
	IPAddress            string
	MIDServer            string
	Extra                map[string]string
}

// RunFromRecord normalizes a raw discovery_status record
func RunFromRecord(rec snow.Record) Run {
	r := newFieldReader(rec)
	rawState := r.String("state")
	return Run{
		SysID:                r.String("sys_id"),
		Name:                 r.String("name"),
		State:                NormalizeRunState(rawState),
		RawState:             rawState,
		Source:               r.String("source"),
		ClassificationStatus: r.String("dscl_status"),
		LogSummary:           r.String("log"),
		Started:              r.Time("started"),
		Completed:            r.Time("completed"),
		CICount:              r.Int("ci_count", 0),
		IPAddress:            r.String("ip_address"),
		MIDServer:            r.String("mid_server"),
		Extra:                r.Extra(),
	}
}

// Terminal reports whether the run has reached a final state
func (r Run) Terminal() bool {
	switch r.State {
	case RunStateComplete, RunStateError, RunStateCancelled:
		return true
	}
	return false
}

// Duration returns the wall-clock scan duration, zero when either
// timestamp is missing
func (r Run) Duration() time.Duration {
	if r.Started.IsZero() || r.Completed.IsZero() {
		return 0
	}
	return r.Completed.Sub(r.Started)
}

// LogEntry is one discovery_log row, linked to its run via RunID.
type LogEntry struct {
	SysID     string
	RunID     string
	Level     string
	Message   string
	Source    string
	CreatedOn time.Time
	Extra     map[string]string
}

// LogEntryFromRecord normalizes a raw discovery_log record
func LogEntryFromRecord(rec snow.Record) LogEntry {
	r := newFieldReader(rec)
	return LogEntry{
		SysID:     r.String("sys_id"),
		RunID:     r.String("status"),
		Level:     r.String("level"),
		Message:   r.String("message"),
		Source:    r.String("source"),
		CreatedOn: r.Time("sys_created_on"),
		Extra:     r.Extra(),
	}
}

// IsError reports whether the entry is error-severity
func (e LogEntry) IsError() bool {
	return strings.EqualFold(e.Level, "error")
}

// IsWarning reports whether the entry is warning-severity
func (e LogEntry) IsWarning() bool {
	return strings.EqualFold(e.Level, "warning")
}

// Schedule is one discovery_schedule row.
type Schedule struct {
	SysID           string
	Name            string
	Active          bool
	DiscoverType    string
	MaxRunTime      string
	RunDayOfWeek    string
	RunTime         string
	MIDSelectMethod string
	Location        string
	Extra           map[string]string
}

// ScheduleFromRecord normalizes a raw discovery_schedule record
func ScheduleFromRecord(rec snow.Record) Schedule {
	r := newFieldReader(rec)
	return Schedule{
		SysID:           r.String("sys_id"),
		Name:            r.String("name"),
		Active:          r.BoolDefault("active", true),
		DiscoverType:    r.String("discover"),
		MaxRunTime:      r.String("max_run_time"),
		RunDayOfWeek:    r.String("run_dayofweek"),
		RunTime:         r.String("run_time"),
		MIDSelectMethod: r.String("mid_select_method"),
		Location:        r.String("location"),
		Extra:           r.Extra(),
	}
}

// CredentialRef is the safe, metadata-only view of a discovery_credential
// row. Secret fields are stripped by SanitizeCredentialRecord before this
// struct is built and can never appear here, including in Extra.
type CredentialRef struct {
	SysID    string
	Name     string
	Type     string
	Active   bool
	Tag      string
	Order    int
	Affinity string
	Extra    map[string]string
}

// CredentialRefFromRecord sanitizes and normalizes a raw
// discovery_credential record
func CredentialRefFromRecord(rec snow.Record) CredentialRef {
	r := newFieldReader(SanitizeCredentialRecord(rec))
	return CredentialRef{
		SysID:    r.String("sys_id"),
		Name:     r.String("name"),
		Type:     r.String("type"),
		Active:   r.BoolDefault("active", true),
		Tag:      r.String("tag"),
		Order:    r.Int("order", 100),
		Affinity: r.String("affinity"),
		Extra:    r.Extra(),
	}
}

// Pattern is one cmdb_ci_pattern classification rule.
type Pattern struct {
	SysID       string
	Name        string
	Active      bool
	CIType      string
	Criteria    string
	Description string
	Extra       map[string]string
}

// PatternFromRecord normalizes a raw cmdb_ci_pattern record
func PatternFromRecord(rec snow.Record) Pattern {
	r := newFieldReader(rec)
	return Pattern{
		SysID:       r.String("sys_id"),
		Name:        r.String("name"),
		Active:      r.BoolDefault("active", true),
		CIType:      r.String("ci_type"),
		Criteria:    r.String("criteria"),
		Description: r.String("description"),
		Extra:       r.Extra(),
	}
}

// CI is one discovered configuration item from discovery_device_history.
// Identity is the CMDB record's sys_id when the row links one, falling
// back to the history row's own sys_id for unclassified devices.
type CI struct {
	SysID     string
	Name      string
	Class     string
	IPAddress string
	RunID     string
	Issues    int
	Extra     map[string]string
}

// CIFromRecord normalizes a raw discovery_device_history record
func CIFromRecord(rec snow.Record) CI {
	r := newFieldReader(rec)
	rowID := r.String("sys_id")
	id := r.String("cmdb_ci")
	if id == "" {
		id = rowID
	}
	return CI{
		SysID:     id,
		Name:      r.String("name"),
		Class:     r.String("sys_class_name"),
		IPAddress: r.String("source"),
		RunID:     r.String("status"),
		Issues:    r.Int("issues", 0),
		Extra:     r.Extra(),
	}
}
