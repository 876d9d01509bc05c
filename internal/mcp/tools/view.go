package tools

import (
	"time"

	"github.com/snowops/discovery-agent/internal/discovery"
)

// JSON views of the normalized domain records. Timestamps render in the
// instance's native format so callers can feed them back into filters.

type RunView struct {
	SysID                string             `json:"sys_id"`
	Name                 string             `json:"name"`
	State                discovery.RunState `json:"state"`
	RawState             string             `json:"raw_state,omitempty"`
	Source               string             `json:"source,omitempty"`
	ClassificationStatus string             `json:"classification_status,omitempty"`
	Started              string             `json:"started,omitempty"`
	Completed            string             `json:"completed,omitempty"`
	DurationSeconds      float64            `json:"duration_seconds,omitempty"`
	CICount              int                `json:"ci_count"`
	IPAddress            string             `json:"ip_address,omitempty"`
	MIDServer            string             `json:"mid_server,omitempty"`
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(discovery.DateTimeFormat)
}

func runView(run discovery.Run) RunView {
	return RunView{
		SysID:                run.SysID,
		Name:                 run.Name,
		State:                run.State,
		RawState:             run.RawState,
		Source:               run.Source,
		ClassificationStatus: run.ClassificationStatus,
		Started:              fmtTime(run.Started),
		Completed:            fmtTime(run.Completed),
		DurationSeconds:      run.Duration().Seconds(),
		CICount:              run.CICount,
		IPAddress:            run.IPAddress,
		MIDServer:            run.MIDServer,
	}
}

func runViews(runs []discovery.Run) []RunView {
	out := make([]RunView, 0, len(runs))
	for _, run := range runs {
		out = append(out, runView(run))
	}
	return out
}

type LogView struct {
	SysID     string `json:"sys_id"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Source    string `json:"source,omitempty"`
	CreatedOn string `json:"created_on,omitempty"`
}

func logView(entry discovery.LogEntry) LogView {
	return LogView{
		SysID:     entry.SysID,
		Level:     entry.Level,
		Message:   entry.Message,
		Source:    entry.Source,
		CreatedOn: fmtTime(entry.CreatedOn),
	}
}

func logViews(entries []discovery.LogEntry) []LogView {
	out := make([]LogView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, logView(entry))
	}
	return out
}

type ScheduleView struct {
	SysID           string `json:"sys_id"`
	Name            string `json:"name"`
	Active          bool   `json:"active"`
	DiscoverType    string `json:"discover_type,omitempty"`
	MaxRunTime      string `json:"max_run_time,omitempty"`
	RunDayOfWeek    string `json:"run_dayofweek,omitempty"`
	RunTime         string `json:"run_time,omitempty"`
	MIDSelectMethod string `json:"mid_select_method,omitempty"`
	Location        string `json:"location,omitempty"`
}

func scheduleView(s discovery.Schedule) ScheduleView {
	return ScheduleView{
		SysID:           s.SysID,
		Name:            s.Name,
		Active:          s.Active,
		DiscoverType:    s.DiscoverType,
		MaxRunTime:      s.MaxRunTime,
		RunDayOfWeek:    s.RunDayOfWeek,
		RunTime:         s.RunTime,
		MIDSelectMethod: s.MIDSelectMethod,
		Location:        s.Location,
	}
}

func scheduleViews(schedules []discovery.Schedule) []ScheduleView {
	out := make([]ScheduleView, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, scheduleView(s))
	}
	return out
}

// CredentialView carries metadata only. The normalizer strips secret
// fields before a credential record reaches this layer.
type CredentialView struct {
	SysID    string `json:"sys_id"`
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Active   bool   `json:"active"`
	Tag      string `json:"tag,omitempty"`
	Order    int    `json:"order"`
	Affinity string `json:"affinity,omitempty"`
}

func credentialView(c discovery.CredentialRef) CredentialView {
	return CredentialView{
		SysID:    c.SysID,
		Name:     c.Name,
		Type:     c.Type,
		Active:   c.Active,
		Tag:      c.Tag,
		Order:    c.Order,
		Affinity: c.Affinity,
	}
}

func credentialViews(creds []discovery.CredentialRef) []CredentialView {
	out := make([]CredentialView, 0, len(creds))
	for _, c := range creds {
		out = append(out, credentialView(c))
	}
	return out
}

type RangeView struct {
	SysID      string `json:"sys_id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Active     bool   `json:"active"`
	RangeStart string `json:"range_start,omitempty"`
	RangeEnd   string `json:"range_end,omitempty"`
	Include    bool   `json:"include"`
}

func rangeView(r discovery.Range) RangeView {
	return RangeView{
		SysID:      r.SysID,
		Name:       r.Name,
		Type:       r.Type,
		Active:     r.Active,
		RangeStart: r.RangeStart,
		RangeEnd:   r.RangeEnd,
		Include:    r.Include,
	}
}

func rangeViews(ranges []discovery.Range) []RangeView {
	out := make([]RangeView, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, rangeView(r))
	}
	return out
}

type PatternView struct {
	SysID       string `json:"sys_id"`
	Name        string `json:"name"`
	Active      bool   `json:"active"`
	CIType      string `json:"ci_type,omitempty"`
	Criteria    string `json:"criteria,omitempty"`
	Description string `json:"description,omitempty"`
}

func patternView(p discovery.Pattern) PatternView {
	return PatternView{
		SysID:       p.SysID,
		Name:        p.Name,
		Active:      p.Active,
		CIType:      p.CIType,
		Criteria:    p.Criteria,
		Description: p.Description,
	}
}

func patternViews(patterns []discovery.Pattern) []PatternView {
	out := make([]PatternView, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, patternView(p))
	}
	return out
}
