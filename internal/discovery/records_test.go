package discovery

import (
	"testing"
	"time"

	"github.com/snowops/discovery-agent/internal/snow"
)

func TestRunFromRecord(t *testing.T) {
	rec := snow.Record{
		"sys_id":      "0123456789abcdef0123456789abcdef",
		"name":        "Nightly scan",
		"state":       "Completed",
		"source":      "Schedule: Nightly",
		"dscl_status": "Classified",
		"started":     "2026-08-01 02:00:00",
		"completed":   "2026-08-01 02:45:30",
		"ci_count":    "128",
		"ip_address":  "10.0.0.0/24",
		"mid_server":  map[string]interface{}{"value": "midsysid", "link": "https://x/api/now/table/ecc_agent/midsysid"},
		"u_custom":    "kept",
	}

	run := RunFromRecord(rec)

	if run.SysID != "0123456789abcdef0123456789abcdef" {
		t.Errorf("SysID = %q", run.SysID)
	}
	if run.State != RunStateComplete {
		t.Errorf("State = %q, want complete", run.State)
	}
	if run.RawState != "Completed" {
		t.Errorf("RawState = %q", run.RawState)
	}
	if run.CICount != 128 {
		t.Errorf("CICount = %d", run.CICount)
	}
	if run.MIDServer != "midsysid" {
		t.Errorf("reference field not flattened: %q", run.MIDServer)
	}
	if got := run.Duration(); got != 45*time.Minute+30*time.Second {
		t.Errorf("Duration = %v", got)
	}
	if run.Extra["u_custom"] != "kept" {
		t.Errorf("unknown field dropped: %v", run.Extra)
	}
	if !run.Terminal() {
		t.Error("completed run should be terminal")
	}
}

func TestNormalizeRunState(t *testing.T) {
	cases := []struct {
		raw  string
		want RunState
	}{
		{"Starting", RunStateRunning},
		{"Active", RunStateRunning},
		{"Completed", RunStateComplete},
		{"Error", RunStateError},
		{"Cancelled", RunStateCancelled},
		{"canceled", RunStateCancelled},
		{"  active  ", RunStateRunning},
		{"Paused", RunStateUnknown},
		{"", RunStateUnknown},
	}
	for _, tc := range cases {
		if got := NormalizeRunState(tc.raw); got != tc.want {
			t.Errorf("NormalizeRunState(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestRunFromRecordDegradesBadValues(t *testing.T) {
	run := RunFromRecord(snow.Record{
		"sys_id":   "a",
		"started":  "not a timestamp",
		"ci_count": "many",
	})
	if !run.Started.IsZero() {
		t.Errorf("bad timestamp should yield zero time, got %v", run.Started)
	}
	if run.CICount != 0 {
		t.Errorf("bad count should default to 0, got %d", run.CICount)
	}
	if run.Duration() != 0 {
		t.Errorf("missing timestamps should yield zero duration")
	}
}

func TestLogEntryFromRecord(t *testing.T) {
	entry := LogEntryFromRecord(snow.Record{
		"sys_id":         "log1",
		"status":         map[string]interface{}{"value": "run1"},
		"level":          "Error",
		"message":        "Authentication failed for 10.1.2.3",
		"source":         "SSH",
		"sys_created_on": "2026-08-01 02:10:00",
	})
	if entry.RunID != "run1" {
		t.Errorf("RunID = %q", entry.RunID)
	}
	if !entry.IsError() {
		t.Error("Error level entry should report IsError")
	}
	if entry.IsWarning() {
		t.Error("Error level entry is not a warning")
	}
	if entry.CreatedOn.IsZero() {
		t.Error("CreatedOn should parse")
	}
}

func TestScheduleDefaults(t *testing.T) {
	sched := ScheduleFromRecord(snow.Record{"sys_id": "s1", "name": "Weekly"})
	if !sched.Active {
		t.Error("active should default to true when absent")
	}

	sched = ScheduleFromRecord(snow.Record{"sys_id": "s1", "active": "false"})
	if sched.Active {
		t.Error("explicit false must win over the default")
	}
}

func TestCredentialRefStripsSecrets(t *testing.T) {
	rec := snow.Record{
		"sys_id":       "0123456789abcdef0123456789abcdef",
		"name":         "prod-ssh",
		"type":         "SSH",
		"active":       "true",
		"order":        "50",
		"password":     "supersecret",
		"ssh_password": "alsosecret",
		"api_key":      "",
		"u_note":       "rotation due 2026-09",
	}

	ref := CredentialRefFromRecord(rec)

	if ref.Name != "prod-ssh" || ref.Order != 50 || !ref.Active {
		t.Errorf("metadata fields wrong: %+v", ref)
	}
	for k, v := range ref.Extra {
		if IsSecretField(k) {
			t.Errorf("secret field %q leaked into Extra", k)
		}
		if v == "supersecret" || v == "alsosecret" {
			t.Errorf("secret value leaked via field %q", k)
		}
	}
	if ref.Extra["u_note"] != "rotation due 2026-09" {
		t.Errorf("non-secret extra field dropped: %v", ref.Extra)
	}
}

func TestIsSecretField(t *testing.T) {
	secret := []string{"password", "Password", "ssh_password", "pwd", "private_key", "passphrase", "client_secret", "api_key", "auth_token"}
	for _, name := range secret {
		if !IsSecretField(name) {
			t.Errorf("IsSecretField(%q) = false, want true", name)
		}
	}
	safe := []string{"name", "type", "tag", "order", "affinity", "sys_id"}
	for _, name := range safe {
		if IsSecretField(name) {
			t.Errorf("IsSecretField(%q) = true, want false", name)
		}
	}
}

func TestCIFromRecordIdentity(t *testing.T) {
	ci := CIFromRecord(snow.Record{
		"sys_id":         "row1",
		"cmdb_ci":        map[string]interface{}{"value": "ci42"},
		"name":           "web-01",
		"sys_class_name": "cmdb_ci_linux_server",
	})
	if ci.SysID != "ci42" {
		t.Errorf("identity should come from cmdb_ci, got %q", ci.SysID)
	}

	// Unclassified device: falls back to the history row id
	ci = CIFromRecord(snow.Record{"sys_id": "row2", "name": "unknown-device"})
	if ci.SysID != "row2" {
		t.Errorf("fallback identity = %q, want row2", ci.SysID)
	}
}

func TestParseDateTime(t *testing.T) {
	if got := ParseDateTime("2026-08-01 12:30:00"); got.IsZero() {
		t.Error("native format should parse")
	}
	if got := ParseDateTime("2026-08-01T12:30:00Z"); got.IsZero() {
		t.Error("RFC3339 should parse")
	}
	if got := ParseDateTime(""); !got.IsZero() {
		t.Errorf("empty should be zero, got %v", got)
	}
	if got := ParseDateTime("yesterday-ish"); !got.IsZero() {
		t.Errorf("garbage should be zero, got %v", got)
	}
}
