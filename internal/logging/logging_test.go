package logging

import (
	"context"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DEBUG, false},
		{"INFO", INFO, false},
		{"Warn", WARN, false},
		{"error", ERROR, false},
		{"fatal", FATAL, false},
		{"verbose", -1, true},
		{"", -1, true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q): expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLevel(%q): unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestWithFieldImmutability(t *testing.T) {
	base := GetLogger("test")
	child := base.WithField("run_id", "abc123")

	if len(base.fields) != 0 {
		t.Errorf("parent logger mutated: fields = %v", base.fields)
	}
	if child.fields["run_id"] != "abc123" {
		t.Errorf("child missing field: %v", child.fields)
	}

	// Sibling children must not share field maps
	other := base.WithField("run_id", "def456")
	if child.fields["run_id"] != "abc123" {
		t.Errorf("sibling logger leaked into child: %v", child.fields)
	}
	if other.fields["run_id"] != "def456" {
		t.Errorf("sibling has wrong field: %v", other.fields)
	}
}

func TestWithFieldsMergeOrder(t *testing.T) {
	base := GetLogger("test").WithField("a", 1)
	child := base.WithFields(Field("a", 2), Field("b", 3))

	if child.fields["a"] != 2 {
		t.Errorf("later field should win: a = %v", child.fields["a"])
	}
	if child.fields["b"] != 3 {
		t.Errorf("missing field b: %v", child.fields)
	}
}

func TestExtractContextFields(t *testing.T) {
	if got := extractContextFields(nil); got != nil {
		t.Errorf("nil context should yield nil fields, got %v", got)
	}

	ctx := context.Background()
	if got := extractContextFields(ctx); got != nil {
		t.Errorf("empty context should yield nil fields, got %v", got)
	}

	ctx = context.WithValue(ctx, traceIDKey, "trace-123")
	ctx = context.WithValue(ctx, spanIDKey, "span-456")
	got := extractContextFields(ctx)
	if got["trace_id"] != "trace-123" || got["span_id"] != "span-456" {
		t.Errorf("unexpected context fields: %v", got)
	}
}

func TestFatalUsesExitFunc(t *testing.T) {
	exitCode := -1
	orig := exitFunc
	exitFunc = func(code int) { exitCode = code }
	defer func() { exitFunc = orig }()

	logger := GetLogger("test")
	logger.Fatal("boom")

	if exitCode != 1 {
		t.Errorf("Fatal should exit with code 1, got %d", exitCode)
	}
}
