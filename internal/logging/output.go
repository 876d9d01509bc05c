package logging

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
)

// forceStderr routes every level to stderr when set. Required for the stdio
// MCP transport, where stdout carries protocol frames.
var forceStderr atomic.Bool

// UseStderr redirects all log output to stderr. Used by the stdio transport.
func UseStderr() {
	forceStderr.Store(true)
}

// writeLog formats the message with optional fields and routes it:
// ERROR/FATAL to stderr, everything else to stdout (unless UseStderr).
func (l *Logger) writeLog(level, msg string, fields map[string]interface{}) {
	logMsg := fmt.Sprintf("[%s] [%s] %s: %s", GetTimestamp(), level, l.name, msg)

	if len(fields) > 0 {
		logMsg += " |"
		for k, v := range fields {
			logMsg += fmt.Sprintf(" %s=%v", k, v)
		}
	}

	var out io.Writer = os.Stdout
	if forceStderr.Load() || level == strError || level == strFatal {
		out = os.Stderr
	}
	fmt.Fprintf(out, "%s\n", logMsg)
}

// logf handles printf-style messages
func (l *Logger) logf(level, msg string, args ...interface{}) {
	formattedMsg := fmt.Sprintf(msg, args...)

	contextFields := extractContextFields(l.ctx)
	var mergedFields map[string]interface{}

	if contextFields != nil || len(l.fields) > 0 {
		mergedFields = make(map[string]interface{})
		for k, v := range contextFields {
			mergedFields[k] = v
		}
		for k, v := range l.fields {
			mergedFields[k] = v
		}
	}

	l.writeLog(level, formattedMsg, mergedFields)
}

// GetTimestamp returns an RFC3339 timestamp. The LOG_TIMESTAMP env var
// overrides it for deterministic test output.
func GetTimestamp() string {
	if override := os.Getenv("LOG_TIMESTAMP"); override != "" {
		return override
	}
	return time.Now().Format(time.RFC3339)
}
