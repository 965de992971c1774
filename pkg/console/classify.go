// Package console implements the real-time container console: one
// streaming session per server fanning log output out to any number of
// attached observers, command injection into the container, and
// bounded history replay.
package console

import "strings"

// Severity tags a console line for display and persistence.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarn    Severity = "WARN"
	SeverityDebug   Severity = "DEBUG"
	SeveritySuccess Severity = "SUCCESS"
	SeverityInfo    Severity = "INFO"
	SeverityCommand Severity = "COMMAND"
)

// Classify maps a raw console line to a severity. Matching is a
// case-insensitive substring check in fixed priority order:
// ERROR/SEVERE, then WARN/WARNING, then DEBUG, then SUCCESS/DONE.
// Lines matching nothing are INFO.
func Classify(line string) Severity {
	upper := strings.ToUpper(line)

	switch {
	case strings.Contains(upper, "ERROR") || strings.Contains(upper, "SEVERE"):
		return SeverityError
	case strings.Contains(upper, "WARN"):
		return SeverityWarn
	case strings.Contains(upper, "DEBUG"):
		return SeverityDebug
	case strings.Contains(upper, "SUCCESS") || strings.Contains(upper, "DONE"):
		return SeveritySuccess
	default:
		return SeverityInfo
	}
}
