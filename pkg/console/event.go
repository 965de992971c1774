package console

import "time"

// Origin distinguishes container output from operator command echoes.
type Origin string

const (
	OriginContainer Origin = "container"
	OriginCommand   Origin = "command"
)

// LogEvent is one console line, classified and timestamped. Events are
// immutable once created; ordering is total per server as produced by
// the session's single reader.
type LogEvent struct {
	ServerID  string
	Severity  Severity
	Text      string
	Timestamp time.Time
	Origin    Origin
}

// NewContainerEvent classifies a raw container line into a LogEvent.
func NewContainerEvent(serverID, line string) LogEvent {
	return LogEvent{
		ServerID:  serverID,
		Severity:  Classify(line),
		Text:      line,
		Timestamp: time.Now(),
		Origin:    OriginContainer,
	}
}

// NewCommandEvent builds the synthetic echo event for a submitted
// operator command.
func NewCommandEvent(serverID, command string) LogEvent {
	return LogEvent{
		ServerID:  serverID,
		Severity:  SeverityCommand,
		Text:      "> " + command,
		Timestamp: time.Now(),
		Origin:    OriginCommand,
	}
}
