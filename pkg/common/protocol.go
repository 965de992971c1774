// Package common provides the console wire protocol and shared HTTP
// response helpers.
package common

import "time"

// Inbound message types on a console connection.
const (
	MessageTypeCommand    = "command"
	MessageTypeGetHistory = "get_history"
)

// Outbound frame types.
const (
	FrameTypeLog   = "log"
	FrameTypeStats = "stats"
	FrameTypeError = "error"
	FrameTypeInfo  = "info"
)

// ClientMessage is one frame received from a console client.
type ClientMessage struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
}

// LogFrame carries one console line to the client.
type LogFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	LogLevel  string `json:"log_level"`
	Timestamp string `json:"timestamp"`
}

// StatsFrame carries one resource usage sample to the client.
type StatsFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ErrorFrame reports a per-request failure without closing the
// connection.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// InfoFrame carries an informational notice, e.g. "Server is not
// running".
type InfoFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewLogFrame builds a log frame with an ISO-8601 timestamp.
func NewLogFrame(message, logLevel string, ts time.Time) LogFrame {
	return LogFrame{
		Type:      FrameTypeLog,
		Message:   message,
		LogLevel:  logLevel,
		Timestamp: ts.Format(time.RFC3339Nano),
	}
}

// NewStatsFrame wraps a stats sample for the wire.
func NewStatsFrame(data any) StatsFrame {
	return StatsFrame{Type: FrameTypeStats, Data: data}
}

// NewErrorFrame builds an error frame.
func NewErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: FrameTypeError, Message: message}
}

// NewInfoFrame builds an info frame.
func NewInfoFrame(message string) InfoFrame {
	return InfoFrame{Type: FrameTypeInfo, Message: message}
}
