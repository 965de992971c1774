// Package history persists console log lines and serves the bounded
// recent-history reads used for replay. Writes are fire-and-forget
// from the streaming core's perspective: a failed append is logged by
// the caller and never interrupts delivery.
package history

import (
	"context"
	"time"
)

// Entry is one persisted console line.
type Entry struct {
	ServerID  string    `json:"server_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the persistence collaborator for console history.
type Store interface {
	// Append records one console line for a server.
	Append(ctx context.Context, serverID, level, message string) error

	// Recent returns up to limit persisted lines for a server,
	// most-recent-first.
	Recent(ctx context.Context, serverID string, limit int) ([]Entry, error)
}
