// Package runtime adapts the container runtime for the console: handle
// resolution with per-server memoization, log streaming, command
// injection into the game process, and resource counter sampling.
package runtime

import (
	"context"
	"io"
)

// Handle is a resolved reference to a live server container. A handle
// becomes invalid when the container is removed or the runtime
// connection drops; it must then be re-resolved, never reused.
type Handle struct {
	ContainerID string
	Name        string
}

// Counters is a point-in-time snapshot of runtime resource counters.
// The runtime supplies the previous reading alongside the current one
// so percentages can be derived from deltas.
type Counters struct {
	CPUTotal     uint64
	PreCPUTotal  uint64
	SystemCPU    uint64
	PreSystemCPU uint64
	MemoryUsage  uint64
	MemoryLimit  uint64
}

// Runtime is the narrow container-runtime surface the console needs.
type Runtime interface {
	// Resolve looks up a running container by name. Absent or stopped
	// containers yield errors.ErrServerNotRunning; unreachable runtime
	// yields errors.ErrRuntimeUnavailable.
	Resolve(ctx context.Context, name string) (Handle, error)

	// StreamLogs returns a plain-text line stream of the container's
	// output: the most recent tail lines, then following new output
	// until the stream is closed or the container stops. The stream is
	// not restartable; a new call re-tails from the runtime's buffer.
	StreamLogs(ctx context.Context, h Handle, tail int) (io.ReadCloser, error)

	// SubmitInput injects one line into the game process's input.
	SubmitInput(ctx context.Context, h Handle, text string) error

	// SampleCounters fetches current and previous resource counters.
	SampleCounters(ctx context.Context, h Handle) (Counters, error)
}
