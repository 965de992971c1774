package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	apperrors "github.com/Vova4kaua/UADIA/pkg/errors"
)

// DefaultInputPath is the pipe inside the game container that the
// server process reads commands from.
const DefaultInputPath = "/minecraft/stdin"

// DockerRuntime implements Runtime using the Docker Engine API.
type DockerRuntime struct {
	cli       client.APIClient
	inputPath string
}

// NewDockerRuntime creates a DockerRuntime with a new Docker client
// from the environment.
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerRuntime{cli: cli, inputPath: DefaultInputPath}, nil
}

// NewDockerRuntimeFromClient wraps an existing Docker client.
func NewDockerRuntimeFromClient(cli client.APIClient) *DockerRuntime {
	return &DockerRuntime{cli: cli, inputPath: DefaultInputPath}
}

// Ping checks connectivity to the Docker daemon.
func (r *DockerRuntime) Ping(ctx context.Context) error {
	_, err := r.cli.Ping(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrRuntimeUnavailable, err)
	}
	return nil
}

// SetInputPath overrides the in-container command pipe path.
func (r *DockerRuntime) SetInputPath(path string) {
	if path != "" {
		r.inputPath = path
	}
}

func (r *DockerRuntime) Resolve(ctx context.Context, name string) (Handle, error) {
	info, err := r.cli.ContainerInspect(ctx, name)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return Handle{}, fmt.Errorf("container %q: %w", name, apperrors.ErrServerNotRunning)
		}
		return Handle{}, fmt.Errorf("inspect container %q: %w: %v", name, apperrors.ErrRuntimeUnavailable, err)
	}
	if info.State == nil || !info.State.Running {
		return Handle{}, fmt.Errorf("container %q stopped: %w", name, apperrors.ErrServerNotRunning)
	}
	return Handle{ContainerID: info.ID, Name: name}, nil
}

func (r *DockerRuntime) StreamLogs(ctx context.Context, h Handle, tail int) (io.ReadCloser, error) {
	opts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Tail:       strconv.Itoa(tail),
	}
	rc, err := r.cli.ContainerLogs(ctx, h.ContainerID, opts)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("container %q: %w", h.Name, apperrors.ErrServerNotRunning)
		}
		return nil, fmt.Errorf("container logs %q: %w: %v", h.Name, apperrors.ErrRuntimeUnavailable, err)
	}

	// The engine multiplexes stdout/stderr with an 8-byte frame
	// header; demux through a pipe so callers see plain lines.
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, rc)
		_ = rc.Close()
		pw.CloseWithError(err)
	}()
	return &logStream{PipeReader: pr, src: rc}, nil
}

// logStream closes both the demux pipe and the underlying engine
// stream, so cancelling a reader unblocks the follow.
type logStream struct {
	*io.PipeReader
	src io.Closer
}

func (s *logStream) Close() error {
	_ = s.src.Close()
	return s.PipeReader.Close()
}

func (r *DockerRuntime) SubmitInput(ctx context.Context, h Handle, text string) error {
	execCfg := container.ExecOptions{
		Cmd:          inputCommand(text, r.inputPath),
		AttachStdout: true,
		AttachStderr: true,
	}

	resp, err := r.cli.ContainerExecCreate(ctx, h.ContainerID, execCfg)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("container %q: %w", h.Name, apperrors.ErrServerNotRunning)
		}
		return fmt.Errorf("create exec: %w", err)
	}

	attach, err := r.cli.ContainerExecAttach(ctx, resp.ID, container.ExecAttachOptions{})
	if err != nil {
		return fmt.Errorf("attach exec: %w", err)
	}
	defer attach.Close()

	var stdout, stderr strings.Builder
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return fmt.Errorf("read exec output: %w", err)
	}

	info, err := r.cli.ContainerExecInspect(ctx, resp.ID)
	if err != nil {
		return fmt.Errorf("inspect exec: %w", err)
	}
	if info.ExitCode != 0 {
		return fmt.Errorf("submit input: exit code %d: %s", info.ExitCode, stderr.String())
	}
	return nil
}

func (r *DockerRuntime) SampleCounters(ctx context.Context, h Handle) (Counters, error) {
	resp, err := r.cli.ContainerStats(ctx, h.ContainerID, false)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return Counters{}, fmt.Errorf("container %q: %w", h.Name, apperrors.ErrServerNotRunning)
		}
		return Counters{}, fmt.Errorf("container stats %q: %w: %v", h.Name, apperrors.ErrRuntimeUnavailable, err)
	}
	defer resp.Body.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return Counters{}, fmt.Errorf("decode stats: %w", err)
	}

	return Counters{
		CPUTotal:     stats.CPUStats.CPUUsage.TotalUsage,
		PreCPUTotal:  stats.PreCPUStats.CPUUsage.TotalUsage,
		SystemCPU:    stats.CPUStats.SystemUsage,
		PreSystemCPU: stats.PreCPUStats.SystemUsage,
		MemoryUsage:  stats.MemoryStats.Usage,
		MemoryLimit:  stats.MemoryStats.Limit,
	}, nil
}

func (r *DockerRuntime) Close() error {
	return r.cli.Close()
}

// inputCommand builds the in-container shell command that appends one
// line to the game's command pipe. The line is single-quoted so shell
// metacharacters in player input stay inert; embedded quotes are
// rewritten to the '\'' escape.
func inputCommand(text, inputPath string) []string {
	quoted := strings.ReplaceAll(text, `'`, `'\''`)
	return []string{"sh", "-c", fmt.Sprintf("echo '%s' > %s", quoted, inputPath)}
}
