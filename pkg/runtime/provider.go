package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/Vova4kaua/UADIA/pkg/errors"
)

const (
	// DefaultNameTemplate maps a server ID to its container name.
	DefaultNameTemplate = "minecraft_server_%s"

	defaultResolveTimeout = 5 * time.Second
)

// HandleProvider resolves server IDs to container handles, memoizing
// successful resolutions per server. Resolution is bounded by an
// internal timeout; a transient failure is retried once before it is
// surfaced. Locking is per-server, so different servers resolve fully
// in parallel.
type HandleProvider struct {
	rt       Runtime
	template string
	timeout  time.Duration

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	handles map[string]Handle
}

// NewHandleProvider creates a provider over rt. nameTemplate must
// contain one %s verb for the server ID; empty means
// DefaultNameTemplate. A non-positive timeout gets a default.
func NewHandleProvider(rt Runtime, nameTemplate string, timeout time.Duration) *HandleProvider {
	if nameTemplate == "" {
		nameTemplate = DefaultNameTemplate
	}
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	return &HandleProvider{
		rt:       rt,
		template: nameTemplate,
		timeout:  timeout,
		locks:    make(map[string]*sync.Mutex),
		handles:  make(map[string]Handle),
	}
}

// ContainerName returns the container name for a server ID.
func (p *HandleProvider) ContainerName(serverID string) string {
	return fmt.Sprintf(p.template, serverID)
}

// Get returns the memoized handle for serverID, resolving it when no
// cached handle exists.
func (p *HandleProvider) Get(ctx context.Context, serverID string) (Handle, error) {
	lock := p.serverLock(serverID)
	lock.Lock()
	defer lock.Unlock()

	p.mu.Lock()
	h, ok := p.handles[serverID]
	p.mu.Unlock()
	if ok {
		return h, nil
	}

	h, err := p.resolve(ctx, serverID)
	if errors.Is(err, apperrors.ErrRuntimeUnavailable) {
		slog.Warn("container resolve failed, retrying once",
			slog.String("server", serverID), slog.String("error", err.Error()))
		h, err = p.resolve(ctx, serverID)
	}
	if err != nil {
		return Handle{}, err
	}

	p.mu.Lock()
	p.handles[serverID] = h
	p.mu.Unlock()
	return h, nil
}

// Invalidate drops the cached handle for serverID, forcing the next
// Get to re-resolve. Called after a runtime-level failure on the
// handle.
func (p *HandleProvider) Invalidate(serverID string) {
	p.mu.Lock()
	delete(p.handles, serverID)
	p.mu.Unlock()
}

func (p *HandleProvider) resolve(ctx context.Context, serverID string) (Handle, error) {
	rctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	h, err := p.rt.Resolve(rctx, p.ContainerName(serverID))
	if err != nil {
		if rctx.Err() != nil && !errors.Is(err, apperrors.ErrServerNotRunning) {
			return Handle{}, fmt.Errorf("resolve %q timed out: %w", serverID, apperrors.ErrRuntimeUnavailable)
		}
		return Handle{}, err
	}
	return h, nil
}

func (p *HandleProvider) serverLock(serverID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.locks[serverID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[serverID] = lock
	}
	return lock
}
