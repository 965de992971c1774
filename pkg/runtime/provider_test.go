package runtime

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vova4kaua/UADIA/pkg/errors"
)

type countingRuntime struct {
	mu       sync.Mutex
	resolves int
	errs     []error // consumed per resolve; nil entry means success
}

func (c *countingRuntime) Resolve(ctx context.Context, name string) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolves++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return Handle{}, err
		}
	}
	return Handle{ContainerID: "cid-" + name, Name: name}, nil
}

func (c *countingRuntime) StreamLogs(context.Context, Handle, int) (io.ReadCloser, error) {
	return nil, errors.ErrRuntimeUnavailable
}

func (c *countingRuntime) SubmitInput(context.Context, Handle, string) error { return nil }

func (c *countingRuntime) SampleCounters(context.Context, Handle) (Counters, error) {
	return Counters{}, nil
}

func (c *countingRuntime) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolves
}

func TestProviderContainerName(t *testing.T) {
	p := NewHandleProvider(&countingRuntime{}, "", 0)
	assert.Equal(t, "minecraft_server_abc", p.ContainerName("abc"))

	p = NewHandleProvider(&countingRuntime{}, "mc_%s", 0)
	assert.Equal(t, "mc_abc", p.ContainerName("abc"))
}

func TestProviderMemoizesHandles(t *testing.T) {
	rt := &countingRuntime{}
	p := NewHandleProvider(rt, "", time.Second)

	ctx := context.Background()
	h1, err := p.Get(ctx, "srv1")
	require.NoError(t, err)
	assert.Equal(t, "cid-minecraft_server_srv1", h1.ContainerID)

	h2, err := p.Get(ctx, "srv1")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, rt.count(), "second Get should hit the cache")

	// A different server resolves separately.
	_, err = p.Get(ctx, "srv2")
	require.NoError(t, err)
	assert.Equal(t, 2, rt.count())
}

func TestProviderInvalidate(t *testing.T) {
	rt := &countingRuntime{}
	p := NewHandleProvider(rt, "", time.Second)

	ctx := context.Background()
	_, err := p.Get(ctx, "srv1")
	require.NoError(t, err)

	p.Invalidate("srv1")

	_, err = p.Get(ctx, "srv1")
	require.NoError(t, err)
	assert.Equal(t, 2, rt.count(), "invalidate should force a fresh resolve")
}

func TestProviderRetriesTransientFailure(t *testing.T) {
	rt := &countingRuntime{errs: []error{errors.ErrRuntimeUnavailable, nil}}
	p := NewHandleProvider(rt, "", time.Second)

	h, err := p.Get(context.Background(), "srv1")
	require.NoError(t, err)
	assert.Equal(t, "cid-minecraft_server_srv1", h.ContainerID)
	assert.Equal(t, 2, rt.count(), "transient failure should be retried once")
}

func TestProviderDoesNotRetryNotRunning(t *testing.T) {
	rt := &countingRuntime{errs: []error{errors.ErrServerNotRunning}}
	p := NewHandleProvider(rt, "", time.Second)

	_, err := p.Get(context.Background(), "srv1")
	require.ErrorIs(t, err, errors.ErrServerNotRunning)
	assert.Equal(t, 1, rt.count(), "stopped server is terminal, no retry")

	// The failure is not cached.
	rt.mu.Lock()
	rt.errs = nil
	rt.mu.Unlock()
	_, err = p.Get(context.Background(), "srv1")
	require.NoError(t, err)
}

func TestInputCommand(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"plain", "stop", "echo 'stop' > /minecraft/stdin"},
		{"spaces", "say hello world", "echo 'say hello world' > /minecraft/stdin"},
		{
			"single quotes stay inert",
			"say don't",
			`echo 'say don'\''t' > /minecraft/stdin`,
		},
		{
			"shell metacharacters stay inert",
			"say $(rm -rf /); `id`",
			"echo 'say $(rm -rf /); `id`' > /minecraft/stdin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := inputCommand(tt.text, DefaultInputPath)
			require.Len(t, cmd, 3)
			assert.Equal(t, "sh", cmd[0])
			assert.Equal(t, "-c", cmd[1])
			assert.Equal(t, tt.want, cmd[2])
		})
	}
}
