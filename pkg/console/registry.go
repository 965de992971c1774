package console

import (
	"context"
	"log/slog"
	"sync"

	stderrors "errors"

	"github.com/Vova4kaua/UADIA/pkg/errors"
	"github.com/Vova4kaua/UADIA/pkg/history"
	"github.com/Vova4kaua/UADIA/pkg/runtime"
)

// Registry owns at most one live Session per server. All attaches for
// a server funnel through its per-server critical section, so
// concurrent first attaches still produce exactly one reader.
type Registry struct {
	rt       runtime.Runtime
	provider *runtime.HandleProvider
	store    history.Store
	opts     Options

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	sessions map[string]*Session
}

// NewRegistry builds a session registry over the given runtime,
// handle provider and history store.
func NewRegistry(rt runtime.Runtime, provider *runtime.HandleProvider, store history.Store, opts Options) *Registry {
	return &Registry{
		rt:       rt,
		provider: provider,
		store:    store,
		opts:     opts.withDefaults(),
		locks:    make(map[string]*sync.Mutex),
		sessions: make(map[string]*Session),
	}
}

// Attach joins the observer to the server's session, creating the
// session when none is live. A session caught mid-close is replaced
// with a fresh one.
func (r *Registry) Attach(ctx context.Context, serverID string, obs *Observer) (*Session, error) {
	lock := r.serverLock(serverID)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		r.mu.Lock()
		sess, ok := r.sessions[serverID]
		if !ok {
			sess = newSession(serverID, r.rt, r.provider, r.store, r.opts, r.remove)
			r.sessions[serverID] = sess
		}
		r.mu.Unlock()

		err := sess.attach(ctx, obs)
		if err == nil {
			return sess, nil
		}
		if stderrors.Is(err, errors.ErrSessionClosed) && ok {
			// Raced a closing session; retry with a fresh one.
			continue
		}
		return nil, err
	}
	return nil, errors.ErrSessionClosed
}

// Session returns the live session for a server, if any.
func (r *Registry) Session(serverID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[serverID]
	return sess, ok
}

// CloseAll tears down every live session. Used on service shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	slog.Info("all console sessions closed", slog.Int("count", len(sessions)))
}

// remove unlinks a closed session. Identity-compared so a replacement
// session registered under the same server is never evicted.
func (r *Registry) remove(sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[sess.serverID]; ok && cur == sess {
		delete(r.sessions, sess.serverID)
	}
}

func (r *Registry) serverLock(serverID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[serverID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[serverID] = lock
	}
	return lock
}
