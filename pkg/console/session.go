package console

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Vova4kaua/UADIA/pkg/common"
	"github.com/Vova4kaua/UADIA/pkg/errors"
	"github.com/Vova4kaua/UADIA/pkg/history"
	"github.com/Vova4kaua/UADIA/pkg/runtime"
)

// State is a session lifecycle phase.
type State int32

const (
	StateCreated State = iota
	StateAttaching
	StateStreaming
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAttaching:
		return "attaching"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TeardownPolicy controls what happens when the last observer leaves.
type TeardownPolicy string

const (
	// TeardownEager cancels the reader as soon as no observers remain.
	TeardownEager TeardownPolicy = "eager"

	// TeardownLazy keeps streaming for a grace period to absorb rapid
	// reconnects.
	TeardownLazy TeardownPolicy = "lazy"
)

// Options tune session behavior.
type Options struct {
	Policy        TeardownPolicy
	GracePeriod   time.Duration // lazy reconnect window
	DrainTimeout  time.Duration // bound on the persistence flush at close
	ReplayLimit   int           // history lines replayed on mid-stream attach
	TailLines     int           // container log tail when streaming starts
	PersistQueue  int           // bounded history write queue
	ObserverQueue int           // bounded per-observer send queue
}

func (o Options) withDefaults() Options {
	if o.Policy == "" {
		o.Policy = TeardownEager
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 30 * time.Second
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 5 * time.Second
	}
	if o.ReplayLimit <= 0 {
		o.ReplayLimit = 100
	}
	if o.TailLines <= 0 {
		o.TailLines = 100
	}
	if o.PersistQueue <= 0 {
		o.PersistQueue = 1024
	}
	if o.ObserverQueue <= 0 {
		o.ObserverQueue = DefaultObserverQueue
	}
	return o
}

// Session is the live streaming and control context for one server's
// container. It owns the single background reader, fans produced
// events out to attached observers, serializes command submission, and
// walks CREATED → ATTACHING → STREAMING → DRAINING → CLOSED exactly
// once. CLOSED is terminal; the registry creates a fresh Session for
// the next attach.
type Session struct {
	serverID string
	opts     Options
	rt       runtime.Runtime
	provider *runtime.HandleProvider
	store    history.Store
	onClose  func(*Session)

	mu         sync.Mutex
	state      State
	observers  map[string]*Observer
	handle     runtime.Handle
	cancel     context.CancelFunc
	readerDone chan struct{}
	graceTimer *time.Timer

	// cmdMu serializes command submission so concurrent submitters get
	// a total echo order.
	cmdMu sync.Mutex

	persistCh   chan LogEvent
	persistStop chan struct{}
	persistDone chan struct{}
	persistOnce sync.Once
}

func newSession(serverID string, rt runtime.Runtime, provider *runtime.HandleProvider,
	store history.Store, opts Options, onClose func(*Session)) *Session {
	opts = opts.withDefaults()
	return &Session{
		serverID:    serverID,
		opts:        opts,
		rt:          rt,
		provider:    provider,
		store:       store,
		onClose:     onClose,
		state:       StateCreated,
		observers:   make(map[string]*Observer),
		persistCh:   make(chan LogEvent, opts.PersistQueue),
		persistStop: make(chan struct{}),
		persistDone: make(chan struct{}),
	}
}

// ServerID returns the server this session streams.
func (s *Session) ServerID() string { return s.serverID }

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ObserverCount returns the number of attached observers.
func (s *Session) ObserverCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

// attach joins an observer. The first attach resolves the container
// and starts the reader; later attaches replay recent history before
// the observer joins live fan-out. Called under the registry's
// per-server critical section.
func (s *Session) attach(ctx context.Context, obs *Observer) error {
	s.mu.Lock()
	switch s.state {
	case StateCreated:
		s.state = StateAttaching
		s.mu.Unlock()
		return s.attachFirst(ctx, obs)

	case StateStreaming:
		if s.graceTimer != nil {
			s.graceTimer.Stop()
			s.graceTimer = nil
		}
		s.mu.Unlock()

		s.replayHistory(ctx, obs)

		s.mu.Lock()
		if s.state != StateStreaming {
			s.mu.Unlock()
			return errors.ErrSessionClosed
		}
		s.observers[obs.ID()] = obs
		s.mu.Unlock()
		return nil

	default:
		s.mu.Unlock()
		return errors.ErrSessionClosed
	}
}

func (s *Session) attachFirst(ctx context.Context, obs *Observer) error {
	h, err := s.provider.Get(ctx, s.serverID)
	if err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose(s)
		}
		return err
	}

	readerCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.handle = h
	s.state = StateStreaming
	s.cancel = cancel
	s.readerDone = make(chan struct{})
	s.observers[obs.ID()] = obs
	s.mu.Unlock()

	go s.persistLoop()
	go s.readLoop(readerCtx)

	slog.Info("console session streaming",
		slog.String("server", s.serverID), slog.String("container", h.Name))
	return nil
}

// Detach removes an observer and closes it. Under the eager policy the
// reader is cancelled when the last observer leaves; under the lazy
// policy a grace timer runs first.
func (s *Session) Detach(obs *Observer) {
	s.mu.Lock()
	delete(s.observers, obs.ID())
	s.mu.Unlock()

	obs.Close()
	s.maybeTeardown()
}

// SubmitCommand injects a command into the container's input and
// echoes it to every observer as a synthetic COMMAND event. Submission
// order across concurrent submitters is total.
func (s *Session) SubmitCommand(ctx context.Context, command string) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	state := s.state
	h := s.handle
	s.mu.Unlock()

	if state != StateStreaming {
		return errors.ErrServerNotRunning
	}

	if err := s.rt.SubmitInput(ctx, h, command); err != nil {
		s.provider.Invalidate(s.serverID)
		return fmt.Errorf("submit command: %w", err)
	}

	s.publish(NewCommandEvent(s.serverID, command))
	return nil
}

// Close tears the session down with a generic notice. Used on service
// shutdown.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	state := s.state
	done := s.readerDone
	s.mu.Unlock()

	switch state {
	case StateStreaming, StateDraining:
		if cancel != nil {
			cancel()
		}
		if done != nil {
			<-done
		}
	case StateCreated, StateAttaching:
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose(s)
		}
	}
}

// readLoop is the session's single background reader: it tails recent
// container output, then follows, pushing every line through the
// publish pipeline until the stream ends or the context is cancelled.
func (s *Session) readLoop(ctx context.Context) {
	defer close(s.readerDone)

	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()

	stream, err := s.rt.StreamLogs(ctx, h, s.opts.TailLines)
	if err != nil {
		slog.Error("console stream open failed",
			slog.String("server", s.serverID), slog.String("error", err.Error()))
		s.provider.Invalidate(s.serverID)
		s.shutdown("Server is not running")
		return
	}

	// Closing the stream is what unblocks a pending read, so the
	// cancellation check below lags at most one line.
	go func() {
		<-ctx.Done()
		_ = stream.Close()
	}()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.publish(NewContainerEvent(s.serverID, line))
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		slog.Error("console stream read failed",
			slog.String("server", s.serverID), slog.String("error", err.Error()))
	}
	_ = stream.Close()
	s.provider.Invalidate(s.serverID)
	s.shutdown("Console stream closed")
}

// publish is the per-line pipeline: persist (fire-and-forget), then
// fan out to every attached observer.
func (s *Session) publish(ev LogEvent) {
	s.persist(ev)
	s.fanout(ev)
}

func (s *Session) persist(ev LogEvent) {
	select {
	case s.persistCh <- ev:
	default:
		slog.Warn("history queue full, dropping line", slog.String("server", s.serverID))
	}
}

func (s *Session) persistLoop() {
	defer close(s.persistDone)

	write := func(ev LogEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.Append(ctx, ev.ServerID, string(ev.Severity), ev.Text); err != nil {
			slog.Error("persist console line",
				slog.String("server", s.serverID), slog.String("error", err.Error()))
		}
	}

	for {
		select {
		case ev := <-s.persistCh:
			write(ev)
		case <-s.persistStop:
			for {
				select {
				case ev := <-s.persistCh:
					write(ev)
				default:
					return
				}
			}
		}
	}
}

// fanout delivers one event to all attached observers. Delivery order
// is identical for every observer because the set is held locked for
// the whole enqueue pass. Observers that cannot keep up are detached;
// their error never reaches the others.
func (s *Session) fanout(ev LogEvent) {
	frame := common.NewLogFrame(ev.Text, string(ev.Severity), ev.Timestamp)

	s.mu.Lock()
	var dropped []*Observer
	for _, obs := range s.observers {
		if err := obs.Send(frame); err != nil {
			dropped = append(dropped, obs)
		}
	}
	for _, obs := range dropped {
		delete(s.observers, obs.ID())
	}
	s.mu.Unlock()

	for _, obs := range dropped {
		slog.Warn("observer cannot keep up, detaching",
			slog.String("server", s.serverID), slog.String("observer", obs.ID()))
		obs.Close()
	}
	if len(dropped) > 0 {
		s.maybeTeardown()
	}
}

// replayHistory sends the most recent persisted lines, oldest first,
// before the observer joins live fan-out. Replay is best-effort: it is
// not guaranteed gapless relative to live delivery.
func (s *Session) replayHistory(ctx context.Context, obs *Observer) {
	entries, err := s.store.Recent(ctx, s.serverID, s.opts.ReplayLimit)
	if err != nil {
		slog.Error("history replay failed",
			slog.String("server", s.serverID), slog.String("error", err.Error()))
		return
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if err := obs.Send(common.NewLogFrame(e.Message, e.Level, e.Timestamp)); err != nil {
			return
		}
	}
}

// maybeTeardown applies the teardown policy when no observers remain.
func (s *Session) maybeTeardown() {
	s.mu.Lock()
	if len(s.observers) > 0 || s.state != StateStreaming {
		s.mu.Unlock()
		return
	}

	switch s.opts.Policy {
	case TeardownLazy:
		if s.graceTimer == nil {
			s.graceTimer = time.AfterFunc(s.opts.GracePeriod, func() {
				s.mu.Lock()
				idle := len(s.observers) == 0 && s.state == StateStreaming
				cancel := s.cancel
				s.graceTimer = nil
				s.mu.Unlock()
				if idle && cancel != nil {
					cancel()
				}
			})
		}
		s.mu.Unlock()
	default:
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
}

// shutdown drives DRAINING → CLOSED: stop the reader, flush pending
// history writes within the drain timeout, send one terminal notice to
// every observer, detach them, and unlink from the registry. Events
// still buffered past an observer's queue at this point are dropped.
func (s *Session) shutdown(notice string) {
	s.mu.Lock()
	if s.state == StateDraining || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateDraining
	cancel := s.cancel
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	remaining := make([]*Observer, 0, len(s.observers))
	for _, obs := range s.observers {
		remaining = append(remaining, obs)
	}
	s.observers = make(map[string]*Observer)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	s.flushPersist()

	for _, obs := range remaining {
		_ = obs.Send(common.NewInfoFrame(notice))
		obs.Close()
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	slog.Info("console session closed", slog.String("server", s.serverID))
	if s.onClose != nil {
		s.onClose(s)
	}
}

func (s *Session) flushPersist() {
	s.persistOnce.Do(func() { close(s.persistStop) })
	select {
	case <-s.persistDone:
	case <-time.After(s.opts.DrainTimeout):
		slog.Warn("history flush timed out", slog.String("server", s.serverID))
	}
}
