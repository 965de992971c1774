package console

import (
	"sync"

	"github.com/Vova4kaua/UADIA/pkg/errors"
	"github.com/Vova4kaua/UADIA/pkg/utils"
)

// DefaultObserverQueue is the outbound queue bound per observer.
const DefaultObserverQueue = 256

// Sink is the transport half of an observer: typically a WebSocket
// connection. Send is only ever called from the observer's writer
// goroutine; Close may be called from anywhere and must be idempotent
// or tolerate a single extra call.
type Sink interface {
	Send(v any) error
	Close() error
}

// Observer is one attached console client. Outbound frames pass
// through a bounded queue drained by a single writer goroutine, so a
// slow client can never stall the session's fan-out to others. When
// the queue overflows the observer is detached and its connection
// closed.
type Observer struct {
	id    string
	sink  Sink
	queue chan any

	once    sync.Once
	closing chan struct{}
	done    chan struct{}
}

// NewObserver wraps a sink with a bounded send queue and starts the
// writer goroutine. queueSize <= 0 selects DefaultObserverQueue.
func NewObserver(sink Sink, queueSize int) *Observer {
	if queueSize <= 0 {
		queueSize = DefaultObserverQueue
	}
	o := &Observer{
		id:      utils.NewNanoID(),
		sink:    sink,
		queue:   make(chan any, queueSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go o.writeLoop()
	return o
}

// ID returns the observer's attachment identifier.
func (o *Observer) ID() string { return o.id }

// Send queues a frame for delivery. It never blocks: a full queue
// yields ErrObserverOverflow and a closed observer ErrObserverClosed.
func (o *Observer) Send(v any) error {
	select {
	case <-o.closing:
		return errors.ErrObserverClosed
	default:
	}

	select {
	case o.queue <- v:
		return nil
	default:
		return errors.ErrObserverOverflow
	}
}

// Close stops the observer. Frames already queued are flushed
// best-effort before the sink is closed; frames sent after Close are
// dropped.
func (o *Observer) Close() {
	o.once.Do(func() { close(o.closing) })
}

// Done is closed once the writer goroutine has exited and the sink is
// closed.
func (o *Observer) Done() <-chan struct{} { return o.done }

func (o *Observer) writeLoop() {
	defer func() {
		_ = o.sink.Close()
		close(o.done)
	}()

	for {
		select {
		case v := <-o.queue:
			if err := o.sink.Send(v); err != nil {
				o.Close()
				return
			}
		case <-o.closing:
			// Flush whatever is already queued, then shut the sink.
			for {
				select {
				case v := <-o.queue:
					if err := o.sink.Send(v); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}
