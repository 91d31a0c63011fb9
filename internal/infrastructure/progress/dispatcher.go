package progress

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kirillkom/chapterflow/internal/core/domain"
)

// Sink carries an encoded frame toward the session's connection.
type Sink interface {
	Deliver(sessionID string, frame []byte) error
}

type envelope struct {
	sessionID string
	kind      domain.EventKind
	frame     []byte
}

// Dispatcher is the single actor between ingestion and the push channel.
// Notify enqueues and returns; Run delivers in arrival order, so events for
// one session keep the order they were raised in.
type Dispatcher struct {
	sink     Sink
	inbox    chan envelope
	observer Observer

	stopOnce sync.Once
	stopped  chan struct{}
}

func NewDispatcher(sink Sink, buffer int, observer Observer) *Dispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Dispatcher{
		sink:     sink,
		inbox:    make(chan envelope, buffer),
		observer: observer,
		stopped:  make(chan struct{}),
	}
}

// Notify never blocks. Events without a session, or arriving while the inbox
// is full, are dropped.
func (d *Dispatcher) Notify(sessionID string, event domain.ProgressEvent) {
	if sessionID == "" {
		return
	}
	kind := event.Kind()
	frame, err := Encode(event)
	if err != nil {
		slog.Warn("progress_encode_failed", "session_id", sessionID, "event_id", event.ID, "error", err)
		d.observer.EventDropped(kind, "encode")
		return
	}

	select {
	case <-d.stopped:
		d.observer.EventDropped(kind, "stopped")
		return
	default:
	}
	select {
	case d.inbox <- envelope{sessionID: sessionID, kind: kind, frame: frame}:
	default:
		slog.Warn("progress_inbox_full", "session_id", sessionID, "type", kind.String())
		d.observer.EventDropped(kind, "inbox_full")
	}
}

// Run delivers queued events until ctx is done, then flushes what is left.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.stopOnce.Do(func() { close(d.stopped) })
	for {
		select {
		case env := <-d.inbox:
			d.deliver(env)
		case <-ctx.Done():
			for {
				select {
				case env := <-d.inbox:
					d.deliver(env)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(env envelope) {
	err := d.sink.Deliver(env.sessionID, env.frame)
	switch {
	case err == nil:
		d.observer.EventDelivered(env.kind)
	case errors.Is(err, ErrNoSession):
		d.observer.EventDropped(env.kind, "no_session")
	case errors.Is(err, ErrSlowConsumer):
		slog.Warn("progress_slow_consumer", "session_id", env.sessionID, "type", env.kind.String())
		d.observer.EventDropped(env.kind, "slow_consumer")
	default:
		slog.Warn("progress_deliver_failed", "session_id", env.sessionID, "type", env.kind.String(), "error", err)
		d.observer.EventDropped(env.kind, "sink_error")
	}
}
