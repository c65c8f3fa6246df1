// Package audit is the advisory side channel for catalog writes.
//
// Publish never blocks: a full or closed queue rejects the event and the
// caller only logs it. Nothing in the write path depends on events being
// drained.
package audit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/apparel-catalog/internal/domain/catalog"
)

// Actions recorded for designs.
const (
	ActionDesignCreated = "design.created"
	ActionDesignUpdated = "design.updated"
	ActionDesignDeleted = "design.deleted"
)

// Event is one audit record.
type Event struct {
	ID       string
	Action   string
	OwnerID  string
	DesignID string
	At       time.Time
	Payload  map[string]any
}

// Sink stores drained events.
type Sink interface {
	Write(ctx context.Context, ev Event) error
}

// Publisher accepts events without blocking.
type Publisher interface {
	Publish(ev Event) error
}

const defaultBuffer = 1024

// Queue is a bounded in-process queue drained by Run.
type Queue struct {
	events       chan Event
	shuttingDown atomic.Bool

	enqueued  atomic.Uint64
	dropped   atomic.Uint64
	processed atomic.Uint64
}

// NewQueue creates a Queue holding at most buffer pending events.
func NewQueue(buffer int) *Queue {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Queue{events: make(chan Event, buffer)}
}

// Publish enqueues ev or fails immediately with an error matching
// catalog.ErrUnavailable.
func (q *Queue) Publish(ev Event) error {
	if q.shuttingDown.Load() {
		q.dropped.Add(1)
		return errors.Wrap(catalog.ErrUnavailable, "audit queue closed")
	}
	select {
	case q.events <- ev:
		q.enqueued.Add(1)
		return nil
	default:
		q.dropped.Add(1)
		return errors.Wrap(catalog.ErrUnavailable, "audit queue full")
	}
}

// Run writes events to sink until ctx is done, then flushes what is
// already buffered with a short deadline. Sink failures are logged and the
// event is discarded.
func (q *Queue) Run(ctx context.Context, sink Sink) error {
	lg := zctx.From(ctx)
	for {
		select {
		case ev := <-q.events:
			q.write(ctx, lg, sink, ev)
		case <-ctx.Done():
			q.Close()
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			for {
				select {
				case ev := <-q.events:
					q.write(flushCtx, lg, sink, ev)
				default:
					return nil
				}
			}
		}
	}
}

func (q *Queue) write(ctx context.Context, lg *zap.Logger, sink Sink, ev Event) {
	if err := sink.Write(ctx, ev); err != nil {
		lg.Warn("Audit write failed",
			zap.String("action", ev.Action),
			zap.String("design_id", ev.DesignID),
			zap.Error(err),
		)
		return
	}
	q.processed.Add(1)
}

// Close stops intake. The channel itself stays open so racing publishers
// never panic.
func (q *Queue) Close() { q.shuttingDown.Store(true) }

// Depth returns the number of buffered events.
func (q *Queue) Depth() int { return len(q.events) }

// Stats returns lifetime counters.
func (q *Queue) Stats() (enqueued, dropped, processed uint64) {
	return q.enqueued.Load(), q.dropped.Load(), q.processed.Load()
}
