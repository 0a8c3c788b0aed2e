package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/obsidianstack/trapbridge/pkg/types"
)

// Dispatcher delivers a single event. *Sender implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev *types.AlertEvent) error
	Close() error
}

// Loop drains a Queue through a Dispatcher, strictly in order. A failed
// head is retried until it is delivered; events behind it wait.
type Loop struct {
	queue  *Queue
	sender Dispatcher
	poll   time.Duration
	rec    Recorder
	logger *slog.Logger

	// OnDelivered, when set before Run, is called after each acknowledged
	// event on the worker goroutine.
	OnDelivered func(*types.AlertEvent)
}

// NewLoop returns a Loop that sleeps poll between checks of an empty queue.
// rec may be nil.
func NewLoop(q *Queue, sender Dispatcher, poll time.Duration, rec Recorder, logger *slog.Logger) *Loop {
	if rec == nil {
		rec = NopRecorder{}
	}
	return &Loop{
		queue:  q,
		sender: sender,
		poll:   poll,
		rec:    rec,
		logger: logger.With("component", "dispatch"),
	}
}

// Run delivers events until ctx is cancelled, then closes the sender.
// An attempt in progress is abandoned on cancellation; its event stays
// queued.
func (l *Loop) Run(ctx context.Context) {
	defer func() {
		_ = l.sender.Close()
		l.logger.Info("dispatch worker stopped", "pending", l.queue.Len())
	}()
	l.logger.Info("dispatch worker started")

	for {
		if ctx.Err() != nil {
			return
		}

		ev, ok := l.queue.Peek()
		if !ok {
			l.idle(ctx)
			continue
		}

		if err := l.sender.Dispatch(ctx, ev); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Debug("delivery failed, retrying head", "event", ev.ID, "name", ev.Name, "err", err)
			continue
		}

		l.queue.Pop()
		l.rec.EventDelivered(time.Since(ev.CreatedAt))
		l.logger.Debug("event delivered", "event", ev.ID, "name", ev.Name, "status", int(ev.Severity))
		if l.OnDelivered != nil {
			l.OnDelivered(ev)
		}
	}
}

// idle sleeps one poll interval, waking early for new events or shutdown.
func (l *Loop) idle(ctx context.Context) {
	t := time.NewTimer(l.poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	case <-l.queue.Ready():
	}
}
