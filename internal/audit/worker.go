package audit

import (
	"context"
	"log/slog"
	"time"
)

// Worker consumes audit events from a channel and persists them, keeping
// audit writes off the request path.
type Worker struct {
	store  Store
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run drains the inbox until ctx is cancelled or the inbox is closed.
// A failed append is logged and skipped.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "failed to persist audit event",
					"action", event.Action,
					"subject", event.Subject,
					"error", err,
				)
			}
		}
	}
}

// AsyncPublisher hands events to a Worker through a buffered channel.
// When the buffer is full the event is dropped and logged.
type AsyncPublisher struct {
	inbox  chan Event
	logger *slog.Logger
}

// NewAsync returns a publisher and the worker that drains it.
func NewAsync(store Store, buffer int, logger *slog.Logger) (*AsyncPublisher, *Worker) {
	if logger == nil {
		logger = slog.Default()
	}
	inbox := make(chan Event, buffer)
	return &AsyncPublisher{inbox: inbox, logger: logger}, NewWorker(store, inbox, logger)
}

func (p *AsyncPublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
			"subject", event.Subject,
		)
	}
	return nil
}
