package notifier

import (
	"context"
	"errors"
	"log/slog"

	"idregistry/pkg/platform/circuit"
)

// ErrSuspended is returned while the breaker keeps calls away from a failing
// dispatcher.
var ErrSuspended = errors.New("receiver notifications suspended")

// Guarded fails fast once the wrapped dispatcher keeps failing, so the relay
// backs off at once instead of waiting on a broker timeout per entry.
type Guarded struct {
	next    Dispatcher
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuarded(next Dispatcher, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{next: next, breaker: breaker, logger: logger}
}

func (g *Guarded) Notify(ctx context.Context, n Notification) error {
	if !g.breaker.Allow() {
		return ErrSuspended
	}
	if err := g.next.Notify(ctx, n); err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "notification circuit opened",
				"breaker", g.breaker.Name(),
				"error", err,
			)
		}
		return err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "notification circuit closed",
			"breaker", g.breaker.Name(),
		)
	}
	return nil
}
