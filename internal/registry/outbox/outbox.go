// Package outbox queues receiver notifications in the same unit of work as the
// registration that produced them and relays them to a dispatcher once that
// work has committed.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"idregistry/internal/registry/metrics"
	"idregistry/internal/registry/notifier"
)

const (
	defaultInterval  = 5 * time.Second
	defaultBatchSize = 100
)

// Entry is one queued notification.
type Entry struct {
	Seq          int64
	Notification notifier.Notification
	CreatedAt    time.Time
	Attempts     int
}

// Store persists entries until they are published.
type Store interface {
	// Add queues n. SQL stores join the transaction carried by ctx.
	Add(ctx context.Context, n notifier.Notification) error
	// Process hands pending entries to fn in queue order, at most limit of
	// them. It stops at the first error from fn, records the failed attempt and
	// returns how many entries were published before it along with that error.
	Process(ctx context.Context, limit int, fn func(ctx context.Context, e Entry) error) (int, error)
}

// Outbox enqueues notifications and relays them to the dispatcher.
type Outbox struct {
	store      Store
	dispatcher notifier.Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	interval   time.Duration
	batchSize  int
	wake       chan struct{}
}

type Option func(*Outbox)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Outbox) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Outbox) {
		o.metrics = m
	}
}

// WithInterval sets how often Run polls for entries nobody woke it for.
func WithInterval(d time.Duration) Option {
	return func(o *Outbox) {
		if d > 0 {
			o.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(o *Outbox) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// New returns an Outbox over store that publishes through dispatcher.
func New(store Store, dispatcher notifier.Dispatcher, opts ...Option) *Outbox {
	o := &Outbox{
		store:      store,
		dispatcher: dispatcher,
		logger:     slog.Default(),
		interval:   defaultInterval,
		batchSize:  defaultBatchSize,
		wake:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enqueue stores n with a fresh event id when it has none.
func (o *Outbox) Enqueue(ctx context.Context, n notifier.Notification) (string, error) {
	if n.EventID == "" {
		n.EventID = uuid.NewString()
	}
	if err := o.store.Add(ctx, n); err != nil {
		return "", err
	}
	o.record("queued")
	return n.EventID, nil
}

// Wake asks Run to flush now. It never blocks.
func (o *Outbox) Wake() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Run flushes on every wake-up and tick until ctx is done.
func (o *Outbox) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-o.wake:
		}
		if _, err := o.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.logger.WarnContext(ctx, "notification relay stalled", "error", err)
		}
	}
}

// Flush publishes pending entries in batches until the queue is empty or a
// dispatch fails. It returns how many were published.
func (o *Outbox) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := o.store.Process(ctx, o.batchSize, func(ctx context.Context, e Entry) error {
			if err := o.dispatcher.Notify(ctx, e.Notification); err != nil {
				o.record("failed")
				return err
			}
			o.record("delivered")
			return nil
		})
		total += n
		if err != nil {
			return total, err
		}
		if n < o.batchSize {
			return total, nil
		}
	}
}

func (o *Outbox) record(result string) {
	if o.metrics != nil {
		o.metrics.RecordNotification(result)
	}
}
