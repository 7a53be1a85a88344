package outbox

import (
	"context"
	"sync"
	"time"

	"idregistry/internal/registry/notifier"
)

// InMemory keeps pending entries in process. It pairs with the in-memory
// registration store, whose Apply cannot fail once the hook has run.
type InMemory struct {
	processing sync.Mutex

	mu      sync.Mutex
	seq     int64
	pending []Entry
	now     func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{now: time.Now}
}

func (s *InMemory) Add(_ context.Context, n notifier.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	n.Payload = append([]byte(nil), n.Payload...)
	s.pending = append(s.pending, Entry{Seq: s.seq, Notification: n, CreatedAt: s.now()})
	return nil
}

// Process dispatches outside the data lock so Add is never held up by a slow
// receiver. Concurrent Process calls run one at a time.
func (s *InMemory) Process(ctx context.Context, limit int, fn func(ctx context.Context, e Entry) error) (int, error) {
	s.processing.Lock()
	defer s.processing.Unlock()

	s.mu.Lock()
	batch := make([]Entry, min(limit, len(s.pending)))
	copy(batch, s.pending)
	s.mu.Unlock()

	published := 0
	var failure error
	for _, e := range batch {
		if err := ctx.Err(); err != nil {
			failure = err
			break
		}
		if err := fn(ctx, e); err != nil {
			failure = err
			break
		}
		published++
	}

	s.mu.Lock()
	s.pending = s.pending[published:]
	if failure != nil && len(s.pending) > 0 {
		s.pending[0].Attempts++
	}
	s.mu.Unlock()
	return published, failure
}

// Pending returns a copy of the entries not yet published.
func (s *InMemory) Pending() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.pending))
	copy(out, s.pending)
	return out
}
