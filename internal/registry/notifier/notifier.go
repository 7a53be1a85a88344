// Package notifier delivers registration notifications to external receivers.
package notifier

import (
	"context"
	"sync"
	"time"

	id "idregistry/pkg/domain"
)

// Notification tells a receiver that caller registered under uniqueUserID.
type Notification struct {
	EventID      string
	Receiver     id.Address
	Caller       id.Address
	UniqueUserID id.Address
	Payload      []byte
	RegisteredAt time.Time
}

// Dispatcher invokes an external receiver. A returned error leaves the
// notification queued for another attempt.
type Dispatcher interface {
	Notify(ctx context.Context, n Notification) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, n Notification) error

func (f DispatcherFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Noop accepts every notification and does nothing.
type Noop struct{}

func (Noop) Notify(context.Context, Notification) error { return nil }

// Recorder keeps delivered notifications in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.Payload = append([]byte(nil), n.Payload...)
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of everything delivered so far.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}
