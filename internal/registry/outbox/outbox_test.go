package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"idregistry/internal/registry/metrics"
	"idregistry/internal/registry/notifier"
	id "idregistry/pkg/domain"
)

type OutboxSuite struct {
	suite.Suite
	store     *InMemory
	recorder  *notifier.Recorder
	metrics   *metrics.Metrics
	outbox    *Outbox
	receiver  id.Address
	failAfter int
}

func TestOutboxSuite(t *testing.T) {
	suite.Run(t, new(OutboxSuite))
}

func (s *OutboxSuite) SetupTest() {
	s.store = NewInMemory()
	s.recorder = notifier.NewRecorder()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.failAfter = -1
	s.receiver = id.MustParseAddress("0x00000000000000000000000000000000000000cc")

	calls := 0
	dispatcher := notifier.DispatcherFunc(func(ctx context.Context, n notifier.Notification) error {
		if s.failAfter >= 0 && calls >= s.failAfter {
			return errors.New("broker down")
		}
		calls++
		return s.recorder.Notify(ctx, n)
	})
	s.outbox = New(s.store, dispatcher, WithMetrics(s.metrics), WithBatchSize(2))
}

func (s *OutboxSuite) enqueue(payloads ...string) []string {
	ids := make([]string, 0, len(payloads))
	for _, p := range payloads {
		eventID, err := s.outbox.Enqueue(context.Background(), notifier.Notification{
			Receiver:     s.receiver,
			Payload:      []byte(p),
			RegisteredAt: time.Unix(1_600_000_000, 0),
		})
		s.Require().NoError(err)
		ids = append(ids, eventID)
	}
	return ids
}

func (s *OutboxSuite) TestEnqueueAssignsEventIDs() {
	ids := s.enqueue("a", "b")

	s.NotEmpty(ids[0])
	s.NotEqual(ids[0], ids[1])
	s.Len(s.store.Pending(), 2)
	s.Empty(s.recorder.Sent(), "nothing is dispatched before a flush")
	s.Equal(2.0, testutil.ToFloat64(s.metrics.Notifications.WithLabelValues("queued")))
}

func (s *OutboxSuite) TestFlushPublishesInQueueOrderAcrossBatches() {
	ids := s.enqueue("a", "b", "c")

	published, err := s.outbox.Flush(context.Background())
	s.Require().NoError(err)
	s.Equal(3, published)
	s.Empty(s.store.Pending())

	sent := s.recorder.Sent()
	s.Require().Len(sent, 3)
	for i, n := range sent {
		s.Equal(ids[i], n.EventID)
	}
	s.Equal(3.0, testutil.ToFloat64(s.metrics.Notifications.WithLabelValues("delivered")))
}

func (s *OutboxSuite) TestFailedDispatchKeepsEntryForRetry() {
	ids := s.enqueue("a", "b", "c")
	s.failAfter = 1

	published, err := s.outbox.Flush(context.Background())
	s.Error(err)
	s.Equal(1, published)

	pending := s.store.Pending()
	s.Require().Len(pending, 2)
	s.Equal(ids[1], pending[0].Notification.EventID)
	s.Equal(1, pending[0].Attempts)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Notifications.WithLabelValues("failed")))

	s.failAfter = -1
	published, err = s.outbox.Flush(context.Background())
	s.Require().NoError(err)
	s.Equal(2, published)
	s.Len(s.recorder.Sent(), 3)
}

func (s *OutboxSuite) TestRunFlushesOnWake() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.outbox.Run(ctx) }()

	s.enqueue("a")
	s.outbox.Wake()
	s.Eventually(func() bool { return len(s.recorder.Sent()) == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	s.NoError(<-done)
}

func (s *OutboxSuite) TestWakeNeverBlocks() {
	for range 5 {
		s.outbox.Wake()
	}
}
