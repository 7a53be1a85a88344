//go:build integration

package notifier_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"idregistry/internal/registry/notifier"
	id "idregistry/pkg/domain"
	"idregistry/pkg/testutil/containers"
)

type KafkaDispatcherSuite struct {
	suite.Suite
	broker *containers.RedpandaContainer
}

func TestKafkaDispatcherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaDispatcherSuite))
}

func (s *KafkaDispatcherSuite) SetupSuite() {
	s.broker = containers.GetManager().GetRedpanda(s.T())
}

func (s *KafkaDispatcherSuite) TestPublishesKeyedByReceiver() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "registrations-" + uuid.NewString()
	dispatcher, err := notifier.NewKafka(s.broker.Brokers, topic)
	s.Require().NoError(err)
	defer dispatcher.Close()
	s.Require().NoError(dispatcher.EnsureTopic(ctx, 1, 1))
	s.Require().NoError(dispatcher.EnsureTopic(ctx, 1, 1), "existing topic is not an error")

	receiver := id.MustParseAddress("0x00000000000000000000000000000000000000cc")
	caller := id.MustParseAddress("0x00000000000000000000000000000000000000aa")
	n := notifier.Notification{
		EventID:      uuid.NewString(),
		Receiver:     receiver,
		Caller:       caller,
		UniqueUserID: caller,
		Payload:      []byte{0xde, 0xad},
		RegisteredAt: time.Unix(1_600_000_000, 0),
	}
	s.Require().NoError(dispatcher.Notify(ctx, n))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal(receiver.Key(), string(records[0].Key))

	var body map[string]any
	s.Require().NoError(json.Unmarshal(records[0].Value, &body))
	s.Equal(n.EventID, body["event_id"])
	s.Equal("0xdead", body["payload"])
	s.Equal(caller.Hex(), body["caller"])
	s.EqualValues(1_600_000_000, body["registered_at"])
}
