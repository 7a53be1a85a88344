package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	id "idregistry/pkg/domain"
)

// DefaultTopic receives registration notifications.
const DefaultTopic = "idregistry.registrations"

// message is the wire form published to Kafka.
type message struct {
	EventID      string        `json:"event_id"`
	Receiver     id.Address    `json:"receiver"`
	Caller       id.Address    `json:"caller"`
	UniqueUserID id.Address    `json:"unique_user_id"`
	Payload      hexutil.Bytes `json:"payload"`
	RegisteredAt int64         `json:"registered_at"`
}

// Kafka publishes notifications keyed by receiver, so each receiver sees its
// notifications in registration order.
type Kafka struct {
	client *kgo.Client
	topic  string
}

// NewKafka connects a producer to brokers.
func NewKafka(brokers []string, topic string, opts ...kgo.Opt) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(0),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Kafka{client: client, topic: topic}, nil
}

// Notify blocks until the broker acknowledges the record.
func (k *Kafka) Notify(ctx context.Context, n Notification) error {
	value, err := json.Marshal(message{
		EventID:      n.EventID,
		Receiver:     n.Receiver,
		Caller:       n.Caller,
		UniqueUserID: n.UniqueUserID,
		Payload:      n.Payload,
		RegisteredAt: n.RegisteredAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(n.Receiver.Key()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(n.EventID)},
		},
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// EnsureTopic creates the notification topic when it does not exist.
func (k *Kafka) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	adm := kadm.NewClient(k.client)
	resp, err := adm.CreateTopic(ctx, partitions, replication, nil, k.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", k.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", k.topic, resp.Err)
	}
	return nil
}

// Ping checks broker connectivity.
func (k *Kafka) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return k.client.Ping(ctx)
}

// Close flushes pending records and closes the client.
func (k *Kafka) Close() {
	k.client.Close()
}

// Topic returns the destination topic.
func (k *Kafka) Topic() string {
	return k.topic
}
