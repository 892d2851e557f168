package bus

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang/glog"
	"github.com/segmentio/kafka-go"
)

const (
	kafkaBackoffMin = 500 * time.Millisecond
	kafkaBackoffMax = 30 * time.Second
)

type KafkaReader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

type KafkaWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

// KafkaBroker relays events through one Kafka topic. Messages are keyed by the
// conversation topic so one conversation stays on one partition, in order.
// Every node reads with its own consumer group and therefore sees every event.
type KafkaBroker struct {
	reader KafkaReader
	writer KafkaWriter
}

func NewKafkaBroker(brokers []string, topic, nodeID string) *KafkaBroker {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "chat-bus-" + nodeID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newKafkaBroker(reader, writer)
}

func newKafkaBroker(reader KafkaReader, writer KafkaWriter) *KafkaBroker {
	return &KafkaBroker{reader: reader, writer: writer}
}

func (b *KafkaBroker) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.Topic), Value: value})
}

func (b *KafkaBroker) Consume(ctx context.Context, handle func(Event)) error {
	backoff := kafkaBackoffMin
	for {
		msg, err := b.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			glog.Errorf("bus: kafka fetch: %v, retry in %s", err, backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, kafkaBackoffMax)
			continue
		}
		backoff = kafkaBackoffMin

		var ev Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			glog.Warningf("bus: kafka decode offset %d: %v", msg.Offset, err)
		} else {
			handle(ev)
		}

		if err := b.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			glog.Warningf("bus: kafka commit offset %d: %v", msg.Offset, err)
		}
	}
}

func (b *KafkaBroker) Close() error {
	return errors.Join(b.reader.Close(), b.writer.Close())
}
