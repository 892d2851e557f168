package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	amqp "github.com/rabbitmq/amqp091-go"

	"teams-chat/internal/observability"
)

const (
	amqpBackoffMin = 500 * time.Millisecond
	amqpBackoffMax = 30 * time.Second
)

var errAMQPDisconnected = errors.New("amqp broker disconnected")

type amqpSession struct {
	conn *amqp.Connection
	pub  *amqp.Channel
	sub  *amqp.Channel
}

func (s *amqpSession) close() error {
	_ = s.sub.Close()
	_ = s.pub.Close()
	return s.conn.Close()
}

// AMQPBroker fans events out through a RabbitMQ topic exchange. Each node owns an
// exclusive auto-delete queue bound to every routing key. A lost connection is
// redialed by Consume; publishes fail until it is back.
type AMQPBroker struct {
	url      string
	exchange string
	queue    string
	nodeID   string

	mu      sync.Mutex
	session *amqpSession
	closed  bool
}

func NewAMQPBroker(url, exchange, nodeID string) (*AMQPBroker, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}

	b := &AMQPBroker{url: url, exchange: exchange, queue: "chat.bus." + nodeID, nodeID: nodeID}
	s, err := b.dial()
	if err != nil {
		return nil, err
	}
	b.session = s
	glog.Infof("bus: amqp connected exchange=%s queue=%s", exchange, b.queue)
	return b, nil
}

func (b *AMQPBroker) dial() (*amqpSession, error) {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return nil, err
	}

	pub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := pub.ExchangeDeclare(b.exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	sub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := sub.QueueDeclare(b.queue, false, true, true, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	if err := sub.QueueBind(b.queue, "#", b.exchange, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &amqpSession{conn: conn, pub: pub, sub: sub}, nil
}

func (b *AMQPBroker) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return errAMQPDisconnected
	}
	return b.session.pub.PublishWithContext(ctx, b.exchange, routingKey(ev.Topic), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (b *AMQPBroker) Consume(ctx context.Context, handle func(Event)) error {
	return consumeDeliveries(ctx, b.subscribe, handle)
}

// subscribe starts a consumer, redialing first when the previous session is gone.
func (b *AMQPBroker) subscribe() (<-chan amqp.Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errAMQPDisconnected
	}

	if b.session != nil && b.session.conn.IsClosed() {
		_ = b.session.close()
		b.session = nil
	}
	if b.session == nil {
		s, err := b.dial()
		if err != nil {
			return nil, err
		}
		b.session = s
		glog.Infof("bus: amqp reconnected exchange=%s queue=%s", b.exchange, b.queue)
	}

	deliveries, err := b.session.sub.Consume(b.queue, b.nodeID, true, true, false, false, nil)
	if err != nil {
		// The channel may be dead on a live connection; start over next time.
		_ = b.session.close()
		b.session = nil
		return nil, fmt.Errorf("amqp consume: %w", err)
	}
	return deliveries, nil
}

// consumeDeliveries hands decoded events to handle until ctx is done. When the
// delivery channel closes or subscribe fails it retries with backoff.
func consumeDeliveries(ctx context.Context, subscribe func() (<-chan amqp.Delivery, error), handle func(Event)) error {
	backoff := amqpBackoffMin
	for {
		deliveries, err := subscribe()
		if err == nil {
			backoff = amqpBackoffMin
			if drainDeliveries(ctx, deliveries, handle) {
				return nil
			}
			err = errors.New("delivery channel closed")
		}

		observability.IncBusBrokerError()
		glog.Errorf("bus: amqp: %v, retry in %s", err, backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, amqpBackoffMax)
	}
}

// drainDeliveries reports true when ctx ended, false when deliveries closed.
func drainDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery, handle func(Event)) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case d, ok := <-deliveries:
			if !ok {
				return false
			}
			var ev Event
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				glog.Warningf("bus: amqp decode: %v", err)
				continue
			}
			handle(ev)
		}
	}
}

func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.session == nil {
		return nil
	}
	err := b.session.close()
	b.session = nil
	return err
}

// routingKey maps "dm:1:2" to "dm.1.2" so AMQP topic wildcards split on topic parts.
func routingKey(topic string) string {
	return strings.ReplaceAll(topic, ":", ".")
}
