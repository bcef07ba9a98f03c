package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RoutingKeyPrefix namespaces routing keys on the exchange, e.g.
// "scheduler.booking.created".
const RoutingKeyPrefix = "scheduler."

// publisher is the slice of *amqp.Channel the sender needs.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSender publishes messages to a durable topic exchange so downstream
// services can bind queues per event kind.
type AMQPSender struct {
	exchange string

	mu   sync.Mutex
	ch   publisher
	conn *amqp.Connection
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url, exchange string) (*AMQPSender, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPSender{exchange: exchange, ch: ch, conn: conn}, nil
}

func (*AMQPSender) Name() string { return "amqp" }

func RoutingKey(kind Kind) string { return RoutingKeyPrefix + string(kind) }

func (s *AMQPSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.Event.ID.String(),
		Timestamp:    msg.Event.OccurredAt,
		Type:         string(msg.Event.Kind),
		Body:         body,
	}

	// Channels are not safe for concurrent publishes.
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ch.PublishWithContext(ctx, s.exchange, RoutingKey(msg.Event.Kind), false, false, pub); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Event.Kind, err)
	}
	return nil
}

func (s *AMQPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.ch.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
