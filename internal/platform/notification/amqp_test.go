package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

type publishCall struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakePublisher struct {
	calls  []publishCall
	err    error
	closed bool
}

func (f *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, publishCall{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func TestAMQPSender_Publish(t *testing.T) {
	pub := &fakePublisher{}
	s := &AMQPSender{exchange: "scheduler.events", ch: pub}

	evt := testEvent(SessionEnded)
	if err := s.Send(context.Background(), Message{Event: evt, Subject: "Visit ended"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(pub.calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.calls))
	}
	call := pub.calls[0]
	if call.exchange != "scheduler.events" || call.key != "scheduler.session.ended" {
		t.Errorf("unexpected routing %s/%s", call.exchange, call.key)
	}
	if call.msg.MessageId != evt.ID.String() || call.msg.DeliveryMode != amqp.Persistent {
		t.Errorf("unexpected publishing headers %+v", call.msg)
	}

	var got Message
	if err := json.Unmarshal(call.msg.Body, &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Event.AppointmentID != evt.AppointmentID || got.Subject != "Visit ended" {
		t.Errorf("unexpected body %+v", got)
	}
}

func TestAMQPSender_PublishError(t *testing.T) {
	s := &AMQPSender{exchange: "x", ch: &fakePublisher{err: amqp.ErrClosed}}
	err := s.Send(context.Background(), Message{Event: testEvent(BookingCreated)})
	if !errors.Is(err, amqp.ErrClosed) {
		t.Errorf("expected wrapped ErrClosed, got %v", err)
	}
}

func TestAMQPSender_Close(t *testing.T) {
	pub := &fakePublisher{}
	s := &AMQPSender{exchange: "x", ch: pub}
	if err := s.Close(); err != nil || !pub.closed {
		t.Errorf("expected channel closed, err=%v", err)
	}
}
