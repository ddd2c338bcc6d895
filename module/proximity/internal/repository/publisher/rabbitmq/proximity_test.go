package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

type mockChannel struct {
	publishFn func(ctx context.Context, exchange, key string, msg amqp.Publishing) error
	published []amqp.Publishing
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if m.publishFn != nil {
		if err := m.publishFn(ctx, exchange, key, msg); err != nil {
			return err
		}
	}
	m.published = append(m.published, msg)
	return nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestPublishChange(t *testing.T) {
	var gotExchange string
	ch := &mockChannel{
		publishFn: func(_ context.Context, exchange, _ string, _ amqp.Publishing) error {
			gotExchange = exchange
			return nil
		},
	}
	p := &ProximityPublisher{ch: ch, log: quietLogger()}

	change := &domain.ProximityChange{
		DeviceID:        "device-1",
		PreviousVenueID: domain.NoVenue,
		NearVenueID:     4,
		Mode:            "precise",
		ChangedAt:       time.Unix(1715003456, 0),
	}
	if err := p.PublishChange(context.Background(), change); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotExchange != ExchangeName {
		t.Errorf("expected exchange %s, got %s", ExchangeName, gotExchange)
	}
	if len(ch.published) != 1 {
		t.Fatalf("expected 1 message, got %d", len(ch.published))
	}
	var msg ChangeMessage
	if err := json.Unmarshal(ch.published[0].Body, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.NearVenueID != 4 || msg.PreviousVenueID != -1 || msg.ChangedAt != 1715003456 {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestPublishChange_Error(t *testing.T) {
	ch := &mockChannel{
		publishFn: func(context.Context, string, string, amqp.Publishing) error {
			return errors.New("channel closed")
		},
	}
	p := &ProximityPublisher{ch: ch, log: quietLogger()}

	if err := p.PublishChange(context.Background(), &domain.ProximityChange{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestForward_StopsWhenChannelCloses(t *testing.T) {
	ch := &mockChannel{}
	p := &ProximityPublisher{ch: ch, log: quietLogger()}

	changes := make(chan domain.ProximityChange, 2)
	changes <- domain.ProximityChange{NearVenueID: 1}
	changes <- domain.ProximityChange{NearVenueID: domain.NoVenue}
	close(changes)

	p.Forward(context.Background(), changes)

	if len(ch.published) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(ch.published))
	}
}
