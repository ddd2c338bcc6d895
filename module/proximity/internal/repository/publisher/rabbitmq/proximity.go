package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
	"github.com/lhakso/bar-tracker/module/proximity/internal/repository/publisher"
)

var _ publisher.ProximityPublisher = (*ProximityPublisher)(nil)

const (
	ExchangeName = "proximity.events"
	QueueName    = "proximity_changes"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type ProximityPublisher struct {
	ch  channel
	log logrus.FieldLogger
}

func NewProximityPublisher(conn *amqp.Connection, log logrus.FieldLogger) (*ProximityPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(QueueName, "", ExchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &ProximityPublisher{ch: ch, log: log}, nil
}

// ChangeMessage is the wire form of a proximity change.
type ChangeMessage struct {
	DeviceID        string `json:"device_id"`
	PreviousVenueID int64  `json:"previous_venue_id"`
	NearVenueID     int64  `json:"near_venue_id"`
	Mode            string `json:"mode"`
	ChangedAt       int64  `json:"changed_at"`
}

func (p *ProximityPublisher) PublishChange(ctx context.Context, change *domain.ProximityChange) error {
	msg := ChangeMessage{
		DeviceID:        change.DeviceID,
		PreviousVenueID: change.PreviousVenueID,
		NearVenueID:     change.NearVenueID,
		Mode:            change.Mode,
		ChangedAt:       change.ChangedAt.Unix(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}

	return p.ch.PublishWithContext(ctx, ExchangeName, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   change.ChangedAt,
		Body:        body,
	})
}

// Forward publishes every change read from changes until ctx is done or
// the channel is closed. Publish failures are logged and dropped.
func (p *ProximityPublisher) Forward(ctx context.Context, changes <-chan domain.ProximityChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := p.PublishChange(pubCtx, &change); err != nil {
				p.log.WithError(err).WithField("venue_id", change.NearVenueID).Warn("publish proximity change failed")
			}
			cancel()
		}
	}
}
