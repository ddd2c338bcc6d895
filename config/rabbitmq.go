package config

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const rabbitDialAttempts = 5

// NewRabbitMQ dials the broker, retrying while it comes up.
func NewRabbitMQ(cfg *Config, log logrus.FieldLogger) (*amqp.Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= rabbitDialAttempts; attempt++ {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.WithError(err).WithField("attempt", attempt).Warn("rabbitmq dial failed")
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	return nil, fmt.Errorf("rabbitmq connect: %w", lastErr)
}
