package subscriber

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

type eventSink interface {
	Submit(ev domain.Event)
}

type fixMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
	RequestID uint64  `json:"request_id,omitempty"`
	Error     string  `json:"error,omitempty"`
}

type authorizationMessage struct {
	Level string `json:"level"`
}

type regionMessage struct {
	RegionID string `json:"region_id"`
	Event    string `json:"event"`
}

// DeviceSubscriber turns device callbacks published over MQTT into engine
// events.
type DeviceSubscriber struct {
	client   mqtt.Client
	deviceID string
	sink     eventSink
	log      logrus.FieldLogger
}

func NewDeviceSubscriber(client mqtt.Client, deviceID string, sink eventSink, log logrus.FieldLogger) *DeviceSubscriber {
	return &DeviceSubscriber{
		client:   client,
		deviceID: deviceID,
		sink:     sink,
		log:      log,
	}
}

func (s *DeviceSubscriber) Start() error {
	handlers := map[string]mqtt.MessageHandler{
		domain.DeviceTopic(s.deviceID, domain.ChannelFix):           s.handleFix,
		domain.DeviceTopic(s.deviceID, domain.ChannelAuthorization): s.handleAuthorization,
		domain.DeviceTopic(s.deviceID, domain.ChannelRegion):        s.handleRegion,
	}
	for topic, h := range handlers {
		token := s.client.Subscribe(topic, 1, h)
		token.Wait()
		if err := token.Error(); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

func (s *DeviceSubscriber) handleFix(_ mqtt.Client, msg mqtt.Message) {
	var raw fixMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		s.log.WithError(err).Warn("invalid fix message")
		return
	}

	if raw.Error != "" {
		s.log.WithFields(logrus.Fields{
			"request_id": raw.RequestID,
			"reason":     raw.Error,
		}).Debug("device reported no fix")
		s.sink.Submit(domain.PositionFixed{RequestID: raw.RequestID})
		return
	}

	if err := validateFixMessage(&raw); err != nil {
		s.log.WithError(err).Warn("fix validation error")
		return
	}

	fix := &domain.Position{
		Lat:       raw.Latitude,
		Lon:       raw.Longitude,
		Timestamp: time.Unix(raw.Timestamp, 0),
	}
	s.sink.Submit(domain.PositionFixed{Fix: fix, RequestID: raw.RequestID})
}

func (s *DeviceSubscriber) handleAuthorization(_ mqtt.Client, msg mqtt.Message) {
	var raw authorizationMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		s.log.WithError(err).Warn("invalid authorization message")
		return
	}

	level, err := domain.ParseAuthorizationLevel(raw.Level)
	if err != nil {
		s.log.WithError(err).Warn("authorization validation error")
		return
	}
	s.sink.Submit(domain.AuthorizationChanged{Level: level})
}

func (s *DeviceSubscriber) handleRegion(_ mqtt.Client, msg mqtt.Message) {
	var raw regionMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		s.log.WithError(err).Warn("invalid region message")
		return
	}

	switch raw.Event {
	case "left_cluster":
		s.sink.Submit(domain.ClusterLeft{})
		return
	case "enter", "exit":
	default:
		s.log.WithField("event", raw.Event).Warn("unknown region event")
		return
	}

	if raw.RegionID == "" {
		s.log.Warn("region event without region_id")
		return
	}
	if raw.Event == "enter" {
		s.sink.Submit(domain.RegionEntered{RegionID: raw.RegionID})
		return
	}
	s.sink.Submit(domain.RegionExited{RegionID: raw.RegionID})
}

func validateFixMessage(msg *fixMessage) error {
	if msg.Latitude < -90 || msg.Latitude > 90 {
		return fmt.Errorf("latitude: must be between -90 and 90")
	}
	if msg.Longitude < -180 || msg.Longitude > 180 {
		return fmt.Errorf("longitude: must be between -180 and 180")
	}
	if msg.Timestamp <= 0 {
		return fmt.Errorf("timestamp: must be positive")
	}
	return nil
}
