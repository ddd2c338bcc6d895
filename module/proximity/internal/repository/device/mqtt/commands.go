package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

const publishTimeout = 5 * time.Second

type regionPayload struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Radius    float64 `json:"radius"`
}

// CommandMessage is the wire form of a device command.
type CommandMessage struct {
	Command   string         `json:"command"`
	RequestID uint64         `json:"request_id,omitempty"`
	RegionID  string         `json:"region_id,omitempty"`
	Region    *regionPayload `json:"region,omitempty"`
}

// DeviceCommands drives the device's location platform over MQTT. It
// serves as permission platform, location sensor and native region
// monitor for the engine.
type DeviceCommands struct {
	client pahomqtt.Client
	topic  string
	log    logrus.FieldLogger
}

func NewDeviceCommands(client pahomqtt.Client, deviceID string, log logrus.FieldLogger) *DeviceCommands {
	return &DeviceCommands{
		client: client,
		topic:  domain.DeviceTopic(deviceID, domain.ChannelCommand),
		log:    log,
	}
}

func (d *DeviceCommands) RequestAlwaysAuthorization() error {
	return d.send(CommandMessage{Command: domain.CommandRequestAlwaysAuthorization})
}

func (d *DeviceCommands) RequestLocation(requestID uint64) error {
	return d.send(CommandMessage{Command: domain.CommandRequestLocation, RequestID: requestID})
}

func (d *DeviceCommands) StartSignificantLocationChanges() error {
	return d.send(CommandMessage{Command: domain.CommandStartSignificantChanges})
}

func (d *DeviceCommands) StopSignificantLocationChanges() error {
	return d.send(CommandMessage{Command: domain.CommandStopSignificantChanges})
}

func (d *DeviceCommands) StartMonitoring(region domain.Region) error {
	return d.send(CommandMessage{
		Command:  domain.CommandStartMonitoring,
		RegionID: region.ID,
		Region: &regionPayload{
			ID:        region.ID,
			Latitude:  region.Lat,
			Longitude: region.Lon,
			Radius:    region.Radius,
		},
	})
}

func (d *DeviceCommands) StopMonitoring(regionID string) error {
	return d.send(CommandMessage{Command: domain.CommandStopMonitoring, RegionID: regionID})
}

func (d *DeviceCommands) send(cmd CommandMessage) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	token := d.client.Publish(d.topic, 1, false, body)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%s: publish timed out", cmd.Command)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", cmd.Command, err)
	}
	d.log.WithField("command", cmd.Command).Debug("device command sent")
	return nil
}
