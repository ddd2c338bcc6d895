package mqtt

import (
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

type fakeToken struct {
	err      error
	timedOut bool
}

func (t *fakeToken) Wait() bool                     { return !t.timedOut }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timedOut }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient implements only Publish; other methods panic via the nil
// embedded interface.
type fakeClient struct {
	pahomqtt.Client
	token *fakeToken
	sent  []published
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) pahomqtt.Token {
	c.sent = append(c.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	if c.token == nil {
		return &fakeToken{}
	}
	return c.token
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func decode(t *testing.T, p published) CommandMessage {
	t.Helper()
	var msg CommandMessage
	if err := json.Unmarshal(p.payload, &msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestStartMonitoring(t *testing.T) {
	client := &fakeClient{}
	d := NewDeviceCommands(client, "device-1", quietLogger())

	region := domain.Region{ID: "venue:4", Lat: 38.0351, Lon: -78.5001, Radius: 25}
	if err := d.StartMonitoring(region); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(client.sent) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(client.sent))
	}
	if client.sent[0].topic != "/crowdsense/device/device-1/command" {
		t.Errorf("unexpected topic %s", client.sent[0].topic)
	}
	if client.sent[0].qos != 1 {
		t.Errorf("expected qos 1, got %d", client.sent[0].qos)
	}
	msg := decode(t, client.sent[0])
	if msg.Command != domain.CommandStartMonitoring || msg.Region == nil || msg.Region.Radius != 25 {
		t.Errorf("unexpected command %+v", msg)
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name    string
		call    func(d *DeviceCommands) error
		command string
	}{
		{"request location", func(d *DeviceCommands) error { return d.RequestLocation(9) }, domain.CommandRequestLocation},
		{"start significant", (*DeviceCommands).StartSignificantLocationChanges, domain.CommandStartSignificantChanges},
		{"stop significant", (*DeviceCommands).StopSignificantLocationChanges, domain.CommandStopSignificantChanges},
		{"stop monitoring", func(d *DeviceCommands) error { return d.StopMonitoring("venue:1") }, domain.CommandStopMonitoring},
		{"request always", (*DeviceCommands).RequestAlwaysAuthorization, domain.CommandRequestAlwaysAuthorization},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{}
			d := NewDeviceCommands(client, "device-1", quietLogger())

			if err := tt.call(d); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := decode(t, client.sent[0]).Command; got != tt.command {
				t.Errorf("expected %s, got %s", tt.command, got)
			}
		})
	}
}

func TestRequestLocation_CarriesRequestID(t *testing.T) {
	client := &fakeClient{}
	d := NewDeviceCommands(client, "device-1", quietLogger())

	_ = d.RequestLocation(42)

	if got := decode(t, client.sent[0]).RequestID; got != 42 {
		t.Errorf("expected request id 42, got %d", got)
	}
}

func TestSend_Errors(t *testing.T) {
	client := &fakeClient{token: &fakeToken{err: errors.New("not connected")}}
	d := NewDeviceCommands(client, "device-1", quietLogger())
	if err := d.StopMonitoring("venue:1"); err == nil {
		t.Fatal("expected publish error")
	}

	client.token = &fakeToken{timedOut: true}
	if err := d.StartSignificantLocationChanges(); err == nil {
		t.Fatal("expected timeout error")
	}
}
