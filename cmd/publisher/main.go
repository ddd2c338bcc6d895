package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

// Device simulator: plays the phone side of the MQTT protocol. It grants
// location access, answers single-fix requests and streams a random walk
// that drifts between a venue and the surrounding area.

type fixMessage struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
	RequestID uint64  `json:"request_id,omitempty"`
}

type authorizationMessage struct {
	Level string `json:"level"`
}

type regionMessage struct {
	RegionID string `json:"region_id"`
	Event    string `json:"event"`
}

type commandMessage struct {
	Command   string `json:"command"`
	RequestID uint64 `json:"request_id"`
	RegionID  string `json:"region_id"`
	Region    *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Radius    float64 `json:"radius"`
	} `json:"region"`
}

// regionTable plays native region monitoring for REGION_MONITOR=device.
type regionTable struct {
	mu      sync.Mutex
	regions map[string]domain.Region
	inside  map[string]bool
}

func (t *regionTable) start(r domain.Region) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.regions[r.ID] = r
	delete(t.inside, r.ID)
}

func (t *regionTable) stop(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.regions, id)
	delete(t.inside, id)
}

func (t *regionTable) crossings(lat, lon float64) []regionMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []regionMessage
	for id, r := range t.regions {
		in := r.Contains(lat, lon)
		if in == t.inside[id] {
			continue
		}
		t.inside[id] = in
		event := "exit"
		if in {
			event = "enter"
		}
		out = append(out, regionMessage{RegionID: id, Event: event})
	}
	return out
}

type walker struct {
	mu       sync.Mutex
	lat, lon float64
	homeLat  float64
	homeLon  float64
}

func (w *walker) step() (float64, float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// 30% chance to jump next to the venue (~20m drift)
	if rand.Float64() < 0.3 {
		w.lat = w.homeLat + (rand.Float64()-0.5)*0.0004
		w.lon = w.homeLon + (rand.Float64()-0.5)*0.0004
	} else {
		w.lat += (rand.Float64() - 0.5) * 0.002
		w.lon += (rand.Float64() - 0.5) * 0.002
	}
	return w.lat, w.lon
}

func (w *walker) current() (float64, float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lat, w.lon
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	log := logrus.New()

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <interval_seconds>\n", os.Args[0])
		os.Exit(1)
	}

	intervalSec, err := strconv.Atoi(os.Args[1])
	if err != nil || intervalSec <= 0 {
		fmt.Fprintf(os.Stderr, "error: interval must be a positive integer\n")
		os.Exit(1)
	}

	broker := "tcp://localhost:1883"
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		broker = v
	}
	deviceID := "device-1"
	if v := os.Getenv("DEVICE_ID"); v != "" {
		deviceID = v
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("crowdsense-sim-" + uuid.NewString()[:8])

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("mqtt connect: %v", token.Error())
	}
	defer client.Disconnect(250)

	homeLat := envFloat("SIM_VENUE_LAT", 38.0351)
	homeLon := envFloat("SIM_VENUE_LON", -78.5001)
	w := &walker{lat: homeLat + 0.01, lon: homeLon, homeLat: homeLat, homeLon: homeLon}
	regions := &regionTable{regions: map[string]domain.Region{}, inside: map[string]bool{}}

	publish := func(channel string, v any) {
		payload, _ := json.Marshal(v)
		topic := domain.DeviceTopic(deviceID, channel)
		token := client.Publish(topic, 1, false, payload)
		token.Wait()
		log.WithField("topic", topic).Infof("published %s", payload)
	}

	commandTopic := domain.DeviceTopic(deviceID, domain.ChannelCommand)
	token := client.Subscribe(commandTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		var cmd commandMessage
		if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
			log.WithError(err).Warn("invalid command")
			return
		}
		log.WithField("command", cmd.Command).Info("command received")

		switch cmd.Command {
		case domain.CommandRequestLocation:
			lat, lon := w.current()
			go publish(domain.ChannelFix, fixMessage{
				Latitude:  lat,
				Longitude: lon,
				Timestamp: time.Now().Unix(),
				RequestID: cmd.RequestID,
			})
		case domain.CommandStartMonitoring:
			if cmd.Region != nil {
				regions.start(domain.Region{
					ID:     cmd.RegionID,
					Lat:    cmd.Region.Latitude,
					Lon:    cmd.Region.Longitude,
					Radius: cmd.Region.Radius,
				})
			}
		case domain.CommandStopMonitoring:
			regions.stop(cmd.RegionID)
		case domain.CommandRequestAlwaysAuthorization:
			go publish(domain.ChannelAuthorization, authorizationMessage{Level: domain.AuthorizationAlways.String()})
		}
	})
	if token.Wait() && token.Error() != nil {
		log.Fatalf("subscribe: %v", token.Error())
	}

	publish(domain.ChannelAuthorization, authorizationMessage{Level: domain.AuthorizationWhileInUse.String()})

	log.Infof("connected to %s as %s, publishing every %ds...", broker, deviceID, intervalSec)

	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sig:
			log.Info("shutting down")
			return
		case <-ticker.C:
			lat, lon := w.step()
			publish(domain.ChannelFix, fixMessage{
				Latitude:  lat,
				Longitude: lon,
				Timestamp: time.Now().Unix(),
			})
			for _, ev := range regions.crossings(lat, lon) {
				publish(domain.ChannelRegion, ev)
			}
		}
	}
}
