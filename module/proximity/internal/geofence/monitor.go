package geofence

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

// DefaultMaxRegions mirrors the per-app region limit of mobile platforms.
const DefaultMaxRegions = 20

var ErrRegionLimit = errors.New("monitored region limit reached")

type regionState int

const (
	stateUnknown regionState = iota
	stateInside
	stateOutside
)

type watched struct {
	region domain.Region
	state  regionState
}

// Monitor evaluates position fixes against installed circular regions and
// reports boundary crossings, for devices that stream fixes but have no
// native region monitoring.
type Monitor struct {
	maxRegions int
	log        logrus.FieldLogger

	mu      sync.Mutex
	regions map[string]*watched
}

func NewMonitor(maxRegions int, log logrus.FieldLogger) *Monitor {
	if maxRegions <= 0 {
		maxRegions = DefaultMaxRegions
	}
	return &Monitor{
		maxRegions: maxRegions,
		log:        log,
		regions:    make(map[string]*watched),
	}
}

func (m *Monitor) StartMonitoring(region domain.Region) error {
	if !domain.ValidCoordinates(region.Lat, region.Lon) || region.Radius <= 0 {
		return fmt.Errorf("region %s: invalid geometry", region.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.regions[region.ID]; ok {
		w.region = region
		w.state = stateUnknown
		return nil
	}
	if len(m.regions) >= m.maxRegions {
		return fmt.Errorf("region %s: %w", region.ID, ErrRegionLimit)
	}
	m.regions[region.ID] = &watched{region: region}
	return nil
}

func (m *Monitor) StopMonitoring(regionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.regions, regionID)
	return nil
}

func (m *Monitor) Regions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.regions))
	for id := range m.regions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Observe checks fix against every installed region and returns the
// crossings in region id order. A region first seen with the device inside
// reports an enter; one first seen outside reports nothing.
func (m *Monitor) Observe(fix *domain.Position) []domain.Event {
	if fix == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.regions))
	for id := range m.regions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var events []domain.Event
	for _, id := range ids {
		w := m.regions[id]
		inside := w.region.Contains(fix.Lat, fix.Lon)
		switch {
		case inside && w.state != stateInside:
			w.state = stateInside
			events = append(events, domain.RegionEntered{RegionID: id})
		case !inside && w.state == stateInside:
			w.state = stateOutside
			events = append(events, domain.RegionExited{RegionID: id})
		case !inside:
			w.state = stateOutside
		}
	}

	for _, ev := range events {
		m.log.WithField("event", ev.Kind()).Debug("region crossing")
	}
	return events
}
