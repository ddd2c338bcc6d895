package service

import (
	"errors"
	"testing"
	"time"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

var errRegionLimit = errors.New("region limit reached")

type fakeRegionMonitor struct {
	limit   int
	active  map[string]domain.Region
	started []string
	stopped []string
}

func newFakeRegionMonitor(limit int) *fakeRegionMonitor {
	return &fakeRegionMonitor{limit: limit, active: make(map[string]domain.Region)}
}

func (f *fakeRegionMonitor) StartMonitoring(r domain.Region) error {
	if f.limit > 0 && len(f.active) >= f.limit {
		return errRegionLimit
	}
	f.active[r.ID] = r
	f.started = append(f.started, r.ID)
	return nil
}

func (f *fakeRegionMonitor) StopMonitoring(id string) error {
	delete(f.active, id)
	f.stopped = append(f.stopped, id)
	return nil
}

type fakeLocationSensor struct {
	requests  []uint64
	slcActive bool
}

func (f *fakeLocationSensor) RequestLocation(id uint64) error {
	f.requests = append(f.requests, id)
	return nil
}

func (f *fakeLocationSensor) StartSignificantLocationChanges() error {
	f.slcActive = true
	return nil
}

func (f *fakeLocationSensor) StopSignificantLocationChanges() error {
	f.slcActive = false
	return nil
}

var testNow = time.Unix(1715003456, 0)

func newTestMonitoring(limit int) (*MonitoringController, *fakeRegionMonitor, *fakeLocationSensor) {
	regions := newFakeRegionMonitor(limit)
	sensor := &fakeLocationSensor{}
	c := NewMonitoringController(regions, sensor, MonitoringConfig{
		RegionRadius:  30,
		ClusterMargin: 500,
		FixMaxAge:     2 * time.Minute,
	}, quietLogger())
	c.now = func() time.Time { return testNow }
	return c, regions, sensor
}

func clusterFix() *domain.Position {
	return &domain.Position{Lat: 38.03528, Lon: -78.5001, Timestamp: testNow}
}

func farFix() *domain.Position {
	return &domain.Position{Lat: 38.1000, Lon: -78.6000, Timestamp: testNow}
}

func assertMode(t *testing.T, c *MonitoringController, want domain.MonitoringMode) {
	t.Helper()
	if got := c.Mode(); got != want {
		t.Fatalf("expected mode %s, got %s", want, got)
	}
}

func assertInstalled(t *testing.T, c *MonitoringController, regions *fakeRegionMonitor, want ...string) {
	t.Helper()
	got := c.InstalledRegions()
	if len(got) != len(want) {
		t.Fatalf("expected installed %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected installed %v, got %v", want, got)
		}
		if _, ok := regions.active[want[i]]; !ok {
			t.Fatalf("region %s not active on platform", want[i])
		}
	}
	if len(regions.active) != len(want) {
		t.Fatalf("platform has %d active regions, expected %d", len(regions.active), len(want))
	}
}

func TestMonitoring_InactiveToCoarse(t *testing.T) {
	for _, level := range []domain.AuthorizationLevel{domain.AuthorizationAlways, domain.AuthorizationWhileInUse} {
		t.Run(level.String(), func(t *testing.T) {
			c, regions, sensor := newTestMonitoring(0)
			c.HandleVenues(testVenues)
			assertMode(t, c, domain.ModeInactive)

			c.HandleAuthorization(level)

			assertMode(t, c, domain.ModeCoarse)
			assertInstalled(t, c, regions, domain.ClusterBoundaryID)
			if !sensor.slcActive {
				t.Error("expected significant location changes to be started")
			}
		})
	}
}

func TestMonitoring_CoarseToPreciseOnFixInCluster(t *testing.T) {
	c, regions, _ := newTestMonitoring(0)
	c.HandleVenues(testVenues)
	c.HandleAuthorization(domain.AuthorizationAlways)

	c.HandleFix(clusterFix())

	assertMode(t, c, domain.ModePrecise)
	assertInstalled(t, c, regions, domain.VenueRegionID(1), domain.VenueRegionID(2))
}

func TestMonitoring_CoarseStaysOnFixOutsideCluster(t *testing.T) {
	c, regions, _ := newTestMonitoring(0)
	c.HandleVenues(testVenues)
	c.HandleAuthorization(domain.AuthorizationAlways)

	c.HandleFix(farFix())

	assertMode(t, c, domain.ModeCoarse)
	assertInstalled(t, c, regions, domain.ClusterBoundaryID)
}

func TestMonitoring_BoundaryEnterThenVenues(t *testing.T) {
	c, regions, _ := newTestMonitoring(0)
	c.HandleAuthorization(domain.AuthorizationAlways)
	// no venues yet, nothing to watch precisely
	c.HandleBoundaryEvent(true)
	assertMode(t, c, domain.ModeCoarse)

	c.HandleVenues(testVenues)

	assertMode(t, c, domain.ModePrecise)
	assertInstalled(t, c, regions, domain.VenueRegionID(1), domain.VenueRegionID(2))
}

func TestMonitoring_PreciseVenueChangeConverges(t *testing.T) {
	c, regions, _ := newTestMonitoring(0)
	c.HandleVenues(testVenues)
	c.HandleAuthorization(domain.AuthorizationAlways)
	c.HandleFix(clusterFix())
	regions.stopped = nil

	c.HandleVenues([]domain.Venue{
		testVenues[0],
		{ID: 3, Latitude: 38.0360, Longitude: -78.5020},
	})

	assertMode(t, c, domain.ModePrecise)
	assertInstalled(t, c, regions, domain.VenueRegionID(1), domain.VenueRegionID(3))
	if len(regions.stopped) != 1 || regions.stopped[0] != domain.VenueRegionID(2) {
		t.Errorf("expected only venue:2 to be stopped, got %v", regions.stopped)
	}
}

func TestMonitoring_PreciseMovedVenueReinstalled(t *testing.T) {
	c, regions, _ := newTestMonitoring(0)
	c.HandleVenues(testVenues)
	c.HandleAuthorization(domain.AuthorizationAlways)
	c.HandleFix(clusterFix())

	moved := []domain.Venue{testVenues[0], {ID: 2, Latitude: 38.0390, Longitude: -78.5090}}
	c.HandleVenues(moved)

	assertInstalled(t, c, regions, domain.VenueRegionID(1), domain.VenueRegionID(2))
	if got := regions.active[domain.VenueRegionID(2)].Lat; got != 38.0390 {
		t.Errorf("expected venue:2 at new latitude, got %f", got)
	}
}

func TestMonitoring_InstallFailureRetreatsToCoarse(t *testing.T) {
	// room for the boundary or one venue region, not two
	c, regions, _ := newTestMonitoring(1)
	c.HandleVenues(testVenues)
	c.HandleAuthorization(domain.AuthorizationAlways)

	c.HandleFix(clusterFix())

	assertMode(t, c, domain.ModeCoarse)
	assertInstalled(t, c, regions, domain.ClusterBoundaryID)

	// same venue set: no retry storm on every fix
	started := len(regions.started)
	c.HandleFix(clusterFix())
	if len(regions.started) != started {
		t.Errorf("expected no new install attempts, got %v", regions.started[started:])
	}

	// a smaller set fits and is retried
	c.HandleVenues(testVenues[:1])
	c.HandleFix(clusterFix())
	assertMode(t, c, domain.ModePrecise)
	assertInstalled(t, c, regions, domain.VenueRegionID(1))
}

func TestMonitoring_PreciseReplacementFailureRetreats(t *testing.T) {
	c, regions, _ := newTestMonitoring(2)
	c.HandleVenues(testVenues)
	c.HandleAuthorization(domain.AuthorizationAlways)
	c.HandleFix(clusterFix())
	assertMode(t, c, domain.ModePrecise)

	c.HandleVenues(append(testVenues, domain.Venue{ID: 3, Latitude: 38.0360, Longitude: -78.5020}))

	assertMode(t, c, domain.ModeCoarse)
	assertInstalled(t, c, regions, domain.ClusterBoundaryID)
}

func TestMonitoring_DeniedStopsEverything(t *testing.T) {
	c, regions, sensor := newTestMonitoring(0)
	c.HandleVenues(testVenues)
	c.HandleAuthorization(domain.AuthorizationAlways)
	c.HandleFix(clusterFix())

	c.HandleAuthorization(domain.AuthorizationDenied)

	assertMode(t, c, domain.ModeInactive)
	assertInstalled(t, c, regions)
	if sensor.slcActive {
		t.Error("expected significant location changes to be stopped")
	}
}

func TestMonitoring_DeniedFromStartStaysInactive(t *testing.T) {
	c, regions, sensor := newTestMonitoring(0)
	c.HandleVenues(testVenues)

	c.HandleAuthorization(domain.AuthorizationDenied)
	c.HandleFix(clusterFix())
	c.HandleBoundaryEvent(true)

	assertMode(t, c, domain.ModeInactive)
	if len(regions.started) != 0 {
		t.Errorf("expected no regions installed, got %v", regions.started)
	}
	if sensor.slcActive {
		t.Error("expected significant location changes to stay off")
	}
}

func TestMonitoring_PreciseToCoarseOnFixOutsideCluster(t *testing.T) {
	c, regions, _ := newTestMonitoring(0)
	c.HandleVenues(testVenues)
	c.HandleAuthorization(domain.AuthorizationAlways)
	c.HandleFix(clusterFix())

	var transitions [][2]domain.MonitoringMode
	c.OnModeChanged(func(from, to domain.MonitoringMode) {
		transitions = append(transitions, [2]domain.MonitoringMode{from, to})
	})

	c.HandleFix(farFix())

	assertMode(t, c, domain.ModeCoarse)
	assertInstalled(t, c, regions, domain.ClusterBoundaryID)
	if len(transitions) != 1 || transitions[0] != [2]domain.MonitoringMode{domain.ModePrecise, domain.ModeCoarse} {
		t.Errorf("unexpected transitions %v", transitions)
	}
}

func TestMonitoring_ClusterLeft(t *testing.T) {
	c, regions, _ := newTestMonitoring(0)
	c.HandleVenues(testVenues)
	c.HandleAuthorization(domain.AuthorizationAlways)
	c.HandleFix(clusterFix())

	c.HandleClusterLeft()

	assertMode(t, c, domain.ModeCoarse)
	assertInstalled(t, c, regions, domain.ClusterBoundaryID)
}

func TestMonitoring_AllRegionsExited(t *testing.T) {
	t.Run("fresh fix in cluster keeps precise", func(t *testing.T) {
		c, _, _ := newTestMonitoring(0)
		c.HandleVenues(testVenues)
		c.HandleAuthorization(domain.AuthorizationAlways)
		c.HandleFix(clusterFix())

		c.HandleAllRegionsExited()
		assertMode(t, c, domain.ModePrecise)
	})

	t.Run("stale fix retreats", func(t *testing.T) {
		c, regions, _ := newTestMonitoring(0)
		c.HandleVenues(testVenues)
		c.HandleAuthorization(domain.AuthorizationAlways)
		c.HandleFix(clusterFix())

		c.now = func() time.Time { return testNow.Add(10 * time.Minute) }
		c.HandleAllRegionsExited()
		assertMode(t, c, domain.ModeCoarse)
		assertInstalled(t, c, regions, domain.ClusterBoundaryID)
	})
}

func TestMonitoring_EmptyVenueSetRetreats(t *testing.T) {
	c, regions, _ := newTestMonitoring(0)
	c.HandleVenues(testVenues)
	c.HandleAuthorization(domain.AuthorizationAlways)
	c.HandleFix(clusterFix())

	c.HandleVenues(nil)

	assertMode(t, c, domain.ModeCoarse)
	assertInstalled(t, c, regions)
}

func TestMonitoring_InvalidVenuesDropped(t *testing.T) {
	c, regions, _ := newTestMonitoring(0)
	c.HandleVenues([]domain.Venue{
		testVenues[0],
		{ID: 5, Latitude: 123, Longitude: -78.5},
	})
	c.HandleAuthorization(domain.AuthorizationAlways)
	c.HandleFix(clusterFix())

	assertMode(t, c, domain.ModePrecise)
	assertInstalled(t, c, regions, domain.VenueRegionID(1))
}

func TestMonitoring_InstalledNeverExceedsVenueCount(t *testing.T) {
	c, _, _ := newTestMonitoring(0)
	c.HandleAuthorization(domain.AuthorizationAlways)

	sets := [][]domain.Venue{
		testVenues,
		testVenues[:1],
		append(testVenues, domain.Venue{ID: 3, Latitude: 38.0360, Longitude: -78.5020}),
		testVenues[1:],
	}
	c.HandleVenues(sets[0])
	c.HandleFix(clusterFix())

	for _, set := range sets {
		c.HandleVenues(set)
		n := c.InstalledVenueRegions()
		if n > len(set) {
			t.Fatalf("installed %d venue regions for %d venues", n, len(set))
		}
		if c.Mode() == domain.ModePrecise && n == 0 {
			t.Fatal("precise mode with zero installed regions")
		}
	}
}
