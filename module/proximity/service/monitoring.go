package service

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

type RegionMonitor interface {
	StartMonitoring(region domain.Region) error
	StopMonitoring(regionID string) error
}

type LocationSensor interface {
	RequestLocation(requestID uint64) error
	StartSignificantLocationChanges() error
	StopSignificantLocationChanges() error
}

type MonitoringConfig struct {
	RegionRadius  float64
	ClusterMargin float64
	FixMaxAge     time.Duration
}

// MonitoringController owns the monitoring mode and the installed region
// set. Coarse mode watches one area boundary around the venue cluster;
// precise mode watches one small region per venue.
type MonitoringController struct {
	regions RegionMonitor
	sensor  LocationSensor
	cfg     MonitoringConfig
	log     logrus.FieldLogger
	now     func() time.Time

	mode       domain.MonitoringMode
	installed  map[string]domain.Region
	venues     []domain.Venue
	cluster    domain.Region
	hasCluster bool
	inCluster  bool
	lastFix    *domain.Position
	failedSet  string
	listeners  []func(from, to domain.MonitoringMode)
}

func NewMonitoringController(regions RegionMonitor, sensor LocationSensor, cfg MonitoringConfig, log logrus.FieldLogger) *MonitoringController {
	return &MonitoringController{
		regions:   regions,
		sensor:    sensor,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		mode:      domain.ModeInactive,
		installed: make(map[string]domain.Region),
	}
}

func (c *MonitoringController) Mode() domain.MonitoringMode {
	return c.mode
}

// InstalledRegions returns the ids of all regions currently monitored.
func (c *MonitoringController) InstalledRegions() []string {
	ids := make([]string, 0, len(c.installed))
	for id := range c.installed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *MonitoringController) InstalledVenueRegions() int {
	n := 0
	for id := range c.installed {
		if _, ok := domain.ParseVenueRegionID(id); ok {
			n++
		}
	}
	return n
}

func (c *MonitoringController) OnModeChanged(fn func(from, to domain.MonitoringMode)) {
	c.listeners = append(c.listeners, fn)
}

func (c *MonitoringController) HandleAuthorization(level domain.AuthorizationLevel) {
	if !level.Granted() {
		if c.mode != domain.ModeInactive {
			c.stopAll()
			c.inCluster = false
			c.setMode(domain.ModeInactive, "authorization "+level.String())
		}
		return
	}

	if c.mode == domain.ModeInactive {
		if err := c.sensor.StartSignificantLocationChanges(); err != nil {
			c.log.WithError(err).Warn("start significant location changes failed")
		}
		c.installBoundary()
		c.setMode(domain.ModeCoarse, "authorization "+level.String())
		c.maybeEnterPrecise()
	}
}

func (c *MonitoringController) HandleVenues(venues []domain.Venue) {
	valid := make([]domain.Venue, 0, len(venues))
	for _, v := range venues {
		if !v.Valid() {
			c.log.WithField("venue_id", v.ID).Warn("dropping venue with invalid coordinates")
			continue
		}
		valid = append(valid, v)
	}
	slices.SortFunc(valid, func(a, b domain.Venue) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	c.venues = valid
	c.cluster, c.hasCluster = clusterBoundary(valid, c.cfg.ClusterMargin)
	if c.failedSet != "" && c.failedSet != fingerprint(valid) {
		c.failedSet = ""
	}

	switch c.mode {
	case domain.ModeCoarse:
		c.installBoundary()
		c.maybeEnterPrecise()
	case domain.ModePrecise:
		if len(valid) == 0 {
			c.retreat("venue set emptied")
			return
		}
		if err := c.convergeVenueRegions(); err != nil {
			c.log.WithError(err).Warn("region replacement failed")
			c.failedSet = fingerprint(valid)
			c.retreat("region installation failed")
		}
	}
}

func (c *MonitoringController) HandleFix(fix *domain.Position) {
	if fix == nil {
		return
	}
	c.lastFix = fix
	if !c.hasCluster {
		return
	}

	inside := c.cluster.Contains(fix.Lat, fix.Lon)
	switch c.mode {
	case domain.ModeCoarse:
		c.inCluster = inside
		c.maybeEnterPrecise()
	case domain.ModePrecise:
		if !inside {
			c.inCluster = false
			c.retreat("fix outside venue cluster")
		}
	}
}

// HandleBoundaryEvent ingests enter/exit of the area boundary region.
func (c *MonitoringController) HandleBoundaryEvent(entered bool) {
	if c.mode != domain.ModeCoarse {
		return
	}
	c.inCluster = entered
	c.maybeEnterPrecise()
}

func (c *MonitoringController) HandleClusterLeft() {
	c.inCluster = false
	if c.mode == domain.ModePrecise {
		c.retreat("left venue cluster")
	}
}

// HandleAllRegionsExited is called once no venue region is occupied. The
// controller stays precise only while a fresh fix places the device in the
// cluster.
func (c *MonitoringController) HandleAllRegionsExited() {
	if c.mode != domain.ModePrecise {
		return
	}
	if c.lastFix != nil && c.now().Sub(c.lastFix.Timestamp) <= c.cfg.FixMaxAge &&
		c.cluster.Contains(c.lastFix.Lat, c.lastFix.Lon) {
		return
	}
	c.inCluster = false
	c.retreat("exited all venue regions")
}

func (c *MonitoringController) maybeEnterPrecise() {
	if c.mode != domain.ModeCoarse || len(c.venues) == 0 || !c.inCluster {
		return
	}
	if c.failedSet == fingerprint(c.venues) {
		return
	}

	c.stopRegion(domain.ClusterBoundaryID)
	if err := c.convergeVenueRegions(); err != nil {
		c.log.WithError(err).Warn("precise monitoring unavailable, staying coarse")
		c.failedSet = fingerprint(c.venues)
		c.stopVenueRegions()
		c.installBoundary()
		return
	}
	c.setMode(domain.ModePrecise, "inside venue cluster")
}

func (c *MonitoringController) retreat(reason string) {
	c.stopVenueRegions()
	c.installBoundary()
	c.setMode(domain.ModeCoarse, reason)
}

// convergeVenueRegions diffs the desired venue regions against the installed
// ones, removing stale regions before adding missing ones.
func (c *MonitoringController) convergeVenueRegions() error {
	desired := make(map[string]domain.Region, len(c.venues))
	for _, v := range c.venues {
		r := domain.Region{
			ID:     domain.VenueRegionID(v.ID),
			Lat:    v.Latitude,
			Lon:    v.Longitude,
			Radius: c.cfg.RegionRadius,
		}
		desired[r.ID] = r
	}

	for _, id := range c.InstalledRegions() {
		if _, ok := domain.ParseVenueRegionID(id); !ok {
			continue
		}
		if want, ok := desired[id]; !ok || want != c.installed[id] {
			c.stopRegion(id)
		}
	}

	for _, v := range c.venues {
		r := desired[domain.VenueRegionID(v.ID)]
		if _, ok := c.installed[r.ID]; ok {
			continue
		}
		if err := c.regions.StartMonitoring(r); err != nil {
			return fmt.Errorf("install region %s: %w", r.ID, err)
		}
		c.installed[r.ID] = r
	}
	return nil
}

func (c *MonitoringController) installBoundary() {
	current, installed := c.installed[domain.ClusterBoundaryID]
	if !c.hasCluster {
		if installed {
			c.stopRegion(domain.ClusterBoundaryID)
		}
		return
	}
	if installed && current == c.cluster {
		return
	}
	if installed {
		c.stopRegion(domain.ClusterBoundaryID)
	}
	if err := c.regions.StartMonitoring(c.cluster); err != nil {
		c.log.WithError(err).Warn("install area boundary failed")
		return
	}
	c.installed[c.cluster.ID] = c.cluster
}

func (c *MonitoringController) stopVenueRegions() {
	for _, id := range c.InstalledRegions() {
		if _, ok := domain.ParseVenueRegionID(id); ok {
			c.stopRegion(id)
		}
	}
}

func (c *MonitoringController) stopAll() {
	for _, id := range c.InstalledRegions() {
		c.stopRegion(id)
	}
	if err := c.sensor.StopSignificantLocationChanges(); err != nil {
		c.log.WithError(err).Warn("stop significant location changes failed")
	}
}

// stopRegion forgets the region even if the platform call fails, so a
// failing stop never leaves it counted as installed.
func (c *MonitoringController) stopRegion(id string) {
	if _, ok := c.installed[id]; !ok {
		return
	}
	delete(c.installed, id)
	if err := c.regions.StopMonitoring(id); err != nil {
		c.log.WithError(err).WithField("region_id", id).Warn("stop monitoring failed")
	}
}

func (c *MonitoringController) setMode(mode domain.MonitoringMode, reason string) {
	if mode == c.mode {
		return
	}
	prev := c.mode
	c.mode = mode
	c.log.WithFields(logrus.Fields{
		"from":    prev.String(),
		"to":      mode.String(),
		"reason":  reason,
		"regions": len(c.installed),
	}).Info("monitoring mode changed")
	for _, fn := range c.listeners {
		fn(prev, mode)
	}
}

func clusterBoundary(venues []domain.Venue, margin float64) (domain.Region, bool) {
	if len(venues) == 0 {
		return domain.Region{}, false
	}

	var lat, lon float64
	for _, v := range venues {
		lat += v.Latitude
		lon += v.Longitude
	}
	lat /= float64(len(venues))
	lon /= float64(len(venues))

	var farthest float64
	for _, v := range venues {
		farthest = max(farthest, domain.DistanceMeters(lat, lon, v.Latitude, v.Longitude))
	}

	return domain.Region{
		ID:     domain.ClusterBoundaryID,
		Lat:    lat,
		Lon:    lon,
		Radius: farthest + margin,
	}, true
}

func fingerprint(venues []domain.Venue) string {
	return fmt.Sprint(venues)
}
