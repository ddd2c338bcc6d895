package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

type ProximityReporter interface {
	Report(state domain.ProximityState)
}

type ChangeNotifier interface {
	Publish(change domain.ProximityChange)
}

// FixObserver evaluates accepted fixes against software regions and returns
// the resulting crossings.
type FixObserver interface {
	Observe(fix *domain.Position) []domain.Event
}

type EngineConfig struct {
	DeviceID   string
	FixMaxAge  time.Duration
	FixTimeout time.Duration
	QueueSize  int
}

// Engine is the single owner of monitoring and proximity state. Platform
// callbacks, fetch results and timers are submitted as events and applied
// one at a time in arrival order.
type Engine struct {
	auth     *AuthorizationController
	monitor  *MonitoringController
	reducer  *ProximityReducer
	sensor   LocationSensor
	reporter ProximityReporter
	notifier ChangeNotifier
	observer FixObserver
	cfg      EngineConfig
	log      logrus.FieldLogger
	now      func() time.Time

	events chan domain.Event
	done   chan struct{}
	status atomic.Pointer[domain.Status]

	pendingRequest uint64
	nextRequest    uint64
	lastFixAt      time.Time
	venueCount     int
}

func NewEngine(
	auth *AuthorizationController,
	monitor *MonitoringController,
	reducer *ProximityReducer,
	sensor LocationSensor,
	reporter ProximityReporter,
	notifier ChangeNotifier,
	cfg EngineConfig,
	log logrus.FieldLogger,
) *Engine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	e := &Engine{
		auth:     auth,
		monitor:  monitor,
		reducer:  reducer,
		sensor:   sensor,
		reporter: reporter,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		events:   make(chan domain.Event, cfg.QueueSize),
		done:     make(chan struct{}),
	}

	auth.OnLevelChanged(monitor.HandleAuthorization)
	monitor.OnModeChanged(func(from, _ domain.MonitoringMode) {
		if from == domain.ModePrecise {
			reducer.ResetRegions()
		}
	})

	e.publishStatus()
	return e
}

// SetFixObserver routes accepted fixes through o. Call it before Run.
func (e *Engine) SetFixObserver(o FixObserver) {
	e.observer = o
}

// Submit queues an event for the engine loop. It blocks while the queue is
// full and drops the event once the engine has stopped.
func (e *Engine) Submit(ev domain.Event) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

// Snapshot returns a copy of the latest state; safe from any goroutine.
func (e *Engine) Snapshot() domain.Status {
	return *e.status.Load()
}

func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	e.log.Info("proximity engine started")
	for {
		select {
		case <-ctx.Done():
			e.log.Info("proximity engine stopped")
			return
		case ev := <-e.events:
			e.handle(ev)
		}
	}
}

func (e *Engine) handle(ev domain.Event) {
	switch ev := ev.(type) {
	case domain.AuthorizationChanged:
		e.auth.HandleLevelChange(ev.Level)
		if e.monitor.Mode() == domain.ModeInactive {
			e.emit(e.reducer.Clear())
		}
	case domain.PositionFixed:
		e.handleFix(ev)
	case domain.RegionEntered:
		e.handleRegion(ev.RegionID, true)
	case domain.RegionExited:
		e.handleRegion(ev.RegionID, false)
	case domain.ClusterLeft:
		e.monitor.HandleClusterLeft()
	case domain.VenuesChanged:
		e.venueCount = len(ev.Venues)
		e.emit(e.reducer.SetVenues(ev.Venues))
		e.monitor.HandleVenues(ev.Venues)
	case domain.LocationCheckDue:
		if e.monitor.Mode() == domain.ModeCoarse {
			e.requestLocation()
		}
	default:
		e.log.WithField("event", ev.Kind()).Warn("unhandled event")
	}
	e.publishStatus()
}

func (e *Engine) handleFix(ev domain.PositionFixed) {
	if ev.RequestID != 0 {
		if ev.RequestID != e.pendingRequest {
			e.log.WithField("request_id", ev.RequestID).Debug("ignoring superseded location request")
			return
		}
		e.pendingRequest = 0
	}

	fix := ev.Fix
	if fix == nil {
		e.log.Debug("location unavailable, state unchanged")
		return
	}
	if e.now().Sub(fix.Timestamp) > e.cfg.FixMaxAge || fix.Timestamp.Before(e.lastFixAt) {
		e.log.WithField("timestamp", fix.Timestamp).Debug("ignoring stale fix")
		return
	}
	e.lastFixAt = fix.Timestamp

	e.emit(e.reducer.OnPositionFix(fix, e.monitor.Mode()))
	e.monitor.HandleFix(fix)

	if e.observer == nil {
		return
	}
	// regions installed by this fix are evaluated against it too
	for _, crossing := range e.observer.Observe(fix) {
		e.handle(crossing)
	}
}

func (e *Engine) handleRegion(regionID string, entered bool) {
	if regionID == domain.ClusterBoundaryID {
		e.monitor.HandleBoundaryEvent(entered)
		return
	}

	venueID, ok := domain.ParseVenueRegionID(regionID)
	if !ok {
		e.log.WithField("region_id", regionID).Warn("unknown region")
		return
	}
	if e.monitor.Mode() != domain.ModePrecise {
		e.log.WithField("region_id", regionID).Debug("ignoring venue region event outside precise mode")
		return
	}

	if entered {
		e.emit(e.reducer.OnRegionEnter(venueID))
		return
	}
	e.emit(e.reducer.OnRegionExit(venueID))
	if len(e.reducer.Inside()) == 0 {
		e.monitor.HandleAllRegionsExited()
	}
}

// requestLocation issues a single-fix request. Only the latest request's
// completion is honoured.
func (e *Engine) requestLocation() {
	e.nextRequest++
	id := e.nextRequest
	e.pendingRequest = id

	if err := e.sensor.RequestLocation(id); err != nil {
		e.log.WithError(err).Warn("location request failed")
		e.pendingRequest = 0
		return
	}
	if e.cfg.FixTimeout > 0 {
		time.AfterFunc(e.cfg.FixTimeout, func() {
			e.Submit(domain.PositionFixed{RequestID: id})
		})
	}
}

func (e *Engine) emit(state domain.ProximityState, changed bool) {
	if !changed {
		return
	}
	prev := e.Snapshot().Proximity.NearVenueID
	mode := e.monitor.Mode()

	e.log.WithFields(logrus.Fields{
		"venue_id": state.NearVenueID,
		"previous": prev,
		"mode":     mode.String(),
	}).Info("near venue changed")

	// keep the snapshot current before consumers are told
	e.publishStatus()
	e.reporter.Report(state)
	e.notifier.Publish(domain.ProximityChange{
		DeviceID:        e.cfg.DeviceID,
		PreviousVenueID: prev,
		NearVenueID:     state.NearVenueID,
		Mode:            mode.String(),
		ChangedAt:       state.LastChangedAt,
	})
}

func (e *Engine) publishStatus() {
	e.status.Store(&domain.Status{
		Proximity:        e.reducer.State(),
		Mode:             e.monitor.Mode(),
		Authorization:    e.auth.CurrentLevel(),
		InstalledRegions: len(e.monitor.InstalledRegions()),
		Venues:           e.venueCount,
	})
}
