package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

const (
	DefaultVenueRefreshSpec  = "*/15 * * * *"
	DefaultLocationCheckSpec = "*/5 * * * *"
)

type venueRefresher interface {
	Refresh(ctx context.Context) error
}

type eventSink interface {
	Submit(ev domain.Event)
}

// Scheduler runs the periodic venue refresh and coarse-mode location checks.
type Scheduler struct {
	cronEngine        *cron.Cron
	refresher         venueRefresher
	sink              eventSink
	log               logrus.FieldLogger
	venueRefreshSpec  string
	locationCheckSpec string
}

func NewScheduler(refresher venueRefresher, sink eventSink, log logrus.FieldLogger, venueRefreshSpec, locationCheckSpec string) *Scheduler {
	if venueRefreshSpec == "" {
		venueRefreshSpec = DefaultVenueRefreshSpec
	}
	if locationCheckSpec == "" {
		locationCheckSpec = DefaultLocationCheckSpec
	}
	return &Scheduler{
		cronEngine:        cron.New(cron.WithLocation(time.Local)),
		refresher:         refresher,
		sink:              sink,
		log:               log,
		venueRefreshSpec:  venueRefreshSpec,
		locationCheckSpec: locationCheckSpec,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cronEngine.AddFunc(s.venueRefreshSpec, s.refreshVenues); err != nil {
		return fmt.Errorf("venue refresh job: %w", err)
	}
	if _, err := s.cronEngine.AddFunc(s.locationCheckSpec, s.checkLocation); err != nil {
		return fmt.Errorf("location check job: %w", err)
	}

	s.cronEngine.Start()
	s.log.WithFields(logrus.Fields{
		"venue_refresh":  s.venueRefreshSpec,
		"location_check": s.locationCheckSpec,
	}).Info("scheduler started")
	return nil
}

func (s *Scheduler) refreshVenues() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := s.refresher.Refresh(ctx); err != nil {
		s.log.WithError(err).Warn("scheduled venue refresh failed")
	}
}

func (s *Scheduler) checkLocation() {
	s.sink.Submit(domain.LocationCheckDue{})
}

func (s *Scheduler) Stop() {
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}
