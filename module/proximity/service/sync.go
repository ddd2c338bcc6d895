package service

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

// ErrNoCredential is returned by a CredentialProvider with no usable token.
var ErrNoCredential = errors.New("no credential available")

type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticCredentials serves a token fixed at start-up.
type StaticCredentials string

func (c StaticCredentials) Token(context.Context) (string, error) {
	if c == "" {
		return "", ErrNoCredential
	}
	return string(c), nil
}

type ProximityBackend interface {
	ReportNearVenue(ctx context.Context, token string, venueID int64) error
}

// SyncRecord holds the last venue id the backend accepted.
type SyncRecord struct {
	LastReportedVenueID int64
	Reported            bool
}

// SyncService pushes near-venue changes to the backend once per distinct
// value. Failures are dropped; the next change re-attempts delivery.
type SyncService struct {
	backend     ProximityBackend
	credentials CredentialProvider
	log         logrus.FieldLogger

	mu     sync.Mutex
	record SyncRecord
}

func NewSyncService(backend ProximityBackend, credentials CredentialProvider, log logrus.FieldLogger) *SyncService {
	return &SyncService{
		backend:     backend,
		credentials: credentials,
		log:         log,
	}
}

func (s *SyncService) Record() SyncRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// Report sends state to the backend unless it matches the last reported
// value. It returns true when the backend accepted the report.
func (s *SyncService) Report(ctx context.Context, state domain.ProximityState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	venueID := state.NearVenueID
	if s.record.Reported && s.record.LastReportedVenueID == venueID {
		return false
	}

	log := s.log.WithField("venue_id", venueID)

	token, err := s.credentials.Token(ctx)
	if err != nil {
		log.WithError(err).Info("skipping proximity report without credential")
		return false
	}

	if err := s.backend.ReportNearVenue(ctx, token, venueID); err != nil {
		log.WithError(err).Warn("proximity report failed")
		return false
	}

	s.record = SyncRecord{LastReportedVenueID: venueID, Reported: true}
	log.Info("proximity reported")
	return true
}

// SyncWorker runs reports off the engine loop, in the order they were
// enqueued.
type SyncWorker struct {
	svc   *SyncService
	queue chan domain.ProximityState
	log   logrus.FieldLogger
}

func NewSyncWorker(svc *SyncService, size int, log logrus.FieldLogger) *SyncWorker {
	return &SyncWorker{
		svc:   svc,
		queue: make(chan domain.ProximityState, size),
		log:   log,
	}
}

// Report enqueues state without blocking. A full queue gives up its oldest
// report so the latest state is always delivered.
func (w *SyncWorker) Report(state domain.ProximityState) {
	for {
		select {
		case w.queue <- state:
			return
		default:
		}

		select {
		case dropped := <-w.queue:
			w.log.WithFields(logrus.Fields{
				"dropped_venue_id": dropped.NearVenueID,
				"venue_id":         state.NearVenueID,
			}).Error("sync queue full, dropping oldest report")
		default:
		}
	}
}

func (w *SyncWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case state := <-w.queue:
			w.svc.Report(ctx, state)
		}
	}
}
