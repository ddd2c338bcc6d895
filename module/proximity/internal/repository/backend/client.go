package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

// ErrUnexpectedStatus wraps any non-200 reply from the backend.
var ErrUnexpectedStatus = errors.New("unexpected status")

const (
	DefaultSyncPath = "/is_near_bar/"
	venuesPath      = "/bars/"
)

type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client talks to the CrowdSense backend: near-venue reports and the venue
// list.
type Client struct {
	baseURL     string
	syncPath    string
	credentials tokenSource
	http        *http.Client
	log         logrus.FieldLogger
}

func NewClient(baseURL, syncPath string, credentials tokenSource, httpClient *http.Client, log logrus.FieldLogger) *Client {
	if syncPath == "" {
		syncPath = DefaultSyncPath
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		syncPath:    syncPath,
		credentials: credentials,
		http:        httpClient,
		log:         log,
	}
}

type nearVenueRequest struct {
	NearVenueID int64 `json:"near_venue_id"`
}

func (c *Client) ReportNearVenue(ctx context.Context, token string, venueID int64) error {
	body, err := json.Marshal(nearVenueRequest{NearVenueID: venueID})
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.syncPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.decorate(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("report near venue: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("report near venue: %w %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

type barResponse struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	IsActive  *bool    `json:"is_active"`
}

// FetchVenues downloads the bar list and keeps active bars with both
// coordinates set.
func (c *Client) FetchVenues(ctx context.Context) ([]domain.Venue, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+venuesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build venues request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	token := ""
	if c.credentials != nil {
		if t, err := c.credentials.Token(ctx); err == nil {
			token = t
		}
	}
	c.decorate(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch venues: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch venues: %w %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var bars []barResponse
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return nil, fmt.Errorf("decode venues: %w", err)
	}

	venues := make([]domain.Venue, 0, len(bars))
	for _, b := range bars {
		if b.IsActive != nil && !*b.IsActive {
			continue
		}
		if b.Latitude == nil || b.Longitude == nil {
			c.log.WithField("venue_id", b.ID).Debug("skipping bar without coordinates")
			continue
		}
		venues = append(venues, domain.Venue{ID: b.ID, Latitude: *b.Latitude, Longitude: *b.Longitude})
	}
	return venues, nil
}

func (c *Client) decorate(req *http.Request, token string) {
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
}
