package http

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

type statusSource interface {
	Snapshot() domain.Status
}

type venueSource interface {
	Venues() []domain.Venue
}

type changeStream interface {
	Subscribe() <-chan domain.ProximityChange
	Unsubscribe(sub <-chan domain.ProximityChange)
}

type proximityResponse struct {
	NearVenueID   int64 `json:"near_venue_id"`
	IsNear        bool  `json:"is_near"`
	LastChangedAt int64 `json:"last_changed_at,omitempty"`
}

type statusResponse struct {
	Proximity        proximityResponse `json:"proximity"`
	Mode             string            `json:"mode"`
	Authorization    string            `json:"authorization"`
	InstalledRegions int               `json:"installed_regions"`
	Venues           int               `json:"venues"`
}

type changeResponse struct {
	DeviceID        string `json:"device_id"`
	PreviousVenueID int64  `json:"previous_venue_id"`
	NearVenueID     int64  `json:"near_venue_id"`
	Mode            string `json:"mode"`
	ChangedAt       int64  `json:"changed_at"`
}

// ProximityHandler is the read side for UI consumers.
type ProximityHandler struct {
	status  statusSource
	venues  venueSource
	changes changeStream
}

func NewProximityHandler(status statusSource, venues venueSource, changes changeStream) *ProximityHandler {
	return &ProximityHandler{status: status, venues: venues, changes: changes}
}

func (h *ProximityHandler) Register(r *gin.RouterGroup) {
	r.GET("/proximity", h.GetProximity)
	r.GET("/proximity/stream", h.StreamChanges)
	r.GET("/status", h.GetStatus)
	r.GET("/venues", h.GetVenues)
}

func (h *ProximityHandler) GetProximity(c *gin.Context) {
	c.JSON(http.StatusOK, toProximityResponse(h.status.Snapshot().Proximity))
}

func (h *ProximityHandler) GetStatus(c *gin.Context) {
	s := h.status.Snapshot()
	c.JSON(http.StatusOK, statusResponse{
		Proximity:        toProximityResponse(s.Proximity),
		Mode:             s.Mode.String(),
		Authorization:    s.Authorization.String(),
		InstalledRegions: s.InstalledRegions,
		Venues:           s.Venues,
	})
}

func (h *ProximityHandler) GetVenues(c *gin.Context) {
	venues := h.venues.Venues()
	if venues == nil {
		venues = []domain.Venue{}
	}
	c.JSON(http.StatusOK, venues)
}

// StreamChanges pushes near-venue changes as server-sent events until the
// client goes away.
func (h *ProximityHandler) StreamChanges(c *gin.Context) {
	sub := h.changes.Subscribe()
	defer h.changes.Unsubscribe(sub)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("proximity", toProximityResponse(h.status.Snapshot().Proximity))
	c.Stream(func(_ io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case change, ok := <-sub:
			if !ok {
				return false
			}
			c.SSEvent("change", changeResponse{
				DeviceID:        change.DeviceID,
				PreviousVenueID: change.PreviousVenueID,
				NearVenueID:     change.NearVenueID,
				Mode:            change.Mode,
				ChangedAt:       change.ChangedAt.Unix(),
			})
			return true
		}
	})
}

func toProximityResponse(p domain.ProximityState) proximityResponse {
	resp := proximityResponse{
		NearVenueID: p.NearVenueID,
		IsNear:      p.IsNear(),
	}
	if !p.LastChangedAt.IsZero() {
		resp.LastChangedAt = p.LastChangedAt.Unix()
	}
	return resp
}
