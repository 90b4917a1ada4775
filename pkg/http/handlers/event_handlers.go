package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"guardpost/pkg/config"
	"guardpost/pkg/errors"
	"guardpost/pkg/models"
	"guardpost/pkg/repository"
)

// EventHandlers handles event and zone requests
type EventHandlers struct {
	eventsRepo repository.EventRepository
	errHandler *errors.Handler
	admission  config.AdmissionConfig
}

// NewEventHandlers creates new event handlers
func NewEventHandlers(eventsRepo repository.EventRepository, errHandler *errors.Handler, admission config.AdmissionConfig) *EventHandlers {
	return &EventHandlers{
		eventsRepo: eventsRepo,
		errHandler: errHandler,
		admission:  admission,
	}
}

type createEventRequest struct {
	Name                string     `json:"name" binding:"required"`
	StartsAt            time.Time  `json:"starts_at" binding:"required"`
	EndsAt              time.Time  `json:"ends_at" binding:"required"`
	CheckInOpensAt      *time.Time `json:"check_in_opens_at,omitempty"`
	CheckInClosesAt     *time.Time `json:"check_in_closes_at,omitempty"`
	Lat                 float64    `json:"lat"`
	Lon                 float64    `json:"lon"`
	RadiusM             float64    `json:"radius_m" binding:"required"`
	AgentCreationBuffer int        `json:"agent_creation_buffer"`
}

// Create handles POST /api/v1/events
func (h *EventHandlers) Create(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errHandler.Handle(c, errors.ValidationErrorf("BAD_REQUEST", "invalid event payload: %v", err))
		return
	}
	if !req.EndsAt.After(req.StartsAt) {
		h.errHandler.Handle(c, errors.ValidationErrorf("BAD_TIME_RANGE", "event must end after it starts"))
		return
	}
	if req.RadiusM <= 0 {
		h.errHandler.Handle(c, errors.ValidationErrorf("BAD_RADIUS", "geofence radius must be positive"))
		return
	}

	event := &models.Event{
		ID:                  uuid.New().String(),
		Name:                req.Name,
		StartsAt:            req.StartsAt,
		EndsAt:              req.EndsAt,
		CheckInOpensAt:      req.CheckInOpensAt,
		CheckInClosesAt:     req.CheckInClosesAt,
		Lat:                 req.Lat,
		Lon:                 req.Lon,
		RadiusM:             req.RadiusM,
		AgentCreationBuffer: req.AgentCreationBuffer,
	}
	if err := h.eventsRepo.Create(c.Request.Context(), event); err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	c.JSON(http.StatusCreated, event)
}

// Get handles GET /api/v1/events/:id, including the derived phase and the
// effective check-in window.
func (h *EventHandlers) Get(c *gin.Context) {
	event, err := h.eventsRepo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	open, close := event.CheckInWindow(h.admission.DefaultCheckInBuffer)
	c.JSON(http.StatusOK, gin.H{
		"event":              event,
		"phase":              event.Phase(time.Now()),
		"check_in_opens_at":  open,
		"check_in_closes_at": close,
	})
}

// List handles GET /api/v1/events
func (h *EventHandlers) List(c *gin.Context) {
	limit, offset := paginationParams(c)

	events, total, err := h.eventsRepo.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Cancel handles POST /api/v1/events/:id/cancel
func (h *EventHandlers) Cancel(c *gin.Context) {
	event, err := h.eventsRepo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	event.Cancelled = true
	if err := h.eventsRepo.Update(c.Request.Context(), event); err != nil {
		h.errHandler.Handle(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// Delete handles DELETE /api/v1/events/:id
func (h *EventHandlers) Delete(c *gin.Context) {
	if err := h.eventsRepo.SoftDelete(c.Request.Context(), c.Param("id")); err != nil {
		h.errHandler.Handle(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createZoneRequest struct {
	Name          string   `json:"name" binding:"required"`
	Lat           float64  `json:"lat"`
	Lon           float64  `json:"lon"`
	RadiusM       float64  `json:"radius_m" binding:"required"`
	SupervisorIDs []string `json:"supervisor_ids,omitempty"`
}

// CreateZone handles POST /api/v1/events/:id/zones
func (h *EventHandlers) CreateZone(c *gin.Context) {
	eventID := c.Param("id")
	if _, err := h.eventsRepo.Get(c.Request.Context(), eventID); err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	var req createZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errHandler.Handle(c, errors.ValidationErrorf("BAD_REQUEST", "invalid zone payload: %v", err))
		return
	}
	if req.RadiusM <= 0 {
		h.errHandler.Handle(c, errors.ValidationErrorf("BAD_RADIUS", "geofence radius must be positive"))
		return
	}

	zone := &models.Zone{
		ID:            uuid.New().String(),
		EventID:       eventID,
		Name:          req.Name,
		Lat:           req.Lat,
		Lon:           req.Lon,
		RadiusM:       req.RadiusM,
		SupervisorIDs: models.StringList(req.SupervisorIDs),
	}
	if err := h.eventsRepo.CreateZone(c.Request.Context(), zone); err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	c.JSON(http.StatusCreated, zone)
}

// ListZones handles GET /api/v1/events/:id/zones
func (h *EventHandlers) ListZones(c *gin.Context) {
	zones, err := h.eventsRepo.ZonesForEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"zones": zones,
		"total": len(zones),
	})
}
