package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"guardpost/pkg/errors"
	"guardpost/pkg/models"
	"guardpost/pkg/repository"
	"guardpost/pkg/services"
)

// TrackingHandlers handles position ingest and alert requests
type TrackingHandlers struct {
	service    services.TrackingService
	alerts     repository.AlertRepository
	positions  repository.PositionRepository
	errHandler *errors.Handler
}

// NewTrackingHandlers creates new tracking handlers
func NewTrackingHandlers(service services.TrackingService, alerts repository.AlertRepository, positions repository.PositionRepository, errHandler *errors.Handler) *TrackingHandlers {
	return &TrackingHandlers{
		service:    service,
		alerts:     alerts,
		positions:  positions,
		errHandler: errHandler,
	}
}

// IngestPosition handles POST /api/v1/tracking/positions
func (h *TrackingHandlers) IngestPosition(c *gin.Context) {
	var sample models.PositionSample
	if err := c.ShouldBindJSON(&sample); err != nil {
		h.errHandler.Handle(c, errors.ValidationErrorf("BAD_REQUEST", "invalid position payload: %v", err))
		return
	}

	if err := h.service.Ingest(c.Request.Context(), &sample); err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"sample_id": sample.ID})
}

// ListAlerts handles GET /api/v1/tracking/alerts
func (h *TrackingHandlers) ListAlerts(c *gin.Context) {
	limit, offset := paginationParams(c)

	alerts, total, err := h.alerts.ListOpen(c.Request.Context(), c.Query("agent_id"), limit, offset)
	if err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

type resolveAlertRequest struct {
	Resolution string `json:"resolution"`
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// ResolveAlert handles POST /api/v1/tracking/alerts/:id/resolve
func (h *TrackingHandlers) ResolveAlert(c *gin.Context) {
	var req resolveAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errHandler.Handle(c, errors.ValidationErrorf("BAD_REQUEST", "invalid resolution payload: %v", err))
		return
	}

	resolvedBy := req.ResolvedBy
	if resolvedBy == "" {
		resolvedBy = c.GetHeader("X-Account-ID")
	}

	if err := h.service.ResolveAlert(c.Request.Context(), c.Param("id"), resolvedBy, req.Resolution); err != nil {
		h.errHandler.Handle(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListPositions handles GET /api/v1/tracking/agents/:id/positions
func (h *TrackingHandlers) ListPositions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}

	samples, err := h.positions.ListRecent(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"samples": samples,
		"total":   len(samples),
	})
}
