package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"guardpost/pkg/errors"
	"guardpost/pkg/repository"
	"guardpost/pkg/services"
)

// AssignmentHandlers handles assignment state machine requests
type AssignmentHandlers struct {
	service     services.AssignmentService
	assignments repository.AssignmentRepository
	errHandler  *errors.Handler
}

// NewAssignmentHandlers creates new assignment handlers
func NewAssignmentHandlers(service services.AssignmentService, assignments repository.AssignmentRepository, errHandler *errors.Handler) *AssignmentHandlers {
	return &AssignmentHandlers{
		service:     service,
		assignments: assignments,
		errHandler:  errHandler,
	}
}

type createAssignmentRequest struct {
	AgentID string  `json:"agent_id" binding:"required"`
	EventID string  `json:"event_id" binding:"required"`
	ZoneID  *string `json:"zone_id,omitempty"`
	ActorID string  `json:"actor_id,omitempty"`
}

// Create handles POST /api/v1/assignments
func (h *AssignmentHandlers) Create(c *gin.Context) {
	var req createAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errHandler.Handle(c, errors.ValidationErrorf("BAD_REQUEST", "invalid assignment payload: %v", err))
		return
	}

	assignment, created, err := h.service.CreateOrConfirm(c.Request.Context(),
		req.AgentID, req.EventID, req.ZoneID, actorID(c, req.ActorID))
	if err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, assignment)
}

type bulkSyncRequest struct {
	AgentIDs []string `json:"agent_ids" binding:"required"`
	EventIDs []string `json:"event_ids" binding:"required"`
	ActorID  string   `json:"actor_id,omitempty"`
}

// BulkSync handles POST /api/v1/assignments/bulk-sync
func (h *AssignmentHandlers) BulkSync(c *gin.Context) {
	var req bulkSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errHandler.Handle(c, errors.ValidationErrorf("BAD_REQUEST", "invalid bulk sync payload: %v", err))
		return
	}

	result := h.service.BulkSync(c.Request.Context(), req.AgentIDs, req.EventIDs, actorID(c, req.ActorID))
	c.JSON(http.StatusOK, result)
}

// Cancel handles POST /api/v1/assignments/:id/cancel
func (h *AssignmentHandlers) Cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), c.Param("id"), actorID(c, "")); err != nil {
		h.errHandler.Handle(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Decline handles POST /api/v1/assignments/:id/decline
func (h *AssignmentHandlers) Decline(c *gin.Context) {
	if err := h.service.Decline(c.Request.Context(), c.Param("id"), actorID(c, "")); err != nil {
		h.errHandler.Handle(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListForEvent handles GET /api/v1/events/:id/assignments
func (h *AssignmentHandlers) ListForEvent(c *gin.Context) {
	assignments, err := h.assignments.ListForEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"assignments": assignments,
		"total":       len(assignments),
	})
}

func actorID(c *gin.Context, bodyValue string) string {
	if bodyValue != "" {
		return bodyValue
	}
	return c.GetHeader("X-Account-ID")
}
