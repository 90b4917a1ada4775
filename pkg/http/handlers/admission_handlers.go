package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"guardpost/pkg/errors"
	"guardpost/pkg/repository"
	"guardpost/pkg/services"
)

// AdmissionHandlers handles check-in and check-out requests
type AdmissionHandlers struct {
	service    services.AdmissionService
	attendance repository.AttendanceRepository
	errHandler *errors.Handler
}

// NewAdmissionHandlers creates new admission handlers
func NewAdmissionHandlers(service services.AdmissionService, attendance repository.AttendanceRepository, errHandler *errors.Handler) *AdmissionHandlers {
	return &AdmissionHandlers{
		service:    service,
		attendance: attendance,
		errHandler: errHandler,
	}
}

// CheckIn handles POST /api/v1/attendance/check-in
func (h *AdmissionHandlers) CheckIn(c *gin.Context) {
	var req services.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errHandler.Handle(c, errors.ValidationErrorf("BAD_REQUEST", "invalid check-in payload: %v", err))
		return
	}
	if req.ActingAccountID == "" {
		req.ActingAccountID = c.GetHeader("X-Account-ID")
	}

	record, err := h.service.CheckIn(c.Request.Context(), &req)
	if err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

// CheckOut handles POST /api/v1/attendance/check-out
func (h *AdmissionHandlers) CheckOut(c *gin.Context) {
	var req services.CheckOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errHandler.Handle(c, errors.ValidationErrorf("BAD_REQUEST", "invalid check-out payload: %v", err))
		return
	}
	if req.ActingAccountID == "" {
		req.ActingAccountID = c.GetHeader("X-Account-ID")
	}

	record, err := h.service.CheckOut(c.Request.Context(), &req)
	if err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// ListForEvent handles GET /api/v1/events/:id/attendance
func (h *AdmissionHandlers) ListForEvent(c *gin.Context) {
	day := c.Query("day")

	records, err := h.attendance.ListForEvent(c.Request.Context(), c.Param("id"), day)
	if err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"total":   len(records),
	})
}
