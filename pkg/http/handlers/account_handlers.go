package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"guardpost/pkg/errors"
	"guardpost/pkg/models"
	"guardpost/pkg/services"
)

// AccountHandlers handles staff identity requests
type AccountHandlers struct {
	service    services.AccountService
	errHandler *errors.Handler
}

// NewAccountHandlers creates new account handlers
func NewAccountHandlers(service services.AccountService, errHandler *errors.Handler) *AccountHandlers {
	return &AccountHandlers{service: service, errHandler: errHandler}
}

// Create handles POST /api/v1/accounts
func (h *AccountHandlers) Create(c *gin.Context) {
	var req services.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errHandler.Handle(c, errors.ValidationErrorf("BAD_REQUEST", "invalid account payload: %v", err))
		return
	}

	account, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	c.JSON(http.StatusCreated, account)
}

// Get handles GET /api/v1/accounts/:id
func (h *AccountHandlers) Get(c *gin.Context) {
	account, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.errHandler.Handle(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// List handles GET /api/v1/accounts
func (h *AccountHandlers) List(c *gin.Context) {
	limit, offset := paginationParams(c)
	role := c.Query("role")

	accounts, total, err := h.service.List(c.Request.Context(), role, limit, offset)
	if err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accounts": accounts,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

type enrollBiometricRequest struct {
	Reference models.Vector `json:"reference" binding:"required"`
}

// EnrollBiometric handles POST /api/v1/accounts/:id/biometric
func (h *AccountHandlers) EnrollBiometric(c *gin.Context) {
	var req enrollBiometricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errHandler.Handle(c, errors.ValidationErrorf("BAD_REQUEST", "invalid biometric payload: %v", err))
		return
	}

	if err := h.service.EnrollBiometric(c.Request.Context(), c.Param("id"), req.Reference); err != nil {
		h.errHandler.Handle(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Suspend handles POST /api/v1/accounts/:id/suspend
func (h *AccountHandlers) Suspend(c *gin.Context) {
	if err := h.service.Suspend(c.Request.Context(), c.Param("id")); err != nil {
		h.errHandler.Handle(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete handles DELETE /api/v1/accounts/:id. Soft by default; ?hard=true
// removes the row permanently.
func (h *AccountHandlers) Delete(c *gin.Context) {
	var err error
	if c.Query("hard") == "true" {
		err = h.service.HardDelete(c.Request.Context(), c.Param("id"))
	} else {
		err = h.service.SoftDelete(c.Request.Context(), c.Param("id"))
	}
	if err != nil {
		h.errHandler.Handle(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SelfRegister handles POST /api/v1/events/:id/register
func (h *AccountHandlers) SelfRegister(c *gin.Context) {
	var req services.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errHandler.Handle(c, errors.ValidationErrorf("BAD_REQUEST", "invalid registration payload: %v", err))
		return
	}

	account, assignment, err := h.service.SelfRegister(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.errHandler.Handle(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"account":    account,
		"assignment": assignment,
	})
}

// paginationParams parses limit/offset with sane bounds
func paginationParams(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
