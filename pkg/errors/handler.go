package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the JSON body written for failed requests
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Type    string                 `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Handler renders AppErrors as HTTP responses
type Handler struct {
	logErrors bool
	logFn     func(format string, args ...interface{})
}

// NewHandler creates a new error handler. logFn may be nil.
func NewHandler(logErrors bool, logFn func(format string, args ...interface{})) *Handler {
	return &Handler{logErrors: logErrors, logFn: logFn}
}

// Handle writes the error response for a gin request
func (h *Handler) Handle(c *gin.Context, err error) {
	appErr := AsAppError(err)

	if h.logErrors && h.logFn != nil {
		h.logFn("request failed: type=%s code=%s message=%s cause=%v",
			appErr.Type, appErr.Code, appErr.Message, appErr.Err)
	}

	c.AbortWithStatusJSON(appErr.StatusCode, &ErrorResponse{
		Error: ErrorDetail{
			Type:    string(appErr.Type),
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
	})
}

// HandlePanic writes a 500 response for a recovered panic
func (h *Handler) HandlePanic(c *gin.Context, recovered interface{}) {
	if h.logErrors && h.logFn != nil {
		h.logFn("panic recovered: %v", recovered)
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, &ErrorResponse{
		Error: ErrorDetail{
			Type:    string(Internal),
			Code:    "PANIC",
			Message: "an unexpected error occurred",
		},
	})
}
