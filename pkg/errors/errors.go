package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an application error
type ErrorType string

const (
	NotAuthorized       ErrorType = "not_authorized"
	OutOfWindow         ErrorType = "out_of_window"
	DuplicateAttendance ErrorType = "duplicate_attendance"
	OutOfGeofence       ErrorType = "out_of_geofence"
	NotCheckedIn        ErrorType = "not_checked_in"
	NotFound            ErrorType = "not_found"
	Validation          ErrorType = "validation"
	Internal            ErrorType = "internal"
)

// AppError is the typed error returned by services and repositories
type AppError struct {
	Type       ErrorType
	Code       string
	Message    string
	Details    map[string]interface{}
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Wrap attaches a cause to the error and returns it
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// WithDetail attaches a key/value detail and returns the error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an AppError of the given type
func New(typ ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       typ,
		Code:       code,
		Message:    message,
		StatusCode: statusForType(typ),
	}
}

func statusForType(typ ErrorType) int {
	switch typ {
	case NotAuthorized:
		return http.StatusForbidden
	case OutOfWindow, OutOfGeofence, NotCheckedIn, Validation:
		return http.StatusUnprocessableEntity
	case DuplicateAttendance:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// NotAuthorizedErrorf creates a NotAuthorized error
func NotAuthorizedErrorf(code, format string, args ...interface{}) *AppError {
	return New(NotAuthorized, code, fmt.Sprintf(format, args...))
}

// OutOfWindowErrorf creates an OutOfWindow error
func OutOfWindowErrorf(code, format string, args ...interface{}) *AppError {
	return New(OutOfWindow, code, fmt.Sprintf(format, args...))
}

// DuplicateAttendanceError creates a DuplicateAttendance error. The existing
// record's identifying fields ride along in Details so the caller can present
// them; the original record is never overwritten or merged.
func DuplicateAttendanceError(recordID, source, actingAccountID string, checkInAt interface{}) *AppError {
	err := New(DuplicateAttendance, "DUPLICATE_ATTENDANCE", "attendance already recorded for this agent, event and day")
	err.WithDetail("existing_record_id", recordID)
	err.WithDetail("existing_source", source)
	err.WithDetail("existing_acting_account_id", actingAccountID)
	err.WithDetail("existing_check_in_at", checkInAt)
	return err
}

// OutOfGeofenceErrorf creates an OutOfGeofence error
func OutOfGeofenceErrorf(code, format string, args ...interface{}) *AppError {
	return New(OutOfGeofence, code, fmt.Sprintf(format, args...))
}

// NotCheckedInErrorf creates a NotCheckedIn error
func NotCheckedInErrorf(code, format string, args ...interface{}) *AppError {
	return New(NotCheckedIn, code, fmt.Sprintf(format, args...))
}

// NotFoundErrorf creates a NotFound error
func NotFoundErrorf(code, format string, args ...interface{}) *AppError {
	return New(NotFound, code, fmt.Sprintf(format, args...))
}

// ValidationErrorf creates a Validation error
func ValidationErrorf(code, format string, args ...interface{}) *AppError {
	return New(Validation, code, fmt.Sprintf(format, args...))
}

// InternalErrorf creates an Internal error
func InternalErrorf(code, format string, args ...interface{}) *AppError {
	return New(Internal, code, fmt.Sprintf(format, args...))
}

// IsType reports whether err is an AppError of the given type
func IsType(err error, typ ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == typ
	}
	return false
}

// AsAppError extracts an AppError, wrapping unknown errors as Internal
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalErrorf("INTERNAL_ERROR", "an unexpected error occurred").Wrap(err)
}
