package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
)

// Error codes shared by services and the HTTP layer.
const (
	CodeValidation          = "VALIDATION_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeInvalidState        = "INVALID_STATE"
	CodeStaffLimited        = "STAFF_LIMITED"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeCapacityExceeded    = "CAPACITY_EXCEEDED"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeStoreUnavailable    = "STORE_UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may safely repeat the request.
func (e *DomainError) Retryable() bool {
	return e.Code == CodeConcurrencyConflict || e.Code == CodeStoreUnavailable
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

// NewInvalidState reports a lifecycle transition that is not allowed from the current state.
func NewInvalidState(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidState, message, http.StatusConflict, details)
}

// NewStaffLimited reports an active staff lock.
func NewStaffLimited(staffID string, lockUntil time.Time) error {
	return NewDomainError(CodeStaffLimited,
		fmt.Sprintf("staff is locked until %s", lockUntil.UTC().Format(time.RFC3339)),
		http.StatusConflict,
		map[string]any{"staff_id": staffID, "lock_until": lockUntil.UTC()})
}

// NewQuotaExceeded reports an exhausted daily quota.
func NewQuotaExceeded(staffID string, assignedToday, maxPerDay int) error {
	return NewDomainError(CodeQuotaExceeded,
		fmt.Sprintf("daily quota reached (%d/%d)", assignedToday, maxPerDay),
		http.StatusConflict,
		map[string]any{"staff_id": staffID, "assigned_today": assignedToday, "max_per_day": maxPerDay})
}

// NewCapacityExceeded reports a staff member already holding the maximum number of active videos.
func NewCapacityExceeded(staffID string, current, maxConcurrent int) error {
	return NewDomainError(CodeCapacityExceeded,
		fmt.Sprintf("already at %d/%d active videos", current, maxConcurrent),
		http.StatusConflict,
		map[string]any{"staff_id": staffID, "current": current, "max": maxConcurrent})
}

func NewConcurrencyConflict(message string, err error) error {
	return &DomainError{
		Code:       CodeConcurrencyConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Err:        err,
	}
}

func NewStoreUnavailable(err error) error {
	return &DomainError{
		Code:       CodeStoreUnavailable,
		Message:    "store unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

// MapError converts err to a DomainError, keeping nil as nil.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// KindOf returns the machine-readable code carried by err, or "" when err is nil.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	return ToDomainError(err).Code
}

// IsKind reports whether err carries the given code.
func IsKind(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// IsRejection reports whether err is an expected admission outcome rather than a fault.
func IsRejection(err error) bool {
	switch KindOf(err) {
	case CodeNotFound, CodeInvalidState, CodeStaffLimited, CodeQuotaExceeded, CodeCapacityExceeded:
		return true
	}
	return false
}
