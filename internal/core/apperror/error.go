// Package apperror provides structured error handling for the platform.
// All cross-component faults are typed AppErrors; handlers translate them
// to HTTP responses at a single seam (middleware.ErrorHandler).
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. The HTTP mapping is fixed per code and never varies by caller.
const (
	// Infrastructure errors (5xx)
	CodeInternal         = "INTERNAL_ERROR"
	CodeDatabase         = "DATABASE_ERROR"
	CodeTimeout          = "TIMEOUT_ERROR"
	CodeAuditUnavailable = "AUDIT_UNAVAILABLE"
	CodeUncheckedDenied  = "UNCHECKED_QUERY_DENIED"

	// Validation errors (400)
	CodeValidation     = "VALIDATION_ERROR"
	CodeInvalidHost    = "INVALID_HOST"
	CodeTenantRequired = "TENANT_REQUIRED"

	// Authentication errors (401)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeTokenRevoked = "TOKEN_REVOKED"

	// Authorization errors (403)
	CodeForbidden            = "FORBIDDEN"
	CodeInvalidTenant        = "INVALID_TENANT"
	CodeCrossTenant          = "CROSS_TENANT"
	CodeOnboardingIncomplete = "ONBOARDING_INCOMPLETE"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict               = "CONFLICT"
	CodeDuplicate              = "DUPLICATE_ENTRY"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"

	// Rate limiting (429)
	CodeRateLimited = "RATE_LIMITED"
)

// AppError is the standard error type for the platform.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, retry hints, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidHost creates a host allow-list rejection (400).
// The message is deliberately generic: the offending value goes to logs only.
func NewInvalidHost() *AppError {
	return &AppError{
		Code:       CodeInvalidHost,
		Message:    "invalid host",
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewTenantRequired is returned when no tenant could be resolved on a
// non-public route (400).
func NewTenantRequired() *AppError {
	return &AppError{
		Code:       CodeTenantRequired,
		Message:    "tenant is required",
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewTokenRevoked is returned when a token's jti is blacklisted (401).
func NewTokenRevoked() *AppError {
	return &AppError{
		Code:       CodeTokenRevoked,
		Message:    "token has been revoked",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewInvalidTenant is returned when the resolved tenant is unknown or
// inactive (403).
func NewInvalidTenant(candidate string) *AppError {
	return &AppError{
		Code:       CodeInvalidTenant,
		Message:    "invalid tenant",
		HTTPStatus: http.StatusForbidden,
		Details:    map[string]any{"tenant": candidate},
	}
}

// NewCrossTenant is returned when tenant sources disagree or a caller tries
// to write into a foreign tenant (403). Always paired with a security audit.
func NewCrossTenant() *AppError {
	return &AppError{
		Code:       CodeCrossTenant,
		Message:    "tenant mismatch",
		HTTPStatus: http.StatusForbidden,
	}
}

// NewOnboardingIncomplete is returned for non-onboarding traffic of a tenant
// whose setup is unfinished (403).
func NewOnboardingIncomplete(status string) *AppError {
	return &AppError{
		Code:       CodeOnboardingIncomplete,
		Message:    "tenant onboarding is not complete",
		HTTPStatus: http.StatusForbidden,
		Details: map[string]any{
			"onboarding_status": status,
			"onboarding_url":    "/api/v1/tenants/onboarding/status",
		},
	}
}

// NewNotFound creates a not found error (404). Cross-tenant targets produce
// this same error so existence is never leaked.
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// NewConcurrentModification creates an optimistic locking error (409)
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified by another user. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewRateLimited creates a rate limit error (429) with a Retry-After hint.
func NewRateLimited(retryAfterSec int) *AppError {
	return &AppError{
		Code:       CodeRateLimited,
		Message:    "too many requests",
		HTTPStatus: http.StatusTooManyRequests,
		Details:    map[string]any{"retry_after_sec": retryAfterSec},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewAuditUnavailable is returned when a compliance-critical audit write
// cannot be guaranteed; the originating operation must be refused (503).
func NewAuditUnavailable(err error) *AppError {
	return &AppError{
		Code:       CodeAuditUnavailable,
		Message:    "audit store unavailable, retry later",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"retry_after_sec": 5},
		Err:        err,
	}
}

// NewUncheckedDenied is returned when an unchecked query is attempted
// outside a marked administrative path (500, incident-audited).
func NewUncheckedDenied(caller string) *AppError {
	return &AppError{
		Code:       CodeUncheckedDenied,
		Message:    "unchecked query denied",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"caller": caller},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsCode checks if error carries the given code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
