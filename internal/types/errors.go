package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers and services use these instead of
// hardcoded strings so the HTTP mapping stays in one place.
const (
	// Validation (400)
	ErrCodeValidationInvalidStatus    ErrorCode = "validation_invalid_status"
	ErrCodeValidationInvalidFrequency ErrorCode = "validation_invalid_frequency"
	ErrCodeValidationInvalidAnchor    ErrorCode = "validation_invalid_day_anchor"
	ErrCodeValidationEmptyRecipients  ErrorCode = "validation_empty_recipients"
	ErrCodeValidationMissingField     ErrorCode = "validation_missing_required_field"

	// Permission (403)
	ErrCodePermissionTaskAccess ErrorCode = "permission_task_access_denied"
	ErrCodePermissionRole       ErrorCode = "permission_role_insufficient"

	// Not Found (404)
	ErrCodeNotFoundTask     ErrorCode = "not_found_task"
	ErrCodeNotFoundRule     ErrorCode = "not_found_rule"
	ErrCodeNotFoundSchedule ErrorCode = "not_found_schedule"
	ErrCodeNotFoundClient   ErrorCode = "not_found_client"

	// Conflict (409)
	ErrCodeConflictRuleActive       ErrorCode = "conflict_rule_already_active"
	ErrCodeConflictScheduleInactive ErrorCode = "conflict_schedule_inactive"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB            ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected    ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamReportService ErrorCode = "upstream_report_service_unavailable"
	ErrCodeUpstreamEmailProvider ErrorCode = "upstream_email_provider_unavailable"
	ErrCodeUpstreamRateLimited   ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamUnavailable   ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamEmailRejected ErrorCode = "upstream_email_rejected"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. Domain and handler errors
// are expressed as AppError to enable consistent formatting, HTTP status
// mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
