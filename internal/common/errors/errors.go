// Package errors provides standardized error handling for the license
// workflow engines.
package errors

import (
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidTransition   ErrorCode = "INVALID_TRANSITION"
	ErrCodeApplicationNotFound ErrorCode = "APPLICATION_NOT_FOUND"
	ErrCodeInvalidOfficer      ErrorCode = "INVALID_OFFICER"
	ErrCodeNoOfficerAvailable  ErrorCode = "NO_OFFICER_AVAILABLE"
	ErrCodeNoEscalationPath    ErrorCode = "NO_ESCALATION_PATH"
	ErrCodeReasonRequired      ErrorCode = "REASON_REQUIRED"
	ErrCodeLadderInvalid       ErrorCode = "ESCALATION_LADDER_INVALID"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeSerializationConflict    ErrorCode = "SERIALIZATION_CONFLICT"

	ErrCodeElasticsearchConnectionFailed ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"
	ErrCodeNotificationSendFailed        ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeSweepLeaseFailed              ErrorCode = "SWEEP_LEASE_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewInvalidTransitionError creates a non-retryable transition error.
func NewInvalidTransitionError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   "Transition not allowed for this status and role",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewApplicationNotFoundError creates a non-retryable lookup error.
func NewApplicationNotFoundError(applicationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApplicationNotFound,
		Message:   "Application not found",
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidOfficerError creates a non-retryable officer validation error.
func NewInvalidOfficerError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidOfficer,
		Message:   "Officer cannot receive this application",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoOfficerAvailableError creates a retryable roster error. The sweep
// retries these on its next pass.
func NewNoOfficerAvailableError(role string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoOfficerAvailable,
		Message:   "No active officer available for role",
		Details:   fmt.Sprintf("role: %s", role),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoEscalationPathError creates a non-retryable escalation error.
func NewNoEscalationPathError(applicationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoEscalationPath,
		Message:   "Application stalled with no higher tier to escalate to",
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSerializationConflictError creates a retryable isolation conflict error.
func NewSerializationConflictError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSerializationConflict,
		Message:   "Serializable transaction conflict",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("type: %s, error: %s", notificationType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewExternalServiceError creates a retryable external dependency error.
func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Classification Helpers
// ==========================

// IsSerializationConflict reports whether err is a PostgreSQL serialization
// failure (SQLSTATE 40001) or a deadlock (40P01). Both mean the transaction
// should simply be retried.
func IsSerializationConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// IsRetryableErrorCode checks whether the code is generally retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeNoOfficerAvailable,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeSerializationConflict,
		ErrCodeElasticsearchConnectionFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeSweepLeaseFailed:
		return true
	}
	return false
}

// GetErrorCategory buckets codes for metrics and log filtering.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeInvalidTransition, ErrCodeReasonRequired:
		return "business_rule"
	case ErrCodeApplicationNotFound, ErrCodeInvalidOfficer:
		return "validation"
	case ErrCodeNoOfficerAvailable, ErrCodeNoEscalationPath:
		return "capacity"
	case ErrCodeDatabaseConnectionFailed, ErrCodeQueryExecutionFailed, ErrCodeSerializationConflict:
		return "database"
	case ErrCodeElasticsearchConnectionFailed, ErrCodeNotificationSendFailed, ErrCodeSweepLeaseFailed:
		return "infrastructure"
	default:
		return "internal"
	}
}

// GetRetryCount returns how many retries a code deserves before giving up.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSerializationConflict:
		return 3
	case ErrCodeDatabaseConnectionFailed, ErrCodeQueryExecutionFailed:
		return 3
	case ErrCodeNotificationSendFailed:
		return 2
	default:
		return 0
	}
}
