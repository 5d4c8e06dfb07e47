// internal/common/errors/handler.go
package errors

import (
	"time"
)

// ErrorHandler normalizes and logs failures in a uniform shape.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle normalizes err to a StandardError, logs it with its category and
// retry budget, and returns it for the caller to propagate or drop.
func (h *ErrorHandler) Handle(operation string, err error, fields map[string]interface{}) *StandardError {
	stdErr := h.Normalize(operation, err)

	logFields := map[string]interface{}{
		"operation":     operation,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"retries":       GetRetryCount(stdErr.Code),
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	for k, v := range fields {
		logFields[k] = v
	}
	h.logger.Error("operation failed", logFields)

	return stdErr
}

// Normalize ensures we always have a StandardError.
func (h *ErrorHandler) Normalize(operation string, err error) *StandardError {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr
	}
	if IsSerializationConflict(err) {
		return NewSerializationConflictError(operation)
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
