// internal/common/errors/errors.go
// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	ErrCodeApplicationNotFound ErrorCode = "APPLICATION_NOT_FOUND"
	ErrCodeLoanNotFound        ErrorCode = "LOAN_NOT_FOUND"
	ErrCodeClientNotFound      ErrorCode = "CLIENT_NOT_FOUND"

	ErrCodeStateConflict ErrorCode = "STATE_CONFLICT"

	ErrCodeDuplicateEvent     ErrorCode = "DUPLICATE_EVENT"
	ErrCodeUnprocessableEvent ErrorCode = "UNPROCESSABLE_EVENT"

	ErrCodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"

	ErrCodeLimitExceeded       ErrorCode = "LIMIT_EXCEEDED"
	ErrCodeAuthorizationFailed ErrorCode = "AUTHORIZATION_FAILED"

	ErrCodeProviderConfigNotFound ErrorCode = "PROVIDER_CONFIG_NOT_FOUND"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
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
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	if e.ErrorVariables != nil {
		for k, v := range e.ErrorVariables {
			vars[k] = v
		}
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewValidationError creates a non-retryable input validation error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Input validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewApplicationNotFoundError creates a non-retryable not-found error.
func NewApplicationNotFoundError(applicationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApplicationNotFound,
		Message:   "Credit application not found",
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLoanNotFoundError creates a non-retryable not-found error.
func NewLoanNotFoundError(loanID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLoanNotFound,
		Message:   "Loan not found",
		Details:   fmt.Sprintf("loanId: %s", loanID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewClientNotFoundError creates a non-retryable not-found error.
func NewClientNotFoundError(clientID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeClientNotFound,
		Message:   "Client not found",
		Details:   fmt.Sprintf("clientId: %s", clientID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStateConflictError signals an operation against an entity whose current
// state forbids it. Never retryable: the state will not change by retrying.
func NewStateConflictError(message, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStateConflict,
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnprocessableEventError creates a non-retryable error for payment events
// whose metadata cannot be resolved to ledger entities.
func NewUnprocessableEventError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnprocessableEvent,
		Message:   "Payment event cannot be processed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPersistenceError creates a retryable database error.
func NewPersistenceError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePersistenceFailed,
		Message:   "Database operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLimitExceededError creates a non-retryable lending plan limit error.
func NewLimitExceededError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLimitExceeded,
		Message:   "Lending plan limit exceeded",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuthorizationError creates a non-retryable authorization error.
func NewAuthorizationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthorizationFailed,
		Message:   "Actor is not authorized for this operation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderConfigNotFoundError creates a non-retryable provider config error.
func NewProviderConfigNotFoundError(provider string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderConfigNotFound,
		Message:   "No active configuration for payment provider",
		Details:   fmt.Sprintf("provider: %s", provider),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to BPMN error codes. The codes
// are identical so process models reference the same names the logs show.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeValidationFailed:       "VALIDATION_FAILED",
	ErrCodeApplicationNotFound:    "APPLICATION_NOT_FOUND",
	ErrCodeLoanNotFound:           "LOAN_NOT_FOUND",
	ErrCodeClientNotFound:         "CLIENT_NOT_FOUND",
	ErrCodeStateConflict:          "STATE_CONFLICT",
	ErrCodeDuplicateEvent:         "DUPLICATE_EVENT",
	ErrCodeUnprocessableEvent:     "UNPROCESSABLE_EVENT",
	ErrCodePersistenceFailed:      "PERSISTENCE_FAILED",
	ErrCodeLimitExceeded:          "LIMIT_EXCEEDED",
	ErrCodeAuthorizationFailed:    "AUTHORIZATION_FAILED",
	ErrCodeProviderConfigNotFound: "PROVIDER_CONFIG_NOT_FOUND",
	ErrCodeNotificationSendFailed: "NOTIFICATION_SEND_FAILED",
}

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodePersistenceFailed,
		ErrCodeNotificationSendFailed:
		return 3 // Retryable technical errors

	default:
		return 0 // Business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code) // Fallback
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "NOT_FOUND"):
		return "NOT_FOUND"
	case strings.Contains(codeStr, "CONFLICT") || strings.Contains(codeStr, "DUPLICATE"):
		return "CONFLICT"
	case strings.Contains(codeStr, "EVENT"):
		return "RECONCILIATION"
	case strings.Contains(codeStr, "PERSISTENCE"):
		return "DATABASE"
	case strings.Contains(codeStr, "LIMIT") || strings.Contains(codeStr, "AUTHORIZATION"):
		return "POLICY"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	default:
		return "OTHER"
	}
}
