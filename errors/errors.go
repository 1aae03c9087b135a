package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/NomadCrew/release-gate/logger"
)

type ErrorType string

const (
	// TransientNetworkError marks probe calls that timed out or could not
	// connect. Retried inside the check executor, never propagated past it.
	TransientNetworkError ErrorType = "TRANSIENT_NETWORK_ERROR"
	// ConfigurationMissing marks an unmet check precondition (optional
	// target not supplied, expired credential). Downgraded to SKIP.
	ConfigurationMissing ErrorType = "CONFIGURATION_MISSING"
	// CriticalServiceDown surfaces as FAIL on a CRITICAL check and forces
	// NO_GO regardless of the aggregate pass rate.
	CriticalServiceDown ErrorType = "CRITICAL_SERVICE_DOWN"
	// RollbackMutationError is a failed control-plane mutation. Terminal
	// for the rollback attempt; requires human escalation.
	RollbackMutationError ErrorType = "ROLLBACK_MUTATION_ERROR"
	// RollbackVerificationTimeout means the post-rollback poll budget ran
	// out without a healthy result. Terminal for the rollback attempt.
	RollbackVerificationTimeout ErrorType = "ROLLBACK_VERIFICATION_TIMEOUT"

	ValidationError ErrorType = "VALIDATION_ERROR"
	NotFoundError   ErrorType = "NOT_FOUND"
	DatabaseError   ErrorType = "DATABASE_ERROR"
	ServerError     ErrorType = "SERVER_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	Raw     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Raw
}

// New creates a new AppError
func New(errType ErrorType, message string, detail string) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Detail:  detail,
	}
}

// Wrap wraps a raw error with AppError context
func Wrap(err error, errType ErrorType, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Type:    errType,
		Message: message,
		Detail:  err.Error(),
		Raw:     err,
	}
}

// GetType extracts the taxonomy type from an error chain, or "" when the
// chain carries no AppError.
func GetType(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsTransient reports whether the error is a retryable network failure.
func IsTransient(err error) bool {
	return GetType(err) == TransientNetworkError
}

// IsConfigurationMissing reports whether the error is an unmet precondition.
func IsConfigurationMissing(err error) bool {
	return GetType(err) == ConfigurationMissing
}

// NewTransientNetworkError marks a timed-out or unconnectable probe call.
func NewTransientNetworkError(op string, err error) *AppError {
	return &AppError{
		Type:    TransientNetworkError,
		Message: fmt.Sprintf("transient network failure during %s", op),
		Detail:  errDetail(err),
		Raw:     err,
	}
}

// NewConfigurationMissing marks a check precondition that is not satisfied.
func NewConfigurationMissing(what string) *AppError {
	return &AppError{
		Type:    ConfigurationMissing,
		Message: fmt.Sprintf("configuration missing: %s", what),
	}
}

func NewCriticalServiceDown(service string, detail string) *AppError {
	return &AppError{
		Type:    CriticalServiceDown,
		Message: fmt.Sprintf("critical service %s is down", service),
		Detail:  detail,
	}
}

func NewRollbackMutationError(service string, err error) *AppError {
	return &AppError{
		Type:    RollbackMutationError,
		Message: fmt.Sprintf("control plane mutation failed for %s", service),
		Detail:  errDetail(err),
		Raw:     err,
	}
}

func NewRollbackVerificationTimeout(service string, polls int) *AppError {
	return &AppError{
		Type:    RollbackVerificationTimeout,
		Message: fmt.Sprintf("service %s not healthy after rollback", service),
		Detail:  fmt.Sprintf("exhausted %d verification polls", polls),
	}
}

// Helper functions for common errors
func NotFound(entity string, id interface{}) *AppError {
	return &AppError{
		Type:    NotFoundError,
		Message: fmt.Sprintf("%s not found", entity),
		Detail:  fmt.Sprintf("ID: %v", id),
	}
}

func ValidationFailed(message string, details string) *AppError {
	return &AppError{
		Type:    ValidationError,
		Message: message,
		Detail:  details,
	}
}

func NewDatabaseError(err error) *AppError {
	// Log original error but return sanitized message
	logger.GetLogger().Errorw("Database error", "error", err)
	return &AppError{
		Type:    DatabaseError,
		Message: "Database operation failed",
		Detail:  "Please try again later",
		Raw:     err,
	}
}

func InternalServerError(message string) *AppError {
	return &AppError{
		Type:    ServerError,
		Message: message,
	}
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
