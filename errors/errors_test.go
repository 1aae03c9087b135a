package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NomadCrew/release-gate/logger"
)

func TestMain(m *testing.M) {
	logger.IsTest = true
	m.Run()
}

func TestNew(t *testing.T) {
	err := New(ValidationError, "invalid input", "field required")
	assert.Equal(t, ValidationError, err.Type)
	assert.Equal(t, "invalid input", err.Message)
	assert.Equal(t, "field required", err.Detail)
	assert.Nil(t, err.Raw)
}

func TestWrap(t *testing.T) {
	originalErr := fmt.Errorf("original error")
	wrappedErr := Wrap(originalErr, DatabaseError, "database operation failed")

	require.NotNil(t, wrappedErr)
	assert.Equal(t, DatabaseError, wrappedErr.Type)
	assert.Equal(t, "database operation failed", wrappedErr.Message)
	assert.Equal(t, originalErr.Error(), wrappedErr.Detail)
	assert.Equal(t, originalErr, wrappedErr.Raw)
	assert.True(t, stderrors.Is(wrappedErr, originalErr))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, DatabaseError, "should vanish"))
}

func TestGetType(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorType
	}{
		{
			name:     "direct app error",
			err:      NewConfigurationMissing("websocket URL"),
			expected: ConfigurationMissing,
		},
		{
			name:     "wrapped deeper in the chain",
			err:      fmt.Errorf("check run: %w", NewTransientNetworkError("GET /health", fmt.Errorf("dial tcp: timeout"))),
			expected: TransientNetworkError,
		},
		{
			name:     "plain error",
			err:      fmt.Errorf("boring"),
			expected: "",
		},
		{
			name:     "nil",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetType(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	transient := NewTransientNetworkError("GET /health", fmt.Errorf("connection refused"))
	assert.True(t, IsTransient(transient))
	assert.True(t, IsTransient(fmt.Errorf("attempt 2: %w", transient)))
	assert.False(t, IsTransient(NewConfigurationMissing("bearer token")))
	assert.False(t, IsTransient(fmt.Errorf("plain")))
	assert.False(t, IsTransient(nil))
}

func TestIsConfigurationMissing(t *testing.T) {
	missing := NewConfigurationMissing("control plane API URL")
	assert.True(t, IsConfigurationMissing(missing))
	assert.True(t, IsConfigurationMissing(fmt.Errorf("precondition: %w", missing)))
	assert.False(t, IsConfigurationMissing(NewTransientNetworkError("dial", fmt.Errorf("refused"))))
	assert.Equal(t, "configuration missing: control plane API URL", missing.Message)
}

func TestNewTransientNetworkError(t *testing.T) {
	cause := fmt.Errorf("dial tcp 10.0.0.1:443: i/o timeout")
	err := NewTransientNetworkError("GET /v1/trips", cause)
	assert.Equal(t, TransientNetworkError, err.Type)
	assert.Equal(t, "transient network failure during GET /v1/trips", err.Message)
	assert.Equal(t, cause.Error(), err.Detail)
	assert.True(t, stderrors.Is(err, cause))
}

func TestNewCriticalServiceDown(t *testing.T) {
	err := NewCriticalServiceDown("backend", "health endpoint returned 503")
	assert.Equal(t, CriticalServiceDown, err.Type)
	assert.Equal(t, "critical service backend is down", err.Message)
	assert.Equal(t, "health endpoint returned 503", err.Detail)
}

func TestNewRollbackMutationError(t *testing.T) {
	cause := fmt.Errorf("PUT /v1/services/backend/reference: 409")
	err := NewRollbackMutationError("backend", cause)
	assert.Equal(t, RollbackMutationError, err.Type)
	assert.Equal(t, "control plane mutation failed for backend", err.Message)
	assert.True(t, stderrors.Is(err, cause))
}

func TestNewRollbackVerificationTimeout(t *testing.T) {
	err := NewRollbackVerificationTimeout("backend", 10)
	assert.Equal(t, RollbackVerificationTimeout, err.Type)
	assert.Equal(t, "service backend not healthy after rollback", err.Message)
	assert.Equal(t, "exhausted 10 verification polls", err.Detail)
}

func TestNotFound(t *testing.T) {
	err := NotFound("Run", "4f6b2a")
	assert.Equal(t, NotFoundError, err.Type)
	assert.Equal(t, "Run not found", err.Message)
	assert.Equal(t, "ID: 4f6b2a", err.Detail)
}

func TestValidationFailed(t *testing.T) {
	err := ValidationFailed("no_checks", "category filter matched no registered checks")
	assert.Equal(t, ValidationError, err.Type)
	assert.Equal(t, "no_checks", err.Message)
	assert.Equal(t, "category filter matched no registered checks", err.Detail)
}

func TestNewDatabaseError(t *testing.T) {
	originalErr := fmt.Errorf("connection failed")
	err := NewDatabaseError(originalErr)
	assert.Equal(t, DatabaseError, err.Type)
	assert.Equal(t, "Database operation failed", err.Message)
	assert.Equal(t, "Please try again later", err.Detail)
	assert.Equal(t, originalErr, err.Raw)
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "with detail",
			err: &AppError{
				Type:    ValidationError,
				Message: "invalid input",
				Detail:  "field required",
			},
			expected: "VALIDATION_ERROR: invalid input (field required)",
		},
		{
			name: "without detail",
			err: &AppError{
				Type:    ConfigurationMissing,
				Message: "configuration missing: bearer token",
			},
			expected: "CONFIGURATION_MISSING: configuration missing: bearer token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}
