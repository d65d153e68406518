// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package saga

import (
	"errors"
	"fmt"
	"time"
)

// ErrStaleContext is returned by SagaRepository.Save when the incoming
// context's version is at or below the stored version. Callers deriving their
// write from an outdated load should treat this as a no-op, not a failure.
var ErrStaleContext = errors.New("stale execution context version")

// Predefined error codes used by SagaError.
const (
	ErrCodeSagaNotFound        = "SAGA_NOT_FOUND"
	ErrCodeDefinitionNotFound  = "DEFINITION_NOT_FOUND"
	ErrCodeDefinitionConflict  = "DEFINITION_CONFLICT"
	ErrCodeInvalidState        = "INVALID_SAGA_STATE"
	ErrCodeNoCurrentStep       = "NO_CURRENT_STEP"
	ErrCodeStepTimeout         = "STEP_TIMEOUT"
	ErrCodeSagaTimeout         = "SAGA_TIMEOUT"
	ErrCodeStepExecutionFailed = "STEP_EXECUTION_FAILED"
	ErrCodeCompensationFailed  = "COMPENSATION_FAILED"
	ErrCodeStorageError        = "STORAGE_ERROR"
	ErrCodeValidationError     = "VALIDATION_ERROR"
	ErrCodeCancellationDenied  = "CANCELLATION_DENIED"
	ErrCodeOrchestratorClosed  = "ORCHESTRATOR_CLOSED"
)

// ErrorType categorizes a SagaError for metrics and retry decisions.
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeService      ErrorType = "service"
	ErrorTypeData         ErrorType = "data"
	ErrorTypeSystem       ErrorType = "system"
	ErrorTypeCompensation ErrorType = "compensation"
)

// SagaError is the structured error type used throughout the engine. It
// carries a stable code, a category, and an optional cause chain.
type SagaError struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Type      ErrorType              `json:"type"`
	Retryable bool                   `json:"retryable"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
}

// NewSagaError creates a new SagaError with the specified parameters.
func NewSagaError(code, message string, errorType ErrorType, retryable bool) *SagaError {
	return &SagaError{
		Code:      code,
		Message:   message,
		Type:      errorType,
		Retryable: retryable,
		Timestamp: time.Now(),
	}
}

// WrapError wraps an existing error into a SagaError, preserving it as the
// cause for errors.Is/As traversal.
func WrapError(err error, code, message string, errorType ErrorType, retryable bool) *SagaError {
	if err == nil {
		return nil
	}
	sagaErr := NewSagaError(code, message, errorType, retryable)
	sagaErr.Cause = err
	return sagaErr
}

// Error implements the error interface.
func (e *SagaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *SagaError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key/value detail and returns the error for chaining.
func (e *SagaError) WithDetail(key string, value interface{}) *SagaError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Common error constructors.

// NewSagaNotFoundError creates an error for a missing Saga instance.
func NewSagaNotFoundError(sagaID string) *SagaError {
	return NewSagaError(ErrCodeSagaNotFound, fmt.Sprintf("saga %q not found", sagaID), ErrorTypeData, false).
		WithDetail("saga_id", sagaID)
}

// NewDefinitionNotFoundError creates an error for an unregistered saga type.
func NewDefinitionNotFoundError(sagaType string) *SagaError {
	return NewSagaError(ErrCodeDefinitionNotFound, fmt.Sprintf("no definition registered for saga type %q", sagaType), ErrorTypeData, false).
		WithDetail("saga_type", sagaType)
}

// NewDefinitionConflictError creates an error for a duplicate registration.
func NewDefinitionConflictError(sagaType string) *SagaError {
	return NewSagaError(ErrCodeDefinitionConflict, fmt.Sprintf("definition for saga type %q already registered", sagaType), ErrorTypeValidation, false).
		WithDetail("saga_type", sagaType)
}

// NewInvalidStateError creates an error for an illegal state transition.
func NewInvalidStateError(current SagaState, operation string) *SagaError {
	return NewSagaError(ErrCodeInvalidState,
		fmt.Sprintf("operation %q not permitted in state %s", operation, current),
		ErrorTypeValidation, false).
		WithDetail("current_state", current.String()).
		WithDetail("operation", operation)
}

// NewNoCurrentStepError creates an error for operations that require an
// in-flight step.
func NewNoCurrentStepError(sagaID string, index int) *SagaError {
	return NewSagaError(ErrCodeNoCurrentStep,
		fmt.Sprintf("saga %q has no current step at index %d", sagaID, index),
		ErrorTypeValidation, false).
		WithDetail("saga_id", sagaID).
		WithDetail("step_index", index)
}

// NewStepTimeoutError creates an error for a step exceeding its deadline.
func NewStepTimeoutError(stepID string, timeout time.Duration) *SagaError {
	return NewSagaError(ErrCodeStepTimeout,
		fmt.Sprintf("step %q timed out after %v", stepID, timeout),
		ErrorTypeTimeout, false).
		WithDetail("step_id", stepID).
		WithDetail("timeout", timeout.String())
}

// NewSagaTimeoutError creates an error for a Saga exceeding its global deadline.
func NewSagaTimeoutError(sagaID string) *SagaError {
	return NewSagaError(ErrCodeSagaTimeout, fmt.Sprintf("saga %q exceeded its global timeout", sagaID), ErrorTypeTimeout, false).
		WithDetail("saga_id", sagaID)
}

// NewStepExecutionError creates an error for a failed step command.
func NewStepExecutionError(stepID, message string) *SagaError {
	return NewSagaError(ErrCodeStepExecutionFailed,
		fmt.Sprintf("step %q execution failed: %s", stepID, message),
		ErrorTypeService, true).
		WithDetail("step_id", stepID)
}

// NewCompensationFailedError creates an error for a failed compensation command.
func NewCompensationFailedError(stepID, message string) *SagaError {
	return NewSagaError(ErrCodeCompensationFailed,
		fmt.Sprintf("compensation for step %q failed: %s", stepID, message),
		ErrorTypeCompensation, false).
		WithDetail("step_id", stepID)
}

// NewStorageError creates an error for repository failures.
func NewStorageError(operation string, err error) *SagaError {
	return WrapError(err, ErrCodeStorageError,
		fmt.Sprintf("repository operation %q failed", operation),
		ErrorTypeSystem, true).
		WithDetail("operation", operation)
}

// NewValidationError creates an error for definition or input validation.
func NewValidationError(message string) *SagaError {
	return NewSagaError(ErrCodeValidationError, message, ErrorTypeValidation, false)
}

// NewCancellationDeniedError creates an error for cancelling a Saga in a
// state that forbids it.
func NewCancellationDeniedError(sagaID string, state SagaState) *SagaError {
	return NewSagaError(ErrCodeCancellationDenied,
		fmt.Sprintf("saga %q cannot be cancelled in state %s", sagaID, state),
		ErrorTypeValidation, false).
		WithDetail("saga_id", sagaID).
		WithDetail("state", state.String())
}

// IsSagaNotFound checks whether the error is a SAGA_NOT_FOUND SagaError.
func IsSagaNotFound(err error) bool {
	var sagaErr *SagaError
	if errors.As(err, &sagaErr) {
		return sagaErr.Code == ErrCodeSagaNotFound
	}
	return false
}

// IsStepTimeout checks whether the error is a STEP_TIMEOUT SagaError.
func IsStepTimeout(err error) bool {
	var sagaErr *SagaError
	if errors.As(err, &sagaErr) {
		return sagaErr.Code == ErrCodeStepTimeout
	}
	return false
}

// IsCompensationFailed checks whether the error is a COMPENSATION_FAILED SagaError.
func IsCompensationFailed(err error) bool {
	var sagaErr *SagaError
	if errors.As(err, &sagaErr) {
		return sagaErr.Code == ErrCodeCompensationFailed
	}
	return false
}
