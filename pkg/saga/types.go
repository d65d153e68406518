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

// Package saga provides the data model and state machine for orchestrated
// multi-step workflows with compensation. A Saga sequences opaque commands
// across independently failing operations and guarantees that either every
// step completes or the already-completed steps are undone in reverse order.
package saga

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// SagaState represents the overall state of a Saga instance.
type SagaState int

const (
	// StatePending indicates the Saga is created but not yet started.
	StatePending SagaState = iota

	// StateRunning indicates the Saga is currently executing steps.
	StateRunning

	// StateCompleted indicates all steps completed successfully.
	StateCompleted

	// StateCompensating indicates the Saga is undoing completed steps.
	StateCompensating

	// StateCompensated indicates all compensation operations have completed.
	StateCompensated

	// StateFailed indicates the Saga failed and could not be fully compensated.
	// Sagas in this state require manual remediation.
	StateFailed

	// StateCancelled indicates the Saga was cancelled by an external request.
	StateCancelled
)

// String returns the string representation of the SagaState.
func (s SagaState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCompensating:
		return "compensating"
	case StateCompensated:
		return "compensated"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseSagaState converts a state name back into a SagaState.
func ParseSagaState(name string) (SagaState, error) {
	switch name {
	case "pending":
		return StatePending, nil
	case "running":
		return StateRunning, nil
	case "completed":
		return StateCompleted, nil
	case "compensating":
		return StateCompensating, nil
	case "compensated":
		return StateCompensated, nil
	case "failed":
		return StateFailed, nil
	case "cancelled":
		return StateCancelled, nil
	default:
		return StatePending, fmt.Errorf("unknown saga state %q", name)
	}
}

// MarshalJSON serializes the state by name so that persisted contexts stay
// readable and stable across releases that add new states.
func (s SagaState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON deserializes a state from its name.
func (s *SagaState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSagaState(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// IsTerminal returns true if the state permits no further transitions.
func (s SagaState) IsTerminal() bool {
	return s == StateCompleted || s == StateCompensated || s == StateFailed || s == StateCancelled
}

// IsActive returns true if the Saga is currently making progress.
func (s SagaState) IsActive() bool {
	return s == StateRunning || s == StateCompensating
}

// RetryPolicy defines the exponential backoff strategy for a failing step.
// The delay before the Nth retry (1-indexed) is
// min(Backoff * Multiplier^(N-1), MaxBackoff).
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts permitted, including the
	// initial one. A step with MaxAttempts <= 1 is never retried.
	MaxAttempts int `json:"max_attempts"`

	// Backoff is the base delay before the first retry.
	Backoff time.Duration `json:"backoff"`

	// MaxBackoff caps the computed delay. Zero means no cap.
	MaxBackoff time.Duration `json:"max_backoff"`

	// Multiplier is the exponential growth factor. Values below 1.0 are
	// treated as 1.0 (constant delay).
	Multiplier float64 `json:"multiplier"`
}

// ShouldRetry reports whether another attempt is permitted after retryCount
// failed attempts.
func (p *RetryPolicy) ShouldRetry(retryCount int) bool {
	if p == nil {
		return false
	}
	return retryCount < p.MaxAttempts
}

// Delay returns the backoff delay to apply before the retry with the given
// 1-indexed retry count.
func (p *RetryPolicy) Delay(retryCount int) time.Duration {
	if p == nil || retryCount <= 0 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1.0 {
		multiplier = 1.0
	}
	delay := float64(p.Backoff) * math.Pow(multiplier, float64(retryCount-1))
	if p.MaxBackoff > 0 && delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}
	return time.Duration(delay)
}

// Command is an opaque instruction dispatched through a CommandBus when a step
// executes or compensates. Applications define their own closed set of command
// types; the engine only needs the discriminator for routing and the concrete
// value for payload encoding.
type Command interface {
	// CommandType returns the discriminator used to route the command to
	// its handler.
	CommandType() string
}

// CommandResult is the outcome a CommandBus reports for a dispatched command.
/// A bus must never fail outside of this result: internal failures are either
// represented here or returned as an error the orchestrator handles.
type CommandResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// DomainEvent is an external signal routed to registered event handlers.
// The payload is application-defined; handlers filter on EventType and
// correlate with running sagas through CorrelationID or payload fields.
type DomainEvent struct {
	EventType     string                 `json:"event_type"`
	EventID       string                 `json:"event_id"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
}

// SagaEventType identifies a lifecycle event emitted by the orchestrator.
type SagaEventType string

const (
	EventSagaStarted           SagaEventType = "saga.started"
	EventSagaStepStarted       SagaEventType = "saga.step.started"
	EventSagaStepCompleted     SagaEventType = "saga.step.completed"
	EventSagaStepFailed        SagaEventType = "saga.step.failed"
	EventSagaStepRetrying      SagaEventType = "saga.step.retrying"
	EventSagaCompleted         SagaEventType = "saga.completed"
	EventSagaFailed            SagaEventType = "saga.failed"
	EventSagaCancelled         SagaEventType = "saga.cancelled"
	EventCompensationStarted   SagaEventType = "compensation.started"
	EventCompensationStep      SagaEventType = "compensation.step.completed"
	EventCompensationCompleted SagaEventType = "compensation.completed"
	EventCompensationFailed    SagaEventType = "compensation.failed"
)

// SagaEvent is a lifecycle event published for observability at every
// significant transition of a Saga instance.
type SagaEvent struct {
	ID            string                 `json:"id"`
	SagaID        string                 `json:"saga_id"`
	SagaType      string                 `json:"saga_type"`
	StepID        string                 `json:"step_id,omitempty"`
	Type          SagaEventType          `json:"type"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// ExecutionContext is the persisted, serializable record of a Saga instance.
// It is the single artifact written to durable storage and the source of
// truth for resuming a Saga after a process restart.
type ExecutionContext struct {
	SagaID        string    `json:"saga_id"`
	SagaType      string    `json:"saga_type"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	State         SagaState `json:"state"`

	// CurrentStepIndex is the index of the step currently executing, or the
	// completed step currently being compensated once compensation has
	// started. It ranges over [-1, len(steps)].
	CurrentStepIndex int `json:"current_step_index"`

	// CompletedSteps holds the IDs of successfully completed steps in
	// execution order.
	CompletedSteps []string `json:"completed_steps"`

	// FailedSteps holds the IDs of steps that recorded at least one failure.
	FailedSteps []string `json:"failed_steps"`

	// CompensatedSteps holds the IDs of steps whose compensation finished,
	// in compensation (reverse) order.
	CompensatedSteps []string `json:"compensated_steps"`

	// Data accumulates the initial payload and step results across the run.
	Data map[string]interface{} `json:"data"`

	StartedAt     time.Time  `json:"started_at"`
	LastUpdatedAt time.Time  `json:"last_updated_at"`
	TimeoutAt     *time.Time `json:"timeout_at,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`

	// RetryCount is the number of consecutive failures of the current step.
	// It resets to zero when a step completes.
	RetryCount int `json:"retry_count"`

	// Version increments on every mutation and backs the repository's
	// optimistic concurrency check: a Save carrying a version at or below
	// the stored one is a stale write and is rejected.
	Version int64 `json:"version"`
}

// Clone returns a deep copy of the execution context.
func (c *ExecutionContext) Clone() *ExecutionContext {
	if c == nil {
		return nil
	}
	dst := *c
	dst.CompletedSteps = append([]string(nil), c.CompletedSteps...)
	dst.FailedSteps = append([]string(nil), c.FailedSteps...)
	dst.CompensatedSteps = append([]string(nil), c.CompensatedSteps...)
	if c.TimeoutAt != nil {
		t := *c.TimeoutAt
		dst.TimeoutAt = &t
	}
	if c.Data != nil {
		dst.Data = make(map[string]interface{}, len(c.Data))
		for k, v := range c.Data {
			dst.Data[k] = v
		}
	}
	return &dst
}

// IsTimedOut reports whether the context carries a deadline in the past while
// still in a state that timeout processing applies to.
func (c *ExecutionContext) IsTimedOut(now time.Time) bool {
	if c.TimeoutAt == nil {
		return false
	}
	if c.State != StateRunning && c.State != StateCompensating {
		return false
	}
	return c.TimeoutAt.Before(now)
}
