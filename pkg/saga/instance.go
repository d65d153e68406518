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
	"time"
)

// SagaInstance is a pure state machine wrapping one definition plus a mutable
// execution context. It performs no I/O; the orchestrator drives it and
// persists its context after every mutation.
//
// Instances are not safe for concurrent use. The engine assumes at most one
// logical operation in flight per saga ID; the repository's load/save pair is
// the synchronization boundary.
type SagaInstance struct {
	definition *SagaDefinition
	ec         *ExecutionContext
}

// NewSagaInstance creates a fresh instance in the pending state.
func NewSagaInstance(definition *SagaDefinition, sagaID, correlationID string) *SagaInstance {
	now := time.Now()
	return &SagaInstance{
		definition: definition,
		ec: &ExecutionContext{
			SagaID:           sagaID,
			SagaType:         definition.SagaType,
			CorrelationID:    correlationID,
			State:            StatePending,
			CurrentStepIndex: 0,
			CompletedSteps:   []string{},
			FailedSteps:      []string{},
			CompensatedSteps: []string{},
			Data:             map[string]interface{}{},
			StartedAt:        now,
			LastUpdatedAt:    now,
		},
	}
}

// RehydrateSagaInstance reconstructs an instance from a previously persisted
// context. It has no side effects and is the recovery path after a process
// restart.
func RehydrateSagaInstance(definition *SagaDefinition, ec *ExecutionContext) (*SagaInstance, error) {
	if ec == nil {
		return nil, NewValidationError("execution context must not be nil")
	}
	if definition == nil || definition.SagaType != ec.SagaType {
		return nil, NewValidationError("definition does not match execution context saga type")
	}
	return &SagaInstance{
		definition: definition,
		ec:         ec.Clone(),
	}, nil
}

// ID returns the unique identifier of the saga.
func (i *SagaInstance) ID() string {
	return i.ec.SagaID
}

// State returns the current state.
func (i *SagaInstance) State() SagaState {
	return i.ec.State
}

// Definition returns the immutable definition backing this instance.
func (i *SagaInstance) Definition() *SagaDefinition {
	return i.definition
}

// Context returns a deep copy of the execution context for persistence or
// inspection.
func (i *SagaInstance) Context() *ExecutionContext {
	return i.ec.Clone()
}

// touch records a mutation: it advances the version counter that the
// repository's optimistic concurrency check is built on.
func (i *SagaInstance) touch() {
	i.ec.LastUpdatedAt = time.Now()
	i.ec.Version++
}

// Start transitions the saga from pending to running and seeds its data map.
// If the definition carries a global timeout, the deadline is armed here.
func (i *SagaInstance) Start(initialData map[string]interface{}) error {
	if i.ec.State != StatePending {
		return NewInvalidStateError(i.ec.State, "start")
	}
	i.ec.State = StateRunning
	for k, v := range initialData {
		i.ec.Data[k] = v
	}
	if i.definition.GlobalTimeout > 0 {
		deadline := time.Now().Add(i.definition.GlobalTimeout)
		i.ec.TimeoutAt = &deadline
	}
	i.touch()
	return nil
}

// CurrentStep returns the step the saga is currently executing, or nil when
// no forward step is in flight (the saga is not running, or all steps are
// done).
func (i *SagaInstance) CurrentStep() *SagaStep {
	if i.ec.State != StateRunning {
		return nil
	}
	if i.ec.CurrentStepIndex < 0 || i.ec.CurrentStepIndex >= len(i.definition.Steps) {
		return nil
	}
	return &i.definition.Steps[i.ec.CurrentStepIndex]
}

// CompleteCurrentStep records the current step as completed, merges the step
// result into the accumulated data, resets the retry counter, and advances.
// When the last step completes the saga transitions to completed.
func (i *SagaInstance) CompleteCurrentStep(stepResult map[string]interface{}) error {
	step := i.CurrentStep()
	if step == nil {
		return NewNoCurrentStepError(i.ec.SagaID, i.ec.CurrentStepIndex)
	}
	i.ec.CompletedSteps = append(i.ec.CompletedSteps, step.StepID)
	i.ec.CurrentStepIndex++
	i.ec.RetryCount = 0
	for k, v := range stepResult {
		i.ec.Data[k] = v
	}
	if i.ec.CurrentStepIndex >= len(i.definition.Steps) {
		i.ec.State = StateCompleted
	}
	i.touch()
	return nil
}

// FailCurrentStep records a failure of the current step. If the step's retry
// policy still permits attempts the state is left unchanged and the caller is
// expected to retry; otherwise the saga transitions to compensating.
func (i *SagaInstance) FailCurrentStep(cause error) error {
	step := i.CurrentStep()
	if step == nil {
		return NewNoCurrentStepError(i.ec.SagaID, i.ec.CurrentStepIndex)
	}
	i.ec.FailedSteps = append(i.ec.FailedSteps, step.StepID)
	if cause != nil {
		i.ec.ErrorMessage = cause.Error()
	}
	i.ec.RetryCount++
	if !step.Retry.ShouldRetry(i.ec.RetryCount) {
		i.ec.State = StateCompensating
	}
	i.touch()
	return nil
}

// ShouldRetryCurrentStep reports whether the current step may be retried
// after its latest failure.
func (i *SagaInstance) ShouldRetryCurrentStep() bool {
	step := i.CurrentStep()
	if step == nil {
		return false
	}
	return step.Retry.ShouldRetry(i.ec.RetryCount)
}

// RetryDelay returns the backoff delay before the next retry of the current
// step, derived from its retry policy and the current retry count.
func (i *SagaInstance) RetryDelay() time.Duration {
	if i.ec.CurrentStepIndex < 0 || i.ec.CurrentStepIndex >= len(i.definition.Steps) {
		return 0
	}
	step := &i.definition.Steps[i.ec.CurrentStepIndex]
	return step.Retry.Delay(i.ec.RetryCount)
}

// StartCompensation forces the saga into the compensating state and rewinds
// the step index to the most recently completed step. With no completed steps
// there is nothing to unwind and the saga concludes as compensated directly.
func (i *SagaInstance) StartCompensation() {
	i.ec.CurrentStepIndex = len(i.ec.CompletedSteps) - 1
	if i.ec.CurrentStepIndex < 0 {
		i.ec.State = StateCompensated
	} else {
		i.ec.State = StateCompensating
	}
	i.touch()
}

// CurrentCompensationStep returns the completed step currently due for
// compensation, or nil when compensation has visited every completed step.
func (i *SagaInstance) CurrentCompensationStep() *SagaStep {
	if i.ec.State != StateCompensating {
		return nil
	}
	if i.ec.CurrentStepIndex < 0 || i.ec.CurrentStepIndex >= len(i.ec.CompletedSteps) {
		return nil
	}
	return i.definition.StepByID(i.ec.CompletedSteps[i.ec.CurrentStepIndex])
}

// CompleteCurrentCompensation records the step at the current index as
// compensated and moves to the next earlier step. When the index drops below
// zero the saga transitions to compensated.
func (i *SagaInstance) CompleteCurrentCompensation() error {
	if i.ec.State != StateCompensating {
		return NewInvalidStateError(i.ec.State, "complete compensation")
	}
	if i.ec.CurrentStepIndex < 0 || i.ec.CurrentStepIndex >= len(i.ec.CompletedSteps) {
		return NewNoCurrentStepError(i.ec.SagaID, i.ec.CurrentStepIndex)
	}
	i.ec.CompensatedSteps = append(i.ec.CompensatedSteps, i.ec.CompletedSteps[i.ec.CurrentStepIndex])
	i.ec.CurrentStepIndex--
	if i.ec.CurrentStepIndex < 0 {
		i.ec.State = StateCompensated
	}
	i.touch()
	return nil
}

// MarkAsFailed forces the terminal failed state. It is used when compensation
// itself cannot complete and the saga is left for manual remediation.
func (i *SagaInstance) MarkAsFailed(cause error) {
	i.ec.State = StateFailed
	if cause != nil {
		i.ec.ErrorMessage = cause.Error()
	}
	i.touch()
}

// Cancel transitions the saga to cancelled. Cancellation is rejected once the
// saga has reached a terminal state; in particular a completed or failed saga
// stays as it is.
func (i *SagaInstance) Cancel() error {
	if i.ec.State.IsTerminal() {
		return NewCancellationDeniedError(i.ec.SagaID, i.ec.State)
	}
	i.ec.State = StateCancelled
	i.touch()
	return nil
}
