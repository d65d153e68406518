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
	"fmt"
	"time"
)

// SagaStep is a single unit of work within a Saga definition. The step's
// Command is dispatched through the CommandBus when the step executes;
// the optional CompensationCommand undoes it during rollback.
type SagaStep struct {
	// StepID uniquely identifies the step within its definition.
	StepID string

	// StepName is a human-readable label used in logs and events.
	StepName string

	// Command is the instruction dispatched when the step executes.
	Command Command

	// CompensationCommand, if set, is dispatched to undo the step during
	// compensation. A step without one is treated as already compensated.
	CompensationCommand Command

	// Timeout, if positive, bounds how long the step may stay in flight
	// before the orchestrator fails it with a timeout error.
	Timeout time.Duration

	// Retry, if set, governs retries of this step. A nil policy means the
	// step is never retried.
	Retry *RetryPolicy
}

// HasCompensation reports whether the step defines a compensation command.
func (s *SagaStep) HasCompensation() bool {
	return s.CompensationCommand != nil
}

// SagaDefinition is the static, immutable description of a workflow: an
// ordered list of steps, an optional global timeout, and lifecycle callbacks.
// Definitions are registered once per process and never mutated afterwards.
type SagaDefinition struct {
	// SagaType is the unique key under which the definition is registered.
	SagaType string

	// Steps are executed in order. Compensation visits completed steps in
	// strict reverse order.
	Steps []SagaStep

	// GlobalTimeout, if positive, sets the deadline for the whole Saga.
	// Instances past the deadline are cancelled by timeout processing.
	GlobalTimeout time.Duration

	// OnCompleted is invoked after the last step completes, immediately
	// before the persisted context is deleted.
	OnCompleted func(ctx *ExecutionContext)

	// OnFailed is invoked when the Saga enters the failed state.
	OnFailed func(ctx *ExecutionContext)

	// OnCompensated is invoked after all compensation finishes, immediately
	// before the persisted context is deleted.
	OnCompensated func(ctx *ExecutionContext)
}

// Validate checks the definition for correctness: a non-empty type, at least
// one step, and unique, fully populated steps.
func (d *SagaDefinition) Validate() error {
	if d.SagaType == "" {
		return NewValidationError("saga type must not be empty")
	}
	if len(d.Steps) == 0 {
		return NewValidationError(fmt.Sprintf("definition %q has no steps", d.SagaType))
	}
	seen := make(map[string]struct{}, len(d.Steps))
	for i, step := range d.Steps {
		if step.StepID == "" {
			return NewValidationError(fmt.Sprintf("definition %q: step %d has no step ID", d.SagaType, i))
		}
		if _, dup := seen[step.StepID]; dup {
			return NewValidationError(fmt.Sprintf("definition %q: duplicate step ID %q", d.SagaType, step.StepID))
		}
		seen[step.StepID] = struct{}{}
		if step.Command == nil {
			return NewValidationError(fmt.Sprintf("definition %q: step %q has no command", d.SagaType, step.StepID))
		}
		if step.Retry != nil && step.Retry.MaxAttempts < 1 {
			return NewValidationError(fmt.Sprintf("definition %q: step %q has invalid retry policy", d.SagaType, step.StepID))
		}
	}
	return nil
}

// StepByID returns the step with the given ID, or nil if absent.
func (d *SagaDefinition) StepByID(stepID string) *SagaStep {
	for i := range d.Steps {
		if d.Steps[i].StepID == stepID {
			return &d.Steps[i]
		}
	}
	return nil
}
