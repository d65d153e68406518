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

package orchestrator

import (
	"context"
	"time"

	"github.com/innovationmech/sagakit/pkg/logger"
	"github.com/innovationmech/sagakit/pkg/saga"
)

// runCompensation walks the completed steps in reverse order and dispatches
// each step's compensation command. Steps without a compensation command are
// skipped but still recorded as compensated. The walk stops at the first
// compensation failure: the saga is marked failed and its context is kept
// for inspection. When every completed step has been unwound the saga is
// finalized as compensated and its context is deleted.
//
// The instance must already be in the compensating state.
func (o *SagaOrchestrator) runCompensation(ctx context.Context, instance *saga.SagaInstance) error {
	ec := instance.Context()
	sagaID := ec.SagaID

	logger.Get().Sugar().Infow("running saga compensation",
		"saga_id", sagaID,
		"saga_type", ec.SagaType,
		"completed_steps", len(ec.CompletedSteps),
	)

	for instance.State() == saga.StateCompensating {
		step := instance.CurrentCompensationStep()
		if step == nil {
			return saga.NewNoCurrentStepError(sagaID, instance.Context().CurrentStepIndex)
		}

		if !step.HasCompensation() {
			if err := instance.CompleteCurrentCompensation(); err != nil {
				return err
			}
			applied, err := o.persist(ctx, instance)
			if err != nil || !applied {
				return err
			}
			o.publishEvent(ctx, instance, saga.EventCompensationStep, step.StepID, "")
			continue
		}

		logger.Get().Sugar().Debugw("dispatching compensation command",
			"saga_id", sagaID,
			"step_id", step.StepID,
			"command_type", step.CompensationCommand.CommandType(),
		)

		result, err := o.bus.Send(ctx, step.CompensationCommand)
		if err != nil {
			o.collector.RecordCompensationDispatched(ec.SagaType, step.StepID, false)
			return o.failCompensation(ctx, instance, step.StepID, err.Error())
		}
		if result != nil && !result.Success {
			o.collector.RecordCompensationDispatched(ec.SagaType, step.StepID, false)
			return o.failCompensation(ctx, instance, step.StepID, result.Error)
		}

		o.collector.RecordCompensationDispatched(ec.SagaType, step.StepID, true)
		if err := instance.CompleteCurrentCompensation(); err != nil {
			return err
		}
		applied, err := o.persist(ctx, instance)
		if err != nil || !applied {
			return err
		}
		o.publishEvent(ctx, instance, saga.EventCompensationStep, step.StepID, "")
	}

	if instance.State() == saga.StateCompensated {
		o.finishCompensated(ctx, instance)
	}
	return nil
}

// failCompensation marks the saga failed after a compensation command could
// not be applied. The remaining completed steps are left un-compensated and
// the context is preserved for manual intervention.
func (o *SagaOrchestrator) failCompensation(ctx context.Context, instance *saga.SagaInstance, stepID, message string) error {
	cause := saga.NewCompensationFailedError(stepID, message)
	instance.MarkAsFailed(cause)
	applied, err := o.persist(ctx, instance)
	if err != nil || !applied {
		return err
	}

	ec := instance.Context()
	o.bumpMetrics(func(m *OrchestratorMetrics) { m.FailedSagas++ })
	o.collector.RecordSagaFailed(ec.SagaType)
	o.publishEvent(ctx, instance, saga.EventCompensationFailed, stepID, message)
	o.publishEvent(ctx, instance, saga.EventSagaFailed, "", ec.ErrorMessage)

	if instance.Definition().OnFailed != nil {
		instance.Definition().OnFailed(ec)
	}

	logger.Get().Sugar().Errorw("saga compensation failed",
		"saga_id", ec.SagaID,
		"step_id", stepID,
		"error", message,
		"compensated_steps", len(ec.CompensatedSteps),
	)
	return nil
}

// finishCompensated finalizes a fully compensated saga: metrics and events
// are recorded, the OnCompensated callback runs, and the persisted context is
// deleted.
func (o *SagaOrchestrator) finishCompensated(ctx context.Context, instance *saga.SagaInstance) {
	ec := instance.Context()
	duration := time.Since(ec.StartedAt)

	o.bumpMetrics(func(m *OrchestratorMetrics) { m.CompensatedSagas++ })
	o.collector.RecordSagaCompensated(ec.SagaType, duration)
	o.publishEvent(ctx, instance, saga.EventCompensationCompleted, "", "")

	if instance.Definition().OnCompensated != nil {
		instance.Definition().OnCompensated(ec)
	}

	if err := o.repo.Delete(ctx, ec.SagaID); err != nil {
		logger.Get().Sugar().Errorw("failed to delete compensated saga context",
			"saga_id", ec.SagaID,
			"error", err,
		)
	}

	logger.Get().Sugar().Infow("saga compensated",
		"saga_id", ec.SagaID,
		"saga_type", ec.SagaType,
		"compensated_steps", len(ec.CompensatedSteps),
		"duration", duration,
	)
}
