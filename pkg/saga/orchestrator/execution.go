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

	"github.com/innovationmech/sagakit/pkg/logger"
	"github.com/innovationmech/sagakit/pkg/saga"
)

// executeNextStep dispatches the current step's command on the command bus.
// If the step declares a timeout, a timer is armed first so that a step whose
// confirmation never arrives is eventually failed. A successful dispatch only
// means the command was accepted; the step completes later through
// CompleteStep, which is also what disarms the timeout timer.
//
// Dispatch failures are routed through FailStep so that the step's retry
// policy applies uniformly to bus errors, rejected commands, and timeouts.
func (o *SagaOrchestrator) executeNextStep(ctx context.Context, instance *saga.SagaInstance) {
	step := instance.CurrentStep()
	if step == nil {
		return
	}

	ec := instance.Context()
	sagaID := ec.SagaID
	stepID := step.StepID

	if step.Timeout > 0 {
		timeout := step.Timeout
		o.timers.schedule(sagaID, stepID, timeout, func() {
			bg := context.Background()
			if err := o.FailStep(bg, sagaID, saga.NewStepTimeoutError(stepID, timeout)); err != nil {
				logger.Get().Sugar().Errorw("failed to time out saga step",
					"saga_id", sagaID,
					"step_id", stepID,
					"error", err,
				)
			}
		})
	}

	o.publishEvent(ctx, instance, saga.EventSagaStepStarted, stepID, "")

	logger.Get().Sugar().Debugw("dispatching saga step command",
		"saga_id", sagaID,
		"step_id", stepID,
		"step_name", step.StepName,
		"command_type", step.Command.CommandType(),
	)

	result, err := o.bus.Send(ctx, step.Command)
	if err != nil {
		o.collector.RecordStepDispatched(ec.SagaType, stepID, false)
		o.timers.cancel(sagaID, stepID)
		if failErr := o.FailStep(ctx, sagaID, saga.NewStepExecutionError(stepID, err.Error())); failErr != nil {
			logger.Get().Sugar().Errorw("failed to record saga step failure",
				"saga_id", sagaID,
				"step_id", stepID,
				"error", failErr,
			)
		}
		return
	}
	if result != nil && !result.Success {
		o.collector.RecordStepDispatched(ec.SagaType, stepID, false)
		o.timers.cancel(sagaID, stepID)
		if failErr := o.FailStep(ctx, sagaID, saga.NewStepExecutionError(stepID, result.Error)); failErr != nil {
			logger.Get().Sugar().Errorw("failed to record saga step failure",
				"saga_id", sagaID,
				"step_id", stepID,
				"error", failErr,
			)
		}
		return
	}

	o.collector.RecordStepDispatched(ec.SagaType, stepID, true)
}
