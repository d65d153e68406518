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
	"time"
)

// MetricsCollector receives counters from the orchestrator at every
// significant transition. Implementations can forward them to Prometheus or
// any other monitoring system; a no-op collector is used when none is
// configured.
type MetricsCollector interface {
	// RecordSagaStarted increments the count of started sagas.
	RecordSagaStarted(sagaType string)

	// RecordSagaCompleted increments the count of completed sagas.
	RecordSagaCompleted(sagaType string, duration time.Duration)

	// RecordSagaCompensated increments the count of fully compensated sagas.
	RecordSagaCompensated(sagaType string, duration time.Duration)

	// RecordSagaFailed increments the count of sagas left in the failed state.
	RecordSagaFailed(sagaType string)

	// RecordSagaCancelled increments the count of cancelled sagas.
	RecordSagaCancelled(sagaType string)

	// RecordStepDispatched counts a command dispatch for a step, successful
	// or not.
	RecordStepDispatched(sagaType, stepID string, success bool)

	// RecordStepRetried counts a scheduled retry of a step.
	RecordStepRetried(sagaType, stepID string, attempt int)

	// RecordCompensationDispatched counts a compensation command dispatch.
	RecordCompensationDispatched(sagaType, stepID string, success bool)
}

// OrchestratorMetrics is an aggregate snapshot of orchestrator activity.
type OrchestratorMetrics struct {
	StartedSagas     int64     `json:"started_sagas"`
	CompletedSagas   int64     `json:"completed_sagas"`
	CompensatedSagas int64     `json:"compensated_sagas"`
	FailedSagas      int64     `json:"failed_sagas"`
	CancelledSagas   int64     `json:"cancelled_sagas"`
	RetriedSteps     int64     `json:"retried_steps"`
	StartTime        time.Time `json:"start_time"`
	LastUpdateTime   time.Time `json:"last_update_time"`
}

// noOpMetricsCollector is used when no collector is provided in the
// configuration.
type noOpMetricsCollector struct{}

func (n *noOpMetricsCollector) RecordSagaStarted(sagaType string)                            {}
func (n *noOpMetricsCollector) RecordSagaCompleted(sagaType string, duration time.Duration)  {}
func (n *noOpMetricsCollector) RecordSagaCompensated(sagaType string, duration time.Duration) {
}
func (n *noOpMetricsCollector) RecordSagaFailed(sagaType string)                         {}
func (n *noOpMetricsCollector) RecordSagaCancelled(sagaType string)                      {}
func (n *noOpMetricsCollector) RecordStepDispatched(sagaType, stepID string, success bool) {
}
func (n *noOpMetricsCollector) RecordStepRetried(sagaType, stepID string, attempt int) {}
func (n *noOpMetricsCollector) RecordCompensationDispatched(sagaType, stepID string, success bool) {
}
