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

// Package orchestrator drives saga execution: it registers definitions and
// event handlers, starts sagas, dispatches step commands with retry
// scheduling, runs the reverse-order compensation engine, and persists every
// state transition through a SagaRepository.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/innovationmech/sagakit/pkg/logger"
	"github.com/innovationmech/sagakit/pkg/saga"
)

var (
	// ErrOrchestratorClosed indicates the orchestrator has been shut down.
	ErrOrchestratorClosed = errors.New("orchestrator is closed")

	// ErrRepositoryNotConfigured indicates no SagaRepository was provided.
	ErrRepositoryNotConfigured = errors.New("saga repository not configured")

	// ErrCommandBusNotConfigured indicates no CommandBus was provided.
	ErrCommandBusNotConfigured = errors.New("command bus not configured")
)

// Config carries the orchestrator's dependencies. Repository and CommandBus
// are required; the publisher and metrics collector default to no-ops.
type Config struct {
	// Repository persists execution contexts.
	Repository saga.SagaRepository

	// CommandBus dispatches step and compensation commands.
	CommandBus saga.CommandBus

	// EventPublisher receives lifecycle events. Optional.
	EventPublisher saga.EventPublisher

	// Metrics receives orchestrator counters. Optional.
	Metrics MetricsCollector
}

// Validate checks that the required dependencies are present.
func (c *Config) Validate() error {
	if c.Repository == nil {
		return ErrRepositoryNotConfigured
	}
	if c.CommandBus == nil {
		return ErrCommandBusNotConfigured
	}
	return nil
}

// SagaOrchestrator is the active component of the engine. All of its public
// operations follow the same shape: load the persisted context, rehydrate a
// SagaInstance, apply a state-machine transition, persist, then act on the
// resulting state (dispatch the next command, schedule a retry, or run
// compensation).
type SagaOrchestrator struct {
	repo      saga.SagaRepository
	bus       saga.CommandBus
	publisher saga.EventPublisher
	collector MetricsCollector

	definitions map[string]*saga.SagaDefinition
	handlers    []saga.EventHandler
	timers      *timerTable

	metrics OrchestratorMetrics

	mu     sync.RWMutex
	closed bool
}

// New creates a SagaOrchestrator from the given configuration.
func New(config *Config) (*SagaOrchestrator, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	collector := config.Metrics
	if collector == nil {
		collector = &noOpMetricsCollector{}
	}
	publisher := config.EventPublisher
	if publisher == nil {
		publisher = &noOpEventPublisher{}
	}

	return &SagaOrchestrator{
		repo:        config.Repository,
		bus:         config.CommandBus,
		publisher:   publisher,
		collector:   collector,
		definitions: make(map[string]*saga.SagaDefinition),
		timers:      newTimerTable(),
		metrics: OrchestratorMetrics{
			StartTime:      time.Now(),
			LastUpdateTime: time.Now(),
		},
	}, nil
}

// RegisterSagaDefinition registers a definition under its saga type.
// Definitions are append-only per process: registering the same type twice
// fails.
func (o *SagaOrchestrator) RegisterSagaDefinition(definition *saga.SagaDefinition) error {
	if definition == nil {
		return saga.NewValidationError("definition must not be nil")
	}
	if err := definition.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOrchestratorClosed
	}
	if _, exists := o.definitions[definition.SagaType]; exists {
		return saga.NewDefinitionConflictError(definition.SagaType)
	}
	o.definitions[definition.SagaType] = definition
	return nil
}

// RegisterEventHandler adds a handler to the event-dispatch list. Multiple
// handlers may be registered; each sees every event it declares interest in.
func (o *SagaOrchestrator) RegisterEventHandler(handler saga.EventHandler) error {
	if handler == nil {
		return saga.NewValidationError("event handler must not be nil")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOrchestratorClosed
	}
	o.handlers = append(o.handlers, handler)
	return nil
}

// StartSaga creates a new saga of the given type, persists it, and attempts
// the first step. The returned saga ID identifies the instance in all later
// calls; step failures after this point are handled through the normal
// retry/compensation machinery and do not surface here.
func (o *SagaOrchestrator) StartSaga(ctx context.Context, sagaType string, initialData map[string]interface{}, correlationID string) (string, error) {
	if err := o.checkOpen(); err != nil {
		return "", err
	}

	definition, err := o.definitionFor(sagaType)
	if err != nil {
		return "", err
	}

	sagaID := uuid.NewString()
	instance := saga.NewSagaInstance(definition, sagaID, correlationID)
	if err := instance.Start(initialData); err != nil {
		return "", err
	}

	if err := o.repo.Save(ctx, instance.Context()); err != nil {
		return "", saga.NewStorageError("Save", err)
	}

	o.bumpMetrics(func(m *OrchestratorMetrics) { m.StartedSagas++ })
	o.collector.RecordSagaStarted(sagaType)
	o.publishEvent(ctx, instance, saga.EventSagaStarted, "", "")

	logger.Get().Sugar().Infow("saga started",
		"saga_id", sagaID,
		"saga_type", sagaType,
		"correlation_id", correlationID,
	)

	o.executeNextStep(ctx, instance)
	return sagaID, nil
}

// HandleEvent routes a domain event to every registered handler whose
// CanHandle accepts it. Handler failures are logged and never interrupt
// delivery to the remaining handlers.
func (o *SagaOrchestrator) HandleEvent(ctx context.Context, event *saga.DomainEvent) error {
	if err := o.checkOpen(); err != nil {
		return err
	}
	if event == nil {
		return saga.NewValidationError("event must not be nil")
	}

	o.mu.RLock()
	handlers := make([]saga.EventHandler, len(o.handlers))
	copy(handlers, o.handlers)
	o.mu.RUnlock()

	for _, handler := range handlers {
		if !handler.CanHandle(event) {
			continue
		}
		if err := handler.Handle(ctx, event); err != nil {
			logger.Get().Sugar().Errorw("event handler failed",
				"event_type", event.EventType,
				"event_id", event.EventID,
				"error", err,
			)
		}
	}
	return nil
}

// CompleteStep records successful completion of the current step of the saga
// and either advances to the next step or, when no steps remain, finishes the
// saga: the OnCompleted callback runs and the persisted context is deleted.
//
// Completion is expected to arrive asynchronously (for example from an event
// handler reacting to a confirmation event); a successful command dispatch on
// its own never completes a step.
func (o *SagaOrchestrator) CompleteStep(ctx context.Context, sagaID string, stepResult map[string]interface{}) error {
	if err := o.checkOpen(); err != nil {
		return err
	}

	instance, err := o.loadInstance(ctx, sagaID)
	if err != nil {
		return err
	}

	var completedStepID string
	if step := instance.CurrentStep(); step != nil {
		completedStepID = step.StepID
		o.timers.cancel(sagaID, step.StepID)
	}

	if err := instance.CompleteCurrentStep(stepResult); err != nil {
		return err
	}

	applied, err := o.persist(ctx, instance)
	if err != nil || !applied {
		return err
	}

	o.publishEvent(ctx, instance, saga.EventSagaStepCompleted, completedStepID, "")

	if instance.State() == saga.StateCompleted {
		o.finishCompleted(ctx, instance)
		return nil
	}

	o.executeNextStep(ctx, instance)
	return nil
}

// FailStep records a failure of the current step. If the step's retry policy
// permits another attempt, a retry is scheduled after the backoff delay.
// Otherwise compensation begins.
func (o *SagaOrchestrator) FailStep(ctx context.Context, sagaID string, cause error) error {
	if err := o.checkOpen(); err != nil {
		return err
	}

	instance, err := o.loadInstance(ctx, sagaID)
	if err != nil {
		return err
	}

	step := instance.CurrentStep()
	if step == nil {
		return saga.NewNoCurrentStepError(sagaID, instance.Context().CurrentStepIndex)
	}
	o.timers.cancel(sagaID, step.StepID)

	if err := instance.FailCurrentStep(cause); err != nil {
		return err
	}

	applied, err := o.persist(ctx, instance)
	if err != nil || !applied {
		return err
	}

	retryCount := instance.Context().RetryCount
	o.publishEvent(ctx, instance, saga.EventSagaStepFailed, step.StepID, instance.Context().ErrorMessage)

	if instance.ShouldRetryCurrentStep() {
		delay := instance.RetryDelay()
		o.bumpMetrics(func(m *OrchestratorMetrics) { m.RetriedSteps++ })
		o.collector.RecordStepRetried(instance.Context().SagaType, step.StepID, retryCount)
		o.publishEvent(ctx, instance, saga.EventSagaStepRetrying, step.StepID, "")

		logger.Get().Sugar().Infow("saga step retry scheduled",
			"saga_id", sagaID,
			"step_id", step.StepID,
			"retry_count", retryCount,
			"delay", delay,
		)

		stepID := step.StepID
		o.timers.schedule(sagaID, stepID, delay, func() {
			o.retryStep(context.Background(), sagaID, stepID)
		})
		return nil
	}

	logger.Get().Sugar().Warnw("saga step failed irrecoverably, starting compensation",
		"saga_id", sagaID,
		"step_id", step.StepID,
		"retry_count", retryCount,
		"error", instance.Context().ErrorMessage,
	)

	instance.StartCompensation()
	applied, err = o.persist(ctx, instance)
	if err != nil || !applied {
		return err
	}
	o.publishEvent(ctx, instance, saga.EventCompensationStarted, "", "")

	return o.runCompensation(ctx, instance)
}

// CancelSaga cancels the saga, clears its pending timers, and, when any
// steps had already completed, begins compensation. Cancellation is rejected
// once the saga has reached a terminal state.
func (o *SagaOrchestrator) CancelSaga(ctx context.Context, sagaID string) error {
	if err := o.checkOpen(); err != nil {
		return err
	}

	instance, err := o.loadInstance(ctx, sagaID)
	if err != nil {
		return err
	}

	if err := instance.Cancel(); err != nil {
		return err
	}

	applied, err := o.persist(ctx, instance)
	if err != nil || !applied {
		return err
	}

	o.timers.cancelSaga(sagaID)
	o.bumpMetrics(func(m *OrchestratorMetrics) { m.CancelledSagas++ })
	o.collector.RecordSagaCancelled(instance.Context().SagaType)
	o.publishEvent(ctx, instance, saga.EventSagaCancelled, "", "")

	logger.Get().Sugar().Infow("saga cancelled",
		"saga_id", sagaID,
		"completed_steps", len(instance.Context().CompletedSteps),
	)

	if len(instance.Context().CompletedSteps) == 0 {
		return nil
	}

	instance.StartCompensation()
	applied, err = o.persist(ctx, instance)
	if err != nil || !applied {
		return err
	}
	o.publishEvent(ctx, instance, saga.EventCompensationStarted, "", "")

	return o.runCompensation(ctx, instance)
}

// ProcessTimedOutSagas queries the repository for contexts whose deadline has
// passed while still running or compensating and cancels each of them.
// It returns the number of sagas cancelled.
func (o *SagaOrchestrator) ProcessTimedOutSagas(ctx context.Context) (int, error) {
	if err := o.checkOpen(); err != nil {
		return 0, err
	}

	timedOut, err := o.repo.FindTimedOut(ctx, time.Now())
	if err != nil {
		return 0, saga.NewStorageError("FindTimedOut", err)
	}

	cancelled := 0
	for _, ec := range timedOut {
		if err := o.CancelSaga(ctx, ec.SagaID); err != nil {
			logger.Get().Sugar().Errorw("failed to cancel timed out saga",
				"saga_id", ec.SagaID,
				"error", err,
			)
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

// Metrics returns a snapshot of orchestrator activity counters.
func (o *SagaOrchestrator) Metrics() OrchestratorMetrics {
	o.mu.RLock()
	defer o.mu.RUnlock()
	snapshot := o.metrics
	return snapshot
}

// Close shuts the orchestrator down: pending timers are stopped and further
// operations are rejected. In-flight sagas remain persisted and resume when
// a new orchestrator loads their contexts.
func (o *SagaOrchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOrchestratorClosed
	}
	o.closed = true
	o.timers.stopAll()
	return nil
}

// retryStep re-executes the current step of a saga after a backoff delay.
// The context is reloaded so that a completion or cancellation that raced
// with the timer wins.
func (o *SagaOrchestrator) retryStep(ctx context.Context, sagaID, stepID string) {
	if o.checkOpen() != nil {
		return
	}

	instance, err := o.loadInstance(ctx, sagaID)
	if err != nil {
		logger.Get().Sugar().Errorw("failed to load saga for retry",
			"saga_id", sagaID,
			"step_id", stepID,
			"error", err,
		)
		return
	}

	step := instance.CurrentStep()
	if step == nil || step.StepID != stepID {
		// The saga advanced or left the running state while the retry
		// timer was pending.
		return
	}
	o.executeNextStep(ctx, instance)
}

// loadInstance loads the persisted context for sagaID and rehydrates an
// instance with its registered definition.
func (o *SagaOrchestrator) loadInstance(ctx context.Context, sagaID string) (*saga.SagaInstance, error) {
	ec, err := o.repo.Load(ctx, sagaID)
	if err != nil {
		return nil, saga.NewStorageError("Load", err)
	}
	if ec == nil {
		return nil, saga.NewSagaNotFoundError(sagaID)
	}
	definition, err := o.definitionFor(ec.SagaType)
	if err != nil {
		return nil, err
	}
	return saga.RehydrateSagaInstance(definition, ec)
}

// persist saves the instance's context. A stale-version rejection is treated
// as a no-op: a concurrent operation on the same saga already won, so the
// caller stops without error.
func (o *SagaOrchestrator) persist(ctx context.Context, instance *saga.SagaInstance) (bool, error) {
	err := o.repo.Save(ctx, instance.Context())
	if err == nil {
		return true, nil
	}
	if errors.Is(err, saga.ErrStaleContext) {
		logger.Get().Sugar().Debugw("discarding stale saga update",
			"saga_id", instance.ID(),
			"state", instance.State().String(),
		)
		return false, nil
	}
	return false, saga.NewStorageError("Save", err)
}

// finishCompleted finalizes a saga that reached the completed state: metrics
// and events are recorded, the OnCompleted callback runs, and the persisted
// context is deleted.
func (o *SagaOrchestrator) finishCompleted(ctx context.Context, instance *saga.SagaInstance) {
	ec := instance.Context()
	duration := time.Since(ec.StartedAt)

	o.bumpMetrics(func(m *OrchestratorMetrics) { m.CompletedSagas++ })
	o.collector.RecordSagaCompleted(ec.SagaType, duration)
	o.publishEvent(ctx, instance, saga.EventSagaCompleted, "", "")

	if instance.Definition().OnCompleted != nil {
		instance.Definition().OnCompleted(ec)
	}

	if err := o.repo.Delete(ctx, ec.SagaID); err != nil {
		logger.Get().Sugar().Errorw("failed to delete completed saga context",
			"saga_id", ec.SagaID,
			"error", err,
		)
	}

	logger.Get().Sugar().Infow("saga completed",
		"saga_id", ec.SagaID,
		"saga_type", ec.SagaType,
		"duration", duration,
	)
}

// definitionFor returns the registered definition for a saga type.
func (o *SagaOrchestrator) definitionFor(sagaType string) (*saga.SagaDefinition, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	definition, ok := o.definitions[sagaType]
	if !ok {
		return nil, saga.NewDefinitionNotFoundError(sagaType)
	}
	return definition, nil
}

// checkOpen returns an error when the orchestrator has been closed.
func (o *SagaOrchestrator) checkOpen() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrOrchestratorClosed
	}
	return nil
}

// bumpMetrics applies a mutation to the aggregate metrics under the lock.
func (o *SagaOrchestrator) bumpMetrics(fn func(*OrchestratorMetrics)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.metrics)
	o.metrics.LastUpdateTime = time.Now()
}

// publishEvent emits a lifecycle event. Publish failures are logged and do
// not affect saga progress.
func (o *SagaOrchestrator) publishEvent(ctx context.Context, instance *saga.SagaInstance, eventType saga.SagaEventType, stepID, errMsg string) {
	ec := instance.Context()
	event := &saga.SagaEvent{
		ID:            uuid.NewString(),
		SagaID:        ec.SagaID,
		SagaType:      ec.SagaType,
		StepID:        stepID,
		Type:          eventType,
		Timestamp:     time.Now(),
		CorrelationID: ec.CorrelationID,
		Error:         errMsg,
	}
	if err := o.publisher.PublishEvent(ctx, event); err != nil {
		logger.Get().Sugar().Warnw("failed to publish saga event",
			"saga_id", ec.SagaID,
			"event_type", eventType,
			"error", err,
		)
	}
}

// noOpEventPublisher drops lifecycle events when no publisher is configured.
type noOpEventPublisher struct{}

func (n *noOpEventPublisher) PublishEvent(ctx context.Context, event *saga.SagaEvent) error {
	return nil
}

func (n *noOpEventPublisher) Close() error { return nil }
