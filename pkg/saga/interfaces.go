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
	"context"
	"time"
)

// SagaRepository is the durable store for execution contexts. Implementations
// can back onto memory, Redis, or a relational database; the orchestrator's
// load/save pair around every operation is the de-facto synchronization
// boundary for a saga.
type SagaRepository interface {
	// Save upserts a context keyed by its SagaID. It enforces optimistic
	// concurrency: if the stored context's version is at or above the
	// incoming one, Save returns ErrStaleContext and writes nothing.
	Save(ctx context.Context, ec *ExecutionContext) error

	// Load returns the context for the given saga ID, or (nil, nil) if no
	// such context exists.
	Load(ctx context.Context, sagaID string) (*ExecutionContext, error)

	// FindByCorrelationID returns all contexts sharing the correlation ID.
	FindByCorrelationID(ctx context.Context, correlationID string) ([]*ExecutionContext, error)

	// FindByState returns all contexts currently in the given state.
	FindByState(ctx context.Context, state SagaState) ([]*ExecutionContext, error)

	// FindTimedOut returns contexts whose TimeoutAt is before now and whose
	// state is running or compensating.
	FindTimedOut(ctx context.Context, now time.Time) ([]*ExecutionContext, error)

	// Delete removes the context for the given saga ID. Deleting a missing
	// context is not an error.
	Delete(ctx context.Context, sagaID string) error
}

// CommandBus executes a single step or compensation command and reports the
// outcome. Implementations must never panic into the caller: internal
// failures are represented in the result or returned as an error.
type CommandBus interface {
	Send(ctx context.Context, cmd Command) (*CommandResult, error)
}

// EventHandler reacts to domain events routed through the orchestrator.
// Handlers typically translate an external signal (a payment confirmation, a
// shipment notification) into CompleteStep or FailStep calls.
type EventHandler interface {
	// CanHandle reports whether this handler is interested in the event.
	CanHandle(event *DomainEvent) bool

	// Handle processes the event. Errors are logged by the orchestrator and
	// never interrupt delivery to the remaining handlers.
	Handle(ctx context.Context, event *DomainEvent) error
}

// EventPublisher receives lifecycle events for observability. Publish
// failures are logged and never affect saga progress.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *SagaEvent) error
	Close() error
}
