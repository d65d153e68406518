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

// Package repository provides SagaRepository implementations: an in-memory
// store for tests and single-process deployments, and a Redis-backed store
// for durable, multi-instance deployments.
package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/innovationmech/sagakit/pkg/saga"
)

var errRepositoryClosed = errors.New("repository is closed")

// MemoryRepository is an in-memory SagaRepository. All contexts are deep
// copied on the way in and out, so callers can never mutate stored state
// except through Save.
type MemoryRepository struct {
	mu       sync.RWMutex
	contexts map[string]*saga.ExecutionContext
	closed   bool
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		contexts: make(map[string]*saga.ExecutionContext),
	}
}

// Save upserts the context, enforcing the optimistic version check.
func (r *MemoryRepository) Save(ctx context.Context, ec *saga.ExecutionContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ec == nil {
		return saga.NewValidationError("execution context must not be nil")
	}
	if ec.SagaID == "" {
		return saga.NewValidationError("execution context has no saga ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return saga.NewStorageError("Save", errRepositoryClosed)
	}
	if existing, ok := r.contexts[ec.SagaID]; ok && ec.Version <= existing.Version {
		return saga.ErrStaleContext
	}
	r.contexts[ec.SagaID] = ec.Clone()
	return nil
}

// Load returns a copy of the stored context, or (nil, nil) when absent.
func (r *MemoryRepository) Load(ctx context.Context, sagaID string) (*saga.ExecutionContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, saga.NewStorageError("Load", errRepositoryClosed)
	}
	ec, ok := r.contexts[sagaID]
	if !ok {
		return nil, nil
	}
	return ec.Clone(), nil
}

// FindByCorrelationID returns copies of all contexts with the correlation ID.
func (r *MemoryRepository) FindByCorrelationID(ctx context.Context, correlationID string) ([]*saga.ExecutionContext, error) {
	return r.findMatching(ctx, func(ec *saga.ExecutionContext) bool {
		return ec.CorrelationID == correlationID
	})
}

// FindByState returns copies of all contexts in the given state.
func (r *MemoryRepository) FindByState(ctx context.Context, state saga.SagaState) ([]*saga.ExecutionContext, error) {
	return r.findMatching(ctx, func(ec *saga.ExecutionContext) bool {
		return ec.State == state
	})
}

// FindTimedOut returns copies of all active contexts whose deadline passed.
func (r *MemoryRepository) FindTimedOut(ctx context.Context, now time.Time) ([]*saga.ExecutionContext, error) {
	return r.findMatching(ctx, func(ec *saga.ExecutionContext) bool {
		return ec.IsTimedOut(now)
	})
}

// Delete removes the context. Deleting a missing context is not an error.
func (r *MemoryRepository) Delete(ctx context.Context, sagaID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return saga.NewStorageError("Delete", errRepositoryClosed)
	}
	delete(r.contexts, sagaID)
	return nil
}

// Close releases the repository. Later operations fail with a storage error.
func (r *MemoryRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.contexts = nil
	return nil
}

// Len returns the number of stored contexts. Intended for tests.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}

func (r *MemoryRepository) findMatching(ctx context.Context, match func(*saga.ExecutionContext) bool) ([]*saga.ExecutionContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, saga.NewStorageError("Find", errRepositoryClosed)
	}
	var out []*saga.ExecutionContext
	for _, ec := range r.contexts {
		if match(ec) {
			out = append(out, ec.Clone())
		}
	}
	return out, nil
}
