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

// Package commandbus provides an in-process CommandBus that routes commands
// to registered handler functions by command type. It is the default bus for
// tests and single-process deployments; distributed deployments use the NATS
// bus in the messaging package.
package commandbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/innovationmech/sagakit/pkg/logger"
	"github.com/innovationmech/sagakit/pkg/saga"
)

// HandlerFunc executes one command and reports its outcome.
type HandlerFunc func(ctx context.Context, cmd saga.Command) (*saga.CommandResult, error)

// InMemoryBus dispatches commands to handlers keyed by command type.
// A command with no registered handler yields a failed result rather than an
// error, so the saga's retry and compensation machinery applies.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewInMemoryBus creates an empty bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to a command type, replacing any previous handler
// for that type.
func (b *InMemoryBus) Register(commandType string, handler HandlerFunc) error {
	if commandType == "" {
		return saga.NewValidationError("command type must not be empty")
	}
	if handler == nil {
		return saga.NewValidationError("handler must not be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[commandType] = handler
	return nil
}

// Send routes the command to its handler. Handler panics are recovered and
// reported as failed results so a misbehaving handler cannot take down the
// orchestrator.
func (b *InMemoryBus) Send(ctx context.Context, cmd saga.Command) (result *saga.CommandResult, err error) {
	if cmd == nil {
		return nil, saga.NewValidationError("command must not be nil")
	}

	b.mu.RLock()
	handler, ok := b.handlers[cmd.CommandType()]
	b.mu.RUnlock()

	if !ok {
		return &saga.CommandResult{
			Success: false,
			Error:   fmt.Sprintf("no handler registered for command type %q", cmd.CommandType()),
		}, nil
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Get().Sugar().Errorw("command handler panicked",
				"command_type", cmd.CommandType(),
				"panic", r,
			)
			result = &saga.CommandResult{
				Success: false,
				Error:   fmt.Sprintf("handler panic: %v", r),
			}
			err = nil
		}
	}()

	return handler(ctx, cmd)
}
