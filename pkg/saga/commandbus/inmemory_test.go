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

package commandbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovationmech/sagakit/pkg/saga"
)

type busTestCommand struct {
	Type string
}

func (c busTestCommand) CommandType() string { return c.Type }

func TestInMemoryBus_Send(t *testing.T) {
	bus := NewInMemoryBus()
	require.NoError(t, bus.Register("inventory.reserve", func(ctx context.Context, cmd saga.Command) (*saga.CommandResult, error) {
		return &saga.CommandResult{Success: true}, nil
	}))

	result, err := bus.Send(context.Background(), busTestCommand{Type: "inventory.reserve"})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestInMemoryBus_UnknownCommandType(t *testing.T) {
	bus := NewInMemoryBus()

	result, err := bus.Send(context.Background(), busTestCommand{Type: "nobody.home"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "nobody.home")
}

func TestInMemoryBus_HandlerError(t *testing.T) {
	bus := NewInMemoryBus()
	require.NoError(t, bus.Register("payment.charge", func(ctx context.Context, cmd saga.Command) (*saga.CommandResult, error) {
		return nil, errors.New("payment gateway unreachable")
	}))

	_, err := bus.Send(context.Background(), busTestCommand{Type: "payment.charge"})
	assert.Error(t, err)
}

func TestInMemoryBus_HandlerPanicBecomesFailedResult(t *testing.T) {
	bus := NewInMemoryBus()
	require.NoError(t, bus.Register("shipping.arrange", func(ctx context.Context, cmd saga.Command) (*saga.CommandResult, error) {
		panic("carrier client bug")
	}))

	result, err := bus.Send(context.Background(), busTestCommand{Type: "shipping.arrange"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "carrier client bug")
}

func TestInMemoryBus_RegisterValidation(t *testing.T) {
	bus := NewInMemoryBus()
	assert.Error(t, bus.Register("", func(ctx context.Context, cmd saga.Command) (*saga.CommandResult, error) {
		return nil, nil
	}))
	assert.Error(t, bus.Register("x", nil))
}

func TestInMemoryBus_NilCommand(t *testing.T) {
	bus := NewInMemoryBus()
	_, err := bus.Send(context.Background(), nil)
	assert.Error(t, err)
}
