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

package examples

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovationmech/sagakit/pkg/saga"
	"github.com/innovationmech/sagakit/pkg/saga/commandbus"
	"github.com/innovationmech/sagakit/pkg/saga/orchestrator"
	"github.com/innovationmech/sagakit/pkg/saga/repository"
)

func testOrder() Order {
	return Order{
		OrderID:    "order-42",
		CustomerID: "cust-7",
		Items:      map[string]int{"sku-1": 2},
		Amount:     59.90,
		Currency:   "EUR",
		Address:    "1 Main St",
	}
}

// participantServices simulates inventory, payment and shipping behind the
// in-process bus and records every command it saw.
type participantServices struct {
	mu            sync.Mutex
	received      []string
	failPayment   bool
	failShipping  bool
	refundRejects bool
}

func (s *participantServices) register(t *testing.T, bus *commandbus.InMemoryBus) {
	t.Helper()
	handle := func(commandType string, ok func() bool) {
		require.NoError(t, bus.Register(commandType, func(ctx context.Context, cmd saga.Command) (*saga.CommandResult, error) {
			s.mu.Lock()
			s.received = append(s.received, cmd.CommandType())
			s.mu.Unlock()
			if ok != nil && !ok() {
				return &saga.CommandResult{Success: false, Error: commandType + " rejected"}, nil
			}
			return &saga.CommandResult{Success: true}, nil
		}))
	}

	handle(CmdReserveInventory, nil)
	handle(CmdReleaseInventory, nil)
	handle(CmdChargePayment, func() bool { return !s.failPayment })
	handle(CmdRefundPayment, func() bool { return !s.refundRejects })
	handle(CmdArrangeShipping, func() bool { return !s.failShipping })
	handle(CmdCancelShipping, nil)
}

func (s *participantServices) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

type orderFixture struct {
	orch     *orchestrator.SagaOrchestrator
	repo     *repository.MemoryRepository
	services *participantServices
}

func newOrderFixture(t *testing.T, services *participantServices) *orderFixture {
	t.Helper()
	repo := repository.NewMemoryRepository()
	bus := commandbus.NewInMemoryBus()
	services.register(t, bus)

	orch, err := orchestrator.New(&orchestrator.Config{
		Repository: repo,
		CommandBus: bus,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = orch.Close() })

	require.NoError(t, orch.RegisterSagaDefinition(NewOrderFulfillmentDefinition(testOrder())))
	return &orderFixture{orch: orch, repo: repo, services: services}
}

func TestOrderFulfillment_HappyPath(t *testing.T) {
	f := newOrderFixture(t, &participantServices{})
	ctx := context.Background()

	sagaID, err := f.orch.StartSaga(ctx, OrderFulfillmentSagaType, nil, "order-42")
	require.NoError(t, err)

	require.NoError(t, f.orch.CompleteStep(ctx, sagaID, map[string]interface{}{"reservation_id": "r-1"}))
	require.NoError(t, f.orch.CompleteStep(ctx, sagaID, map[string]interface{}{"charge_id": "ch-1"}))
	require.NoError(t, f.orch.CompleteStep(ctx, sagaID, map[string]interface{}{"tracking_id": "tr-1"}))

	assert.Equal(t, []string{
		CmdReserveInventory,
		CmdChargePayment,
		CmdArrangeShipping,
	}, f.services.commands())

	ec, err := f.repo.Load(ctx, sagaID)
	require.NoError(t, err)
	assert.Nil(t, ec)
}

func TestOrderFulfillment_ShippingFailureRollsBackOrder(t *testing.T) {
	f := newOrderFixture(t, &participantServices{failShipping: true})
	ctx := context.Background()

	sagaID, err := f.orch.StartSaga(ctx, OrderFulfillmentSagaType, nil, "order-42")
	require.NoError(t, err)

	require.NoError(t, f.orch.CompleteStep(ctx, sagaID, nil)) // inventory reserved
	require.NoError(t, f.orch.CompleteStep(ctx, sagaID, nil)) // payment charged

	// The shipping dispatch is rejected by the carrier. Shipping has no
	// retry policy, so the saga unwinds: refund first, then release.
	assert.Equal(t, []string{
		CmdReserveInventory,
		CmdChargePayment,
		CmdArrangeShipping,
		CmdRefundPayment,
		CmdReleaseInventory,
	}, f.services.commands())

	ec, err := f.repo.Load(ctx, sagaID)
	require.NoError(t, err)
	assert.Nil(t, ec, "fully rolled back order leaves no context behind")
}

func TestOrderFulfillment_RefundRejectionLeavesSagaFailed(t *testing.T) {
	f := newOrderFixture(t, &participantServices{failShipping: true, refundRejects: true})
	ctx := context.Background()

	sagaID, err := f.orch.StartSaga(ctx, OrderFulfillmentSagaType, nil, "order-42")
	require.NoError(t, err)

	require.NoError(t, f.orch.CompleteStep(ctx, sagaID, nil))
	require.NoError(t, f.orch.CompleteStep(ctx, sagaID, nil))

	ec, err := f.repo.Load(ctx, sagaID)
	require.NoError(t, err)
	require.NotNil(t, ec)
	assert.Equal(t, saga.StateFailed, ec.State)

	// The refund was attempted; inventory release never ran because the
	// unwinding stops at the first compensation failure.
	commands := f.services.commands()
	assert.Contains(t, commands, CmdRefundPayment)
	assert.NotContains(t, commands, CmdReleaseInventory)
}

func TestOrderFulfillment_DefinitionIsValid(t *testing.T) {
	def := NewOrderFulfillmentDefinition(testOrder())
	require.NoError(t, def.Validate())
	assert.Len(t, def.Steps, 3)
	assert.True(t, def.Steps[0].HasCompensation())
	assert.True(t, def.Steps[1].HasCompensation())
	assert.True(t, def.Steps[2].HasCompensation())
}
