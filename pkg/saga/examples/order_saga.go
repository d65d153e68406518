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

// Package examples contains a complete order-fulfillment saga: reserve
// inventory, charge payment, arrange shipping, each with a compensating
// command. It doubles as a usage reference and as the fixture for the
// end-to-end tests.
package examples

import (
	"time"

	"github.com/innovationmech/sagakit/pkg/saga"
)

// Command type names used by the order-fulfillment saga.
const (
	CmdReserveInventory = "inventory.reserve"
	CmdReleaseInventory = "inventory.release"
	CmdChargePayment    = "payment.charge"
	CmdRefundPayment    = "payment.refund"
	CmdArrangeShipping  = "shipping.arrange"
	CmdCancelShipping   = "shipping.cancel"
)

// OrderFulfillmentSagaType identifies the order-fulfillment definition.
const OrderFulfillmentSagaType = "order_fulfillment"

// ReserveInventoryCommand asks the inventory service to hold stock for an
// order.
type ReserveInventoryCommand struct {
	OrderID string         `json:"order_id"`
	Items   map[string]int `json:"items"`
}

// CommandType implements saga.Command.
func (c ReserveInventoryCommand) CommandType() string { return CmdReserveInventory }

// ReleaseInventoryCommand undoes a reservation.
type ReleaseInventoryCommand struct {
	OrderID string `json:"order_id"`
}

// CommandType implements saga.Command.
func (c ReleaseInventoryCommand) CommandType() string { return CmdReleaseInventory }

// ChargePaymentCommand asks the payment service to capture the order amount.
type ChargePaymentCommand struct {
	OrderID    string  `json:"order_id"`
	CustomerID string  `json:"customer_id"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
}

// CommandType implements saga.Command.
func (c ChargePaymentCommand) CommandType() string { return CmdChargePayment }

// RefundPaymentCommand reverses a captured payment.
type RefundPaymentCommand struct {
	OrderID string `json:"order_id"`
}

// CommandType implements saga.Command.
func (c RefundPaymentCommand) CommandType() string { return CmdRefundPayment }

// ArrangeShippingCommand books a shipment for the order.
type ArrangeShippingCommand struct {
	OrderID string `json:"order_id"`
	Address string `json:"address"`
}

// CommandType implements saga.Command.
func (c ArrangeShippingCommand) CommandType() string { return CmdArrangeShipping }

// CancelShippingCommand cancels a booked shipment.
type CancelShippingCommand struct {
	OrderID string `json:"order_id"`
}

// CommandType implements saga.Command.
func (c CancelShippingCommand) CommandType() string { return CmdCancelShipping }

// Order carries the business data for one fulfillment run.
type Order struct {
	OrderID    string
	CustomerID string
	Items      map[string]int
	Amount     float64
	Currency   string
	Address    string
}

// NewOrderFulfillmentDefinition builds the order-fulfillment saga for one
// order. Inventory and payment retry transient failures with exponential
// backoff; shipping is dispatched once because carriers reject duplicate
// bookings. Every step can be undone, so any failure rolls the order back
// completely.
func NewOrderFulfillmentDefinition(order Order) *saga.SagaDefinition {
	transientRetry := &saga.RetryPolicy{
		MaxAttempts: 3,
		Backoff:     200 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
		Multiplier:  2,
	}

	return &saga.SagaDefinition{
		SagaType:      OrderFulfillmentSagaType,
		GlobalTimeout: 10 * time.Minute,
		Steps: []saga.SagaStep{
			{
				StepID:   "reserve-inventory",
				StepName: "Reserve inventory",
				Command: ReserveInventoryCommand{
					OrderID: order.OrderID,
					Items:   order.Items,
				},
				CompensationCommand: ReleaseInventoryCommand{OrderID: order.OrderID},
				Timeout:             30 * time.Second,
				Retry:               transientRetry,
			},
			{
				StepID:   "charge-payment",
				StepName: "Charge payment",
				Command: ChargePaymentCommand{
					OrderID:    order.OrderID,
					CustomerID: order.CustomerID,
					Amount:     order.Amount,
					Currency:   order.Currency,
				},
				CompensationCommand: RefundPaymentCommand{OrderID: order.OrderID},
				Timeout:             time.Minute,
				Retry:               transientRetry,
			},
			{
				StepID:   "arrange-shipping",
				StepName: "Arrange shipping",
				Command: ArrangeShippingCommand{
					OrderID: order.OrderID,
					Address: order.Address,
				},
				CompensationCommand: CancelShippingCommand{OrderID: order.OrderID},
				Timeout:             time.Minute,
			},
		},
	}
}
