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

// Package messaging carries saga commands and lifecycle events over NATS.
// Commands use core request-reply: each command type maps to a subject and
// the participant's reply is the CommandResult. Lifecycle events are
// fire-and-forget publishes.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/innovationmech/sagakit/pkg/saga"
)

// DefaultRequestTimeout bounds command round trips when the caller's context
// carries no deadline.
const DefaultRequestTimeout = 5 * time.Second

// commandEnvelope is the wire format for commands. The payload is the
// command's own JSON encoding; participants decode it against the command
// type they registered for.
type commandEnvelope struct {
	CommandType string          `json:"command_type"`
	Payload     json.RawMessage `json:"payload"`
}

// NATSCommandBus is a saga.CommandBus carrying commands over NATS core
// request-reply. Command type T maps to subject {prefix}.command.T; the
// participant replies with a JSON CommandResult.
type NATSCommandBus struct {
	conn    *nats.Conn
	prefix  string
	timeout time.Duration
}

// NewNATSCommandBus wraps an existing connection. The subject prefix
// namespaces this bus's traffic, commonly the service or environment name.
func NewNATSCommandBus(conn *nats.Conn, subjectPrefix string, requestTimeout time.Duration) (*NATSCommandBus, error) {
	if conn == nil {
		return nil, saga.NewValidationError("nats connection must not be nil")
	}
	if subjectPrefix == "" {
		return nil, saga.NewValidationError("subject prefix must not be empty")
	}
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &NATSCommandBus{conn: conn, prefix: subjectPrefix, timeout: requestTimeout}, nil
}

// Send publishes the command as a request and decodes the reply as a
// CommandResult. A request timeout is returned as an error so the step's
// retry policy applies to unreachable participants.
func (b *NATSCommandBus) Send(ctx context.Context, cmd saga.Command) (*saga.CommandResult, error) {
	if cmd == nil {
		return nil, saga.NewValidationError("command must not be nil")
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command %q: %w", cmd.CommandType(), err)
	}
	data, err := json.Marshal(commandEnvelope{
		CommandType: cmd.CommandType(),
		Payload:     payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode command envelope: %w", err)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	msg, err := b.conn.RequestWithContext(ctx, b.commandSubject(cmd.CommandType()), data)
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("command %q timed out: %w", cmd.CommandType(), err)
		}
		return nil, fmt.Errorf("command %q request failed: %w", cmd.CommandType(), err)
	}

	result := &saga.CommandResult{}
	if err := json.Unmarshal(msg.Data, result); err != nil {
		return nil, fmt.Errorf("failed to decode reply for command %q: %w", cmd.CommandType(), err)
	}
	return result, nil
}

func (b *NATSCommandBus) commandSubject(commandType string) string {
	return fmt.Sprintf("%s.command.%s", b.prefix, commandType)
}

// CommandHandlerFunc processes the decoded payload of one command type and
// reports the outcome.
type CommandHandlerFunc func(ctx context.Context, payload json.RawMessage) (*saga.CommandResult, error)

// NATSCommandServer is the participant side of the bus: it subscribes to a
// command subject and replies with the handler's CommandResult. Handler
// errors are replied as failed results, never left unanswered, so the
// orchestrator distinguishes a rejected command from a dead participant.
type NATSCommandServer struct {
	conn   *nats.Conn
	prefix string
	subs   []*nats.Subscription
}

// NewNATSCommandServer wraps an existing connection with the same subject
// prefix as the bus it serves.
func NewNATSCommandServer(conn *nats.Conn, subjectPrefix string) (*NATSCommandServer, error) {
	if conn == nil {
		return nil, saga.NewValidationError("nats connection must not be nil")
	}
	if subjectPrefix == "" {
		return nil, saga.NewValidationError("subject prefix must not be empty")
	}
	return &NATSCommandServer{conn: conn, prefix: subjectPrefix}, nil
}

// Handle subscribes the handler to a command type. Participants sharing a
// queue group split the load; each command is processed once per group.
func (s *NATSCommandServer) Handle(commandType, queueGroup string, handler CommandHandlerFunc) error {
	if commandType == "" {
		return saga.NewValidationError("command type must not be empty")
	}
	if handler == nil {
		return saga.NewValidationError("handler must not be nil")
	}

	subject := fmt.Sprintf("%s.command.%s", s.prefix, commandType)
	cb := func(msg *nats.Msg) {
		var envelope commandEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			s.reply(msg, &saga.CommandResult{
				Success: false,
				Error:   fmt.Sprintf("malformed command envelope: %v", err),
			})
			return
		}

		result, err := handler(context.Background(), envelope.Payload)
		if err != nil {
			s.reply(msg, &saga.CommandResult{Success: false, Error: err.Error()})
			return
		}
		if result == nil {
			result = &saga.CommandResult{Success: true}
		}
		s.reply(msg, result)
	}

	var (
		sub *nats.Subscription
		err error
	)
	if queueGroup != "" {
		sub, err = s.conn.QueueSubscribe(subject, queueGroup, cb)
	} else {
		sub, err = s.conn.Subscribe(subject, cb)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

func (s *NATSCommandServer) reply(msg *nats.Msg, result *saga.CommandResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = msg.Respond(data)
}

// Close drains all subscriptions.
func (s *NATSCommandServer) Close() error {
	var firstErr error
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.subs = nil
	return firstErr
}

// NATSEventPublisher publishes saga lifecycle events to
// {prefix}.events.{event type}. Publishes are fire-and-forget; observers
// subscribe with wildcards, for example {prefix}.events.saga.>.
type NATSEventPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSEventPublisher wraps an existing connection.
func NewNATSEventPublisher(conn *nats.Conn, subjectPrefix string) (*NATSEventPublisher, error) {
	if conn == nil {
		return nil, saga.NewValidationError("nats connection must not be nil")
	}
	if subjectPrefix == "" {
		return nil, saga.NewValidationError("subject prefix must not be empty")
	}
	return &NATSEventPublisher{conn: conn, prefix: subjectPrefix}, nil
}

// PublishEvent implements saga.EventPublisher.
func (p *NATSEventPublisher) PublishEvent(ctx context.Context, event *saga.SagaEvent) error {
	if event == nil {
		return saga.NewValidationError("event must not be nil")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode saga event: %w", err)
	}
	subject := fmt.Sprintf("%s.events.%s", p.prefix, event.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish saga event to %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending publishes. The connection itself is owned by the
// caller.
func (p *NATSEventPublisher) Close() error {
	return p.conn.Flush()
}
