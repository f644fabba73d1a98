// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/clock"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/constants"
)

// EventBridge forwards notification bus events to the message bus so other
// services can follow roster changes. With an outbox, messages are built on
// the roster queue and published from Run, so a slow broker does not hold up
// roster operations.
type EventBridge struct {
	publisher port.MessagePublisher
	registry  port.IdentityRegistry
	clock     clock.Clock
	outbox    chan outboundEvent
}

type outboundEvent struct {
	ctx     context.Context
	subject string
	message any
	attrs   []any
}

// eventBridgeOption defines a function type for setting options on the bridge
type eventBridgeOption func(*EventBridge)

// WithOutbox buffers up to size messages for Run to publish. Messages that do
// not fit are dropped and logged.
func WithOutbox(size int) eventBridgeOption {
	return func(b *EventBridge) {
		b.outbox = make(chan outboundEvent, size)
	}
}

// Ensure EventBridge implements both observer interfaces
var (
	_ port.ChangeObserver = (*EventBridge)(nil)
	_ port.GroupObserver  = (*EventBridge)(nil)
)

// NewEventBridge creates a bridge publishing through publisher
func NewEventBridge(publisher port.MessagePublisher, registry port.IdentityRegistry, c clock.Clock, opts ...eventBridgeOption) *EventBridge {
	if c == nil {
		c = clock.Real()
	}
	b := &EventBridge{
		publisher: publisher,
		registry:  registry,
		clock:     c,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run publishes queued messages until ctx is done, then publishes whatever is
// still queued. It returns at once when the bridge has no outbox.
func (b *EventBridge) Run(ctx context.Context) error {
	if b.outbox == nil {
		return nil
	}
	for {
		select {
		case out := <-b.outbox:
			b.publish(out)
		case <-ctx.Done():
			for {
				select {
				case out := <-b.outbox:
					b.publish(out)
				default:
					return nil
				}
			}
		}
	}
}

// Pending returns the number of queued messages
func (b *EventBridge) Pending() int {
	return len(b.outbox)
}

func (b *EventBridge) send(out outboundEvent) {
	if b.outbox == nil {
		b.publish(out)
		return
	}
	// the roster call that produced the event may be cancelled before Run
	// gets to it
	out.ctx = context.WithoutCancel(out.ctx)
	select {
	case b.outbox <- out:
	default:
		slog.ErrorContext(out.ctx, "event outbox full, dropping roster event",
			append([]any{"subject", out.subject}, out.attrs...)...)
	}
}

func (b *EventBridge) publish(out outboundEvent) {
	if err := b.publisher.Publish(out.ctx, out.subject, out.message); err != nil {
		slog.ErrorContext(out.ctx, "failed to publish roster event",
			append([]any{"error", err, "subject", out.subject}, out.attrs...)...)
	}
}

// MembershipChanged publishes a RosterEventMessage. The contact is resolved
// here, while the handle is still held. Publish failures are logged; the
// roster change itself has already happened.
func (b *EventBridge) MembershipChanged(ctx context.Context, event model.ChangeEvent) {
	contactID, ok := b.registry.Inspect(event.Handle)
	if !ok {
		slog.WarnContext(ctx, "cannot resolve contact for roster event, skipping",
			"handle", event.Handle,
			"target", event.Target.String(),
		)
		return
	}

	msg := model.NewRosterEventMessage(event, contactID, b.clock.Now())
	b.send(outboundEvent{
		ctx:     ctx,
		subject: constants.RosterMembershipChangedSubject,
		message: msg,
		attrs:   []any{"event_id", msg.ID, "contact_id", contactID, "target", msg.Target},
	})
}

// GroupChanged publishes a GroupEventMessage
func (b *EventBridge) GroupChanged(ctx context.Context, event model.GroupEvent) {
	msg := model.NewGroupEventMessage(event, b.clock.Now())
	b.send(outboundEvent{
		ctx:     ctx,
		subject: constants.RosterGroupChangedSubject,
		message: msg,
		attrs:   []any{"event_id", msg.ID, "group", event.Name},
	})
}
