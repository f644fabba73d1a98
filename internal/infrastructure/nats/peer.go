// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package nats

import (
	"context"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/constants"
)

// remotePeer forwards roster requests to a remote peer over NATS. Answers
// arrive on the inbound peer subjects and are handled separately.
type remotePeer struct {
	publisher port.MessagePublisher
	registry  port.IdentityRegistry
}

// NewRemotePeer creates a RemotePeer publishing on the outbound peer subject
func NewRemotePeer(publisher port.MessagePublisher, registry port.IdentityRegistry) port.RemotePeer {
	return &remotePeer{
		publisher: publisher,
		registry:  registry,
	}
}

// SubscriptionRequested asks the contact to share their presence
func (p *remotePeer) SubscriptionRequested(ctx context.Context, handle model.Handle, requestID uint64, message string) {
	p.send(ctx, handle, model.PeerRequestMessage{
		Action:    model.PeerActionSubscriptionRequested,
		RequestID: requestID,
		Message:   message,
	})
}

// PublishRevoked tells the contact they can no longer see our presence
func (p *remotePeer) PublishRevoked(ctx context.Context, handle model.Handle) {
	p.send(ctx, handle, model.PeerRequestMessage{Action: model.PeerActionPublishRevoked})
}

func (p *remotePeer) send(ctx context.Context, handle model.Handle, msg model.PeerRequestMessage) {
	contactID, ok := p.registry.Inspect(handle)
	if !ok {
		slog.WarnContext(ctx, "cannot resolve contact for peer request", "handle", handle, "action", msg.Action)
		return
	}

	msg.ContactID = contactID
	if err := p.publisher.Publish(ctx, constants.PeerOutboundSubject, msg); err != nil {
		slog.ErrorContext(ctx, "failed to send peer request",
			"error", err,
			"action", msg.Action,
			"contact_id", contactID,
			"request_id", msg.RequestID,
		)
	}
}
