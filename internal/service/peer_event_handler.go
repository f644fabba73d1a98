// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/errors"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/log"
)

// PeerEventHandler turns inbound peer messages into roster peer events
type PeerEventHandler struct {
	registry port.IdentityRegistry
	sink     port.PeerEventSink
}

// NewPeerEventHandler creates a handler feeding sink
func NewPeerEventHandler(registry port.IdentityRegistry, sink port.PeerEventSink) *PeerEventHandler {
	return &PeerEventHandler{
		registry: registry,
		sink:     sink,
	}
}

// Subjects returns the inbound subjects the handler understands
func (h *PeerEventHandler) Subjects() []string {
	return []string{
		constants.PeerSubscriptionAcceptedSubject,
		constants.PeerSubscriptionRejectedSubject,
		constants.PeerPublishRequestedSubject,
	}
}

// HandleMessage routes NATS messages to the sink based on subject. Errors
// are returned for acknowledgment; a malformed message is never retried
// successfully, so callers may choose to drop it.
func (h *PeerEventHandler) HandleMessage(ctx context.Context, msg *nats.Msg) error {
	subject := msg.Subject

	slog.DebugContext(ctx, "received peer event", "subject", subject)

	var event model.PeerEventMessage
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		slog.ErrorContext(ctx, "failed to unmarshal peer event", "error", err, "subject", subject)
		return errors.NewInvalidArgument("failed to unmarshal peer event", err)
	}

	var deliver func(handle model.Handle)
	switch subject {
	case constants.PeerSubscriptionAcceptedSubject:
		deliver = func(handle model.Handle) { h.sink.SubscriptionDecided(handle, event.RequestID, true) }
	case constants.PeerSubscriptionRejectedSubject:
		deliver = func(handle model.Handle) { h.sink.SubscriptionDecided(handle, event.RequestID, false) }
	case constants.PeerPublishRequestedSubject:
		message := event.Message
		if message == "" {
			message = constants.DefaultPublishRequestMessage
		}
		deliver = func(handle model.Handle) { h.sink.PublishRequested(handle, message) }
	default:
		slog.WarnContext(ctx, "unknown peer event subject", "subject", subject)
		return fmt.Errorf("unknown peer event subject: %s", subject)
	}

	handle, err := h.registry.Ensure(event.ContactID)
	if err != nil {
		slog.ErrorContext(ctx, "invalid contact in peer event",
			"error", err,
			"subject", subject,
			"contact_id", event.ContactID,
		)
		return err
	}
	// the sink takes its own reference while the event is queued
	defer h.registry.Unref(handle)

	slog.InfoContext(ctx, "processing peer event",
		"subject", subject,
		"contact_id", event.ContactID,
		"handle", handle,
		"message", log.Message(event.Message),
	)
	deliver(handle)

	return nil
}
