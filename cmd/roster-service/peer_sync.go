// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/linuxfoundation/lfx-v2-roster-service/cmd/roster-service/service"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/port"
	internalService "github.com/linuxfoundation/lfx-v2-roster-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/constants"
)

const peerMessageTimeout = 30 * time.Second

// handlePeerSync subscribes to the inbound peer subjects and feeds the
// answers into the roster. Subscriptions are drained when the NATS client
// closes.
func handlePeerSync(ctx context.Context, sink port.PeerEventSink) error {
	slog.InfoContext(ctx, "starting peer sync")

	natsClient := service.GetNATSClient(ctx)
	handler := internalService.NewPeerEventHandler(service.IdentityRegistry(), sink)

	for _, subject := range handler.Subjects() {
		_, err := natsClient.QueueSubscribe(subject, constants.RosterQueue, func(msg *nats.Msg) {
			select {
			case <-ctx.Done():
				slog.InfoContext(ctx, "dropping peer event, service shutting down", "subject", msg.Subject)
				return
			default:
			}

			// not derived from ctx so shutdown does not cut a message in half
			msgCtx, cancel := context.WithTimeout(context.Background(), peerMessageTimeout)
			defer cancel()

			if err := handler.HandleMessage(msgCtx, msg); err != nil {
				slog.ErrorContext(msgCtx, "failed to process peer event",
					"error", err,
					"subject", msg.Subject,
				)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		slog.InfoContext(ctx, "subscribed to peer events",
			"subject", subject,
			"queue", constants.RosterQueue,
		)
	}

	slog.InfoContext(ctx, "peer sync started successfully")
	return nil
}
