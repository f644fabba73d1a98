// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log"
	"log/slog"
	"sync"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/infrastructure/mock"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/infrastructure/nats"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/infrastructure/registry"
	internalService "github.com/linuxfoundation/lfx-v2-roster-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/constants"
)

var (
	natsClient *nats.NATSClient
	natsDoOnce sync.Once

	identityRegistry *registry.Registry
	registryOnce     sync.Once
)

func natsInit(ctx context.Context) {
	natsDoOnce.Do(func() {
		cfg := Configuration()

		client, err := nats.NewClient(ctx, nats.Config{
			URL:           cfg.NATSURL,
			Timeout:       cfg.NATSTimeout,
			MaxReconnect:  cfg.NATSMaxReconnect,
			ReconnectWait: cfg.NATSReconnectWait,
			Buckets:       []string{constants.KVBucketNameRosterSnapshots},
		})
		if err != nil {
			log.Fatalf("failed to create NATS client: %v", err)
		}
		natsClient = client
	})
}

// GetNATSClient returns the shared NATS client, connecting on first use
func GetNATSClient(ctx context.Context) *nats.NATSClient {
	natsInit(ctx)
	return natsClient
}

// CloseNATS drains the shared NATS client if one was created
func CloseNATS(ctx context.Context) {
	if natsClient == nil {
		return
	}
	if err := natsClient.Close(); err != nil {
		slog.ErrorContext(ctx, "failed to close NATS client", "error", err)
	}
}

// ReadyCheck reports whether the infrastructure the process depends on is
// reachable
func ReadyCheck(ctx context.Context) error {
	if !Configuration().usesNATS() {
		return nil
	}
	return GetNATSClient(ctx).IsReady(ctx)
}

// IdentityRegistry returns the process-wide identity registry
func IdentityRegistry() *registry.Registry {
	registryOnce.Do(func() {
		identityRegistry = registry.New()
	})
	return identityRegistry
}

// MessagePublisher initializes the publisher used for roster events based on
// EVENTS_SOURCE
func MessagePublisher(ctx context.Context) port.MessagePublisher {
	var publisher port.MessagePublisher

	switch source := Configuration().EventsSource; source {
	case constants.EventsSourceNATS:
		slog.InfoContext(ctx, "initializing NATS message publisher")
		publisher = nats.NewMessagePublisher(GetNATSClient(ctx))
	case constants.EventsSourceMock:
		slog.InfoContext(ctx, "initializing mock message publisher")
		publisher = mock.NewMockMessagePublisher()
	default:
		log.Fatalf("unsupported message publisher implementation: %s", source)
	}

	return publisher
}

// SnapshotRepository initializes the roster snapshot store based on
// SNAPSHOT_SOURCE
func SnapshotRepository(ctx context.Context) port.SnapshotRepository {
	var repo port.SnapshotRepository

	switch source := Configuration().SnapshotSource; source {
	case constants.SnapshotSourceNATS:
		slog.InfoContext(ctx, "initializing NATS snapshot repository")
		repo = nats.NewSnapshotRepository(GetNATSClient(ctx))
	case constants.SnapshotSourceMock:
		slog.InfoContext(ctx, "initializing mock snapshot repository")
		repo = mock.NewMockSnapshotRepository()
	default:
		log.Fatalf("unsupported snapshot repository implementation: %s", source)
	}

	return repo
}

// RemotePeer initializes the remote peer based on PEER_SOURCE. A simulator
// must be bound to the roster before it receives requests.
func RemotePeer(ctx context.Context) port.RemotePeer {
	cfg := Configuration()
	var peer port.RemotePeer

	switch cfg.PeerSource {
	case constants.PeerSourceSimulator:
		slog.InfoContext(ctx, "initializing peer simulator",
			"delay", cfg.PeerDelay,
			"accept_token", cfg.PeerAcceptToken,
		)
		peer = internalService.NewPeerSimulator(
			internalService.WithDelay(cfg.PeerDelay),
			internalService.WithDecider(internalService.TokenDecider{Token: cfg.PeerAcceptToken}),
		)
	case constants.PeerSourceNATS:
		slog.InfoContext(ctx, "initializing NATS remote peer")
		peer = nats.NewRemotePeer(nats.NewMessagePublisher(GetNATSClient(ctx)), IdentityRegistry())
	default:
		log.Fatalf("unsupported remote peer implementation: %s", cfg.PeerSource)
	}

	return peer
}
