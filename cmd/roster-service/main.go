// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// The roster service keeps one account's contact roster: who may see our
// presence, whose presence we see, and how contacts are grouped.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/linuxfoundation/lfx-v2-roster-service/cmd/roster-service/service"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/infrastructure/metrics"
	internalService "github.com/linuxfoundation/lfx-v2-roster-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/log"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/utils"
)

func main() {
	log.InitStructureLogConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := utils.SetupOTelSDK(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "error setting up OpenTelemetry SDK", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := otelShutdown(context.WithoutCancel(ctx)); err != nil {
			slog.ErrorContext(ctx, "error shutting down OpenTelemetry SDK", "error", err)
		}
	}()

	if err := run(ctx, service.Configuration()); err != nil {
		slog.ErrorContext(ctx, "roster service stopped with error", "error", err)
		stop()
		os.Exit(1)
	}
	slog.InfoContext(ctx, "roster service stopped")
}

func run(ctx context.Context, cfg service.Config) error {
	ctx = log.AppendCtx(ctx, slog.String("account", cfg.Account))
	ctx = context.WithValue(ctx, constants.AccountContextKey, cfg.Account)
	slog.InfoContext(ctx, "starting roster service",
		"peer_source", cfg.PeerSource,
		"snapshot_source", cfg.SnapshotSource,
		"events_source", cfg.EventsSource,
	)
	defer service.CloseNATS(ctx)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registry := service.IdentityRegistry()
	peer := service.RemotePeer(ctx)

	roster := internalService.NewRoster(registry,
		internalService.WithRemotePeer(peer),
		internalService.WithReciprocation(cfg.PeerReciprocate, constants.DefaultPublishRequestMessage),
		internalService.WithObserver(metrics.New(promRegistry)),
	)
	defer roster.Close()

	if simulator, ok := peer.(*internalService.PeerSimulator); ok {
		simulator.Bind(roster)
		defer simulator.Close()
	}

	persister := internalService.NewSnapshotPersister(roster, registry, service.SnapshotRepository(ctx), cfg.Account, nil)
	if err := persister.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore roster: %w", err)
	}

	// restored rows are not news to other services
	bridge := internalService.NewEventBridge(service.MessagePublisher(ctx), registry, nil,
		internalService.WithOutbox(cfg.EventsBuffer),
	)
	unsubscribe, err := roster.Subscribe(ctx, bridge)
	if err != nil {
		return fmt.Errorf("failed to register event bridge: %w", err)
	}
	defer unsubscribe()

	if cfg.PeerSource == constants.PeerSourceNATS {
		if err := handlePeerSync(ctx, roster); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return persister.Run(gctx, cfg.SnapshotInterval)
	})
	g.Go(func() error {
		return bridge.Run(gctx)
	})
	g.Go(func() error {
		return handleHTTPServer(gctx, cfg.MetricsAddr, promRegistry)
	})

	return g.Wait()
}
