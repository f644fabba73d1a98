// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package service wires the roster service's dependencies from the environment.
package service

import (
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/constants"
)

// Config is the process configuration, read once from the environment
type Config struct {
	NATSURL           string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSTimeout       time.Duration `env:"NATS_TIMEOUT" envDefault:"10s"`
	NATSMaxReconnect  int           `env:"NATS_MAX_RECONNECT" envDefault:"3"`
	NATSReconnectWait time.Duration `env:"NATS_RECONNECT_WAIT" envDefault:"2s"`

	PeerSource      string        `env:"PEER_SOURCE" envDefault:"simulator"`
	PeerDelay       time.Duration `env:"PEER_DELAY" envDefault:"1s"`
	PeerAcceptToken string        `env:"PEER_ACCEPT_TOKEN" envDefault:"please"`
	PeerReciprocate bool          `env:"PEER_RECIPROCATE" envDefault:"false"`

	SnapshotSource   string        `env:"SNAPSHOT_SOURCE" envDefault:"nats"`
	SnapshotInterval time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"1m"`
	EventsSource     string        `env:"EVENTS_SOURCE" envDefault:"nats"`
	EventsBuffer     int           `env:"EVENTS_BUFFER" envDefault:"1024"`

	Account     string `env:"ROSTER_ACCOUNT,notEmpty"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
}

var (
	config     Config
	configOnce sync.Once
)

// Configuration parses the environment on first use. Invalid values abort
// start-up.
func Configuration() Config {
	configOnce.Do(func() {
		cfg, err := env.ParseAs[Config]()
		if err != nil {
			log.Fatalf("invalid configuration: %v", err)
		}
		if err := cfg.validate(); err != nil {
			log.Fatalf("invalid configuration: %v", err)
		}
		config = cfg
	})
	return config
}

func (c Config) validate() error {
	switch c.PeerSource {
	case constants.PeerSourceSimulator, constants.PeerSourceNATS:
	default:
		return errUnsupported("PEER_SOURCE", c.PeerSource)
	}
	switch c.SnapshotSource {
	case constants.SnapshotSourceNATS, constants.SnapshotSourceMock:
	default:
		return errUnsupported("SNAPSHOT_SOURCE", c.SnapshotSource)
	}
	switch c.EventsSource {
	case constants.EventsSourceNATS, constants.EventsSourceMock:
	default:
		return errUnsupported("EVENTS_SOURCE", c.EventsSource)
	}
	if c.PeerDelay < 0 {
		return errInvalid("PEER_DELAY", c.PeerDelay.String())
	}
	if c.SnapshotInterval <= 0 {
		return errInvalid("SNAPSHOT_INTERVAL", c.SnapshotInterval.String())
	}
	if c.EventsBuffer <= 0 {
		return errInvalid("EVENTS_BUFFER", strconv.Itoa(c.EventsBuffer))
	}
	return nil
}

// usesNATS reports whether any configured source needs a NATS connection
func (c Config) usesNATS() bool {
	return c.PeerSource == constants.PeerSourceNATS ||
		c.SnapshotSource == constants.SnapshotSourceNATS ||
		c.EventsSource == constants.EventsSourceNATS
}
