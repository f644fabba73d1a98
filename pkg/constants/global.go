// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package constants defines global constants used throughout the roster service.
package constants

import "time"

// Service constants
const (
	// ServiceName is the name of this service
	ServiceName = "roster"

	// RosterQueue is the NATS queue group for roster service subscriptions
	RosterQueue = "lfx-v2-roster-service"
)

// System list names as they appear on the inbound boundary
const (
	ListNamePublish   = "publish"
	ListNameSubscribe = "subscribe"
	ListNameStored    = "stored"
)

// Peer simulation defaults
const (
	// DefaultAcceptToken is the substring a subscription request message must
	// contain for the simulated peer to approve it
	DefaultAcceptToken = "please"

	// DefaultPublishRequestMessage is the text attached to peer-initiated
	// publish requests
	DefaultPublishRequestMessage = "May I see your presence, please?"

	// DefaultPeerDelay is the simulated network round trip for peer decisions
	DefaultPeerDelay = 1 * time.Second
)

// Peer sources
const (
	PeerSourceSimulator = "simulator"
	PeerSourceNATS      = "nats"
)

// Snapshot sources
const (
	SnapshotSourceNATS = "nats"
	SnapshotSourceMock = "mock"
)

// Event publishing sources
const (
	EventsSourceNATS = "nats"
	EventsSourceMock = "mock"
)
