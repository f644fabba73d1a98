// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

// NATS subject constants for message publishing
const (
	// RosterMembershipChangedSubject carries one message per membership transition
	RosterMembershipChangedSubject = "lfx.roster.membership_changed"

	// RosterGroupChangedSubject carries group created/removed/renamed messages
	RosterGroupChangedSubject = "lfx.roster.group_changed"
)

// NATS subjects for the remote peer boundary
const (
	// PeerOutboundSubject carries our subscription requests and publish
	// revocations towards the remote side
	PeerOutboundSubject = "lfx.roster.peer.outbound"

	// PeerSubscriptionAcceptedSubject is published by the remote side when
	// a contact approves our subscription request
	PeerSubscriptionAcceptedSubject = "lfx.roster.peer.subscription_accepted"

	// PeerSubscriptionRejectedSubject is published by the remote side when
	// a contact rejects our subscription request
	PeerSubscriptionRejectedSubject = "lfx.roster.peer.subscription_rejected"

	// PeerPublishRequestedSubject is published by the remote side when a
	// contact asks to see our presence
	PeerPublishRequestedSubject = "lfx.roster.peer.publish_requested"
)
