// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"time"

	"github.com/google/uuid"
)

// RosterEventMessage is the NATS message schema for membership changes
type RosterEventMessage struct {
	ID        string           `json:"id"`
	Action    MembershipAction `json:"action"`
	Target    string           `json:"target"`
	ContactID string           `json:"contact_id"`
	OldState  string           `json:"old_state"`
	NewState  string           `json:"new_state"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewRosterEventMessage builds the message for a change event. contactID is
// the identifier the handle was interned from.
func NewRosterEventMessage(event ChangeEvent, contactID string, now time.Time) RosterEventMessage {
	return RosterEventMessage{
		ID:        uuid.NewString(),
		Action:    event.Action(),
		Target:    event.Target.String(),
		ContactID: contactID,
		OldState:  event.OldState.String(),
		NewState:  event.NewState.String(),
		Message:   event.Message,
		Timestamp: now.UTC(),
	}
}

// GroupEventMessage is the NATS message schema for group lifecycle changes
type GroupEventMessage struct {
	ID        string      `json:"id"`
	Action    GroupAction `json:"action"`
	Name      string      `json:"name"`
	OldName   string      `json:"old_name,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewGroupEventMessage builds the message for a group event
func NewGroupEventMessage(event GroupEvent, now time.Time) GroupEventMessage {
	return GroupEventMessage{
		ID:        uuid.NewString(),
		Action:    event.Action,
		Name:      event.Name,
		OldName:   event.OldName,
		Timestamp: now.UTC(),
	}
}

// PeerAction is the kind of an outbound request to the remote peer
type PeerAction string

// PeerAction constants
const (
	// PeerActionSubscriptionRequested asks the peer to let us see their presence
	PeerActionSubscriptionRequested PeerAction = "subscription_requested"
	// PeerActionPublishRevoked tells the peer they may no longer see our presence
	PeerActionPublishRevoked PeerAction = "publish_revoked"
)

// PeerRequestMessage is published to the remote peer
type PeerRequestMessage struct {
	Action    PeerAction `json:"action"`
	ContactID string     `json:"contact_id"`
	RequestID uint64     `json:"request_id,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// PeerEventMessage is received from the remote peer on the inbound subjects.
// Subscription answers echo the request_id of the request they answer.
type PeerEventMessage struct {
	ContactID string `json:"contact_id"`
	RequestID uint64 `json:"request_id,omitempty"`
	Message   string `json:"message,omitempty"`
}
