// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

// MembershipAction classifies a change event by its resulting state
type MembershipAction string

// MembershipAction constants
const (
	// ActionAdded is emitted when a handle becomes a member
	ActionAdded MembershipAction = "added"
	// ActionRemoved is emitted when a handle returns to none
	ActionRemoved MembershipAction = "removed"
	// ActionPending is emitted when a handle enters a pending state
	ActionPending MembershipAction = "pending"
)

// ChangeEvent records one applied transition of one handle on one list or group
type ChangeEvent struct {
	Target   Target
	Handle   Handle
	OldState MembershipState
	NewState MembershipState
	// Message carries the request text for pending states
	Message string
}

// Action returns the action derived from the new state
func (e ChangeEvent) Action() MembershipAction {
	switch {
	case e.NewState == StateNone:
		return ActionRemoved
	case e.NewState.IsPending():
		return ActionPending
	default:
		return ActionAdded
	}
}

// GroupAction is the kind of a group lifecycle event
type GroupAction string

// GroupAction constants
const (
	GroupCreated GroupAction = "created"
	GroupRemoved GroupAction = "removed"
	GroupRenamed GroupAction = "renamed"
)

// GroupEvent records a group being created, removed or renamed
type GroupEvent struct {
	Action GroupAction
	Name   string
	// OldName is set for renames
	OldName string
}
