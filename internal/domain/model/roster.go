// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package model defines the domain models and entities for the roster service.
package model

import (
	"fmt"
	"strings"

	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/errors"
)

// Handle is an interned contact identifier issued by the identity registry
type Handle uint32

// ListKind is one of the three system lists
type ListKind int

// ListKind constants; the zero value is not a list
const (
	ListPublish ListKind = iota + 1
	ListSubscribe
	ListStored
)

// String returns the list name used on the wire and in logs
func (k ListKind) String() string {
	switch k {
	case ListPublish:
		return constants.ListNamePublish
	case ListSubscribe:
		return constants.ListNameSubscribe
	case ListStored:
		return constants.ListNameStored
	default:
		return fmt.Sprintf("list(%d)", int(k))
	}
}

// AllowsPending reports whether the list admits the pending states
func (k ListKind) AllowsPending() bool {
	return k == ListPublish || k == ListSubscribe
}

// Target addresses either a system list or a named group.
type Target struct {
	List  ListKind
	Group string
}

// ListTarget returns the target for a system list
func ListTarget(kind ListKind) Target {
	return Target{List: kind}
}

// GroupTarget returns the target for a named group
func GroupTarget(name string) Target {
	return Target{Group: name}
}

// IsGroup reports whether t addresses a group
func (t Target) IsGroup() bool {
	return t.Group != ""
}

// String returns the list or group name
func (t Target) String() string {
	if t.IsGroup() {
		return t.Group
	}
	return t.List.String()
}

// ParseTarget maps a list-or-group name to a Target. The three system list
// names are reserved; every other non-blank name addresses a group. Whether
// the group exists is decided by the caller.
func ParseTarget(name string) (Target, error) {
	if strings.TrimSpace(name) == "" {
		return Target{}, errors.NewInvalidArgument("list or group name is required")
	}
	switch name {
	case constants.ListNamePublish:
		return ListTarget(ListPublish), nil
	case constants.ListNameSubscribe:
		return ListTarget(ListSubscribe), nil
	case constants.ListNameStored:
		return ListTarget(ListStored), nil
	}
	return GroupTarget(name), nil
}

// IsReservedName reports whether name belongs to a system list
func IsReservedName(name string) bool {
	switch name {
	case constants.ListNamePublish, constants.ListNameSubscribe, constants.ListNameStored:
		return true
	}
	return false
}

// MembershipState is the state of one handle on one list or group
type MembershipState int

// MembershipState constants; StateNone is never stored
const (
	StateNone MembershipState = iota
	StateMember
	StateLocalPending
	StateRemotePending
)

// String returns the snake_case name of the state
func (s MembershipState) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateMember:
		return "member"
	case StateLocalPending:
		return "local_pending"
	case StateRemotePending:
		return "remote_pending"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsPending reports whether the state awaits a decision
func (s MembershipState) IsPending() bool {
	return s == StateLocalPending || s == StateRemotePending
}

// ParseMembershipState is the inverse of MembershipState.String
func ParseMembershipState(raw string) (MembershipState, error) {
	switch raw {
	case "", "none":
		return StateNone, nil
	case "member":
		return StateMember, nil
	case "local_pending":
		return StateLocalPending, nil
	case "remote_pending":
		return StateRemotePending, nil
	}
	return StateNone, errors.NewInvalidArgument(fmt.Sprintf("unknown membership state %q", raw))
}

// MembershipEntry is one row of the membership table. Message is only kept
// while the state is pending.
type MembershipEntry struct {
	Target  Target
	Handle  Handle
	State   MembershipState
	Message string
}

// RosterState is a handle-level export of the whole roster, used to
// persist and restore it.
type RosterState struct {
	Entries []MembershipEntry
	Groups  []string
	Blocked []Handle
}
