// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
)

// RosterReader answers membership queries. Lists and groups are addressed by
// name: "publish", "subscribe", "stored" or a group name.
type RosterReader interface {
	// Get returns the state of handle on the list or group; absent rows
	// and unknown groups report StateNone.
	Get(ctx context.Context, listOrGroup string, handle model.Handle) (model.MembershipState, error)
	// Entry returns the full row, including any pending request message
	Entry(ctx context.Context, listOrGroup string, handle model.Handle) (model.MembershipEntry, error)
	// Snapshot returns a copy of every non-none row on the list or group
	Snapshot(ctx context.Context, listOrGroup string) (map[model.Handle]model.MembershipState, error)
	// Groups returns the group names in sorted order
	Groups(ctx context.Context) ([]string, error)
	// GroupsOf returns the sorted names of the groups containing handle
	GroupsOf(ctx context.Context, handle model.Handle) ([]string, error)
	// Blocked returns the blocked handles in ascending order
	Blocked(ctx context.Context) ([]model.Handle, error)
}

// RosterWriter applies local changes to the roster
type RosterWriter interface {
	RequestChange(ctx context.Context, listOrGroup string, handles []model.Handle, add bool, message string) error
	CreateGroup(ctx context.Context, name string) error
	RemoveGroup(ctx context.Context, name string) error
	RenameGroup(ctx context.Context, oldName, newName string) error
	Block(ctx context.Context, handles []model.Handle) error
	Unblock(ctx context.Context, handles []model.Handle) error
}

// RosterReaderWriter combines the read and write sides
type RosterReaderWriter interface {
	RosterReader
	RosterWriter
}
