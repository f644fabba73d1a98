// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
)

// SnapshotRepository persists roster snapshots per account
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, snapshot *model.RosterSnapshot) (uint64, error)
	// LoadSnapshot returns a NotFound error when the account has no snapshot
	LoadSnapshot(ctx context.Context, account string) (*model.RosterSnapshot, uint64, error)
}
