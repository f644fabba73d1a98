// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/akamensky/base58"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-roster-service/pkg/errors"
)

type snapshotStorage struct {
	client *NATSClient
}

// snapshotKey encodes the account so any identifier yields a valid KV key
func snapshotKey(account string) string {
	return fmt.Sprintf(constants.KVSnapshotKeyPrefix, base58.Encode([]byte(account)))
}

// SaveSnapshot stores the snapshot under its account and returns the revision
func (s *snapshotStorage) SaveSnapshot(ctx context.Context, snapshot *model.RosterSnapshot) (uint64, error) {
	if snapshot == nil || snapshot.Account == "" {
		return 0, errs.NewInvalidArgument("snapshot account is required")
	}

	slog.DebugContext(ctx, "nats storage: saving roster snapshot",
		"account", snapshot.Account,
		"contacts", len(snapshot.Contacts),
	)

	kv, err := s.bucket()
	if err != nil {
		return 0, err
	}

	data, err := msgpack.Marshal(snapshot)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode roster snapshot", "error", err, "account", snapshot.Account)
		return 0, errs.NewUnexpected("failed to encode roster snapshot", err)
	}

	rev, err := kv.Put(ctx, snapshotKey(snapshot.Account), data)
	if err != nil {
		slog.ErrorContext(ctx, "failed to save roster snapshot", "error", err, "account", snapshot.Account)
		return 0, errs.NewServiceUnavailable("failed to save roster snapshot", err)
	}

	slog.DebugContext(ctx, "nats storage: roster snapshot saved",
		"account", snapshot.Account,
		"revision", rev,
		"size", len(data),
	)
	return rev, nil
}

// LoadSnapshot returns the latest snapshot of account
func (s *snapshotStorage) LoadSnapshot(ctx context.Context, account string) (*model.RosterSnapshot, uint64, error) {
	if account == "" {
		return nil, 0, errs.NewInvalidArgument("account is required")
	}

	slog.DebugContext(ctx, "nats storage: loading roster snapshot", "account", account)

	kv, err := s.bucket()
	if err != nil {
		return nil, 0, err
	}

	entry, err := kv.Get(ctx, snapshotKey(account))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			slog.DebugContext(ctx, "roster snapshot not found", "account", account)
			return nil, 0, errs.NewNotFound("roster snapshot not found")
		}
		slog.ErrorContext(ctx, "failed to load roster snapshot", "error", err, "account", account)
		return nil, 0, errs.NewServiceUnavailable("failed to load roster snapshot", err)
	}

	snapshot := &model.RosterSnapshot{}
	if err := msgpack.Unmarshal(entry.Value(), snapshot); err != nil {
		slog.ErrorContext(ctx, "failed to decode roster snapshot", "error", err, "account", account)
		return nil, 0, errs.NewUnexpected("failed to decode roster snapshot", err)
	}

	return snapshot, entry.Revision(), nil
}

func (s *snapshotStorage) bucket() (jetstream.KeyValue, error) {
	kv, exists := s.client.kvStore[constants.KVBucketNameRosterSnapshots]
	if !exists || kv == nil {
		return nil, errs.NewServiceUnavailable("KV bucket not available")
	}
	return kv, nil
}

// NewSnapshotRepository creates a SnapshotRepository backed by the
// roster-snapshots KV bucket
func NewSnapshotRepository(client *NATSClient) port.SnapshotRepository {
	return &snapshotStorage{
		client: client,
	}
}
