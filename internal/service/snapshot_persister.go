// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/clock"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/errors"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/log"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/utils"
)

// RosterExporter is the part of the roster the persister needs
type RosterExporter interface {
	Export(ctx context.Context) (model.RosterState, error)
	Restore(ctx context.Context, state model.RosterState) error
}

// SnapshotPersister saves the roster to a SnapshotRepository and restores it
// at start-up. Snapshots are keyed by contact identifier, so handles are
// resolved through the registry in both directions.
type SnapshotPersister struct {
	roster   RosterExporter
	registry port.IdentityRegistry
	repo     port.SnapshotRepository
	account  string
	clock    clock.Clock
	retry    utils.RetryConfig
}

// NewSnapshotPersister creates a persister for one account
func NewSnapshotPersister(roster RosterExporter, registry port.IdentityRegistry, repo port.SnapshotRepository, account string, c clock.Clock) *SnapshotPersister {
	if c == nil {
		c = clock.Real()
	}
	retry := utils.NewRetryConfig(3, 200*time.Millisecond, 2*time.Second)
	retry.Retryable = utils.RetryServiceUnavailable
	return &SnapshotPersister{
		roster:   roster,
		registry: registry,
		repo:     repo,
		account:  account,
		clock:    c,
		retry:    retry,
	}
}

// Save exports the roster and writes it to the repository, retrying while
// the repository is unavailable.
func (p *SnapshotPersister) Save(ctx context.Context) error {
	state, err := p.roster.Export(ctx)
	if err != nil {
		return err
	}

	snapshot := p.toSnapshot(ctx, state)

	var revision uint64
	err = utils.RetryWithExponentialBackoff(ctx, p.retry, func() error {
		var errSave error
		revision, errSave = p.repo.SaveSnapshot(ctx, snapshot)
		return errSave
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to save roster snapshot",
			"error", err,
			"account", p.account,
			log.PriorityCritical(),
		)
		return err
	}

	slog.DebugContext(ctx, "roster snapshot saved",
		"account", p.account,
		"contacts", len(snapshot.Contacts),
		"revision", revision,
	)
	return nil
}

// Restore loads the account's snapshot and replays it. A missing snapshot
// leaves the roster empty and is not an error.
func (p *SnapshotPersister) Restore(ctx context.Context) error {
	snapshot, revision, err := p.repo.LoadSnapshot(ctx, p.account)
	if err != nil {
		if errors.KindOf(err) == errors.KindNotFound {
			slog.InfoContext(ctx, "no roster snapshot found, starting empty", "account", p.account)
			return nil
		}
		slog.ErrorContext(ctx, "failed to load roster snapshot", "error", err, "account", p.account)
		return err
	}

	state, handles, err := p.toState(snapshot)
	// the roster takes its own references while restoring
	defer func() {
		for _, h := range handles {
			p.registry.Unref(h)
		}
	}()
	if err != nil {
		slog.ErrorContext(ctx, "invalid roster snapshot", "error", err, "account", p.account)
		return err
	}

	if err := p.roster.Restore(ctx, state); err != nil {
		return err
	}

	slog.InfoContext(ctx, "roster snapshot restored",
		"account", p.account,
		"contacts", len(snapshot.Contacts),
		"groups", len(snapshot.Groups),
		"revision", revision,
		"saved_at", snapshot.SavedAt,
	)
	return nil
}

// Run saves a snapshot every interval until ctx is done, then saves a final
// one with a fresh context.
func (p *SnapshotPersister) Run(ctx context.Context, interval time.Duration) error {
	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			if err := p.Save(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "periodic roster snapshot failed", "error", err)
			}
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			slog.InfoContext(finalCtx, "saving final roster snapshot", "account", p.account)
			return p.Save(finalCtx)
		}
	}
}

func (p *SnapshotPersister) toSnapshot(ctx context.Context, state model.RosterState) *model.RosterSnapshot {
	snapshot := &model.RosterSnapshot{
		Account: p.account,
		SavedAt: p.clock.Now().UTC(),
		Groups:  state.Groups,
	}

	index := make(map[model.Handle]int)
	for _, entry := range state.Entries {
		i, ok := index[entry.Handle]
		if !ok {
			id, valid := p.registry.Inspect(entry.Handle)
			if !valid {
				slog.WarnContext(ctx, "skipping contact removed during snapshot", "handle", entry.Handle)
				index[entry.Handle] = -1
				continue
			}
			snapshot.Contacts = append(snapshot.Contacts, model.ContactSnapshot{ContactID: id})
			i = len(snapshot.Contacts) - 1
			index[entry.Handle] = i
		}
		if i < 0 {
			continue
		}

		contact := &snapshot.Contacts[i]
		switch {
		case entry.Target.IsGroup():
			contact.Groups = append(contact.Groups, entry.Target.Group)
		case entry.Target.List == model.ListStored:
			contact.Stored = true
		case entry.Target.List == model.ListSubscribe:
			contact.Subscribe = entry.State.String()
			contact.SubscribeMessage = entry.Message
		case entry.Target.List == model.ListPublish:
			contact.Publish = entry.State.String()
			contact.PublishMessage = entry.Message
		}
	}

	for _, h := range state.Blocked {
		if id, ok := p.registry.Inspect(h); ok {
			snapshot.Blocked = append(snapshot.Blocked, id)
		}
	}
	return snapshot
}

// toState interns every identifier of the snapshot. The returned handles
// carry one reference each, which the caller releases.
func (p *SnapshotPersister) toState(snapshot *model.RosterSnapshot) (model.RosterState, []model.Handle, error) {
	state := model.RosterState{Groups: snapshot.Groups}
	var handles []model.Handle

	ensure := func(id string) (model.Handle, error) {
		h, err := p.registry.Ensure(id)
		if err != nil {
			return 0, err
		}
		handles = append(handles, h)
		return h, nil
	}

	for _, contact := range snapshot.Contacts {
		h, err := ensure(contact.ContactID)
		if err != nil {
			return state, handles, err
		}

		subscribe, err := model.ParseMembershipState(contact.Subscribe)
		if err != nil {
			return state, handles, err
		}
		publish, err := model.ParseMembershipState(contact.Publish)
		if err != nil {
			return state, handles, err
		}

		if contact.Stored {
			state.Entries = append(state.Entries, model.MembershipEntry{Target: model.ListTarget(model.ListStored), Handle: h, State: model.StateMember})
		}
		for _, group := range contact.Groups {
			state.Entries = append(state.Entries, model.MembershipEntry{Target: model.GroupTarget(group), Handle: h, State: model.StateMember})
		}
		if subscribe != model.StateNone {
			state.Entries = append(state.Entries, model.MembershipEntry{Target: model.ListTarget(model.ListSubscribe), Handle: h, State: subscribe, Message: contact.SubscribeMessage})
		}
		if publish != model.StateNone {
			state.Entries = append(state.Entries, model.MembershipEntry{Target: model.ListTarget(model.ListPublish), Handle: h, State: publish, Message: contact.PublishMessage})
		}
	}

	for _, id := range snapshot.Blocked {
		h, err := ensure(id)
		if err != nil {
			return state, handles, err
		}
		state.Blocked = append(state.Blocked, h)
	}
	return state, handles, nil
}
