// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/errors"
)

// transaction collects the notifications of one transition. They are
// dispatched only once every mutation of the cascade has been applied.
type transaction struct {
	notify []func(ctx context.Context)
	after  []func(ctx context.Context)
}

// transitionEngine validates and applies membership transitions. It is the
// only writer of the membership store and runs exclusively on the roster
// queue. Validation always completes before the first mutation.
type transitionEngine struct {
	store    *membershipStore
	registry port.IdentityRegistry
	bus      *notificationBus
	peer     port.RemotePeer

	// requests holds the id of the outstanding subscription request of each
	// subscribe:remote_pending handle. Restored requests have none.
	requests      map[model.Handle]uint64
	lastRequestID uint64

	// reciprocate treats an accepted subscription as the peer also asking
	// for our presence, when nothing is known about that yet
	reciprocate        bool
	reciprocateMessage string
}

func newTransitionEngine(registry port.IdentityRegistry, bus *notificationBus, peer port.RemotePeer) *transitionEngine {
	return &transitionEngine{
		store:    newMembershipStore(registry),
		registry: registry,
		bus:      bus,
		peer:     peer,
		requests: make(map[model.Handle]uint64),
	}
}

func (e *transitionEngine) set(tx *transaction, t model.Target, h model.Handle, state model.MembershipState, message string) error {
	old := e.store.Get(t, h)
	changed, err := e.store.Set(t, h, state, message)
	if err != nil {
		return err
	}
	if t == model.ListTarget(model.ListSubscribe) {
		delete(e.requests, h)
	}
	if changed {
		if !state.IsPending() {
			message = ""
		}
		e.record(tx, model.ChangeEvent{Target: t, Handle: h, OldState: old, NewState: state, Message: message})
	}
	return nil
}

func (e *transitionEngine) clear(tx *transaction, t model.Target, h model.Handle) {
	old := e.store.Get(t, h)
	if t == model.ListTarget(model.ListSubscribe) {
		delete(e.requests, h)
	}
	if e.store.Clear(t, h) {
		e.record(tx, model.ChangeEvent{Target: t, Handle: h, OldState: old, NewState: model.StateNone})
	}
}

func (e *transitionEngine) record(tx *transaction, event model.ChangeEvent) {
	tx.notify = append(tx.notify, func(ctx context.Context) {
		e.bus.enqueue(ctx, event)
	})
}

func (e *transitionEngine) recordGroup(tx *transaction, event model.GroupEvent) {
	tx.notify = append(tx.notify, func(ctx context.Context) {
		e.bus.enqueueGroup(ctx, event)
	})
}

func (e *transitionEngine) commit(ctx context.Context, tx *transaction) {
	for _, fn := range tx.notify {
		fn(ctx)
	}
	e.bus.flush(ctx)
	for _, fn := range tx.after {
		fn(ctx)
	}
}

func (e *transitionEngine) hold(handles []model.Handle) (func(), error) {
	held := make([]model.Handle, 0, len(handles))
	release := func() {
		for _, h := range held {
			e.registry.Unref(h)
		}
	}
	for _, h := range handles {
		if err := e.registry.Ref(h); err != nil {
			release()
			return nil, err
		}
		held = append(held, h)
	}
	return release, nil
}

func (e *transitionEngine) validateHandles(handles []model.Handle) error {
	if len(handles) == 0 {
		return errors.NewInvalidArgument("at least one handle is required")
	}
	for _, h := range handles {
		if !e.registry.IsValid(h) {
			return errors.NewInvalidArgument(fmt.Sprintf("invalid handle %d", h))
		}
	}
	return nil
}

// RequestChange adds or removes handles on a list or group.
func (e *transitionEngine) RequestChange(ctx context.Context, t model.Target, handles []model.Handle, add bool, message string) error {
	if !e.store.hasTarget(t) {
		return errUnknownTarget(t)
	}
	if err := e.validateHandles(handles); err != nil {
		return err
	}
	handles = dedupe(handles)

	// observers may still inspect handles whose last row this call clears
	release, err := e.hold(handles)
	if err != nil {
		return err
	}
	defer release()

	if t == model.ListTarget(model.ListPublish) && add {
		for _, h := range handles {
			if state := e.store.Get(t, h); state != model.StateLocalPending && state != model.StateMember {
				return errors.NewPermissionDenied(fmt.Sprintf("handle %d has not requested publish access", h))
			}
		}
	}

	tx := &transaction{}
	for _, h := range handles {
		var err error
		switch {
		case t.IsGroup():
			err = e.applyGroup(tx, t, h, add)
		case t.List == model.ListStored:
			err = e.applyStored(tx, h, add)
		case t.List == model.ListSubscribe:
			err = e.applySubscribe(tx, h, add, message)
		case t.List == model.ListPublish:
			err = e.applyPublish(tx, h, add)
		}
		if err != nil {
			// only reachable if the registry invalidated a handle under us
			slog.ErrorContext(ctx, "transition aborted", "error", err, "target", t.String(), "handle", h)
			e.commit(ctx, tx)
			return errors.NewUnexpected("transition aborted", err)
		}
	}
	e.commit(ctx, tx)
	return nil
}

func (e *transitionEngine) applyStored(tx *transaction, h model.Handle, add bool) error {
	if add {
		return e.set(tx, model.ListTarget(model.ListStored), h, model.StateMember, "")
	}
	e.cascadeRemove(tx, h)
	return nil
}

// cascadeRemove drops h from publish, subscribe, every group and finally
// stored. Outstanding peer decisions for h become no-ops.
func (e *transitionEngine) cascadeRemove(tx *transaction, h model.Handle) {
	e.clear(tx, model.ListTarget(model.ListPublish), h)
	e.clear(tx, model.ListTarget(model.ListSubscribe), h)
	for _, name := range e.store.groupsOf(h) {
		e.clear(tx, model.GroupTarget(name), h)
	}
	e.clear(tx, model.ListTarget(model.ListStored), h)
}

func (e *transitionEngine) applyGroup(tx *transaction, t model.Target, h model.Handle, add bool) error {
	if !add {
		e.clear(tx, t, h)
		return nil
	}
	if err := e.set(tx, model.ListTarget(model.ListStored), h, model.StateMember, ""); err != nil {
		return err
	}
	return e.set(tx, t, h, model.StateMember, "")
}

func (e *transitionEngine) applySubscribe(tx *transaction, h model.Handle, add bool, message string) error {
	subscribe := model.ListTarget(model.ListSubscribe)
	state := e.store.Get(subscribe, h)

	if !add {
		e.clear(tx, subscribe, h)
		return nil
	}
	if state == model.StateMember || state == model.StateRemotePending {
		return nil
	}
	if err := e.set(tx, model.ListTarget(model.ListStored), h, model.StateMember, ""); err != nil {
		return err
	}
	if err := e.set(tx, subscribe, h, model.StateRemotePending, message); err != nil {
		return err
	}
	e.lastRequestID++
	requestID := e.lastRequestID
	e.requests[h] = requestID
	tx.after = append(tx.after, func(ctx context.Context) {
		e.peer.SubscriptionRequested(ctx, h, requestID, message)
	})
	return nil
}

func (e *transitionEngine) applyPublish(tx *transaction, h model.Handle, add bool) error {
	publish := model.ListTarget(model.ListPublish)
	state := e.store.Get(publish, h)

	if add {
		if state == model.StateLocalPending {
			return e.set(tx, publish, h, model.StateMember, "")
		}
		return nil
	}

	switch state {
	case model.StateLocalPending:
		e.clear(tx, publish, h)
	case model.StateMember:
		e.clear(tx, publish, h)
		tx.after = append(tx.after, func(ctx context.Context) {
			e.peer.PublishRevoked(ctx, h)
		})
	}
	return nil
}

// PublishRequested applies a peer's request to see our presence. Requests
// from blocked contacts, stale handles, or contacts that already have a
// publish row are dropped.
func (e *transitionEngine) PublishRequested(ctx context.Context, h model.Handle, message string) bool {
	publish := model.ListTarget(model.ListPublish)
	switch {
	case !e.registry.IsValid(h):
		return false
	case e.store.isBlocked(h):
		slog.DebugContext(ctx, "dropping publish request from blocked contact", "handle", h)
		return false
	case e.store.Get(publish, h) != model.StateNone:
		return false
	}

	tx := &transaction{}
	err := e.set(tx, model.ListTarget(model.ListStored), h, model.StateMember, "")
	if err == nil {
		err = e.set(tx, publish, h, model.StateLocalPending, message)
	}
	e.commit(ctx, tx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to apply publish request", "error", err, "handle", h)
		return false
	}
	return true
}

// SubscriptionDecided applies the peer's answer to a subscription request.
// It only acts while that request is still outstanding. A zero requestID
// answers whichever request is outstanding.
func (e *transitionEngine) SubscriptionDecided(ctx context.Context, h model.Handle, requestID uint64, accepted bool) bool {
	subscribe := model.ListTarget(model.ListSubscribe)
	if e.store.Get(subscribe, h) != model.StateRemotePending {
		slog.DebugContext(ctx, "ignoring stale subscription decision", "handle", h, "accepted", accepted)
		return false
	}
	if current, ok := e.requests[h]; requestID != 0 && ok && current != requestID {
		slog.DebugContext(ctx, "ignoring decision for a superseded subscription request",
			"handle", h,
			"request_id", requestID,
			"current_request_id", current,
			"accepted", accepted,
		)
		return false
	}

	tx := &transaction{}
	if accepted {
		err := e.set(tx, subscribe, h, model.StateMember, "")
		publish := model.ListTarget(model.ListPublish)
		if err == nil && e.reciprocate && !e.store.isBlocked(h) && e.store.Get(publish, h) == model.StateNone {
			err = e.set(tx, publish, h, model.StateLocalPending, e.reciprocateMessage)
		}
		if err != nil {
			e.commit(ctx, tx)
			slog.ErrorContext(ctx, "failed to apply subscription acceptance", "error", err, "handle", h)
			return false
		}
	} else {
		e.clear(tx, subscribe, h)
	}
	e.commit(ctx, tx)
	return true
}

func errUnknownTarget(t model.Target) error {
	return errors.NewInvalidArgument(fmt.Sprintf("unknown list or group %q", t.String()))
}

func validateGroupName(name string) error {
	if name == "" {
		return errors.NewInvalidArgument("group name is required")
	}
	if model.IsReservedName(name) {
		return errors.NewInvalidArgument(fmt.Sprintf("%q is a list name, not a group", name))
	}
	return nil
}

// CreateGroup creates an empty group; creating an existing group is a no-op.
func (e *transitionEngine) CreateGroup(ctx context.Context, name string) error {
	if err := validateGroupName(name); err != nil {
		return err
	}
	if !e.store.createGroup(name) {
		return nil
	}
	tx := &transaction{}
	e.recordGroup(tx, model.GroupEvent{Action: model.GroupCreated, Name: name})
	e.commit(ctx, tx)
	return nil
}

// RemoveGroup deletes an empty group.
func (e *transitionEngine) RemoveGroup(ctx context.Context, name string) error {
	if err := validateGroupName(name); err != nil {
		return err
	}
	if !e.store.hasGroup(name) {
		return errors.NewInvalidArgument(fmt.Sprintf("unknown group %q", name))
	}
	if !e.store.deleteGroup(name) {
		return errors.NewNotAvailable(fmt.Sprintf("group %q is not empty", name))
	}
	tx := &transaction{}
	e.recordGroup(tx, model.GroupEvent{Action: model.GroupRemoved, Name: name})
	e.commit(ctx, tx)
	return nil
}

// RenameGroup moves every member of oldName to newName.
func (e *transitionEngine) RenameGroup(ctx context.Context, oldName, newName string) error {
	if err := validateGroupName(oldName); err != nil {
		return err
	}
	if err := validateGroupName(newName); err != nil {
		return err
	}
	if !e.store.hasGroup(oldName) {
		return errors.NewInvalidArgument(fmt.Sprintf("unknown group %q", oldName))
	}
	if oldName == newName {
		return nil
	}
	if e.store.hasGroup(newName) {
		return errors.NewNotAvailable(fmt.Sprintf("group %q already exists", newName))
	}

	members := slices.Sorted(maps.Keys(e.store.Snapshot(model.GroupTarget(oldName))))
	e.store.renameGroup(oldName, newName)

	tx := &transaction{}
	e.recordGroup(tx, model.GroupEvent{Action: model.GroupRenamed, Name: newName, OldName: oldName})
	for _, h := range members {
		e.record(tx, model.ChangeEvent{Target: model.GroupTarget(oldName), Handle: h, OldState: model.StateMember, NewState: model.StateNone})
		e.record(tx, model.ChangeEvent{Target: model.GroupTarget(newName), Handle: h, OldState: model.StateNone, NewState: model.StateMember})
	}
	e.commit(ctx, tx)
	return nil
}

// Block adds handles to the blocked set. Blocking does not touch any list.
func (e *transitionEngine) Block(ctx context.Context, handles []model.Handle) error {
	if err := e.validateHandles(handles); err != nil {
		return err
	}
	for _, h := range dedupe(handles) {
		changed, err := e.store.block(h)
		if err != nil {
			return errors.NewUnexpected("failed to block contact", err)
		}
		if changed {
			slog.DebugContext(ctx, "contact blocked", "handle", h)
		}
	}
	return nil
}

// Unblock removes handles from the blocked set.
func (e *transitionEngine) Unblock(ctx context.Context, handles []model.Handle) error {
	if err := e.validateHandles(handles); err != nil {
		return err
	}
	for _, h := range dedupe(handles) {
		if e.store.unblock(h) {
			slog.DebugContext(ctx, "contact unblocked", "handle", h)
		}
	}
	return nil
}

// Export returns every row of the roster, ordered by handle then target.
func (e *transitionEngine) Export() model.RosterState {
	state := model.RosterState{
		Groups:  e.store.groupNames(),
		Blocked: e.store.blockedHandles(),
	}
	for _, h := range e.store.handles() {
		for _, kind := range []model.ListKind{model.ListStored, model.ListSubscribe, model.ListPublish} {
			if entry := e.store.entry(model.ListTarget(kind), h); entry.State != model.StateNone {
				state.Entries = append(state.Entries, entry)
			}
		}
		for _, name := range e.store.groupsOf(h) {
			state.Entries = append(state.Entries, model.MembershipEntry{Target: model.GroupTarget(name), Handle: h, State: model.StateMember})
		}
	}
	return state
}

func validateRestoredEntry(entry model.MembershipEntry) error {
	t := entry.Target
	switch {
	case entry.State == model.StateNone:
		return nil
	case t.IsGroup(), t.List == model.ListStored:
		if entry.State != model.StateMember {
			return errors.NewInvalidArgument(fmt.Sprintf("%s cannot hold %s", t.String(), entry.State))
		}
	case t.List == model.ListSubscribe:
		if entry.State == model.StateLocalPending {
			return errors.NewInvalidArgument("subscribe cannot hold local_pending")
		}
	case t.List == model.ListPublish:
		if entry.State == model.StateRemotePending {
			return errors.NewInvalidArgument("publish cannot hold remote_pending")
		}
	default:
		return errors.NewInvalidArgument(fmt.Sprintf("unknown list %s", t.List))
	}
	return nil
}

// Restore replays an exported roster without involving the peer. Pending
// states and their messages are restored as they were. Every entry is
// validated before anything is applied.
func (e *transitionEngine) Restore(ctx context.Context, state model.RosterState) error {
	groups := make(map[string]bool, len(state.Groups))
	for _, name := range state.Groups {
		if err := validateGroupName(name); err != nil {
			return err
		}
		groups[name] = true
	}
	for _, entry := range state.Entries {
		if !e.registry.IsValid(entry.Handle) {
			return errors.NewInvalidArgument(fmt.Sprintf("invalid handle %d", entry.Handle))
		}
		if entry.Target.IsGroup() && !groups[entry.Target.Group] && !e.store.hasGroup(entry.Target.Group) {
			return errors.NewInvalidArgument(fmt.Sprintf("unknown group %q", entry.Target.Group))
		}
		if err := validateRestoredEntry(entry); err != nil {
			return err
		}
	}
	for _, h := range state.Blocked {
		if !e.registry.IsValid(h) {
			return errors.NewInvalidArgument(fmt.Sprintf("invalid handle %d", h))
		}
	}

	tx := &transaction{}
	for _, name := range state.Groups {
		if e.store.createGroup(name) {
			e.recordGroup(tx, model.GroupEvent{Action: model.GroupCreated, Name: name})
		}
	}

	// stored rows first so the cascade invariant holds at every step
	entries := slices.Clone(state.Entries)
	slices.SortStableFunc(entries, func(a, b model.MembershipEntry) int {
		return restoreRank(a.Target) - restoreRank(b.Target)
	})

	var err error
	for _, entry := range entries {
		if entry.State == model.StateNone {
			continue
		}
		if entry.Target != model.ListTarget(model.ListStored) {
			if err = e.set(tx, model.ListTarget(model.ListStored), entry.Handle, model.StateMember, ""); err != nil {
				break
			}
		}
		if err = e.set(tx, entry.Target, entry.Handle, entry.State, entry.Message); err != nil {
			break
		}
	}
	if err == nil {
		for _, h := range state.Blocked {
			if _, err = e.store.block(h); err != nil {
				break
			}
		}
	}
	e.commit(ctx, tx)
	if err != nil {
		return errors.NewUnexpected("roster restore aborted", err)
	}
	return nil
}

func restoreRank(t model.Target) int {
	switch {
	case t == model.ListTarget(model.ListStored):
		return 0
	case t.IsGroup():
		return 1
	case t.List == model.ListSubscribe:
		return 2
	default:
		return 3
	}
}

func dedupe(handles []model.Handle) []model.Handle {
	seen := make(map[model.Handle]struct{}, len(handles))
	out := make([]model.Handle, 0, len(handles))
	for _, h := range handles {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
