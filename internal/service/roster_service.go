// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/log"
)

// Roster is the public face of the roster subsystem. Every operation,
// including reads and peer answers, runs on one serialized queue, so no two
// operations ever observe each other half-applied.
type Roster struct {
	queue    *reactor
	engine   *transitionEngine
	bus      *notificationBus
	registry port.IdentityRegistry
	tracer   trace.Tracer
}

// Ensure Roster implements the roster ports
var (
	_ port.RosterReaderWriter = (*Roster)(nil)
	_ port.PeerEventSink      = (*Roster)(nil)
)

// rosterOption defines a function type for setting options on the roster
type rosterOption func(*rosterConfig)

type rosterConfig struct {
	peer               port.RemotePeer
	observers          []port.ChangeObserver
	reciprocate        bool
	reciprocateMessage string
}

// WithRemotePeer sets the peer informed of subscription requests and
// publish revocations
func WithRemotePeer(peer port.RemotePeer) rosterOption {
	return func(c *rosterConfig) {
		c.peer = peer
	}
}

// WithReciprocation makes an accepted subscription also count as the peer
// asking for our presence, with message as the request text
func WithReciprocation(enabled bool, message string) rosterOption {
	return func(c *rosterConfig) {
		c.reciprocate = enabled
		c.reciprocateMessage = message
	}
}

// WithObserver registers an observer before the roster accepts any work
func WithObserver(observer port.ChangeObserver) rosterOption {
	return func(c *rosterConfig) {
		c.observers = append(c.observers, observer)
	}
}

// NewRoster creates an empty roster and starts its queue. Close releases it.
func NewRoster(registry port.IdentityRegistry, opts ...rosterOption) *Roster {
	if registry == nil {
		panic("roster requires an identity registry")
	}
	cfg := rosterConfig{peer: nopPeer{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	bus := &notificationBus{}
	for _, o := range cfg.observers {
		bus.subscribe(o)
	}

	engine := newTransitionEngine(registry, bus, cfg.peer)
	engine.reciprocate = cfg.reciprocate
	engine.reciprocateMessage = cfg.reciprocateMessage

	return &Roster{
		queue:    newReactor(),
		engine:   engine,
		bus:      bus,
		registry: registry,
		tracer:   otel.Tracer(constants.ServiceName),
	}
}

// Close stops the queue after the work already queued has run.
func (r *Roster) Close() {
	r.queue.close()
}

func (r *Roster) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "roster."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func handleValues(handles []model.Handle) []int64 {
	out := make([]int64, len(handles))
	for i, h := range handles {
		out[i] = int64(h)
	}
	return out
}

// RequestChange adds or removes handles on a list or group. Subscription
// requests return as soon as the request is pending; the peer's answer
// arrives later as a change event.
func (r *Roster) RequestChange(ctx context.Context, listOrGroup string, handles []model.Handle, add bool, message string) (err error) {
	ctx, span := r.startSpan(ctx, "RequestChange",
		attribute.String("target", listOrGroup),
		attribute.Int64Slice("handles", handleValues(handles)),
		attribute.Bool("add", add),
	)
	defer func() { endSpan(span, err) }()

	slog.DebugContext(ctx, "requesting roster change",
		"target", listOrGroup,
		"handles", log.Handles(handles),
		"add", add,
		"message", log.Message(message),
	)

	target, err := model.ParseTarget(listOrGroup)
	if err != nil {
		return err
	}

	err = r.queue.do(ctx, func(ctx context.Context) error {
		return r.engine.RequestChange(ctx, target, handles, add, message)
	})
	if err != nil {
		slog.ErrorContext(ctx, "roster change rejected",
			"error", err,
			"target", listOrGroup,
			"handles", log.Handles(handles),
			"add", add,
		)
		return err
	}
	return nil
}

// Get returns the state of handle on a list or group; unknown names and
// absent rows report StateNone.
func (r *Roster) Get(ctx context.Context, listOrGroup string, handle model.Handle) (model.MembershipState, error) {
	entry, err := r.Entry(ctx, listOrGroup, handle)
	return entry.State, err
}

// Entry returns the row of handle on a list or group
func (r *Roster) Entry(ctx context.Context, listOrGroup string, handle model.Handle) (model.MembershipEntry, error) {
	target, err := model.ParseTarget(listOrGroup)
	if err != nil {
		return model.MembershipEntry{Handle: handle}, nil
	}
	var entry model.MembershipEntry
	err = r.queue.do(ctx, func(context.Context) error {
		entry = r.engine.store.entry(target, handle)
		return nil
	})
	return entry, err
}

// Snapshot returns a copy of the rows on a list or group
func (r *Roster) Snapshot(ctx context.Context, listOrGroup string) (map[model.Handle]model.MembershipState, error) {
	target, err := model.ParseTarget(listOrGroup)
	if err != nil {
		return nil, err
	}
	var snapshot map[model.Handle]model.MembershipState
	err = r.queue.do(ctx, func(context.Context) error {
		if !r.engine.store.hasTarget(target) {
			return errUnknownTarget(target)
		}
		snapshot = r.engine.store.Snapshot(target)
		return nil
	})
	return snapshot, err
}

// Groups returns the group names in sorted order
func (r *Roster) Groups(ctx context.Context) ([]string, error) {
	var names []string
	err := r.queue.do(ctx, func(context.Context) error {
		names = r.engine.store.groupNames()
		return nil
	})
	return names, err
}

// GroupsOf returns the groups containing handle
func (r *Roster) GroupsOf(ctx context.Context, handle model.Handle) ([]string, error) {
	var names []string
	err := r.queue.do(ctx, func(context.Context) error {
		names = r.engine.store.groupsOf(handle)
		return nil
	})
	return names, err
}

// Blocked returns the blocked handles
func (r *Roster) Blocked(ctx context.Context) ([]model.Handle, error) {
	var handles []model.Handle
	err := r.queue.do(ctx, func(context.Context) error {
		handles = r.engine.store.blockedHandles()
		return nil
	})
	return handles, err
}

// CreateGroup creates an empty group; an existing group is left as is
func (r *Roster) CreateGroup(ctx context.Context, name string) (err error) {
	ctx, span := r.startSpan(ctx, "CreateGroup", attribute.String("group", name))
	defer func() { endSpan(span, err) }()

	slog.DebugContext(ctx, "creating group", "group", name)
	err = r.queue.do(ctx, func(ctx context.Context) error {
		return r.engine.CreateGroup(ctx, name)
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create group", "error", err, "group", name)
	}
	return err
}

// RemoveGroup deletes a group, which must be empty
func (r *Roster) RemoveGroup(ctx context.Context, name string) (err error) {
	ctx, span := r.startSpan(ctx, "RemoveGroup", attribute.String("group", name))
	defer func() { endSpan(span, err) }()

	slog.DebugContext(ctx, "removing group", "group", name)
	err = r.queue.do(ctx, func(ctx context.Context) error {
		return r.engine.RemoveGroup(ctx, name)
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to remove group", "error", err, "group", name)
	}
	return err
}

// RenameGroup renames a group, keeping its members
func (r *Roster) RenameGroup(ctx context.Context, oldName, newName string) (err error) {
	ctx, span := r.startSpan(ctx, "RenameGroup",
		attribute.String("old_group", oldName),
		attribute.String("group", newName),
	)
	defer func() { endSpan(span, err) }()

	slog.DebugContext(ctx, "renaming group", "old_group", oldName, "group", newName)
	err = r.queue.do(ctx, func(ctx context.Context) error {
		return r.engine.RenameGroup(ctx, oldName, newName)
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to rename group", "error", err, "old_group", oldName, "group", newName)
	}
	return err
}

// Block stops handles from asking for our presence
func (r *Roster) Block(ctx context.Context, handles []model.Handle) (err error) {
	ctx, span := r.startSpan(ctx, "Block", attribute.Int64Slice("handles", handleValues(handles)))
	defer func() { endSpan(span, err) }()

	err = r.queue.do(ctx, func(ctx context.Context) error {
		return r.engine.Block(ctx, handles)
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to block contacts", "error", err, "handles", log.Handles(handles))
	}
	return err
}

// Unblock reverses Block
func (r *Roster) Unblock(ctx context.Context, handles []model.Handle) (err error) {
	ctx, span := r.startSpan(ctx, "Unblock", attribute.Int64Slice("handles", handleValues(handles)))
	defer func() { endSpan(span, err) }()

	err = r.queue.do(ctx, func(ctx context.Context) error {
		return r.engine.Unblock(ctx, handles)
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to unblock contacts", "error", err, "handles", log.Handles(handles))
	}
	return err
}

// Export returns a handle-level copy of the whole roster
func (r *Roster) Export(ctx context.Context) (model.RosterState, error) {
	var state model.RosterState
	err := r.queue.do(ctx, func(context.Context) error {
		state = r.engine.Export()
		return nil
	})
	return state, err
}

// Restore replays an exported roster, including pending requests, without
// contacting the peer
func (r *Roster) Restore(ctx context.Context, state model.RosterState) (err error) {
	ctx, span := r.startSpan(ctx, "Restore",
		attribute.Int("entries", len(state.Entries)),
		attribute.Int("groups", len(state.Groups)),
	)
	defer func() { endSpan(span, err) }()

	err = r.queue.do(ctx, func(ctx context.Context) error {
		return r.engine.Restore(ctx, state)
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to restore roster", "error", err)
	}
	return err
}

// Subscribe registers an observer for events published from now on. The
// returned function removes it.
func (r *Roster) Subscribe(ctx context.Context, observer port.ChangeObserver) (func(), error) {
	var id uint64
	err := r.queue.do(ctx, func(context.Context) error {
		id = r.bus.subscribe(observer)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return func() {
		_ = r.queue.post(context.Background(), func(context.Context) {
			r.bus.unsubscribe(id)
		})
	}, nil
}

// SubscriptionDecided queues the peer's answer to a subscription request.
// A stale handle, or a request no longer outstanding, makes it a no-op.
func (r *Roster) SubscriptionDecided(handle model.Handle, requestID uint64, accepted bool) {
	r.postPeerEvent(handle, func(ctx context.Context) {
		if r.engine.SubscriptionDecided(ctx, handle, requestID, accepted) {
			slog.DebugContext(ctx, "subscription decision applied", "handle", handle, "request_id", requestID, "accepted", accepted)
		}
	})
}

// PublishRequested queues a peer's request to see our presence
func (r *Roster) PublishRequested(handle model.Handle, message string) {
	r.postPeerEvent(handle, func(ctx context.Context) {
		if r.engine.PublishRequested(ctx, handle, message) {
			slog.DebugContext(ctx, "publish request applied", "handle", handle, "message", log.Message(message))
		}
	})
}

// postPeerEvent keeps handle alive until the queued event has run.
func (r *Roster) postPeerEvent(handle model.Handle, fn func(ctx context.Context)) {
	ctx := context.Background()
	if err := r.registry.Ref(handle); err != nil {
		slog.DebugContext(ctx, "dropping peer event for invalid handle", "handle", handle)
		return
	}
	err := r.queue.post(ctx, func(ctx context.Context) {
		defer r.registry.Unref(handle)
		fn(ctx)
	})
	if err != nil {
		r.registry.Unref(handle)
		slog.WarnContext(ctx, "dropping peer event", "error", err, "handle", handle)
	}
}

// nopPeer is used when no peer is configured
type nopPeer struct{}

func (nopPeer) SubscriptionRequested(ctx context.Context, handle model.Handle, _ uint64, _ string) {
	slog.WarnContext(ctx, "no remote peer configured, subscription request stays pending", "handle", handle)
}

func (nopPeer) PublishRevoked(context.Context, model.Handle) {}
