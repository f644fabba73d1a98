// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/port"
)

// notificationBus fans change events out to registered observers in
// registration order. It keeps no history: an observer only sees events
// published after it was added.
//
// Deliveries go through a FIFO drained only by the outermost publisher. An
// observer that changes the roster while an event is being delivered has its
// events queued behind the ones already pending, so every observer sees
// events in the order the changes were applied.
type notificationBus struct {
	observers []registration
	nextID    uint64

	pending  []func()
	draining bool
}

type registration struct {
	id       uint64
	observer port.ChangeObserver
}

// subscribe adds an observer and returns the id that removes it.
func (b *notificationBus) subscribe(observer port.ChangeObserver) uint64 {
	b.nextID++
	b.observers = append(b.observers, registration{id: b.nextID, observer: observer})
	return b.nextID
}

func (b *notificationBus) unsubscribe(id uint64) bool {
	for i, r := range b.observers {
		if r.id == id {
			b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
			return true
		}
	}
	return false
}

// enqueue queues delivery of event to the current observers.
func (b *notificationBus) enqueue(ctx context.Context, event model.ChangeEvent) {
	slog.DebugContext(ctx, "membership changed",
		"target", event.Target.String(),
		"handle", event.Handle,
		"old_state", event.OldState.String(),
		"new_state", event.NewState.String(),
	)
	for _, r := range b.observers {
		b.pending = append(b.pending, func() { r.observer.MembershipChanged(ctx, event) })
	}
}

func (b *notificationBus) enqueueGroup(ctx context.Context, event model.GroupEvent) {
	slog.DebugContext(ctx, "group changed",
		"action", event.Action,
		"group", event.Name,
		"old_group", event.OldName,
	)
	for _, r := range b.observers {
		if g, ok := r.observer.(port.GroupObserver); ok {
			b.pending = append(b.pending, func() { g.GroupChanged(ctx, event) })
		}
	}
}

// flush delivers queued events in order. A nested call made by an observer
// returns at once and leaves its events to the outer flush.
func (b *notificationBus) flush(ctx context.Context) {
	if b.draining {
		return
	}
	b.draining = true
	defer func() { b.draining = false }()

	for len(b.pending) > 0 {
		fn := b.pending[0]
		b.pending[0] = nil
		b.pending = b.pending[1:]
		b.deliver(ctx, fn)
	}
	b.pending = nil
}

// deliver isolates observer panics from the rest of the dispatch.
func (b *notificationBus) deliver(ctx context.Context, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			slog.ErrorContext(ctx, "observer panicked", "panic", p)
		}
	}()
	fn()
}
