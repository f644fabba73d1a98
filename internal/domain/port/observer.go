// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
)

// ChangeObserver receives every membership change after it has been applied.
// Observers run on the roster queue and may call back into the roster with
// the context they are given. That context is only valid on the calling
// goroutine until the observer returns; work handed to another goroutine
// must derive from a context that did not come from the roster.
type ChangeObserver interface {
	MembershipChanged(ctx context.Context, event model.ChangeEvent)
}

// GroupObserver receives group lifecycle events. Observers registered on the
// notification bus that also implement GroupObserver get both streams.
type GroupObserver interface {
	GroupChanged(ctx context.Context, event model.GroupEvent)
}

// ChangeObserverFunc adapts a function to ChangeObserver
type ChangeObserverFunc func(ctx context.Context, event model.ChangeEvent)

// MembershipChanged calls f
func (f ChangeObserverFunc) MembershipChanged(ctx context.Context, event model.ChangeEvent) {
	f(ctx, event)
}
