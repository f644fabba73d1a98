// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
)

// RemotePeer is the far side of the subscription protocol. Calls are made on
// the roster queue and must not block on the peer's answer; answers come
// back later through the PeerEventSink.
type RemotePeer interface {
	// SubscriptionRequested is called when handle moves to
	// subscribe:remote_pending. The answer must carry requestID so a late
	// answer to an earlier request is not applied to this one.
	SubscriptionRequested(ctx context.Context, handle model.Handle, requestID uint64, message string)
	// PublishRevoked is called when the local user withdraws publish access
	// from a member
	PublishRevoked(ctx context.Context, handle model.Handle)
}

// PeerEventSink accepts decisions and requests originating at the peer.
// Both calls are asynchronous: they are queued and applied in turn, after
// re-checking the current state.
type PeerEventSink interface {
	// SubscriptionDecided answers the request with requestID; zero answers
	// whichever request is outstanding
	SubscriptionDecided(handle model.Handle, requestID uint64, accepted bool)
	PublishRequested(handle model.Handle, message string)
}

// SubscriptionDecider decides how a simulated peer answers a subscription request
type SubscriptionDecider interface {
	Decide(ctx context.Context, handle model.Handle, message string) bool
}

// DeciderFunc adapts a function to SubscriptionDecider
type DeciderFunc func(ctx context.Context, handle model.Handle, message string) bool

// Decide calls f
func (f DeciderFunc) Decide(ctx context.Context, handle model.Handle, message string) bool {
	return f(ctx, handle, message)
}
