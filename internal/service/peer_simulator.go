// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/clock"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/log"
)

// TokenDecider accepts subscription requests whose message contains Token.
// Matching is case sensitive; an empty message never matches.
type TokenDecider struct {
	Token string
}

// Decide implements port.SubscriptionDecider
func (d TokenDecider) Decide(_ context.Context, _ model.Handle, message string) bool {
	return message != "" && strings.Contains(message, d.Token)
}

// PeerSimulator stands in for remote contacts. It answers subscription
// requests after a delay and asks for publish access again after it has been
// revoked. Answers are delivered to the bound PeerEventSink, which re-checks
// the roster state before applying them.
type PeerSimulator struct {
	clock          clock.Clock
	delay          time.Duration
	decider        port.SubscriptionDecider
	publishMessage string

	mu      sync.Mutex
	sink    port.PeerEventSink
	pending map[uint64]clock.Timer
	nextID  uint64
	closed  bool
}

// Ensure PeerSimulator implements the RemotePeer interface
var _ port.RemotePeer = (*PeerSimulator)(nil)

// peerSimulatorOption defines a function type for setting options
type peerSimulatorOption func(*PeerSimulator)

// WithClock sets the clock used to schedule answers
func WithClock(c clock.Clock) peerSimulatorOption {
	return func(p *PeerSimulator) {
		p.clock = c
	}
}

// WithDelay sets how long the simulated peer takes to answer; zero answers
// on the next queue turn
func WithDelay(d time.Duration) peerSimulatorOption {
	return func(p *PeerSimulator) {
		p.delay = d
	}
}

// WithDecider replaces the default token decider
func WithDecider(decider port.SubscriptionDecider) peerSimulatorOption {
	return func(p *PeerSimulator) {
		p.decider = decider
	}
}

// WithPublishRequestMessage sets the text of simulated publish requests
func WithPublishRequestMessage(message string) peerSimulatorOption {
	return func(p *PeerSimulator) {
		p.publishMessage = message
	}
}

// NewPeerSimulator creates a simulator; call Bind before any request arrives.
func NewPeerSimulator(opts ...peerSimulatorOption) *PeerSimulator {
	p := &PeerSimulator{
		clock:          clock.Real(),
		delay:          constants.DefaultPeerDelay,
		decider:        TokenDecider{Token: constants.DefaultAcceptToken},
		publishMessage: constants.DefaultPublishRequestMessage,
		pending:        make(map[uint64]clock.Timer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bind sets the sink receiving the simulated answers
func (p *PeerSimulator) Bind(sink port.PeerEventSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
}

// SubscriptionRequested decides now and delivers the answer after the delay.
func (p *PeerSimulator) SubscriptionRequested(ctx context.Context, handle model.Handle, requestID uint64, message string) {
	accepted := p.decider.Decide(ctx, handle, message)

	slog.DebugContext(ctx, "peer simulator received subscription request",
		"handle", handle,
		"request_id", requestID,
		"message", log.Message(message),
		"accepted", accepted,
		"delay", p.delay,
	)

	p.schedule(ctx, func(sink port.PeerEventSink) {
		sink.SubscriptionDecided(handle, requestID, accepted)
	})
}

// PublishRevoked schedules the peer asking again for our presence.
func (p *PeerSimulator) PublishRevoked(ctx context.Context, handle model.Handle) {
	slog.DebugContext(ctx, "peer simulator noticed publish revocation", "handle", handle)
	p.SimulatePublishRequest(ctx, handle, p.publishMessage)
}

// SimulatePublishRequest schedules an unprompted publish request from handle.
// An empty message is replaced by the default request text.
func (p *PeerSimulator) SimulatePublishRequest(ctx context.Context, handle model.Handle, message string) {
	if message == "" {
		message = p.publishMessage
	}
	p.schedule(ctx, func(sink port.PeerEventSink) {
		sink.PublishRequested(handle, message)
	})
}

func (p *PeerSimulator) schedule(ctx context.Context, fn func(sink port.PeerEventSink)) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	id := p.nextID
	p.nextID++
	p.pending[id] = nil
	p.mu.Unlock()

	timer := p.clock.AfterFunc(p.delay, func() {
		p.mu.Lock()
		_, ok := p.pending[id]
		delete(p.pending, id)
		sink := p.sink
		p.mu.Unlock()

		if !ok {
			return
		}
		if sink == nil {
			slog.WarnContext(ctx, "peer simulator has no sink, dropping answer")
			return
		}
		fn(sink)
	})

	p.mu.Lock()
	if _, ok := p.pending[id]; ok {
		p.pending[id] = timer
	}
	p.mu.Unlock()
}

// Pending returns the number of scheduled answers that have not fired
func (p *PeerSimulator) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Close cancels every scheduled answer
func (p *PeerSimulator) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for id, timer := range p.pending {
		if timer != nil {
			timer.Stop()
		}
		delete(p.pending, id)
	}
}
