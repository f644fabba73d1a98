// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/infrastructure/registry"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/clock"
)

const testPeerDelay = time.Second

// eventRecorder is a ChangeObserver and GroupObserver that keeps every event
type eventRecorder struct {
	mu     sync.Mutex
	events []model.ChangeEvent
	groups []model.GroupEvent
}

func (r *eventRecorder) MembershipChanged(_ context.Context, event model.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) GroupChanged(_ context.Context, event model.GroupEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = append(r.groups, event)
}

func (r *eventRecorder) Events() []model.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ChangeEvent(nil), r.events...)
}

func (r *eventRecorder) GroupEvents() []model.GroupEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.GroupEvent(nil), r.groups...)
}

func (r *eventRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.groups = nil
}

type rosterFixture struct {
	ctx      context.Context
	registry *registry.Registry
	clock    *clock.FakeClock
	peer     *PeerSimulator
	roster   *Roster
	events   *eventRecorder
}

func newRosterFixture(t *testing.T, opts ...rosterOption) *rosterFixture {
	t.Helper()

	f := &rosterFixture{
		ctx:      context.Background(),
		registry: registry.New(),
		clock:    clock.Fake(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)),
		events:   &eventRecorder{},
	}
	f.peer = NewPeerSimulator(WithClock(f.clock), WithDelay(testPeerDelay))
	opts = append([]rosterOption{WithRemotePeer(f.peer), WithObserver(f.events)}, opts...)
	f.roster = NewRoster(f.registry, opts...)
	f.peer.Bind(f.roster)

	t.Cleanup(func() {
		f.peer.Close()
		f.roster.Close()
	})
	return f
}

// contact interns id; the fixture keeps that reference for the whole test
func (f *rosterFixture) contact(t *testing.T, id string) model.Handle {
	t.Helper()
	h, err := f.registry.Ensure(id)
	require.NoError(t, err)
	return h
}

// advance moves the fake clock and waits until the answers it triggered
// have been applied
func (f *rosterFixture) advance(t *testing.T, d time.Duration) {
	t.Helper()
	f.clock.Advance(d)
	f.sync(t)
}

// sync waits for every task queued so far
func (f *rosterFixture) sync(t *testing.T) {
	t.Helper()
	_, err := f.roster.Groups(f.ctx)
	require.NoError(t, err)
}

func (f *rosterFixture) state(t *testing.T, listOrGroup string, h model.Handle) model.MembershipState {
	t.Helper()
	state, err := f.roster.Get(f.ctx, listOrGroup, h)
	require.NoError(t, err)
	return state
}

func (f *rosterFixture) change(t *testing.T, listOrGroup string, h model.Handle, add bool, message string) {
	t.Helper()
	require.NoError(t, f.roster.RequestChange(f.ctx, listOrGroup, []model.Handle{h}, add, message))
}

// requestPublish makes the simulated peer ask for our presence and lets the
// request arrive
func (f *rosterFixture) requestPublish(t *testing.T, h model.Handle) {
	t.Helper()
	f.peer.SimulatePublishRequest(f.ctx, h, "")
	f.advance(t, testPeerDelay)
}

func ev(target model.Target, h model.Handle, from, to model.MembershipState) model.ChangeEvent {
	return model.ChangeEvent{Target: target, Handle: h, OldState: from, NewState: to}
}

var (
	publishList   = model.ListTarget(model.ListPublish)
	subscribeList = model.ListTarget(model.ListSubscribe)
	storedList    = model.ListTarget(model.ListStored)
)
