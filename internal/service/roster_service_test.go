// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/errors"
)

func TestRoster_AcceptedSubscription(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")
	const message = "please may I see your presence?"

	f.change(t, "subscribe", bob, true, message)

	assert.Equal(t, model.StateRemotePending, f.state(t, "subscribe", bob))
	assert.Equal(t, model.StateMember, f.state(t, "stored", bob))

	entry, err := f.roster.Entry(f.ctx, "subscribe", bob)
	require.NoError(t, err)
	assert.Equal(t, message, entry.Message)

	pending := ev(subscribeList, bob, model.StateNone, model.StateRemotePending)
	pending.Message = message
	assert.Equal(t, []model.ChangeEvent{
		ev(storedList, bob, model.StateNone, model.StateMember),
		pending,
	}, f.events.Events())

	f.advance(t, testPeerDelay-time.Millisecond)
	assert.Equal(t, model.StateRemotePending, f.state(t, "subscribe", bob))

	f.advance(t, time.Millisecond)
	assert.Equal(t, model.StateMember, f.state(t, "subscribe", bob))
	assert.Equal(t, model.StateMember, f.state(t, "stored", bob))

	events := f.events.Events()
	require.Len(t, events, 3)
	assert.Equal(t, ev(subscribeList, bob, model.StateRemotePending, model.StateMember), events[2])

	// the pending message is dropped once the request is answered
	entry, err = f.roster.Entry(f.ctx, "subscribe", bob)
	require.NoError(t, err)
	assert.Empty(t, entry.Message)
}

func TestRoster_RejectedSubscription(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")

	f.change(t, "subscribe", bob, true, "let me see your presence")
	assert.Equal(t, model.StateRemotePending, f.state(t, "subscribe", bob))

	f.advance(t, testPeerDelay)

	assert.Equal(t, model.StateNone, f.state(t, "subscribe", bob))
	assert.Equal(t, model.StateMember, f.state(t, "stored", bob))

	events := f.events.Events()
	require.Len(t, events, 3)
	assert.Equal(t, ev(subscribeList, bob, model.StateRemotePending, model.StateNone), events[2])
}

func TestRoster_PublishGrant(t *testing.T) {
	f := newRosterFixture(t)
	wim := f.contact(t, "wim@example.com")

	f.requestPublish(t, wim)
	require.Equal(t, model.StateLocalPending, f.state(t, "publish", wim))
	assert.Equal(t, model.StateMember, f.state(t, "stored", wim))

	entry, err := f.roster.Entry(f.ctx, "publish", wim)
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultPublishRequestMessage, entry.Message)

	f.events.Reset()
	f.change(t, "publish", wim, true, "")

	assert.Equal(t, model.StateMember, f.state(t, "publish", wim))
	assert.Equal(t, []model.ChangeEvent{
		ev(publishList, wim, model.StateLocalPending, model.StateMember),
	}, f.events.Events())
}

func TestRoster_PublishAuthorization(t *testing.T) {
	t.Run("no pending request is denied", func(t *testing.T) {
		f := newRosterFixture(t)
		helen := f.contact(t, "helen@example.com")

		err := f.roster.RequestChange(f.ctx, "publish", []model.Handle{helen}, true, "")
		require.Error(t, err)
		assert.Equal(t, errors.KindPermissionDenied, errors.KindOf(err))

		assert.Equal(t, model.StateNone, f.state(t, "publish", helen))
		assert.Equal(t, model.StateNone, f.state(t, "stored", helen))
		assert.Empty(t, f.events.Events())
	})

	t.Run("already a member is a no-op", func(t *testing.T) {
		f := newRosterFixture(t)
		wim := f.contact(t, "wim@example.com")
		f.requestPublish(t, wim)
		f.change(t, "publish", wim, true, "")
		f.events.Reset()

		f.change(t, "publish", wim, true, "")

		assert.Equal(t, model.StateMember, f.state(t, "publish", wim))
		assert.Empty(t, f.events.Events())
	})

	t.Run("one unauthorized handle rejects the whole call", func(t *testing.T) {
		f := newRosterFixture(t)
		wim := f.contact(t, "wim@example.com")
		helen := f.contact(t, "helen@example.com")
		f.requestPublish(t, wim)
		f.events.Reset()

		err := f.roster.RequestChange(f.ctx, "publish", []model.Handle{wim, helen}, true, "")
		assert.Equal(t, errors.KindPermissionDenied, errors.KindOf(err))

		assert.Equal(t, model.StateLocalPending, f.state(t, "publish", wim))
		assert.Empty(t, f.events.Events())
	})
}

func TestRoster_PublishRemoval(t *testing.T) {
	t.Run("rejecting a request", func(t *testing.T) {
		f := newRosterFixture(t)
		wim := f.contact(t, "wim@example.com")
		f.requestPublish(t, wim)

		f.change(t, "publish", wim, false, "")

		assert.Equal(t, model.StateNone, f.state(t, "publish", wim))
		assert.Equal(t, model.StateMember, f.state(t, "stored", wim))
		assert.Zero(t, f.peer.Pending())
	})

	t.Run("revoking access makes the peer ask again", func(t *testing.T) {
		f := newRosterFixture(t)
		wim := f.contact(t, "wim@example.com")
		f.requestPublish(t, wim)
		f.change(t, "publish", wim, true, "")

		f.change(t, "publish", wim, false, "")
		assert.Equal(t, model.StateNone, f.state(t, "publish", wim))
		assert.Equal(t, 1, f.peer.Pending())

		f.advance(t, testPeerDelay)
		assert.Equal(t, model.StateLocalPending, f.state(t, "publish", wim))
	})

	t.Run("absent is a no-op", func(t *testing.T) {
		f := newRosterFixture(t)
		helen := f.contact(t, "helen@example.com")

		f.change(t, "publish", helen, false, "")

		assert.Empty(t, f.events.Events())
		assert.Zero(t, f.peer.Pending())
	})
}

func TestRoster_StoredRemovalCascades(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")

	require.NoError(t, f.roster.CreateGroup(f.ctx, "Montreal"))
	require.NoError(t, f.roster.CreateGroup(f.ctx, "Cambridge"))

	f.change(t, "subscribe", bob, true, "please")
	f.advance(t, testPeerDelay)
	f.requestPublish(t, bob)
	f.change(t, "publish", bob, true, "")
	f.change(t, "Montreal", bob, true, "")
	f.change(t, "Cambridge", bob, true, "")
	f.events.Reset()

	f.change(t, "stored", bob, false, "")

	for _, name := range []string{"publish", "subscribe", "stored", "Cambridge", "Montreal"} {
		assert.Equal(t, model.StateNone, f.state(t, name, bob), name)
	}
	assert.Equal(t, []model.ChangeEvent{
		ev(publishList, bob, model.StateMember, model.StateNone),
		ev(subscribeList, bob, model.StateMember, model.StateNone),
		ev(model.GroupTarget("Cambridge"), bob, model.StateMember, model.StateNone),
		ev(model.GroupTarget("Montreal"), bob, model.StateMember, model.StateNone),
		ev(storedList, bob, model.StateMember, model.StateNone),
	}, f.events.Events())

	// a cascade does not notify the peer, so nothing comes back later
	f.advance(t, 10*testPeerDelay)
	assert.Equal(t, model.StateNone, f.state(t, "stored", bob))
}

func TestRoster_CascadeVoidsPendingDecision(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")

	f.change(t, "subscribe", bob, true, "please")
	f.change(t, "stored", bob, false, "")
	f.events.Reset()

	f.advance(t, testPeerDelay)

	assert.Equal(t, model.StateNone, f.state(t, "subscribe", bob))
	assert.Equal(t, model.StateNone, f.state(t, "stored", bob))
	assert.Empty(t, f.events.Events())
}

func TestRoster_StoredAddIsIdempotent(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")

	f.change(t, "stored", bob, true, "")
	f.change(t, "stored", bob, true, "")

	assert.Len(t, f.events.Events(), 1)
}

func TestRoster_SubscribeAddWhilePending(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")

	f.change(t, "subscribe", bob, true, "please, first")
	f.events.Reset()

	f.change(t, "subscribe", bob, true, "please, second")

	entry, err := f.roster.Entry(f.ctx, "subscribe", bob)
	require.NoError(t, err)
	assert.Equal(t, "please, first", entry.Message)
	assert.Empty(t, f.events.Events())
	assert.Equal(t, 1, f.peer.Pending())
}

func TestRoster_SubscribeRemovalCancelsRequest(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")

	f.change(t, "subscribe", bob, true, "please")
	f.change(t, "subscribe", bob, false, "")
	assert.Equal(t, model.StateNone, f.state(t, "subscribe", bob))
	assert.Equal(t, model.StateMember, f.state(t, "stored", bob))
	f.events.Reset()

	f.advance(t, testPeerDelay)

	assert.Equal(t, model.StateNone, f.state(t, "subscribe", bob))
	assert.Empty(t, f.events.Events())
}

func TestRoster_RequestChangeValidation(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")

	tests := []struct {
		name        string
		listOrGroup string
		handles     []model.Handle
		add         bool
		expected    errors.Kind
	}{
		{name: "unknown group", listOrGroup: "nowhere", handles: []model.Handle{bob}, add: true, expected: errors.KindInvalidArgument},
		{name: "empty name", listOrGroup: "", handles: []model.Handle{bob}, add: true, expected: errors.KindInvalidArgument},
		{name: "empty handle set", listOrGroup: "stored", handles: nil, add: true, expected: errors.KindInvalidArgument},
		{name: "unknown handle", listOrGroup: "stored", handles: []model.Handle{bob, 9999}, add: true, expected: errors.KindInvalidArgument},
		{name: "unknown handle on removal", listOrGroup: "stored", handles: []model.Handle{9999}, add: false, expected: errors.KindInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.roster.RequestChange(f.ctx, tt.listOrGroup, tt.handles, tt.add, "")
			require.Error(t, err)
			assert.Equal(t, tt.expected, errors.KindOf(err))
		})
	}

	assert.Equal(t, model.StateNone, f.state(t, "stored", bob))
	assert.Empty(t, f.events.Events())
}

func TestRoster_Groups(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")

	require.NoError(t, f.roster.CreateGroup(f.ctx, "Cambridge"))
	require.NoError(t, f.roster.CreateGroup(f.ctx, "Cambridge"))
	assert.Len(t, f.events.GroupEvents(), 1)

	f.change(t, "Cambridge", bob, true, "")
	assert.Equal(t, []model.ChangeEvent{
		ev(storedList, bob, model.StateNone, model.StateMember),
		ev(model.GroupTarget("Cambridge"), bob, model.StateNone, model.StateMember),
	}, f.events.Events())

	snapshot, err := f.roster.Snapshot(f.ctx, "Cambridge")
	require.NoError(t, err)
	assert.Equal(t, map[model.Handle]model.MembershipState{bob: model.StateMember}, snapshot)

	err = f.roster.RemoveGroup(f.ctx, "Cambridge")
	require.Error(t, err)
	assert.Equal(t, errors.KindNotAvailable, errors.KindOf(err))

	// the last member leaving does not delete the group
	f.change(t, "Cambridge", bob, false, "")
	groups, err := f.roster.Groups(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cambridge"}, groups)
	assert.Equal(t, model.StateMember, f.state(t, "stored", bob))

	require.NoError(t, f.roster.RemoveGroup(f.ctx, "Cambridge"))
	groups, err = f.roster.Groups(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)

	assert.Equal(t, []model.GroupEvent{
		{Action: model.GroupCreated, Name: "Cambridge"},
		{Action: model.GroupRemoved, Name: "Cambridge"},
	}, f.events.GroupEvents())
}

func TestRoster_GroupValidation(t *testing.T) {
	f := newRosterFixture(t)

	tests := []struct {
		name     string
		call     func() error
		expected errors.Kind
	}{
		{"create empty", func() error { return f.roster.CreateGroup(f.ctx, "") }, errors.KindInvalidArgument},
		{"create reserved", func() error { return f.roster.CreateGroup(f.ctx, "stored") }, errors.KindInvalidArgument},
		{"remove unknown", func() error { return f.roster.RemoveGroup(f.ctx, "Cambridge") }, errors.KindInvalidArgument},
		{"remove reserved", func() error { return f.roster.RemoveGroup(f.ctx, "publish") }, errors.KindInvalidArgument},
		{"rename unknown", func() error { return f.roster.RenameGroup(f.ctx, "Cambridge", "Oxford") }, errors.KindInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, tt.expected, errors.KindOf(err))
		})
	}
	assert.Empty(t, f.events.GroupEvents())
}

func TestRoster_RenameGroup(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")
	alice := f.contact(t, "alice@example.com")

	require.NoError(t, f.roster.CreateGroup(f.ctx, "Office"))
	require.NoError(t, f.roster.CreateGroup(f.ctx, "Home"))
	require.NoError(t, f.roster.RequestChange(f.ctx, "Office", []model.Handle{bob, alice}, true, ""))
	f.events.Reset()

	err := f.roster.RenameGroup(f.ctx, "Office", "Home")
	assert.Equal(t, errors.KindNotAvailable, errors.KindOf(err))

	err = f.roster.RenameGroup(f.ctx, "Office", "subscribe")
	assert.Equal(t, errors.KindInvalidArgument, errors.KindOf(err))

	require.NoError(t, f.roster.RenameGroup(f.ctx, "Office", "Work"))

	groups, err := f.roster.Groups(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Home", "Work"}, groups)

	snapshot, err := f.roster.Snapshot(f.ctx, "Work")
	require.NoError(t, err)
	assert.Len(t, snapshot, 2)

	_, err = f.roster.Snapshot(f.ctx, "Office")
	assert.Equal(t, errors.KindInvalidArgument, errors.KindOf(err))

	assert.Equal(t, []model.GroupEvent{
		{Action: model.GroupRenamed, Name: "Work", OldName: "Office"},
	}, f.events.GroupEvents())

	office, work := model.GroupTarget("Office"), model.GroupTarget("Work")
	first, second := bob, alice
	if alice < bob {
		first, second = alice, bob
	}
	assert.Equal(t, []model.ChangeEvent{
		ev(office, first, model.StateMember, model.StateNone),
		ev(work, first, model.StateNone, model.StateMember),
		ev(office, second, model.StateMember, model.StateNone),
		ev(work, second, model.StateNone, model.StateMember),
	}, f.events.Events())

	groupsOfBob, err := f.roster.GroupsOf(f.ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{"Work"}, groupsOfBob)
}

func TestRoster_Block(t *testing.T) {
	f := newRosterFixture(t)
	mallory := f.contact(t, "mallory@example.com")

	require.NoError(t, f.roster.Block(f.ctx, []model.Handle{mallory}))
	require.NoError(t, f.roster.Block(f.ctx, []model.Handle{mallory}))

	blocked, err := f.roster.Blocked(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.Handle{mallory}, blocked)

	f.requestPublish(t, mallory)
	assert.Equal(t, model.StateNone, f.state(t, "publish", mallory))
	assert.Empty(t, f.events.Events())

	require.NoError(t, f.roster.Unblock(f.ctx, []model.Handle{mallory}))
	blocked, err = f.roster.Blocked(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, blocked)

	f.requestPublish(t, mallory)
	assert.Equal(t, model.StateLocalPending, f.state(t, "publish", mallory))

	err = f.roster.Block(f.ctx, nil)
	assert.Equal(t, errors.KindInvalidArgument, errors.KindOf(err))
}

func TestRoster_PublishRequestIgnoredWhenKnown(t *testing.T) {
	f := newRosterFixture(t)
	wim := f.contact(t, "wim@example.com")
	f.requestPublish(t, wim)
	f.change(t, "publish", wim, true, "")
	f.events.Reset()

	f.requestPublish(t, wim)

	assert.Equal(t, model.StateMember, f.state(t, "publish", wim))
	assert.Empty(t, f.events.Events())
}

func TestRoster_Reciprocation(t *testing.T) {
	const ask = "May I see yours too, please?"

	t.Run("accepted subscription asks back", func(t *testing.T) {
		f := newRosterFixture(t, WithReciprocation(true, ask))
		bob := f.contact(t, "bob@example.com")

		f.change(t, "subscribe", bob, true, "please")
		f.advance(t, testPeerDelay)

		assert.Equal(t, model.StateMember, f.state(t, "subscribe", bob))
		entry, err := f.roster.Entry(f.ctx, "publish", bob)
		require.NoError(t, err)
		assert.Equal(t, model.StateLocalPending, entry.State)
		assert.Equal(t, ask, entry.Message)
	})

	t.Run("blocked contacts do not ask back", func(t *testing.T) {
		f := newRosterFixture(t, WithReciprocation(true, ask))
		bob := f.contact(t, "bob@example.com")
		require.NoError(t, f.roster.Block(f.ctx, []model.Handle{bob}))

		f.change(t, "subscribe", bob, true, "please")
		f.advance(t, testPeerDelay)

		assert.Equal(t, model.StateMember, f.state(t, "subscribe", bob))
		assert.Equal(t, model.StateNone, f.state(t, "publish", bob))
	})

	t.Run("stale acceptance does not ask back", func(t *testing.T) {
		f := newRosterFixture(t, WithReciprocation(true, ask))
		bob := f.contact(t, "bob@example.com")

		f.change(t, "subscribe", bob, true, "please")
		f.change(t, "stored", bob, false, "")
		f.advance(t, testPeerDelay)

		assert.Equal(t, model.StateNone, f.state(t, "publish", bob))
		assert.Equal(t, model.StateNone, f.state(t, "stored", bob))
	})
}

func TestRoster_HandleReferences(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")
	require.Equal(t, 1, f.registry.Refs(bob))

	require.NoError(t, f.roster.CreateGroup(f.ctx, "Cambridge"))
	f.change(t, "stored", bob, true, "")
	assert.Equal(t, 2, f.registry.Refs(bob))

	// further rows share the roster's single reference
	f.change(t, "Cambridge", bob, true, "")
	f.change(t, "subscribe", bob, true, "no")
	assert.Equal(t, 2, f.registry.Refs(bob))

	f.change(t, "stored", bob, false, "")
	assert.Equal(t, 1, f.registry.Refs(bob))

	// once the caller lets go nothing keeps the handle alive
	f.registry.Unref(bob)
	assert.False(t, f.registry.IsValid(bob))

	// the outstanding rejection finds an invalid handle and is dropped
	f.advance(t, testPeerDelay)
	assert.Equal(t, model.StateNone, f.state(t, "subscribe", bob))
}

func TestRoster_ObserverReentrance(t *testing.T) {
	t.Run("nested change from an observer is applied", func(t *testing.T) {
		f := newRosterFixture(t)
		bob := f.contact(t, "bob@example.com")
		require.NoError(t, f.roster.CreateGroup(f.ctx, "Friends"))

		cancel, err := f.roster.Subscribe(f.ctx, port.ChangeObserverFunc(func(ctx context.Context, event model.ChangeEvent) {
			if event.Target == subscribeList && event.NewState == model.StateMember {
				assert.NoError(t, f.roster.RequestChange(ctx, "Friends", []model.Handle{event.Handle}, true, ""))
			}
		}))
		require.NoError(t, err)
		defer cancel()

		f.change(t, "subscribe", bob, true, "please")
		f.advance(t, testPeerDelay)

		assert.Equal(t, model.StateMember, f.state(t, "Friends", bob))
	})

	t.Run("later observers see nested changes after the outer one", func(t *testing.T) {
		f := newRosterFixture(t)
		bob := f.contact(t, "bob@example.com")

		approve, err := f.roster.Subscribe(f.ctx, port.ChangeObserverFunc(func(ctx context.Context, event model.ChangeEvent) {
			if event.Target == publishList && event.NewState == model.StateLocalPending {
				assert.NoError(t, f.roster.RequestChange(ctx, "publish", []model.Handle{event.Handle}, true, ""))
			}
		}))
		require.NoError(t, err)
		defer approve()

		late := &eventRecorder{}
		unsubscribe, err := f.roster.Subscribe(f.ctx, late)
		require.NoError(t, err)
		defer unsubscribe()

		f.requestPublish(t, bob)

		want := []string{
			"stored none->member",
			"publish none->local_pending",
			"publish local_pending->member",
		}
		assert.Equal(t, want, transitions(late.Events()))
		assert.Equal(t, want, transitions(f.events.Events()))
		assert.Equal(t, model.StateMember, f.state(t, "publish", bob))
	})
}

func transitions(events []model.ChangeEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, fmt.Sprintf("%s %s->%s", e.Target.String(), e.OldState, e.NewState))
	}
	return out
}

func TestRoster_CancelledDuringChange(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")

	ctx, cancel := context.WithCancel(f.ctx)
	defer cancel()

	unsubscribe, err := f.roster.Subscribe(f.ctx, port.ChangeObserverFunc(func(context.Context, model.ChangeEvent) {
		cancel()
	}))
	require.NoError(t, err)
	defer unsubscribe()

	// the change was applied, so the caller must not be told it failed
	assert.NoError(t, f.roster.RequestChange(ctx, "stored", []model.Handle{bob}, true, ""))
	assert.Equal(t, model.StateMember, f.state(t, "stored", bob))

	err = f.roster.RequestChange(ctx, "stored", []model.Handle{bob}, false, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.StateMember, f.state(t, "stored", bob))
}

func TestRoster_SupersededSubscriptionDecision(t *testing.T) {
	t.Run("answer to a withdrawn request is dropped", func(t *testing.T) {
		f := newRosterFixture(t)
		bob := f.contact(t, "bob@example.com")

		f.change(t, "subscribe", bob, true, "please")
		f.change(t, "subscribe", bob, false, "")
		f.change(t, "subscribe", bob, true, "let me in")
		f.events.Reset()

		// both answers are due now: accept for the first request, reject for the second
		f.advance(t, testPeerDelay)

		assert.Equal(t, model.StateNone, f.state(t, "subscribe", bob))
		assert.Equal(t, model.StateMember, f.state(t, "stored", bob))
		assert.Equal(t, []string{"subscribe remote_pending->none"}, transitions(f.events.Events()))
	})

	t.Run("answer without a request id settles the outstanding request", func(t *testing.T) {
		f := newRosterFixture(t)
		bob := f.contact(t, "bob@example.com")

		f.change(t, "subscribe", bob, true, "no token here")
		f.roster.SubscriptionDecided(bob, 0, true)
		f.sync(t)

		assert.Equal(t, model.StateMember, f.state(t, "subscribe", bob))

		// the simulated rejection arrives after the request was settled
		f.advance(t, testPeerDelay)
		assert.Equal(t, model.StateMember, f.state(t, "subscribe", bob))
	})
}

func TestRoster_SubscribeObserver(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")
	alice := f.contact(t, "alice@example.com")

	f.change(t, "stored", bob, true, "")

	late := &eventRecorder{}
	cancel, err := f.roster.Subscribe(f.ctx, late)
	require.NoError(t, err)

	f.change(t, "stored", alice, true, "")
	assert.Equal(t, []model.ChangeEvent{ev(storedList, alice, model.StateNone, model.StateMember)}, late.Events())

	cancel()
	f.sync(t)
	f.change(t, "stored", alice, false, "")
	assert.Len(t, late.Events(), 1)
	assert.Len(t, f.events.Events(), 3)
}

func TestRoster_SnapshotIsACopy(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")
	f.change(t, "stored", bob, true, "")

	snapshot, err := f.roster.Snapshot(f.ctx, "stored")
	require.NoError(t, err)
	snapshot[bob] = model.StateNone
	delete(snapshot, bob)

	again, err := f.roster.Snapshot(f.ctx, "stored")
	require.NoError(t, err)
	assert.Equal(t, map[model.Handle]model.MembershipState{bob: model.StateMember}, again)
}

func TestRoster_GetUnknownGroup(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")

	state, err := f.roster.Get(f.ctx, "nowhere", bob)
	require.NoError(t, err)
	assert.Equal(t, model.StateNone, state)

	state, err = f.roster.Get(f.ctx, "", bob)
	require.NoError(t, err)
	assert.Equal(t, model.StateNone, state)
}

func TestRoster_ExportRestore(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")
	wim := f.contact(t, "wim@example.com")
	mallory := f.contact(t, "mallory@example.com")

	require.NoError(t, f.roster.CreateGroup(f.ctx, "Cambridge"))
	require.NoError(t, f.roster.CreateGroup(f.ctx, "Empty"))
	f.change(t, "subscribe", bob, true, "please")
	f.advance(t, testPeerDelay)
	f.change(t, "Cambridge", bob, true, "")
	f.requestPublish(t, wim)
	f.change(t, "subscribe", wim, true, "please hurry")
	require.NoError(t, f.roster.Block(f.ctx, []model.Handle{mallory}))

	exported, err := f.roster.Export(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cambridge", "Empty"}, exported.Groups)
	assert.Equal(t, []model.Handle{mallory}, exported.Blocked)

	restoredEvents := &eventRecorder{}
	restored := NewRoster(f.registry, WithObserver(restoredEvents))
	defer restored.Close()

	require.NoError(t, restored.Restore(f.ctx, exported))

	again, err := restored.Export(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, exported, again)

	entry, err := restored.Entry(f.ctx, "subscribe", wim)
	require.NoError(t, err)
	assert.Equal(t, model.StateRemotePending, entry.State)
	assert.Equal(t, "please hurry", entry.Message)

	assert.NotEmpty(t, restoredEvents.Events())
	assert.Len(t, restoredEvents.GroupEvents(), 2)
}

func TestRoster_RestoreRejectsInvalidState(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")

	tests := []struct {
		name  string
		state model.RosterState
	}{
		{
			name: "remote pending publish",
			state: model.RosterState{Entries: []model.MembershipEntry{
				{Target: storedList, Handle: bob, State: model.StateMember},
				{Target: publishList, Handle: bob, State: model.StateRemotePending},
			}},
		},
		{
			name: "pending stored",
			state: model.RosterState{Entries: []model.MembershipEntry{
				{Target: storedList, Handle: bob, State: model.StateLocalPending},
			}},
		},
		{
			name: "undeclared group",
			state: model.RosterState{Entries: []model.MembershipEntry{
				{Target: model.GroupTarget("Nowhere"), Handle: bob, State: model.StateMember},
			}},
		},
		{
			name: "reserved group name",
			state: model.RosterState{Groups: []string{"stored"}},
		},
		{
			name: "invalid handle",
			state: model.RosterState{Entries: []model.MembershipEntry{
				{Target: storedList, Handle: 4242, State: model.StateMember},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.roster.Restore(f.ctx, tt.state)
			require.Error(t, err)
			assert.Equal(t, errors.KindInvalidArgument, errors.KindOf(err))
		})
	}

	exported, err := f.roster.Export(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, exported.Entries)
	assert.Empty(t, f.events.Events())
}

func TestRoster_Closed(t *testing.T) {
	f := newRosterFixture(t)
	bob := f.contact(t, "bob@example.com")
	f.roster.Close()

	err := f.roster.RequestChange(f.ctx, "stored", []model.Handle{bob}, true, "")
	require.Error(t, err)
	assert.Equal(t, errors.KindServiceUnavailable, errors.KindOf(err))

	// peer answers after close are dropped without leaking references
	f.roster.PublishRequested(bob, "hello")
	assert.Equal(t, 1, f.registry.Refs(bob))
}

func TestRoster_ConcurrentCallers(t *testing.T) {
	f := newRosterFixture(t)

	var wg sync.WaitGroup
	handles := make([]model.Handle, 20)
	for i := range handles {
		handles[i] = f.contact(t, fmt.Sprintf("contact-%d@example.com", i))
	}
	for _, h := range handles {
		wg.Add(1)
		go func(h model.Handle) {
			defer wg.Done()
			assert.NoError(t, f.roster.RequestChange(f.ctx, "subscribe", []model.Handle{h}, true, "please"))
		}(h)
	}
	wg.Wait()

	snapshot, err := f.roster.Snapshot(f.ctx, "stored")
	require.NoError(t, err)
	assert.Len(t, snapshot, len(handles))

	f.advance(t, testPeerDelay)
	snapshot, err = f.roster.Snapshot(f.ctx, "subscribe")
	require.NoError(t, err)
	for _, h := range handles {
		assert.Equal(t, model.StateMember, snapshot[h])
	}
}

// TestRoster_StoredInvariant drives random operations and checks after each
// one that every publish, subscribe or group row has a stored row.
func TestRoster_StoredInvariant(t *testing.T) {
	f := newRosterFixture(t, WithReciprocation(true, "please"))
	rng := rand.New(rand.NewSource(7))

	require.NoError(t, f.roster.CreateGroup(f.ctx, "A"))
	require.NoError(t, f.roster.CreateGroup(f.ctx, "B"))

	handles := make([]model.Handle, 6)
	for i := range handles {
		handles[i] = f.contact(t, fmt.Sprintf("peer-%d@example.com", i))
	}
	targets := []string{"publish", "subscribe", "stored", "A", "B"}
	messages := []string{"please", "hello", ""}

	for step := 0; step < 400; step++ {
		h := handles[rng.Intn(len(handles))]
		switch rng.Intn(5) {
		case 0, 1:
			target := targets[rng.Intn(len(targets))]
			err := f.roster.RequestChange(f.ctx, target, []model.Handle{h}, rng.Intn(2) == 0, messages[rng.Intn(len(messages))])
			if err != nil {
				require.Equal(t, errors.KindPermissionDenied, errors.KindOf(err), "step %d", step)
			}
		case 2:
			f.peer.SimulatePublishRequest(f.ctx, h, "")
		case 3:
			f.advance(t, time.Duration(rng.Intn(1500))*time.Millisecond)
		case 4:
			if rng.Intn(4) == 0 {
				require.NoError(t, f.roster.Block(f.ctx, []model.Handle{h}))
			} else {
				require.NoError(t, f.roster.Unblock(f.ctx, []model.Handle{h}))
			}
		}

		for _, c := range handles {
			stored := f.state(t, "stored", c)
			for _, target := range []string{"publish", "subscribe", "A", "B"} {
				if f.state(t, target, c) != model.StateNone {
					require.Equal(t, model.StateMember, stored, "step %d: %s row without stored row", step, target)
				}
			}
		}
	}
}
