// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"fmt"
	"maps"
	"slices"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/errors"
)

type row struct {
	state   model.MembershipState
	message string
}

// membershipStore is the authoritative membership table. It is owned by the
// transition engine and only touched from the roster queue.
//
// The store holds one registry reference per handle for as long as the
// handle has any row: on a list, in a group or in the blocked set.
type membershipStore struct {
	registry port.IdentityRegistry
	lists    map[model.ListKind]map[model.Handle]row
	groups   map[string]map[model.Handle]struct{}
	blocked  map[model.Handle]struct{}
	rows     map[model.Handle]int
}

func newMembershipStore(registry port.IdentityRegistry) *membershipStore {
	return &membershipStore{
		registry: registry,
		lists: map[model.ListKind]map[model.Handle]row{
			model.ListPublish:   {},
			model.ListSubscribe: {},
			model.ListStored:    {},
		},
		groups:  make(map[string]map[model.Handle]struct{}),
		blocked: make(map[model.Handle]struct{}),
		rows:    make(map[model.Handle]int),
	}
}

func (s *membershipStore) hasTarget(t model.Target) bool {
	if t.IsGroup() {
		_, ok := s.groups[t.Group]
		return ok
	}
	_, ok := s.lists[t.List]
	return ok
}

// Get never fails; absent rows and unknown groups report StateNone.
func (s *membershipStore) Get(t model.Target, h model.Handle) model.MembershipState {
	return s.entry(t, h).State
}

func (s *membershipStore) entry(t model.Target, h model.Handle) model.MembershipEntry {
	e := model.MembershipEntry{Target: t, Handle: h}
	if t.IsGroup() {
		if _, ok := s.groups[t.Group][h]; ok {
			e.State = model.StateMember
		}
		return e
	}
	if r, ok := s.lists[t.List][h]; ok {
		e.State = r.state
		e.Message = r.message
	}
	return e
}

// Snapshot returns a copy the caller may keep.
func (s *membershipStore) Snapshot(t model.Target) map[model.Handle]model.MembershipState {
	out := make(map[model.Handle]model.MembershipState)
	if t.IsGroup() {
		for h := range s.groups[t.Group] {
			out[h] = model.StateMember
		}
		return out
	}
	for h, r := range s.lists[t.List] {
		out[h] = r.state
	}
	return out
}

// Set writes a row, acquiring a registry reference when it is the handle's
// first. Groups only hold StateMember; setting StateNone clears.
func (s *membershipStore) Set(t model.Target, h model.Handle, state model.MembershipState, message string) (bool, error) {
	if state == model.StateNone {
		return s.Clear(t, h), nil
	}

	if t.IsGroup() {
		members, ok := s.groups[t.Group]
		if !ok {
			return false, errors.NewInvalidArgument(fmt.Sprintf("unknown group %q", t.Group))
		}
		if _, ok := members[h]; ok {
			return false, nil
		}
		if err := s.acquire(h); err != nil {
			return false, err
		}
		members[h] = struct{}{}
		return true, nil
	}

	list, ok := s.lists[t.List]
	if !ok {
		return false, errors.NewInvalidArgument(fmt.Sprintf("unknown list %s", t.List))
	}
	if state.IsPending() && !t.List.AllowsPending() {
		return false, errors.NewInvalidArgument(fmt.Sprintf("%s list cannot hold %s", t.List, state))
	}

	current, exists := list[h]
	if exists && current.state == state {
		return false, nil
	}
	if !exists {
		if err := s.acquire(h); err != nil {
			return false, err
		}
	}
	if !state.IsPending() {
		message = ""
	}
	list[h] = row{state: state, message: message}
	return true, nil
}

// Clear removes a row and reports whether one existed.
func (s *membershipStore) Clear(t model.Target, h model.Handle) bool {
	if t.IsGroup() {
		members := s.groups[t.Group]
		if _, ok := members[h]; !ok {
			return false
		}
		delete(members, h)
		s.release(h)
		return true
	}

	list := s.lists[t.List]
	if _, ok := list[h]; !ok {
		return false
	}
	delete(list, h)
	s.release(h)
	return true
}

func (s *membershipStore) hasGroup(name string) bool {
	_, ok := s.groups[name]
	return ok
}

func (s *membershipStore) createGroup(name string) bool {
	if s.hasGroup(name) {
		return false
	}
	s.groups[name] = make(map[model.Handle]struct{})
	return true
}

// deleteGroup removes an empty group.
func (s *membershipStore) deleteGroup(name string) bool {
	members, ok := s.groups[name]
	if !ok || len(members) > 0 {
		return false
	}
	delete(s.groups, name)
	return true
}

// renameGroup moves the members of oldName to newName, which must not exist.
func (s *membershipStore) renameGroup(oldName, newName string) {
	s.groups[newName] = s.groups[oldName]
	delete(s.groups, oldName)
}

func (s *membershipStore) groupNames() []string {
	return slices.Sorted(maps.Keys(s.groups))
}

func (s *membershipStore) groupsOf(h model.Handle) []string {
	var names []string
	for name, members := range s.groups {
		if _, ok := members[h]; ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func (s *membershipStore) isBlocked(h model.Handle) bool {
	_, ok := s.blocked[h]
	return ok
}

func (s *membershipStore) block(h model.Handle) (bool, error) {
	if s.isBlocked(h) {
		return false, nil
	}
	if err := s.acquire(h); err != nil {
		return false, err
	}
	s.blocked[h] = struct{}{}
	return true, nil
}

func (s *membershipStore) unblock(h model.Handle) bool {
	if !s.isBlocked(h) {
		return false
	}
	delete(s.blocked, h)
	s.release(h)
	return true
}

func (s *membershipStore) blockedHandles() []model.Handle {
	return slices.Sorted(maps.Keys(s.blocked))
}

// handles returns every handle holding at least one row, ascending.
func (s *membershipStore) handles() []model.Handle {
	return slices.Sorted(maps.Keys(s.rows))
}

func (s *membershipStore) acquire(h model.Handle) error {
	if s.rows[h] == 0 {
		if err := s.registry.Ref(h); err != nil {
			return err
		}
	}
	s.rows[h]++
	return nil
}

func (s *membershipStore) release(h model.Handle) {
	s.rows[h]--
	if s.rows[h] <= 0 {
		delete(s.rows, h)
		s.registry.Unref(h)
	}
}
