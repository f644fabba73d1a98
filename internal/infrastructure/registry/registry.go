// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package registry provides an in-process identity registry that interns
// contact identifiers as small reference counted handles.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/errors"
)

type entry struct {
	identifier string
	refs       int
}

// Registry is a concurrency-safe port.IdentityRegistry. Handles start at 1
// and are never reused once invalidated.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]model.Handle
	byHandle map[model.Handle]*entry
	next     model.Handle
}

// Ensure Registry implements the IdentityRegistry interface
var _ port.IdentityRegistry = (*Registry)(nil)

// New creates an empty registry
func New() *Registry {
	return &Registry{
		byID:     make(map[string]model.Handle),
		byHandle: make(map[model.Handle]*entry),
		next:     1,
	}
}

// Normalize returns the canonical form of a contact identifier
func Normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Ensure interns identifier and adds one reference to its handle
func (r *Registry) Ensure(identifier string) (model.Handle, error) {
	id := Normalize(identifier)
	if id == "" {
		return 0, errors.NewInvalidArgument("contact identifier is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.byID[id]; ok {
		r.byHandle[h].refs++
		return h, nil
	}

	if r.next == 0 {
		return 0, errors.NewNotAvailable("handle space exhausted")
	}
	h := r.next
	r.next++
	r.byID[id] = h
	r.byHandle[h] = &entry{identifier: id, refs: 1}
	return h, nil
}

// Inspect returns the identifier behind a valid handle
func (r *Registry) Inspect(handle model.Handle) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byHandle[handle]
	if !ok {
		return "", false
	}
	return e.identifier, true
}

// IsValid reports whether handle is currently issued
func (r *Registry) IsValid(handle model.Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byHandle[handle]
	return ok
}

// Ref adds a reference to a valid handle
func (r *Registry) Ref(handle model.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byHandle[handle]
	if !ok {
		return errors.NewInvalidArgument(fmt.Sprintf("invalid handle %d", handle))
	}
	e.refs++
	return nil
}

// Unref releases one reference. Releasing an invalid handle is a no-op.
func (r *Registry) Unref(handle model.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byHandle[handle]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(r.byHandle, handle)
		delete(r.byID, e.identifier)
	}
}

// Len returns the number of valid handles
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHandle)
}

// Refs returns the reference count of handle, zero when invalid
func (r *Registry) Refs(handle model.Handle) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.byHandle[handle]; ok {
		return e.refs
	}
	return 0
}
