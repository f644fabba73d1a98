// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package port defines the interfaces between the roster domain and its
// collaborators.
package port

import "github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/model"

// IdentityRegistry interns contact identifiers as reference counted handles
type IdentityRegistry interface {
	// Ensure returns the handle for identifier, issuing one if needed, and
	// adds a reference the caller must release with Unref.
	Ensure(identifier string) (model.Handle, error)
	// Inspect returns the identifier a valid handle was interned from
	Inspect(handle model.Handle) (string, bool)
	// IsValid reports whether the handle is currently issued
	IsValid(handle model.Handle) bool
	// Ref adds a reference to a valid handle
	Ref(handle model.Handle) error
	// Unref releases a reference; the handle is invalidated at zero
	Unref(handle model.Handle)
}
