// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package errors

import "errors"

// InvalidArgument represents malformed input: an unknown list or group name,
// an empty handle set, or a handle the identity registry does not know.
type InvalidArgument struct {
	base
}

// Error returns the error message for InvalidArgument.
func (i InvalidArgument) Error() string {
	return i.error()
}

// NewInvalidArgument creates a new InvalidArgument error with the provided message.
func NewInvalidArgument(message string, err ...error) InvalidArgument {
	return InvalidArgument{
		base: base{
			message: message,
			err:     errors.Join(err...),
		},
	}
}

// PermissionDenied represents a transition that is not authorized given the
// current membership state, e.g. granting publish access nobody asked for.
type PermissionDenied struct {
	base
}

// Error returns the error message for PermissionDenied.
func (p PermissionDenied) Error() string {
	return p.error()
}

// NewPermissionDenied creates a new PermissionDenied error with the provided message.
func NewPermissionDenied(message string, err ...error) PermissionDenied {
	return PermissionDenied{
		base: base{
			message: message,
			err:     errors.Join(err...),
		},
	}
}

// NotAvailable represents a structurally impossible operation, such as
// removing a group that still has members.
type NotAvailable struct {
	base
}

// Error returns the error message for NotAvailable.
func (n NotAvailable) Error() string {
	return n.error()
}

// NewNotAvailable creates a new NotAvailable error with the provided message.
func NewNotAvailable(message string, err ...error) NotAvailable {
	return NotAvailable{
		base: base{
			message: message,
			err:     errors.Join(err...),
		},
	}
}

// NotFound represents a missing resource in a backing store.
type NotFound struct {
	base
}

// Error returns the error message for NotFound.
func (n NotFound) Error() string {
	return n.error()
}

// NewNotFound creates a new NotFound error with the provided message.
func NewNotFound(message string, err ...error) NotFound {
	return NotFound{
		base: base{
			message: message,
			err:     errors.Join(err...),
		},
	}
}
