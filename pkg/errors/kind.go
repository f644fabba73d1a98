// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package errors

import "errors"

// Kind is the machine-checkable classification of an error, used by binding
// layers to map failures onto their transport's error convention.
type Kind string

// Kind values
const (
	KindInvalidArgument    Kind = "invalid_argument"
	KindPermissionDenied   Kind = "permission_denied"
	KindNotAvailable       Kind = "not_available"
	KindNotFound           Kind = "not_found"
	KindUnexpected         Kind = "unexpected"
	KindServiceUnavailable Kind = "service_unavailable"
)

// KindOf returns the Kind of the first typed error found in err's chain,
// or the empty Kind when err is nil or untyped.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var (
		invalid     InvalidArgument
		denied      PermissionDenied
		notAvail    NotAvailable
		notFound    NotFound
		unexpected  Unexpected
		unavailable ServiceUnavailable
	)

	switch {
	case errors.As(err, &invalid):
		return KindInvalidArgument
	case errors.As(err, &denied):
		return KindPermissionDenied
	case errors.As(err, &notAvail):
		return KindNotAvailable
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &unexpected):
		return KindUnexpected
	case errors.As(err, &unavailable):
		return KindServiceUnavailable
	default:
		return ""
	}
}
