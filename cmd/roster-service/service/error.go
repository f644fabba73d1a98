// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"fmt"

	"github.com/linuxfoundation/lfx-v2-roster-service/pkg/errors"
)

func errUnsupported(name, value string) error {
	return errors.NewInvalidArgument(fmt.Sprintf("unsupported %s value %q", name, value))
}

func errInvalid(name, value string) error {
	return errors.NewInvalidArgument(fmt.Sprintf("invalid %s value %q", name, value))
}
