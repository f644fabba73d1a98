// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import "context"

// MessagePublisher defines the interface for publishing roster messages.
// This interface is implemented by the NATS messaging infrastructure.
type MessagePublisher interface {
	// Publish marshals message to JSON and publishes it on subject
	Publish(ctx context.Context, subject string, message any) error
}
