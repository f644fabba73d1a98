// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mock

import (
	"context"
	"log/slog"
	"sync"

	"github.com/linuxfoundation/lfx-v2-roster-service/internal/domain/port"
)

// PublishedMessage is one message captured by MockMessagePublisher
type PublishedMessage struct {
	Subject string
	Message any
}

// MockMessagePublisher records published messages instead of sending them
type MockMessagePublisher struct {
	mu        sync.Mutex
	published []PublishedMessage
	err       error
}

// Ensure MockMessagePublisher implements the MessagePublisher interface
var _ port.MessagePublisher = (*MockMessagePublisher)(nil)

// NewMockMessagePublisher creates a new mock publisher for testing
func NewMockMessagePublisher() *MockMessagePublisher {
	return &MockMessagePublisher{}
}

// Publish records the message (mock implementation - logs only)
func (m *MockMessagePublisher) Publish(ctx context.Context, subject string, message any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, PublishedMessage{Subject: subject, Message: message})

	slog.DebugContext(ctx, "mock message published", "subject", subject)
	return nil
}

// SetError makes every following Publish fail with err; nil restores success
func (m *MockMessagePublisher) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Published returns every recorded message in publish order
func (m *MockMessagePublisher) Published() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.published...)
}

// Messages returns the recorded messages for one subject
func (m *MockMessagePublisher) Messages(subject string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []any
	for _, p := range m.published {
		if p.Subject == subject {
			out = append(out, p.Message)
		}
	}
	return out
}

// Reset forgets every recorded message
func (m *MockMessagePublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}
